package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
)

// BasicDriver is the fallback implementation: a bare single-request fetcher
// with no cookies, no redirect history, and tag-stripping extraction. Sites
// that fingerprint the primary driver's header shape sometimes serve this
// one; it is the last rung before the search degradation.
type BasicDriver struct{}

func NewBasicDriver() *BasicDriver { return &BasicDriver{} }

func (d *BasicDriver) Name() string { return "basic" }

func (d *BasicDriver) NewSession(proxyURL string) (Session, error) {
	transport, err := newTransport(proxyURL)
	if err != nil {
		return nil, err
	}
	return &basicSession{client: &http.Client{Transport: transport}}, nil
}

type basicSession struct {
	mu        sync.Mutex
	client    *http.Client
	userAgent string

	currentURL string
	lastHTML   string
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

func (s *basicSession) Prime(userAgent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userAgent = userAgent
	return nil
}

func (s *basicSession) Navigate(ctx context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetch(ctx, target)
}

func (s *basicSession) fetch(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", target, err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read page body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %s from %s: %s",
			resp.Status, target, firstChars(stripTags(string(body)), 200))
	}
	s.currentURL = target
	s.lastHTML = string(body)
	return nil
}

func (s *basicSession) Extract(_ context.Context) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentURL == "" {
		return nil, fmt.Errorf("no page loaded")
	}
	page := &Page{
		URL:      s.currentURL,
		Text:     stripTags(s.lastHTML),
		Elements: scanElements(s.lastHTML),
	}
	if m := titleRe.FindStringSubmatch(s.lastHTML); m != nil {
		page.Title = stripTags(m[1])
	}
	return page, nil
}

func (s *basicSession) NavigateExtract(ctx context.Context, target string) (*Page, error) {
	if err := s.Navigate(ctx, target); err != nil {
		return nil, err
	}
	return s.Extract(ctx)
}

func (s *basicSession) Click(context.Context, Element) error {
	return ErrNotSupported
}

func (s *basicSession) FillSubmit(context.Context, Element, string) error {
	return ErrNotSupported
}

func (s *basicSession) Scroll(context.Context) error { return nil }

func (s *basicSession) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentURL = ""
	s.lastHTML = ""
	return nil
}

func (s *basicSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
