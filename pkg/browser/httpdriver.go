package browser

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/go-shiori/go-readability"
)

const maxBodyBytes = 4 << 20

var (
	linkRe   = regexp.MustCompile(`(?is)<a\s[^>]*href=["']([^"'#][^"']*)["'][^>]*>(.*?)</a>`)
	buttonRe = regexp.MustCompile(`(?is)<button[^>]*>(.*?)</button>`)
	inputRe  = regexp.MustCompile(`(?is)<input\s[^>]*name=["']([^"']+)["'][^>]*>`)
	hiddenRe = regexp.MustCompile(`(?i)type=["']?(hidden|submit)`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`\s+`)
	formRe   = regexp.MustCompile(`(?is)<form\s[^>]*action=["']([^"']*)["']`)
)

// HTTPDriver is the primary driver: a cookie-carrying HTTP client with
// readability-based content extraction. It cannot execute scripts, so Prime
// only shapes the request fingerprint.
type HTTPDriver struct{}

func NewHTTPDriver() *HTTPDriver { return &HTTPDriver{} }

func (d *HTTPDriver) Name() string { return "http" }

func (d *HTTPDriver) NewSession(proxyURL string) (Session, error) {
	transport, err := newTransport(proxyURL)
	if err != nil {
		return nil, err
	}
	jar, _ := cookiejar.New(nil)
	return &httpSession{
		client: &http.Client{Transport: transport, Jar: jar},
	}, nil
}

func newTransport(proxyURL string) (*http.Transport, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
		}
		t.Proxy = http.ProxyURL(u)
	}
	return t, nil
}

type httpSession struct {
	mu        sync.Mutex
	client    *http.Client
	userAgent string

	currentURL string
	lastHTML   string
}

func (s *httpSession) Prime(userAgent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userAgent = userAgent
	return nil
}

func (s *httpSession) Navigate(ctx context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetch(ctx, target)
}

// fetch loads the URL into the session; callers hold s.mu.
func (s *httpSession) fetch(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", target, err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

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
		// Keep the body: the ladder pattern-matches it for anti-scraping
		// markers (cloudflare, captcha) to choose the next mitigation.
		s.currentURL = target
		s.lastHTML = string(body)
		return fmt.Errorf("HTTP %s from %s: %s",
			resp.Status, target, firstChars(stripTags(string(body)), 200))
	}

	final := target
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	s.currentURL = final
	s.lastHTML = string(body)
	return nil
}

func (s *httpSession) Extract(_ context.Context) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentURL == "" {
		return nil, fmt.Errorf("no page loaded")
	}
	return extractPage(s.currentURL, s.lastHTML)
}

func (s *httpSession) NavigateExtract(ctx context.Context, target string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fetch(ctx, target); err != nil {
		return nil, err
	}
	return extractPage(s.currentURL, s.lastHTML)
}

func (s *httpSession) Click(ctx context.Context, el Element) error {
	if el.Kind != ElementLink || el.Target == "" {
		return ErrNotSupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	target, err := s.resolve(el.Target)
	if err != nil {
		return err
	}
	return s.fetch(ctx, target)
}

func (s *httpSession) FillSubmit(ctx context.Context, el Element, value string) error {
	if el.Kind != ElementInput || el.Text == "" {
		return ErrNotSupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// GET-form approximation: submit to the first form action (or the
	// current page) with the field as a query parameter. Covers the
	// common search-box case; anything needing POST falls to the
	// fallback driver.
	action := s.currentURL
	if m := formRe.FindStringSubmatch(s.lastHTML); m != nil && m[1] != "" {
		resolved, err := s.resolve(m[1])
		if err == nil {
			action = resolved
		}
	}
	u, err := url.Parse(action)
	if err != nil {
		return fmt.Errorf("invalid form action %q: %w", action, err)
	}
	q := u.Query()
	q.Set(el.Text, value)
	u.RawQuery = q.Encode()
	return s.fetch(ctx, u.String())
}

func (s *httpSession) Scroll(_ context.Context) error {
	// No viewport; the full document is already loaded.
	return nil
}

func (s *httpSession) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jar, _ := cookiejar.New(nil)
	s.client.Jar = jar
	s.currentURL = ""
	s.lastHTML = ""
	return nil
}

func (s *httpSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// resolve turns a possibly-relative href into an absolute URL against the
// current page; callers hold s.mu.
func (s *httpSession) resolve(href string) (string, error) {
	base, err := url.Parse(s.currentURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid link target %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func extractPage(pageURL, rawHTML string) (*Page, error) {
	page := &Page{URL: pageURL, Elements: scanElements(rawHTML)}

	parsed, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(rawHTML), parsed)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		page.Title = article.Title
		page.Text = strings.TrimSpace(article.TextContent)
		return page, nil
	}

	// Readability refuses boilerplate-free or tiny pages; degrade to tag
	// stripping rather than failing the extraction.
	page.Text = stripTags(rawHTML)
	if m := regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`).FindStringSubmatch(rawHTML); m != nil {
		page.Title = strings.TrimSpace(html.UnescapeString(m[1]))
	}
	return page, nil
}

func scanElements(rawHTML string) []Element {
	var els []Element
	for _, m := range linkRe.FindAllStringSubmatch(rawHTML, -1) {
		text := strings.TrimSpace(stripTags(m[2]))
		if text == "" {
			continue
		}
		els = append(els, Element{Kind: ElementLink, Text: text, Target: m[1]})
	}
	for _, m := range buttonRe.FindAllStringSubmatch(rawHTML, -1) {
		if text := strings.TrimSpace(stripTags(m[1])); text != "" {
			els = append(els, Element{Kind: ElementButton, Text: text})
		}
	}
	for _, m := range inputRe.FindAllStringSubmatch(rawHTML, -1) {
		if hiddenRe.MatchString(m[0]) {
			continue
		}
		els = append(els, Element{Kind: ElementInput, Text: m[1]})
	}
	return els
}

func stripTags(rawHTML string) string {
	text := tagRe.ReplaceAllString(rawHTML, " ")
	text = html.UnescapeString(text)
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

func firstChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
