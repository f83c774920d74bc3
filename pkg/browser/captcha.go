package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// CaptchaKind identifies the challenge family a page presents.
type CaptchaKind string

const (
	CaptchaNone       CaptchaKind = ""
	CaptchaRecaptcha  CaptchaKind = "recaptcha"
	CaptchaHcaptcha   CaptchaKind = "hcaptcha"
	CaptchaCloudflare CaptchaKind = "cloudflare"
	CaptchaText       CaptchaKind = "text"
)

var (
	recaptchaMarkers = []string{"g-recaptcha", "grecaptcha", "recaptcha/api"}
	hcaptchaMarkers  = []string{"h-captcha", "hcaptcha.com"}
	cfMarkers        = []string{
		"cf-browser-verification", "cf-challenge", "checking your browser",
		"just a moment", "cf_chl_opt",
	}
	textMarkers = []string{"enter the characters", "type the text", "solve the puzzle"}

	siteKeyRe = regexp.MustCompile(`data-sitekey=["']([^"']+)["']`)
)

// DetectCaptcha classifies the challenge present in the page content, if
// any. Content may be raw HTML, extracted text, or a navigation error
// message; matching is case-insensitive substring scan.
func DetectCaptcha(content string) CaptchaKind {
	lower := strings.ToLower(content)
	for _, m := range recaptchaMarkers {
		if strings.Contains(lower, m) {
			return CaptchaRecaptcha
		}
	}
	for _, m := range hcaptchaMarkers {
		if strings.Contains(lower, m) {
			return CaptchaHcaptcha
		}
	}
	for _, m := range cfMarkers {
		if strings.Contains(lower, m) {
			return CaptchaCloudflare
		}
	}
	for _, m := range textMarkers {
		if strings.Contains(lower, m) {
			return CaptchaText
		}
	}
	return CaptchaNone
}

// extractSiteKey pulls the widget site key out of a challenge page.
func extractSiteKey(content string) string {
	if m := siteKeyRe.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return ""
}

// Solver submits captcha challenges to an external solving service.
type Solver struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewSolver returns nil when no endpoint is configured; a nil Solver means
// unsolvable challenges escalate straight to proxy rotation.
func NewSolver(endpoint, apiKey string) *Solver {
	if endpoint == "" {
		return nil
	}
	return &Solver{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 90 * time.Second},
	}
}

// Solve submits the site key and page URL and returns the solution token.
func (s *Solver) Solve(ctx context.Context, kind CaptchaKind, siteKey, pageURL string) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"type":     string(kind),
		"site_key": siteKey,
		"page_url": pageURL,
		"api_key":  s.apiKey,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("invalid solver request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("solver request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("solver returned HTTP %d", resp.StatusCode)
	}

	var parsed struct {
		Token string `json:"token"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("failed to read solver response: %w", err)
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode solver response: %w", err)
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("solver returned no token")
	}
	return parsed.Token, nil
}

const (
	cloudflareWait = 30 * time.Second
	cloudflarePoll = 2 * time.Second
)

// captchaHandler drives the challenge sub-machine for one session.
type captchaHandler struct {
	solver *Solver
	sleep  func(context.Context, time.Duration) error
}

func newCaptchaHandler(solver *Solver) *captchaHandler {
	return &captchaHandler{solver: solver, sleep: sleepCtx}
}

// resolve attempts to clear the detected challenge in place. A false return
// means the challenge stands and the ladder must escalate.
func (h *captchaHandler) resolve(ctx context.Context, sess Session, kind CaptchaKind, pageURL, content string) bool {
	switch kind {
	case CaptchaCloudflare:
		return h.waitCloudflare(ctx, sess, pageURL)
	case CaptchaRecaptcha, CaptchaHcaptcha:
		if h.solver == nil {
			slog.Debug("Captcha detected but no solver configured", "kind", kind, "url", pageURL)
			return false
		}
		siteKey := extractSiteKey(content)
		if siteKey == "" {
			return false
		}
		token, err := h.solver.Solve(ctx, kind, siteKey, pageURL)
		if err != nil {
			slog.Warn("Captcha solver failed", "kind", kind, "url", pageURL, "error", err)
			return false
		}
		// Submit the token through the challenge form.
		field := "g-recaptcha-response"
		if kind == CaptchaHcaptcha {
			field = "h-captcha-response"
		}
		err = sess.FillSubmit(ctx, Element{Kind: ElementInput, Text: field}, token)
		if err != nil {
			slog.Warn("Captcha token submission failed", "url", pageURL, "error", err)
			return false
		}
		return true
	default:
		return false
	}
}

// waitCloudflare polls for the challenge interstitial to clear itself,
// which managed-challenge pages do once the session looks settled.
func (h *captchaHandler) waitCloudflare(ctx context.Context, sess Session, pageURL string) bool {
	deadline := time.Now().Add(cloudflareWait)
	for time.Now().Before(deadline) {
		if err := h.sleep(ctx, cloudflarePoll); err != nil {
			return false
		}
		if err := sess.Navigate(ctx, pageURL); err != nil {
			continue
		}
		page, err := sess.Extract(ctx)
		if err != nil {
			continue
		}
		if DetectCaptcha(page.Text) != CaptchaCloudflare {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
