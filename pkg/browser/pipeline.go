package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"time"
)

// FallbackPrefix marks output produced by the search degradation so
// downstream logic can tell it from genuine page content.
const FallbackPrefix = "[BROWSER FALLBACK] "

// SearchFunc is the terminal degradation: when every browser rung fails,
// the pipeline asks the search backend about the target's domain. Nil means
// no search tool is available and exhaustion surfaces as an error.
type SearchFunc func(ctx context.Context, query string) (string, error)

// Attempt records one rung of the ladder for timeline metadata.
type Attempt struct {
	Tier      int     `json:"tier"`
	Method    string  `json:"method"`
	Driver    string  `json:"driver"`
	Error     string  `json:"error,omitempty"`
	DurationS float64 `json:"duration_s"`
}

// Options tune a Pipeline. All fields mirror the browser config block.
type Options struct {
	UserAgents           []string
	Proxies              []string
	AntiScrapingPatterns []string
	NavTimeout           time.Duration
	NavTimeoutCeiling    time.Duration
	DelayMin             time.Duration
	DelayMax             time.Duration
	MaxSessions          int
	MaxDepth             int
	Solver               *Solver
	Search               SearchFunc
}

// Pipeline fetches pages through an escalating mitigation ladder: direct
// attempt, user-agent rotation with doubled timeout, split
// navigate/extract, proxy rotation, fallback driver, and finally search
// degradation.
type Pipeline struct {
	primary  Driver
	fallback Driver
	pool     *Pool
	uaPool   *UserAgentPool
	proxies  *ProxyPool
	captcha  *captchaHandler
	tel      *Telemetry
	search   SearchFunc

	patterns       []string
	navTimeout     time.Duration
	timeoutCeiling time.Duration
	delayMin       time.Duration
	delayMax       time.Duration
	maxDepth       int

	sleep func(context.Context, time.Duration) error
}

func NewPipeline(primary, fallback Driver, opts Options) *Pipeline {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	if opts.NavTimeoutCeiling < opts.NavTimeout {
		opts.NavTimeoutCeiling = opts.NavTimeout
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 3
	}
	lower := make([]string, len(opts.AntiScrapingPatterns))
	for i, p := range opts.AntiScrapingPatterns {
		lower[i] = strings.ToLower(p)
	}
	return &Pipeline{
		primary:        primary,
		fallback:       fallback,
		pool:           NewPool(opts.MaxSessions),
		uaPool:         NewUserAgentPool(opts.UserAgents),
		proxies:        NewProxyPool(opts.Proxies),
		captcha:        newCaptchaHandler(opts.Solver),
		tel:            NewTelemetry(),
		search:         opts.Search,
		patterns:       lower,
		navTimeout:     opts.NavTimeout,
		timeoutCeiling: opts.NavTimeoutCeiling,
		delayMin:       opts.DelayMin,
		delayMax:       opts.DelayMax,
		maxDepth:       opts.MaxDepth,
		sleep:          sleepCtx,
	}
}

// Telemetry exposes the per-method stats for the health surface.
func (p *Pipeline) Telemetry() map[string]MethodStats { return p.tel.Snapshot() }

// MaxDepth is the agentic-navigation depth bound.
func (p *Pipeline) MaxDepth() int { return p.maxDepth }

// Close shuts down the session pool.
func (p *Pipeline) Close() { p.pool.Close() }

// Fetch runs the full ladder for the URL and returns readable text. On
// total browser failure with a search backend available, the result is the
// search answer for the target's domain, prefixed with FallbackPrefix.
func (p *Pipeline) Fetch(ctx context.Context, target string) (string, []Attempt, error) {
	page, attempts, err := p.FetchPage(ctx, target)
	if err == nil {
		return page.Text, attempts, nil
	}

	if p.search != nil {
		domain := domainOf(target)
		query := fmt.Sprintf("information from %s", domain)
		slog.Info("All browser attempts failed, degrading to search",
			"url", target, "attempts", len(attempts), "query", query)
		out, serr := p.search(ctx, query)
		if serr == nil {
			attempts = append(attempts, Attempt{
				Tier:   len(attempts) + 1,
				Method: "search_fallback",
				Driver: "search",
			})
			return FallbackPrefix + out, attempts, nil
		}
		err = fmt.Errorf("%w; search fallback also failed: %v", err, serr)
	}
	return "", attempts, err
}

// FetchPage runs the ladder and returns the extracted page. The attempts
// list is returned for both outcomes so callers can record it.
func (p *Pipeline) FetchPage(ctx context.Context, target string) (*Page, []Attempt, error) {
	var attempts []Attempt
	timeout := p.navTimeout
	tier := 0
	var lastErr error

	record := func(method, driver string, start time.Time, err error) {
		tier++
		elapsed := time.Since(start)
		p.tel.Record(method, err == nil, elapsed)
		a := Attempt{Tier: tier, Method: method, Driver: driver, DurationS: elapsed.Seconds()}
		if err != nil {
			a.Error = err.Error()
			lastErr = err
		}
		attempts = append(attempts, a)
	}

	ua := p.uaPool.Next()
	proxy := p.proxies.Next()
	lease, err := p.pool.Acquire(p.primary, proxy, ua)
	if err != nil {
		return nil, attempts, err
	}
	sess := lease.Session()
	leaseHeld := true
	defer func() {
		if leaseHeld {
			lease.Release()
		}
	}()

	attempt := func(method string, op func(context.Context) (*Page, error)) (*Page, error) {
		if err := p.pause(ctx); err != nil {
			return nil, err
		}
		start := time.Now()
		actx, cancel := context.WithTimeout(ctx, timeout)
		page, err := op(actx)
		cancel()
		if err == nil {
			if blocked := p.blockedContent(page.Text); blocked != "" {
				err = fmt.Errorf("anti-scraping response: %s", blocked)
			}
		}
		record(method, p.primary.Name(), start, err)
		return page, err
	}

	// Tier 1: direct.
	page, err := attempt("direct", func(c context.Context) (*Page, error) {
		return sess.NavigateExtract(c, target)
	})
	if err == nil {
		return page, attempts, nil
	}
	if !p.retryable(err) {
		return nil, attempts, err
	}
	if page2, ok := p.tryCaptcha(ctx, sess, target, err, page); ok {
		return page2, attempts, nil
	}

	// Tier 2: rotate user agent, double the timeout.
	timeout = minDuration(timeout*2, p.timeoutCeiling)
	if rerr := sess.Reset(); rerr == nil {
		_ = sess.Prime(p.uaPool.Next())
	}
	page, err = attempt("ua_rotation", func(c context.Context) (*Page, error) {
		return sess.NavigateExtract(c, target)
	})
	if err == nil {
		return page, attempts, nil
	}

	// Tier 3: split the joint op in case one sub-step is the trigger.
	page, err = attempt("split_action", func(c context.Context) (*Page, error) {
		if nerr := sess.Navigate(c, target); nerr != nil {
			return nil, nerr
		}
		return sess.Extract(c)
	})
	if err == nil {
		return page, attempts, nil
	}

	// Tier 4: burn the proxy, fresh session, base parameters.
	p.proxies.ReportFailure(proxy)
	lease.Discard()
	leaseHeld = false
	timeout = p.navTimeout

	proxy = p.proxies.Next()
	lease, err = p.pool.Acquire(p.primary, proxy, p.uaPool.Next())
	if err == nil {
		leaseHeld = true
		sess = lease.Session()
		page, err = attempt("proxy_rotation", func(c context.Context) (*Page, error) {
			return sess.NavigateExtract(c, target)
		})
		if err == nil {
			return page, attempts, nil
		}
	} else {
		record("proxy_rotation", p.primary.Name(), time.Now(), err)
	}

	// Tier 5: fallback driver, same operation.
	fbSess, ferr := p.fallback.NewSession(proxy)
	if ferr != nil {
		record("fallback_driver", p.fallback.Name(), time.Now(), ferr)
		return nil, attempts, lastErr
	}
	defer fbSess.Close()
	_ = fbSess.Prime(p.uaPool.Next())

	if err := p.pause(ctx); err != nil {
		return nil, attempts, err
	}
	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, timeout)
	page, err = fbSess.NavigateExtract(actx, target)
	cancel()
	if err == nil {
		if blocked := p.blockedContent(page.Text); blocked != "" {
			err = fmt.Errorf("anti-scraping response: %s", blocked)
		}
	}
	record("fallback_driver", p.fallback.Name(), start, err)
	if err == nil {
		return page, attempts, nil
	}

	return nil, attempts, fmt.Errorf("all browser attempts failed for %s: %w", target, lastErr)
}

// tryCaptcha runs the challenge sub-machine when the failure looks like a
// captcha. On success the page is re-extracted in place.
func (p *Pipeline) tryCaptcha(ctx context.Context, sess Session, target string, failure error, page *Page) (*Page, bool) {
	content := failure.Error()
	if page != nil {
		content += "\n" + page.Text
	}
	kind := DetectCaptcha(content)
	if kind == CaptchaNone {
		return nil, false
	}
	slog.Info("Captcha detected", "kind", kind, "url", target)
	if !p.captcha.resolve(ctx, sess, kind, target, content) {
		return nil, false
	}
	fresh, err := sess.Extract(ctx)
	if err != nil || DetectCaptcha(fresh.Text) != CaptchaNone {
		return nil, false
	}
	return fresh, true
}

// retryable reports whether the ladder should keep climbing. Timeouts and
// anti-scraping responses escalate; structurally broken requests do not.
func (p *Pipeline) retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "invalid url") {
		return false
	}
	return true
}

// blockedContent returns the matched anti-scraping pattern when the page
// body is a block interstitial rather than real content, else "".
func (p *Pipeline) blockedContent(text string) string {
	lower := strings.ToLower(text)
	for _, pat := range p.patterns {
		if strings.Contains(lower, pat) {
			return pat
		}
	}
	return ""
}

// pause waits a random human-ish interval between actions.
func (p *Pipeline) pause(ctx context.Context) error {
	if p.delayMax <= 0 {
		return nil
	}
	d := p.delayMin
	if span := p.delayMax - p.delayMin; span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	return p.sleep(ctx, d)
}

func domainOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return target
	}
	return u.Host
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
