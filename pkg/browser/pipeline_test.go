package browser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted struct {
	page *Page
	err  error
}

// fakeDriver serves a shared script of responses; every navigation-like
// operation on any of its sessions consumes the next entry.
type fakeDriver struct {
	name string

	mu       sync.Mutex
	script   []scripted
	sessions int
}

func (d *fakeDriver) next() (*Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.script) == 0 {
		return nil, errors.New("script exhausted")
	}
	s := d.script[0]
	d.script = d.script[1:]
	return s.page, s.err
}

func (d *fakeDriver) Name() string { return d.name }

func (d *fakeDriver) NewSession(string) (Session, error) {
	d.mu.Lock()
	d.sessions++
	d.mu.Unlock()
	return &fakeSession{driver: d}, nil
}

type fakeSession struct {
	driver  *fakeDriver
	current *Page
	primes  []string
	resets  int
}

func (s *fakeSession) Navigate(context.Context, string) error {
	p, err := s.driver.next()
	if err != nil {
		return err
	}
	s.current = p
	return nil
}

func (s *fakeSession) Extract(context.Context) (*Page, error) {
	if s.current == nil {
		return nil, errors.New("no page loaded")
	}
	return s.current, nil
}

func (s *fakeSession) NavigateExtract(ctx context.Context, url string) (*Page, error) {
	if err := s.Navigate(ctx, url); err != nil {
		return nil, err
	}
	return s.current, nil
}

func (s *fakeSession) Click(ctx context.Context, _ Element) error {
	return s.Navigate(ctx, "")
}

func (s *fakeSession) FillSubmit(ctx context.Context, _ Element, _ string) error {
	return s.Navigate(ctx, "")
}

func (s *fakeSession) Scroll(context.Context) error { return nil }

func (s *fakeSession) Prime(ua string) error {
	s.primes = append(s.primes, ua)
	return nil
}

func (s *fakeSession) Reset() error {
	s.resets++
	s.current = nil
	return nil
}

func (s *fakeSession) Close() error { return nil }

func newTestPipeline(primary, fallback *fakeDriver, search SearchFunc) *Pipeline {
	return NewPipeline(primary, fallback, Options{
		UserAgents:           []string{"ua-1", "ua-2", "ua-3"},
		AntiScrapingPatterns: []string{"verify you are human", "access denied"},
		NavTimeout:           100 * time.Millisecond,
		NavTimeoutCeiling:    400 * time.Millisecond,
		MaxSessions:          2,
		MaxDepth:             3,
		Search:               search,
	})
}

func okPage(url, text string) *Page {
	return &Page{URL: url, Title: "T", Text: text}
}

func TestFetch_DirectSuccess(t *testing.T) {
	primary := &fakeDriver{name: "http", script: []scripted{
		{page: okPage("https://example.com", "real content")},
	}}
	p := newTestPipeline(primary, &fakeDriver{name: "basic"}, nil)

	out, attempts, err := p.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "real content", out)
	require.Len(t, attempts, 1)
	assert.Equal(t, "direct", attempts[0].Method)
	assert.Empty(t, attempts[0].Error)
}

func TestFetch_UARotationRecovers(t *testing.T) {
	primary := &fakeDriver{name: "http", script: []scripted{
		{err: errors.New("HTTP 403 Forbidden from site: access denied")},
		{page: okPage("https://example.com", "content after rotation")},
	}}
	p := newTestPipeline(primary, &fakeDriver{name: "basic"}, nil)

	out, attempts, err := p.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "content after rotation", out)
	require.Len(t, attempts, 2)
	assert.Equal(t, "direct", attempts[0].Method)
	assert.Equal(t, "ua_rotation", attempts[1].Method)
	// Same session, one driver instance.
	assert.Equal(t, 1, primary.sessions)
}

func TestFetch_BlockedContentEscalates(t *testing.T) {
	// A 200 response whose body is a block page is a failure, not content.
	primary := &fakeDriver{name: "http", script: []scripted{
		{page: okPage("https://example.com", "Please verify you are human to continue")},
		{page: okPage("https://example.com", "genuine article text")},
	}}
	p := newTestPipeline(primary, &fakeDriver{name: "basic"}, nil)

	out, attempts, err := p.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "genuine article text", out)
	require.Len(t, attempts, 2)
	assert.Contains(t, attempts[0].Error, "anti-scraping response")
}

func TestFetch_FallbackDriverRecovers(t *testing.T) {
	primary := &fakeDriver{name: "http"} // empty script: every op fails
	fallback := &fakeDriver{name: "basic", script: []scripted{
		{page: okPage("https://example.com", "fallback got it")},
	}}
	p := newTestPipeline(primary, fallback, nil)

	out, attempts, err := p.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "fallback got it", out)

	last := attempts[len(attempts)-1]
	assert.Equal(t, "fallback_driver", last.Method)
	assert.Equal(t, "basic", last.Driver)
	assert.Empty(t, last.Error)
}

func TestFetch_SearchFallbackAfterAllDriversFail(t *testing.T) {
	var gotQuery string
	search := func(_ context.Context, q string) (string, error) {
		gotQuery = q
		return "OK", nil
	}
	p := newTestPipeline(&fakeDriver{name: "http"}, &fakeDriver{name: "basic"}, search)

	out, attempts, err := p.Fetch(context.Background(), "https://news.example.com/story")
	require.NoError(t, err)
	assert.Equal(t, FallbackPrefix+"OK", out)
	assert.Equal(t, "information from news.example.com", gotQuery)

	// direct, ua_rotation, split_action, proxy_rotation, fallback_driver, search_fallback
	require.Len(t, attempts, 6)
	assert.Equal(t, "search_fallback", attempts[5].Method)
	for _, a := range attempts[:5] {
		assert.NotEmpty(t, a.Error, "rung %s should have failed", a.Method)
	}
}

func TestFetch_NoSearchSurfacesError(t *testing.T) {
	p := newTestPipeline(&fakeDriver{name: "http"}, &fakeDriver{name: "basic"}, nil)

	_, attempts, err := p.Fetch(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Len(t, attempts, 5)
}

func TestFetch_InvalidURLDoesNotClimb(t *testing.T) {
	primary := &fakeDriver{name: "http", script: []scripted{
		{err: errors.New(`invalid URL "::bogus": parse error`)},
	}}
	p := newTestPipeline(primary, &fakeDriver{name: "basic"}, nil)

	_, attempts, err := p.FetchPage(context.Background(), "::bogus")
	require.Error(t, err)
	assert.Len(t, attempts, 1)
}

func TestFetch_TelemetryRecorded(t *testing.T) {
	primary := &fakeDriver{name: "http", script: []scripted{
		{err: errors.New("timed out")},
		{page: okPage("u", "text")},
	}}
	p := newTestPipeline(primary, &fakeDriver{name: "basic"}, nil)

	_, _, err := p.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)

	stats := p.Telemetry()
	assert.Equal(t, 1, stats["direct"].Failures)
	assert.Equal(t, 1, stats["ua_rotation"].Successes)
}

func TestCollect_FollowsRelevantLink(t *testing.T) {
	first := &Page{
		URL:  "https://shop.example.com",
		Text: "welcome to the storefront",
		Elements: []Element{
			{Kind: ElementLink, Text: "Contact", Target: "/contact"},
			{Kind: ElementLink, Text: "Laptop details", Target: "/laptops"},
		},
	}
	second := okPage("https://shop.example.com/laptops",
		"laptop pricing details for every laptop model")

	primary := &fakeDriver{name: "http", script: []scripted{
		{page: first},
		{page: second},
	}}
	p := newTestPipeline(primary, &fakeDriver{name: "basic"}, nil)

	out, _, err := p.Collect(context.Background(), "https://shop.example.com", "laptop pricing")
	require.NoError(t, err)
	assert.Contains(t, out, "Collected 2 page(s)")
	assert.Contains(t, out, "laptop pricing details")
}

func TestCollect_StopsAtZeroScore(t *testing.T) {
	only := &Page{
		URL:  "https://example.com",
		Text: "nothing relevant here",
		Elements: []Element{
			{Kind: ElementLink, Text: "Imprint", Target: "/imprint"},
		},
	}
	primary := &fakeDriver{name: "http", script: []scripted{{page: only}}}
	p := newTestPipeline(primary, &fakeDriver{name: "basic"}, nil)

	out, _, err := p.Collect(context.Background(), "https://example.com", "quantum pricing")
	require.NoError(t, err)
	assert.Contains(t, out, "Collected 1 page(s)")
}

func TestCollect_HostileEntryDegradesToLadder(t *testing.T) {
	search := func(context.Context, string) (string, error) { return "searched", nil }
	p := newTestPipeline(&fakeDriver{name: "http"}, &fakeDriver{name: "basic"}, search)

	out, _, err := p.Collect(context.Background(), "https://example.com", "anything")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, FallbackPrefix))
}

func TestQueryTokens(t *testing.T) {
	assert.Equal(t, []string{"laptop", "pricing"}, queryTokens("a laptop, pricing!"))
	assert.Empty(t, queryTokens("a an of"))
}

func TestCoverage(t *testing.T) {
	toks := []string{"laptop", "pricing", "warranty"}
	assert.InDelta(t, 2.0/3.0, coverage(toks, "Laptop PRICING info"), 1e-9)
	assert.Equal(t, 1.0, coverage(nil, "anything"))
}

func TestPickAction_PrefersQueryMatch(t *testing.T) {
	els := []Element{
		{Kind: ElementLink, Text: "Home", Target: "/"},
		{Kind: ElementLink, Text: "Laptop details", Target: "/l"},
		{Kind: ElementInput, Text: "q"},
	}
	el, ok := pickAction(els, []string{"laptop"}, map[string]bool{})
	require.True(t, ok)
	assert.Equal(t, "Laptop details", el.Text)

	// Visited links are skipped; the search box wins next.
	el, ok = pickAction(els, []string{"laptop"}, map[string]bool{"/l": true})
	require.True(t, ok)
	assert.Equal(t, ElementInput, el.Kind)
}
