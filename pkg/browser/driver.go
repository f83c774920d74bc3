// Package browser implements the hardened page-fetch pipeline: a pool of
// browser sessions, a retry ladder with escalating mitigation (user-agent
// rotation, timeout doubling, action splitting, proxy rotation, fallback
// driver), captcha handling, and a terminal search-based degradation.
package browser

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by drivers for operations they cannot perform
// (e.g. clicking on a plain HTTP driver). The pipeline treats it like any
// other failure and escalates.
var ErrNotSupported = errors.New("operation not supported by driver")

// ElementKind classifies an interactive element found on a page.
type ElementKind string

const (
	ElementLink   ElementKind = "link"
	ElementButton ElementKind = "button"
	ElementInput  ElementKind = "input"
)

// Element is an interactive element discovered during extraction.
type Element struct {
	Kind ElementKind
	// Text is the visible label (anchor text, button label, input name).
	Text string
	// Target is the href for links; empty otherwise.
	Target string
}

// Page is the result of navigating to and extracting a URL.
type Page struct {
	URL      string
	Title    string
	Text     string
	Elements []Element
}

// Session is a single browser instance. Operations on one session are
// serialized by the pool; a session is never shared between concurrent
// pipeline calls.
type Session interface {
	// Navigate loads the URL without extracting content.
	Navigate(ctx context.Context, url string) error
	// Extract returns the current page's readable text and elements.
	// Valid only after a successful Navigate.
	Extract(ctx context.Context) (*Page, error)
	// NavigateExtract performs both steps as one operation.
	NavigateExtract(ctx context.Context, url string) (*Page, error)
	// Click follows the element (for the HTTP driver: link targets only).
	Click(ctx context.Context, el Element) error
	// FillSubmit fills the named input and submits its form.
	FillSubmit(ctx context.Context, el Element, value string) error
	// Scroll advances the viewport; drivers without a viewport no-op.
	Scroll(ctx context.Context) error
	// Prime applies the stealth profile before first use: user agent,
	// header shaping, and (for scripted drivers) the stealth JS.
	Prime(userAgent string) error
	// Reset drops all session state (cookies, current page).
	Reset() error
	// Close releases the underlying browser resources.
	Close() error
}

// Driver creates sessions. The primary and fallback drivers share this
// surface so the ladder can swap them transparently.
type Driver interface {
	Name() string
	NewSession(proxyURL string) (Session, error)
}

// ScriptRunner is implemented by sessions that execute JS in the page
// context. The pool injects the stealth script on such sessions right after
// priming; plain HTTP sessions don't implement it.
type ScriptRunner interface {
	InjectScript(script string) error
}
