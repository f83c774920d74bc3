package browser

import (
	"log/slog"
	"sync"
)

// ProxyPool rotates through a list of proxy URLs and tracks failures.
// A proxy that accumulates too many failures is skipped until every proxy
// has failed, at which point the counts reset (a dead pool is worse than a
// flaky one).
type ProxyPool struct {
	mu       sync.Mutex
	proxies  []string
	failures map[string]int
	cursor   int

	maxFailures int
}

// NewProxyPool creates a pool. With no proxies configured, Next always
// returns "" (direct connection).
func NewProxyPool(proxies []string) *ProxyPool {
	return &ProxyPool{
		proxies:     proxies,
		failures:    make(map[string]int),
		maxFailures: 3,
	}
}

// Next returns the next healthy proxy URL, or "" when none are configured.
func (p *ProxyPool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.proxies) == 0 {
		return ""
	}
	for range p.proxies {
		proxy := p.proxies[p.cursor%len(p.proxies)]
		p.cursor++
		if p.failures[proxy] < p.maxFailures {
			return proxy
		}
	}
	// All proxies exhausted; start over.
	slog.Warn("All proxies marked failed, resetting failure counts")
	p.failures = make(map[string]int)
	proxy := p.proxies[p.cursor%len(p.proxies)]
	p.cursor++
	return proxy
}

// ReportFailure records a failure against the proxy. Empty (direct) is
// ignored.
func (p *ProxyPool) ReportFailure(proxy string) {
	if proxy == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[proxy]++
	slog.Debug("Proxy failure reported", "proxy", proxy, "failures", p.failures[proxy])
}
