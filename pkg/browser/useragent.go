package browser

import (
	"math/rand"
	"sync"
)

// UserAgentPool hands out user-agent strings, avoiding immediate repeats so
// that a rotation after a failure actually changes the fingerprint.
type UserAgentPool struct {
	mu     sync.Mutex
	agents []string
	last   int
}

// NewUserAgentPool creates a pool. An empty list falls back to a single
// neutral agent so callers never receive an empty string.
func NewUserAgentPool(agents []string) *UserAgentPool {
	if len(agents) == 0 {
		agents = []string{"Mozilla/5.0 (compatible; nexagent/1.0)"}
	}
	return &UserAgentPool{agents: agents, last: -1}
}

// Next returns a user agent different from the previous one when the pool
// has more than one entry.
func (p *UserAgentPool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.agents) == 1 {
		return p.agents[0]
	}
	i := rand.Intn(len(p.agents))
	if i == p.last {
		i = (i + 1) % len(p.agents)
	}
	p.last = i
	return p.agents[i]
}
