package browser

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Pool caches live browser sessions up to a configured cap. Sessions are
// leased exclusively, so each runs one operation at a time; when the cap is
// reached and every cached session is idle, the least-recently-used one is
// evicted to make room.
type Pool struct {
	mu      sync.Mutex
	cap     int
	entries []*poolEntry
}

type poolEntry struct {
	sess     Session
	driver   string
	proxy    string
	busy     bool
	lastUsed time.Time
}

func NewPool(maxSessions int) *Pool {
	if maxSessions <= 0 {
		maxSessions = 1
	}
	return &Pool{cap: maxSessions}
}

// Lease is an exclusive hold on one session. Release returns it to the
// pool; ephemeral leases (created when the pool was saturated with busy
// sessions) are closed instead.
type Lease struct {
	pool      *Pool
	entry     *poolEntry
	ephemeral Session
}

func (l *Lease) Session() Session {
	if l.ephemeral != nil {
		return l.ephemeral
	}
	return l.entry.sess
}

func (l *Lease) Release() {
	if l.ephemeral != nil {
		if err := l.ephemeral.Close(); err != nil {
			slog.Debug("Failed to close ephemeral browser session", "error", err)
		}
		return
	}
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()
	l.entry.busy = false
	l.entry.lastUsed = time.Now()
}

// Discard closes the leased session instead of returning it, dropping it
// from the pool. Used after a session is poisoned (proxy burned, challenge
// stuck).
func (l *Lease) Discard() {
	if l.ephemeral != nil {
		_ = l.ephemeral.Close()
		return
	}
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()
	for i, e := range l.pool.entries {
		if e == l.entry {
			l.pool.entries = append(l.pool.entries[:i], l.pool.entries[i+1:]...)
			break
		}
	}
	_ = l.entry.sess.Close()
}

// Acquire returns a session for the driver/proxy pair, reusing an idle
// cached one when available. The userAgent primes newly created sessions;
// reused sessions keep their fingerprint (rotations go through Reset+Prime
// on the session itself).
func (p *Pool) Acquire(driver Driver, proxy, userAgent string) (*Lease, error) {
	p.mu.Lock()

	for _, e := range p.entries {
		if !e.busy && e.driver == driver.Name() && e.proxy == proxy {
			e.busy = true
			e.lastUsed = time.Now()
			p.mu.Unlock()
			return &Lease{pool: p, entry: e}, nil
		}
	}

	if len(p.entries) >= p.cap {
		if evicted := p.evictLRU(); !evicted {
			// Everything is busy; serve an uncached session rather than
			// blocking the caller behind an unbounded queue.
			p.mu.Unlock()
			sess, err := p.newPrimed(driver, proxy, userAgent)
			if err != nil {
				return nil, err
			}
			return &Lease{pool: p, ephemeral: sess}, nil
		}
	}

	p.mu.Unlock()
	sess, err := p.newPrimed(driver, proxy, userAgent)
	if err != nil {
		return nil, err
	}

	entry := &poolEntry{
		sess:     sess,
		driver:   driver.Name(),
		proxy:    proxy,
		busy:     true,
		lastUsed: time.Now(),
	}
	p.mu.Lock()
	p.entries = append(p.entries, entry)
	p.mu.Unlock()
	return &Lease{pool: p, entry: entry}, nil
}

func (p *Pool) newPrimed(driver Driver, proxy, userAgent string) (Session, error) {
	sess, err := driver.NewSession(proxy)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s session: %w", driver.Name(), err)
	}
	if err := sess.Prime(userAgent); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("failed to prime %s session: %w", driver.Name(), err)
	}
	if runner, ok := sess.(ScriptRunner); ok {
		if err := runner.InjectScript(StealthScript()); err != nil {
			slog.Debug("Stealth injection failed, continuing without it",
				"driver", driver.Name(), "error", err)
		}
	}
	return sess, nil
}

// evictLRU removes the least-recently-used idle entry; callers hold p.mu.
func (p *Pool) evictLRU() bool {
	idx := -1
	for i, e := range p.entries {
		if e.busy {
			continue
		}
		if idx == -1 || e.lastUsed.Before(p.entries[idx].lastUsed) {
			idx = i
		}
	}
	if idx == -1 {
		return false
	}
	victim := p.entries[idx]
	p.entries = append(p.entries[:idx], p.entries[idx+1:]...)
	_ = victim.sess.Close()
	slog.Debug("Evicted idle browser session", "driver", victim.driver, "proxy", victim.proxy)
	return true
}

// Size reports the number of cached sessions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close shuts down every cached session.
func (p *Pool) Close() {
	p.mu.Lock()
	entries := p.entries
	p.entries = nil
	p.mu.Unlock()
	for _, e := range entries {
		_ = e.sess.Close()
	}
}
