package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Health endpoint budget: 10 requests per 10 seconds per remote address.
const (
	healthRateWindow = 10 * time.Second
	healthRateBurst  = 10
)

// limiterTable keeps one token bucket per client address. Entries are never
// evicted; the table is bounded by the number of distinct callers, which for
// a local-first service is small.
type limiterTable struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newLimiterTable(window time.Duration, burst int) *limiterTable {
	return &limiterTable{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(window / time.Duration(burst)),
		burst:    burst,
	}
}

// allow reports whether the caller may proceed. When denied it returns the
// whole seconds to wait before retrying, at least 1.
func (t *limiterTable) allow(key string) (bool, int) {
	t.mu.Lock()
	lim, ok := t.limiters[key]
	if !ok {
		lim = rate.NewLimiter(t.limit, t.burst)
		t.limiters[key] = lim
	}
	t.mu.Unlock()

	res := lim.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		secs := int(delay.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		return false, secs
	}
	return true, 0
}
