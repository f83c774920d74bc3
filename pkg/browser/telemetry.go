package browser

import (
	"sync"
	"time"
)

// MethodStats are the accumulated numbers for one pipeline method.
type MethodStats struct {
	Successes    int     `json:"successes"`
	Failures     int     `json:"failures"`
	MeanDuration float64 `json:"mean_duration_s"`
}

// Telemetry tracks per-method success/failure counts and mean execution
// time. The numbers inform attempt ordering and the health surface; they
// are never consulted for correctness.
type Telemetry struct {
	mu    sync.Mutex
	stats map[string]*MethodStats
	total map[string]time.Duration
}

func NewTelemetry() *Telemetry {
	return &Telemetry{
		stats: make(map[string]*MethodStats),
		total: make(map[string]time.Duration),
	}
}

// Record adds one observation for the method.
func (t *Telemetry) Record(method string, ok bool, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats[method]
	if s == nil {
		s = &MethodStats{}
		t.stats[method] = s
	}
	if ok {
		s.Successes++
	} else {
		s.Failures++
	}
	t.total[method] += elapsed
	n := s.Successes + s.Failures
	s.MeanDuration = t.total[method].Seconds() / float64(n)
}

// Snapshot returns a copy of all method stats.
func (t *Telemetry) Snapshot() map[string]MethodStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]MethodStats, len(t.stats))
	for k, v := range t.stats {
		out[k] = *v
	}
	return out
}
