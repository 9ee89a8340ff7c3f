package session

import (
	"sync"
	"time"
)

const maxSamples = 1000

type sample struct {
	Op        string        `json:"op"`
	SessionID string        `json:"sessionId,omitempty"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	At        time.Time     `json:"at"`
}

type OpStats struct {
	Count       int     `json:"count"`
	AvgDuration float64 `json:"avgDurationMs"`
	SuccessRate float64 `json:"successRate"`
}

type MetricsSnapshot struct {
	Total        int                `json:"total"`
	ByOperation  map[string]OpStats `json:"byOperation"`
	RecentErrors []sample           `json:"recentErrors"`
}

// Metrics keeps the last maxSamples session operations.
type Metrics struct {
	mu      sync.Mutex
	samples []sample
}

func (m *Metrics) record(op, sessionID string, d time.Duration, err error) {
	s := sample{Op: op, SessionID: sessionID, Duration: d, Success: err == nil, At: time.Now()}
	if err != nil {
		s.Error = err.Error()
	}
	m.mu.Lock()
	m.samples = append(m.samples, s)
	if len(m.samples) > maxSamples {
		m.samples = append(m.samples[:0:0], m.samples[len(m.samples)-maxSamples:]...)
	}
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	type acc struct {
		n, ok int
		total time.Duration
	}
	byOp := make(map[string]*acc)
	var errs []sample
	for _, s := range m.samples {
		a, found := byOp[s.Op]
		if !found {
			a = &acc{}
			byOp[s.Op] = a
		}
		a.n++
		a.total += s.Duration
		if s.Success {
			a.ok++
		} else {
			errs = append(errs, s)
		}
	}
	if len(errs) > 10 {
		errs = errs[len(errs)-10:]
	}

	out := MetricsSnapshot{Total: len(m.samples), ByOperation: make(map[string]OpStats, len(byOp)), RecentErrors: errs}
	for op, a := range byOp {
		out.ByOperation[op] = OpStats{
			Count:       a.n,
			AvgDuration: float64(a.total.Microseconds()) / 1000 / float64(a.n),
			SuccessRate: float64(a.ok) / float64(a.n),
		}
	}
	return out
}
