package classifier

import (
	"sync"
	"time"

	"github.com/suPer8Hu/agent-squad/internal/intent"
)

type MetricsSnapshot struct {
	Total             int64            `json:"total"`
	ByIntent          map[string]int64 `json:"byIntent"`
	ByUrgency         map[string]int64 `json:"byUrgency"`
	BySource          map[string]int64 `json:"bySource"`
	Fallbacks         int64            `json:"fallbacks"`
	AverageConfidence float64          `json:"averageConfidence"`
	AverageLatencyMs  float64          `json:"averageLatencyMs"`
}

// Metrics aggregates classification outcomes in memory.
type Metrics struct {
	mu         sync.Mutex
	total      int64
	byIntent   map[string]int64
	byUrgency  map[string]int64
	bySource   map[string]int64
	confidence float64
	latency    time.Duration
}

func newMetrics() *Metrics {
	return &Metrics{
		byIntent:  make(map[string]int64),
		byUrgency: make(map[string]int64),
		bySource:  make(map[string]int64),
	}
}

func (m *Metrics) record(cls intent.Classification, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.byIntent[string(cls.PrimaryIntent)]++
	m.byUrgency[cls.Urgency.String()]++
	m.bySource[string(cls.Source)]++
	m.confidence += cls.Confidence
	m.latency += d
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := MetricsSnapshot{
		Total:     m.total,
		ByIntent:  copyCounts(m.byIntent),
		ByUrgency: copyCounts(m.byUrgency),
		BySource:  copyCounts(m.bySource),
		Fallbacks: m.bySource[string(intent.SourceFallback)],
	}
	if m.total > 0 {
		out.AverageConfidence = m.confidence / float64(m.total)
		out.AverageLatencyMs = float64(m.latency.Microseconds()) / 1000 / float64(m.total)
	}
	return out
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
