package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects search and indexing counters.
type Metrics struct {
	mu sync.Mutex

	searchTotal     atomic.Int64
	searchEmpty     atomic.Int64
	rerankFallbacks atomic.Int64

	backends map[string]*BackendMetrics

	durations    []time.Duration
	maxDurations int
}

// BackendMetrics counts one backend's activity.
type BackendMetrics struct {
	searches       atomic.Int64
	searchFailures atomic.Int64
	indexed        atomic.Int64
	indexFailures  atomic.Int64
}

// NewMetrics creates a new metrics collector keeping the last maxDurations latencies.
func NewMetrics(maxDurations int) *Metrics {
	if maxDurations <= 0 {
		maxDurations = 1000
	}
	return &Metrics{
		backends:     make(map[string]*BackendMetrics),
		durations:    make([]time.Duration, 0, maxDurations),
		maxDurations: maxDurations,
	}
}

// RecordSearch records a finished search.
func (m *Metrics) RecordSearch(duration time.Duration, results int) {
	m.searchTotal.Add(1)
	if results == 0 {
		m.searchEmpty.Add(1)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.durations) >= m.maxDurations {
		m.durations = m.durations[1:]
	}
	m.durations = append(m.durations, duration)
}

// RecordBackendSearch records one backend's part of a search.
func (m *Metrics) RecordBackendSearch(backend string, failed bool) {
	bm := m.backend(backend)
	bm.searches.Add(1)
	if failed {
		bm.searchFailures.Add(1)
	}
}

// RecordRerankFallback records a reranker that kept the fused order.
func (m *Metrics) RecordRerankFallback() {
	m.rerankFallbacks.Add(1)
}

// RecordIndexed records the outcome of indexing into one backend.
func (m *Metrics) RecordIndexed(backend string, indexed, failed int) {
	bm := m.backend(backend)
	bm.indexed.Add(int64(indexed))
	bm.indexFailures.Add(int64(failed))
}

func (m *Metrics) backend(name string) *BackendMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	bm, ok := m.backends[name]
	if !ok {
		bm = &BackendMetrics{}
		m.backends[name] = bm
	}
	return bm
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	backends := make(map[string]*BackendSnapshot, len(m.backends))
	for name, bm := range m.backends {
		backends[name] = &BackendSnapshot{
			Searches:       bm.searches.Load(),
			SearchFailures: bm.searchFailures.Load(),
			Indexed:        bm.indexed.Load(),
			IndexFailures:  bm.indexFailures.Load(),
		}
	}

	return &MetricsSnapshot{
		SearchTotal:     m.searchTotal.Load(),
		SearchEmpty:     m.searchEmpty.Load(),
		RerankFallbacks: m.rerankFallbacks.Load(),
		P50Ms:           percentile(m.durations, 0.50).Milliseconds(),
		P95Ms:           percentile(m.durations, 0.95).Milliseconds(),
		Backends:        backends,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	SearchTotal     int64                       `json:"search_total"`
	SearchEmpty     int64                       `json:"search_empty"`
	RerankFallbacks int64                       `json:"rerank_fallbacks"`
	P50Ms           int64                       `json:"p50_ms"`
	P95Ms           int64                       `json:"p95_ms"`
	Backends        map[string]*BackendSnapshot `json:"backends"`
}

// BackendSnapshot represents metrics for one backend.
type BackendSnapshot struct {
	Searches       int64 `json:"searches"`
	SearchFailures int64 `json:"search_failures"`
	Indexed        int64 `json:"indexed"`
	IndexFailures  int64 `json:"index_failures"`
}

// Availability returns the share of successful searches of a backend in [0,1].
func (s *BackendSnapshot) Availability() float64 {
	if s.Searches == 0 {
		return 1
	}
	return float64(s.Searches-s.SearchFailures) / float64(s.Searches)
}

func percentile(durations []time.Duration, p float64) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
