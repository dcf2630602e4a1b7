package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// MetricsResponse wraps the metrics snapshot with derived backend availability.
type MetricsResponse struct {
	SearchTotal     int64              `json:"search_total"`
	SearchEmpty     int64              `json:"search_empty"`
	RerankFallbacks int64              `json:"rerank_fallbacks"`
	P50LatencyMs    int64              `json:"p50_latency_ms"`
	P95LatencyMs    int64              `json:"p95_latency_ms"`
	Backends        map[string]Backend `json:"backends"`
}

// Backend is one backend's counters.
type Backend struct {
	Searches       int64   `json:"searches"`
	SearchFailures int64   `json:"search_failures"`
	Availability   float64 `json:"availability"`
	Indexed        int64   `json:"indexed"`
	IndexFailures  int64   `json:"index_failures"`
}

// GetMetrics returns search and indexing counters since startup.
// GET /api/v1/metrics
func (s *APIV1Service) GetMetrics(c echo.Context) error {
	snapshot := s.Metrics.Snapshot()
	resp := MetricsResponse{
		SearchTotal:     snapshot.SearchTotal,
		SearchEmpty:     snapshot.SearchEmpty,
		RerankFallbacks: snapshot.RerankFallbacks,
		P50LatencyMs:    snapshot.P50Ms,
		P95LatencyMs:    snapshot.P95Ms,
		Backends:        make(map[string]Backend, len(snapshot.Backends)),
	}
	for name, b := range snapshot.Backends {
		resp.Backends[name] = Backend{
			Searches:       b.Searches,
			SearchFailures: b.SearchFailures,
			Availability:   b.Availability(),
			Indexed:        b.Indexed,
			IndexFailures:  b.IndexFailures,
		}
	}
	return c.JSON(http.StatusOK, resp)
}
