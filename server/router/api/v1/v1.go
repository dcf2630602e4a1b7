package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/decade/plugin/ai/rag"
	"github.com/hrygo/decade/plugin/ai/vector"
	"github.com/hrygo/decade/server/internal/observability"
	"github.com/hrygo/decade/server/retrieval"
	"github.com/hrygo/decade/server/runner/embedding"
	"github.com/hrygo/decade/store"
)

// Searcher runs a retrieval query.
type Searcher interface {
	Search(ctx context.Context, query string, k int, mode retrieval.Mode) ([]*rag.Hit, error)
	Backends() []vector.Backend
}

// Indexer reindexes memory records.
type Indexer interface {
	IndexAll(ctx context.Context) (*embedding.IndexReport, error)
	IndexOne(ctx context.Context, id string) (*embedding.IndexReport, error)
}

// RecordStore persists memory records.
type RecordStore interface {
	UpsertMemoryRecord(ctx context.Context, upsert *store.MemoryRecord) (*store.MemoryRecord, error)
}

// APIV1Service serves the HTTP API.
type APIV1Service struct {
	Store    RecordStore
	Searcher Searcher
	Indexer  Indexer
	Metrics  *observability.Metrics
}

func NewAPIV1Service(store RecordStore, searcher Searcher, indexer Indexer, metrics *observability.Metrics) *APIV1Service {
	if metrics == nil {
		metrics = observability.NewMetrics(0)
	}
	return &APIV1Service{
		Store:    store,
		Searcher: searcher,
		Indexer:  indexer,
		Metrics:  metrics,
	}
}

// RegisterRoutes registers the API on echoServer. Extra middleware, such as
// rate limiting, applies to the /api/v1 group only.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo, mw ...echo.MiddlewareFunc) {
	echoServer.GET("/healthz", s.Healthz)

	g := echoServer.Group("/api/v1", append([]echo.MiddlewareFunc{requestContext(), middleware.Recover()}, mw...)...)
	g.GET("/search", s.SearchMemories)
	g.PUT("/memories/:id", s.UpsertMemory)
	g.POST("/memories/:id/index", s.IndexMemory)
	g.POST("/index", s.ReindexMemories)
	g.GET("/metrics", s.GetMetrics)
}

// requestContext tags every request with a request id, taken from
// X-Request-ID when the client sent one.
func requestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			reqCtx := observability.NewRequestContextWithID(nil, req.Header.Get(echo.HeaderXRequestID), req.Method+" "+c.Path())
			c.Response().Header().Set(echo.HeaderXRequestID, reqCtx.RequestID)
			c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), reqCtx)))
			return next(c)
		}
	}
}

type backendStatus struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Dimension int    `json:"dimension"`
}

// Healthz reports liveness and the configured backends.
// GET /healthz
func (s *APIV1Service) Healthz(c echo.Context) error {
	backends := []backendStatus{}
	for _, b := range s.Searcher.Backends() {
		backends = append(backends, backendStatus{Name: b.Name(), Kind: string(b.Kind()), Dimension: b.Dimension()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"backends": backends,
	})
}
