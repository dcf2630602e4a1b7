// Package server wires the retrieval services together. Every service is
// built on first use and then reused for the life of the process.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/decade/internal/profile"
	"github.com/hrygo/decade/plugin/ai"
	"github.com/hrygo/decade/plugin/ai/cache"
	"github.com/hrygo/decade/plugin/ai/rag"
	"github.com/hrygo/decade/plugin/ai/vector"
	"github.com/hrygo/decade/server/internal/observability"
	"github.com/hrygo/decade/server/mcp"
	"github.com/hrygo/decade/server/middleware"
	"github.com/hrygo/decade/server/retrieval"
	apiv1 "github.com/hrygo/decade/server/router/api/v1"
	"github.com/hrygo/decade/server/runner/embedding"
	"github.com/hrygo/decade/store"
)

// lazy holds a value built at most once.
type lazy[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (l *lazy[T]) get(build func() (T, error)) (T, error) {
	l.once.Do(func() {
		l.val, l.err = build()
	})
	return l.val, l.err
}

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	aiConfig *ai.Config
	metrics  *observability.Metrics

	backends     lazy[[]vector.Backend]
	scorer       lazy[*rag.Scorer]
	reranker     lazy[*rag.Reranker]
	orchestrator lazy[*retrieval.Orchestrator]
	indexer      lazy[*embedding.Indexer]

	echoServer lazy[*echo.Echo]

	// set by Start
	httpServer *echo.Echo
	runnerStop context.CancelFunc
	runnerDone chan struct{}
}

// NewServer creates the service container and opens every embedding backend,
// so a backend whose dimension differs from its persisted index fails here.
func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	aiConfig := ai.NewConfigFromProfile(profile)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	s := &Server{
		Profile:  profile,
		Store:    store,
		aiConfig: aiConfig,
		metrics:  observability.NewMetrics(0),
	}
	if _, err := s.Backends(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Metrics returns the process-wide search and indexing counters.
func (s *Server) Metrics() *observability.Metrics {
	return s.metrics
}

// Backends returns the local backend followed by the remote one when it has
// credentials. ctx is only used on the first call.
func (s *Server) Backends(ctx context.Context) ([]vector.Backend, error) {
	return s.backends.get(func() ([]vector.Backend, error) {
		index := vector.NewStoreIndex(s.Store)

		local, err := s.newBackend(ctx, &s.aiConfig.Local, vector.KindLocal, index)
		if err != nil {
			return nil, err
		}
		backends := []vector.Backend{local}

		remoteCfg := &s.aiConfig.Remote
		switch {
		case remoteCfg.Provider == "":
		case !remoteCfg.IsConfigured():
			slog.Info("remote backend has no API key, searching locally only",
				"provider", remoteCfg.Provider)
		default:
			remote, err := s.newBackend(ctx, remoteCfg, vector.KindRemote, index)
			if err != nil {
				return nil, err
			}
			backends = append(backends, remote)
		}

		for _, b := range backends {
			slog.Info("embedding backend ready",
				observability.LogFieldBackend, b.Name(),
				"kind", b.Kind(),
				"dimension", b.Dimension())
		}
		return backends, nil
	})
}

func (s *Server) newBackend(ctx context.Context, cfg *ai.EmbeddingConfig, kind vector.Kind, index vector.Index) (vector.Backend, error) {
	svc, err := ai.NewEmbeddingService(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s embedding service: %w", cfg.Name, err)
	}
	if kind == vector.KindRemote {
		svc = ai.NewBreakerEmbeddingService(cfg.Name, svc, s.aiConfig.Breaker)
	}
	cached := cache.NewEmbeddingCache(svc, s.aiConfig.Cache.Size, s.aiConfig.Cache.TTL)
	return vector.NewBackend(ctx, cfg.Name, kind, cached, index)
}

// Scorer returns the hybrid scorer with the configured lexicon.
func (s *Server) Scorer() (*rag.Scorer, error) {
	return s.scorer.get(func() (*rag.Scorer, error) {
		lexicon := rag.DefaultLexicon()
		if s.Profile.LexiconFile != "" {
			loaded, err := rag.LoadLexicon(s.Profile.LexiconFile)
			if err != nil {
				return nil, err
			}
			lexicon = loaded
		}
		return rag.NewScorer(lexicon), nil
	})
}

// Reranker returns the LLM reranker, or nil when reranking is disabled or
// the model cannot be created.
func (s *Server) Reranker() *rag.Reranker {
	r, _ := s.reranker.get(func() (*rag.Reranker, error) {
		if !s.aiConfig.Reranker.Enabled {
			return nil, nil
		}
		llm, err := ai.NewLLMService(&s.aiConfig.LLM)
		if err != nil {
			slog.Warn("reranker disabled", "provider", s.aiConfig.LLM.Provider, "error", err)
			return nil, nil
		}
		return rag.NewReranker(llm, s.aiConfig.Reranker, s.aiConfig.Retry), nil
	})
	return r
}

// Orchestrator returns the search orchestrator.
func (s *Server) Orchestrator(ctx context.Context) (*retrieval.Orchestrator, error) {
	return s.orchestrator.get(func() (*retrieval.Orchestrator, error) {
		backends, err := s.Backends(ctx)
		if err != nil {
			return nil, err
		}
		scorer, err := s.Scorer()
		if err != nil {
			return nil, err
		}
		return retrieval.NewOrchestrator(backends, scorer, s.Reranker(), s.metrics, retrieval.Options{
			MinScore:        s.Profile.MinScore,
			RRFK:            s.Profile.RRFK,
			CandidateFactor: s.Profile.CandidateFactor,
			BackendTimeout:  s.Profile.BackendTimeout,
			QueryTimeout:    s.Profile.QueryTimeout,
		}), nil
	})
}

// Indexer returns the indexer feeding every backend from the store.
func (s *Server) Indexer(ctx context.Context) (*embedding.Indexer, error) {
	return s.indexer.get(func() (*embedding.Indexer, error) {
		backends, err := s.Backends(ctx)
		if err != nil {
			return nil, err
		}
		return embedding.NewIndexer(s.Store, backends, s.metrics, embedding.Options{
			BatchSize:    s.Profile.IndexBatchSize,
			RemotePause:  s.Profile.IndexRemotePause,
			Interval:     s.Profile.IndexInterval,
			EmbedTimeout: s.Profile.IndexEmbedTimeout,
		}), nil
	})
}

// Echo returns the HTTP handler with every route registered.
func (s *Server) Echo(ctx context.Context) (*echo.Echo, error) {
	return s.echoServer.get(func() (*echo.Echo, error) {
		orchestrator, err := s.Orchestrator(ctx)
		if err != nil {
			return nil, err
		}
		indexer, err := s.Indexer(ctx)
		if err != nil {
			return nil, err
		}

		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		apiv1.NewAPIV1Service(s.Store, orchestrator, indexer, s.metrics).
			RegisterRoutes(e, middleware.NewRateLimiter(s.Profile.APIRateLimit).Middleware())
		return e, nil
	})
}

// MCPServer returns an MCP tool server backed by the same services.
func (s *Server) MCPServer(ctx context.Context) (*mcp.Server, error) {
	orchestrator, err := s.Orchestrator(ctx)
	if err != nil {
		return nil, err
	}
	indexer, err := s.Indexer(ctx)
	if err != nil {
		return nil, err
	}
	return mcp.NewServer(s.Profile.Version, orchestrator, indexer), nil
}

// Start starts the incremental indexer and the HTTP server. It returns once
// the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	e, err := s.Echo(ctx)
	if err != nil {
		return err
	}
	indexer, err := s.Indexer(ctx)
	if err != nil {
		return err
	}

	address := net.JoinHostPort(s.Profile.Addr, strconv.Itoa(s.Profile.Port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	e.Listener = listener
	s.httpServer = e

	runnerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.runnerStop = cancel
	s.runnerDone = make(chan struct{})
	go func() {
		defer close(s.runnerDone)
		indexer.Run(runnerCtx)
	}()

	go func() {
		if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	slog.Info("decade started", "address", listener.Addr().String(), "mode", s.Profile.Mode)
	return nil
}

// Shutdown stops the HTTP server and the indexer, then closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown server", "error", err)
		}
	}
	if s.runnerStop != nil {
		s.runnerStop()
		select {
		case <-s.runnerDone:
		case <-ctx.Done():
			slog.Warn("indexer did not stop before shutdown deadline")
		}
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
	slog.Info("decade stopped")
}
