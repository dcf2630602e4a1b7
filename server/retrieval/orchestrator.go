package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hrygo/decade/plugin/ai/rag"
	"github.com/hrygo/decade/plugin/ai/timeout"
	"github.com/hrygo/decade/plugin/ai/vector"
	"github.com/hrygo/decade/server/internal/errors"
	"github.com/hrygo/decade/server/internal/observability"
)

// Mode selects the backends a search consults.
type Mode string

const (
	ModeLocal    Mode = "local"
	ModeRemote   Mode = "remote"
	ModeEnsemble Mode = "ensemble"
)

// DefaultK is the number of hits returned when the caller asks for none.
const DefaultK = 5

// ParseMode validates a mode; the empty string means ensemble.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeEnsemble:
		return ModeEnsemble, nil
	case ModeLocal:
		return ModeLocal, nil
	case ModeRemote:
		return ModeRemote, nil
	}
	return "", errors.InvalidArgument(fmt.Sprintf("unknown search mode %q, want local, remote or ensemble", s))
}

// Options tunes the orchestrator.
type Options struct {
	// MinScore drops per-backend hits below this hybrid score before fusion.
	MinScore float64
	RRFK     int
	// CandidateFactor sizes the per-backend and fused pools as k*CandidateFactor.
	CandidateFactor int
	BackendTimeout  time.Duration
	QueryTimeout    time.Duration
}

// Orchestrator is the search entry point: per-backend retrieval and hybrid
// scoring in parallel, reciprocal rank fusion, then optional reranking.
type Orchestrator struct {
	backends []vector.Backend
	scorer   *rag.Scorer
	reranker *rag.Reranker
	metrics  *observability.Metrics
	opts     Options
}

// NewOrchestrator creates an orchestrator. backends are fused in the given
// order, which also breaks rank ties. reranker and metrics may be nil.
func NewOrchestrator(backends []vector.Backend, scorer *rag.Scorer, reranker *rag.Reranker, metrics *observability.Metrics, opts Options) *Orchestrator {
	if scorer == nil {
		scorer = rag.NewScorer(nil)
	}
	if metrics == nil {
		metrics = observability.NewMetrics(0)
	}
	if opts.RRFK <= 0 {
		opts.RRFK = rag.DefaultRRFK
	}
	if opts.CandidateFactor <= 0 {
		opts.CandidateFactor = 3
	}
	if opts.BackendTimeout <= 0 {
		opts.BackendTimeout = timeout.BackendTimeout
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = timeout.QueryTimeout
	}
	return &Orchestrator{
		backends: backends,
		scorer:   scorer,
		reranker: reranker,
		metrics:  metrics,
		opts:     opts,
	}
}

// Backends returns the configured backends.
func (o *Orchestrator) Backends() []vector.Backend {
	return o.backends
}

type backendResult struct {
	index int
	name  string
	hits  []*rag.Hit
	err   error
}

// Search returns at most k hits for query. Backend failures and an expired
// deadline degrade the result; only an unknown mode is an error.
func (o *Orchestrator) Search(ctx context.Context, query string, k int, mode Mode) ([]*rag.Hit, error) {
	mode, err := ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = DefaultK
	}
	if strings.TrimSpace(query) == "" {
		return []*rag.Hit{}, nil
	}

	logger, ctx := observability.LoggerFromContext(ctx, "search")
	start := time.Now()

	backends := o.selectBackends(mode)
	if len(backends) == 0 {
		logger.WarnContext(ctx, "No backend available for search mode", "mode", mode)
		o.metrics.RecordSearch(time.Since(start), 0)
		return []*rag.Hit{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.QueryTimeout)
	defer cancel()

	q := o.scorer.Prepare(query)
	candidatesK := k * o.opts.CandidateFactor

	// buffered so late backends never block after the deadline
	results := make(chan backendResult, len(backends))
	for i, b := range backends {
		go func() {
			hits, err := o.searchBackend(ctx, b, q, candidatesK)
			results <- backendResult{index: i, name: b.Name(), hits: hits, err: err}
		}()
	}

	lists := make([]rag.RankedList, len(backends))
	received := 0
collect:
	for received < len(backends) {
		select {
		case r := <-results:
			received++
			o.metrics.RecordBackendSearch(r.name, r.err != nil)
			if r.err != nil {
				logger.WarnContext(ctx, "Backend search failed, dropping it from fusion",
					observability.LogFieldBackend, r.name,
					"error", r.err,
				)
				continue
			}
			lists[r.index] = rag.RankedList{Backend: r.name, Hits: r.hits}
		case <-ctx.Done():
			logger.WarnContext(ctx, "Query deadline exceeded, fusing partial results",
				"responded", received,
				"backends", len(backends),
			)
			break collect
		}
	}

	fused := rag.FuseRRF(lists, o.opts.RRFK, candidatesK)

	final := fused
	if o.reranker.Enabled() {
		var applied bool
		final, applied = o.reranker.Rerank(ctx, query, fused, k)
		if !applied {
			o.metrics.RecordRerankFallback()
		}
	} else if len(final) > k {
		final = final[:k]
	}

	logger.InfoContext(ctx, "Search completed",
		"mode", mode,
		"alpha", q.Alpha,
		"candidates", len(fused),
		"count", len(final),
		observability.LogFieldDuration, time.Since(start).Milliseconds(),
	)
	o.metrics.RecordSearch(time.Since(start), len(final))
	return final, nil
}

func (o *Orchestrator) selectBackends(mode Mode) []vector.Backend {
	if mode == ModeEnsemble {
		return o.backends
	}
	var selected []vector.Backend
	for _, b := range o.backends {
		if string(b.Kind()) == string(mode) {
			selected = append(selected, b)
		}
	}
	return selected
}

// searchBackend embeds the query, fetches neighbors and ranks them by hybrid score.
func (o *Orchestrator) searchBackend(ctx context.Context, b vector.Backend, q *rag.Query, limit int) ([]*rag.Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.BackendTimeout)
	defer cancel()

	vec, err := b.EmbedQuery(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	neighbors, err := b.SearchNearest(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search nearest: %w", err)
	}

	hits := make([]*rag.Hit, 0, len(neighbors))
	for _, n := range neighbors {
		score := q.Score(n.Distance, n.Text)
		if score < o.opts.MinScore {
			continue
		}
		hits = append(hits, &rag.Hit{
			ID:       n.ID,
			Score:    score,
			Text:     n.Text,
			Metadata: n.Metadata,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	return hits, nil
}
