package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hrygo/decade/plugin/ai"
	"github.com/hrygo/decade/plugin/ai/rag"
	"github.com/hrygo/decade/plugin/ai/timeout"
	"github.com/hrygo/decade/plugin/ai/vector"
	aierrors "github.com/hrygo/decade/server/internal/errors"
	"github.com/hrygo/decade/server/internal/observability"
	"github.com/hrygo/decade/store"
)

// RecordProvider yields the memory records to index.
type RecordProvider interface {
	ListMemoryRecords(ctx context.Context, find *store.FindMemoryRecord) ([]*store.MemoryRecord, error)
	GetMemoryRecord(ctx context.Context, id string) (*store.MemoryRecord, error)
}

// Options tunes the indexer.
type Options struct {
	// BatchSize bounds the records synthesized and embedded at once.
	BatchSize int
	// RemotePause is the minimum delay between batches when a remote backend is configured.
	RemotePause time.Duration
	// Interval is the period of the incremental pass started by Run.
	Interval time.Duration
	// EmbedTimeout bounds embedding and storing one record on one backend.
	EmbedTimeout time.Duration
}

// IndexReport summarizes one indexing pass.
type IndexReport struct {
	Total   int `json:"total"`
	Indexed int `json:"indexed"`
	// Failures counts failed records per backend.
	Failures map[string]int `json:"failures"`
	Batches  int            `json:"batches"`
	// FailedIDs lists records that failed on at least one backend.
	FailedIDs []string `json:"failed_ids,omitempty"`
}

// Indexer feeds memory records through the synthesizer into every backend.
type Indexer struct {
	records      RecordProvider
	backends     []vector.Backend
	metrics      *observability.Metrics
	batchSize    int
	interval     time.Duration
	embedTimeout time.Duration
	// nil without remote backends
	limiter *rate.Limiter

	// one pass at a time
	mu sync.Mutex
	// watermark is the highest updated_ts seen by a finished pass.
	watermark int64
	// atWatermark maps ids indexed cleanly at the watermark second to their fingerprint.
	atWatermark map[string]string
	// retry holds ids that failed on some backend and are picked up by the next pass.
	retry map[string]bool
}

// NewIndexer creates an indexer. metrics may be nil.
func NewIndexer(records RecordProvider, backends []vector.Backend, metrics *observability.Metrics, opts Options) *Indexer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Minute
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = timeout.EmbeddingTimeout
	}
	if metrics == nil {
		metrics = observability.NewMetrics(0)
	}

	idx := &Indexer{
		records:      records,
		backends:     backends,
		metrics:      metrics,
		batchSize:    opts.BatchSize,
		interval:     opts.Interval,
		embedTimeout: opts.EmbedTimeout,
		atWatermark:  make(map[string]string),
		retry:        make(map[string]bool),
	}
	if opts.RemotePause > 0 {
		for _, b := range backends {
			if b.Kind() == vector.KindRemote {
				idx.limiter = rate.NewLimiter(rate.Every(opts.RemotePause), 1)
				break
			}
		}
	}
	return idx
}

// Run indexes every record once, then on each tick the records updated since
// the previous pass. It returns when ctx is done.
func (idx *Indexer) Run(ctx context.Context) {
	if _, err := idx.IndexChanged(ctx); err != nil && ctx.Err() == nil {
		slog.Error("initial indexing pass failed", "error", err)
	}

	ticker := time.NewTicker(idx.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := idx.IndexChanged(ctx); err != nil && ctx.Err() == nil {
				slog.Error("incremental indexing pass failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("indexer stopped")
			return
		}
	}
}

// IndexAll reindexes every record. It is idempotent.
func (idx *Indexer) IndexAll(ctx context.Context) (*IndexReport, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	records, err := idx.records.ListMemoryRecords(ctx, &store.FindMemoryRecord{})
	if err != nil {
		return nil, fmt.Errorf("list memory records: %w", err)
	}
	report, err := idx.indexRecords(ctx, records)
	if err == nil {
		idx.commit(records, report, true)
	}
	return report, err
}

// IndexChanged indexes the records updated since the last successful pass
// together with the records that failed in earlier passes.
func (idx *Indexer) IndexChanged(ctx context.Context) (*IndexReport, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	find := &store.FindMemoryRecord{}
	if idx.watermark > 0 {
		// updated_ts has second resolution: list the watermark second again
		// and skip what was already indexed in it unchanged.
		since := idx.watermark - 1
		find.UpdatedAfter = &since
	}
	listed, err := idx.records.ListMemoryRecords(ctx, find)
	if err != nil {
		return nil, fmt.Errorf("list changed memory records: %w", err)
	}

	records := make([]*store.MemoryRecord, 0, len(listed))
	queued := make(map[string]bool, len(listed))
	for _, r := range listed {
		if fp, ok := idx.atWatermark[r.ID]; ok && r.UpdatedTs == idx.watermark && fp == fingerprint(rag.Synthesize(r)) {
			continue
		}
		queued[r.ID] = true
		records = append(records, r)
	}
	for _, id := range slices.Sorted(maps.Keys(idx.retry)) {
		if queued[id] {
			continue
		}
		r, err := idx.records.GetMemoryRecord(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get memory record %s: %w", id, err)
		}
		if r == nil {
			delete(idx.retry, id)
			continue
		}
		records = append(records, r)
	}

	report, err := idx.indexRecords(ctx, records)
	if err == nil {
		idx.commit(records, report, true)
	}
	return report, err
}

// IndexOne reindexes a single record.
func (idx *Indexer) IndexOne(ctx context.Context, id string) (*IndexReport, error) {
	record, err := idx.records.GetMemoryRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get memory record %s: %w", id, err)
	}
	if record == nil {
		return nil, aierrors.NotFound(id)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	records := []*store.MemoryRecord{record}
	report, err := idx.indexRecords(ctx, records)
	if err == nil {
		idx.commit(records, report, false)
	}
	return report, err
}

// commit records the outcome of a finished pass. Failed records go to the
// retry set; when advance is set the watermark moves to the newest record.
func (idx *Indexer) commit(records []*store.MemoryRecord, report *IndexReport, advance bool) {
	failed := make(map[string]bool, len(report.FailedIDs))
	for _, id := range report.FailedIDs {
		failed[id] = true
	}
	for _, r := range records {
		if failed[r.ID] {
			idx.retry[r.ID] = true
		} else {
			delete(idx.retry, r.ID)
		}
	}
	if !advance {
		return
	}

	for _, r := range records {
		if r.UpdatedTs > idx.watermark {
			idx.watermark = r.UpdatedTs
			clear(idx.atWatermark)
		}
	}
	for _, r := range records {
		if r.UpdatedTs != idx.watermark {
			continue
		}
		if failed[r.ID] {
			delete(idx.atWatermark, r.ID)
		} else {
			idx.atWatermark[r.ID] = fingerprint(rag.Synthesize(r))
		}
	}
}

// fingerprint identifies the indexed content of a record.
func fingerprint(doc *rag.IndexedDocument) string {
	m := doc.Metadata
	return strings.Join([]string{doc.Text, m.Date, m.Location, m.MediaType, m.ImageURL}, "\x1f")
}

func (idx *Indexer) indexRecords(ctx context.Context, records []*store.MemoryRecord) (*IndexReport, error) {
	report := &IndexReport{
		Total:    len(records),
		Failures: make(map[string]int, len(idx.backends)),
	}
	if len(records) == 0 || len(idx.backends) == 0 {
		return report, nil
	}

	slog.Info("indexing memory records", "count", len(records), "backends", len(idx.backends))
	for i := 0; i < len(records); i += idx.batchSize {
		if err := ctx.Err(); err != nil {
			slog.Info("indexing cancelled", "processed", i, "total", len(records))
			return report, err
		}
		if idx.limiter != nil {
			if err := idx.limiter.Wait(ctx); err != nil {
				return report, err
			}
		}

		end := min(i+idx.batchSize, len(records))
		if err := idx.indexBatch(ctx, records[i:end], report); err != nil {
			return report, err
		}
		report.Batches++
		slog.Info("batch indexed", "count", end-i, "progress", fmt.Sprintf("%d/%d", end, len(records)))
	}
	return report, nil
}

// indexBatch synthesizes each record once and embeds it into every backend.
// Backends run concurrently; within a backend records are sequential. Only a
// dimension mismatch aborts the batch.
func (idx *Indexer) indexBatch(ctx context.Context, batch []*store.MemoryRecord, report *IndexReport) error {
	docs := make([]*rag.IndexedDocument, len(batch))
	for i, r := range batch {
		docs[i] = rag.Synthesize(r)
	}

	// failed[b][d] is written only by backend b's goroutine
	failed := make([][]bool, len(idx.backends))
	g, gctx := errgroup.WithContext(ctx)
	for bi, b := range idx.backends {
		failed[bi] = make([]bool, len(docs))
		g.Go(func() error {
			for di, doc := range docs {
				if err := gctx.Err(); err != nil {
					return err
				}
				dctx, cancel := context.WithTimeout(gctx, idx.embedTimeout)
				err := indexDocument(dctx, b, doc)
				cancel()
				if err != nil {
					if errors.Is(err, ai.ErrDimensionMismatch) {
						return aierrors.DimensionMismatch(err)
					}
					if gctx.Err() != nil {
						return gctx.Err()
					}
					failed[bi][di] = true
					slog.Error("failed to index memory record",
						"memoryID", doc.ID,
						observability.LogFieldBackend, b.Name(),
						"error", err,
					)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for bi, b := range idx.backends {
		n := 0
		for _, f := range failed[bi] {
			if f {
				n++
			}
		}
		if n > 0 {
			report.Failures[b.Name()] += n
			slog.Warn("backend failed records in batch", observability.LogFieldBackend, b.Name(), "count", n)
		}
		idx.metrics.RecordIndexed(b.Name(), len(docs)-n, n)
	}
	for di := range docs {
		ok := true
		for bi := range idx.backends {
			if failed[bi][di] {
				ok = false
				break
			}
		}
		if ok {
			report.Indexed++
		} else {
			report.FailedIDs = append(report.FailedIDs, docs[di].ID)
		}
	}
	return nil
}

func indexDocument(ctx context.Context, b vector.Backend, doc *rag.IndexedDocument) error {
	vec, err := b.Embed(ctx, doc.Text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	return b.Upsert(ctx, &vector.Entry{
		ID:       doc.ID,
		Vector:   vec,
		Text:     doc.Text,
		Metadata: doc.Metadata,
	})
}
