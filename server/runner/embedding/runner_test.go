package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/decade/plugin/ai"
	"github.com/hrygo/decade/plugin/ai/vector"
	aierrors "github.com/hrygo/decade/server/internal/errors"
	"github.com/hrygo/decade/server/internal/observability"
	"github.com/hrygo/decade/store"
	storetest "github.com/hrygo/decade/store/test"
)

// fakeProvider is an in-memory RecordProvider.
type fakeProvider struct {
	records []*store.MemoryRecord
	listErr error
}

func (f *fakeProvider) ListMemoryRecords(_ context.Context, find *store.FindMemoryRecord) ([]*store.MemoryRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*store.MemoryRecord
	for _, r := range f.records {
		if find.UpdatedAfter != nil && r.UpdatedTs <= *find.UpdatedAfter {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeProvider) GetMemoryRecord(_ context.Context, id string) (*store.MemoryRecord, error) {
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

// failingBackend fails to embed texts containing failOn.
type failingBackend struct {
	vector.Backend
	failOn string
	embeds atomic.Int32
}

func (f *failingBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	f.embeds.Add(1)
	if strings.Contains(text, f.failOn) {
		return nil, errors.New("quota exceeded")
	}
	return f.Backend.Embed(ctx, text)
}

// hangingBackend blocks every embedding until the context is done.
type hangingBackend struct {
	vector.Backend
}

func (h *hangingBackend) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// shortEmbedder returns vectors shorter than it claims.
type shortEmbedder struct {
	ai.EmbeddingService
}

func (s *shortEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := s.EmbeddingService.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return v[:len(v)/2], nil
}

func newMemoryBackend(t *testing.T, name string, kind vector.Kind, index *vector.MemoryIndex) vector.Backend {
	t.Helper()
	b, err := vector.NewBackend(context.Background(), name, kind, ai.NewHashEmbeddingService(64), index)
	require.NoError(t, err)
	return b
}

func makeRecords(n int) []*store.MemoryRecord {
	records := make([]*store.MemoryRecord, n)
	for i := range records {
		records[i] = &store.MemoryRecord{
			ID:        fmt.Sprintf("m%02d", i),
			Date:      "2021-05-01",
			Location:  "Busan",
			Caption:   fmt.Sprintf("walk number %d", i),
			MediaType: "photo",
			UpdatedTs: int64(100 + i),
		}
	}
	return records
}

func TestIndexAll(t *testing.T) {
	localIndex, remoteIndex := vector.NewMemoryIndex(), vector.NewMemoryIndex()
	backends := []vector.Backend{
		newMemoryBackend(t, "local", vector.KindLocal, localIndex),
		newMemoryBackend(t, "remote", vector.KindRemote, remoteIndex),
	}
	metrics := observability.NewMetrics(0)
	indexer := NewIndexer(&fakeProvider{records: makeRecords(45)}, backends, metrics, Options{BatchSize: 20})

	report, err := indexer.IndexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 45, report.Total)
	assert.Equal(t, 45, report.Indexed)
	assert.Equal(t, 3, report.Batches)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 45, localIndex.Len("local"))
	assert.Equal(t, 45, remoteIndex.Len("remote"))
	assert.Equal(t, int64(45), metrics.Snapshot().Backends["remote"].Indexed)

	// a second pass replaces entries instead of adding them
	_, err = indexer.IndexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 45, localIndex.Len("local"))
}

func TestIndexAll_RecordFailureContinues(t *testing.T) {
	records := makeRecords(3)
	records[1].Location = "Seoul"

	localIndex, remoteIndex := vector.NewMemoryIndex(), vector.NewMemoryIndex()
	remote := &failingBackend{Backend: newMemoryBackend(t, "remote", vector.KindRemote, remoteIndex), failOn: "Seoul"}
	backends := []vector.Backend{newMemoryBackend(t, "local", vector.KindLocal, localIndex), remote}
	indexer := NewIndexer(&fakeProvider{records: records}, backends, nil, Options{})

	report, err := indexer.IndexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, map[string]int{"remote": 1}, report.Failures)
	assert.Equal(t, []string{"m01"}, report.FailedIDs)
	assert.Equal(t, 3, localIndex.Len("local"))
	assert.Equal(t, 2, remoteIndex.Len("remote"))
	assert.Equal(t, int32(3), remote.embeds.Load())
}

func TestIndexAll_EmbedTimeoutCountsAsFailure(t *testing.T) {
	localIndex := vector.NewMemoryIndex()
	backends := []vector.Backend{
		newMemoryBackend(t, "local", vector.KindLocal, localIndex),
		&hangingBackend{Backend: newMemoryBackend(t, "remote", vector.KindRemote, vector.NewMemoryIndex())},
	}
	indexer := NewIndexer(&fakeProvider{records: makeRecords(2)}, backends, nil, Options{
		EmbedTimeout: 50 * time.Millisecond,
	})

	done := make(chan struct{})
	var report *IndexReport
	var err error
	go func() {
		report, err = indexer.IndexAll(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("IndexAll blocked on a hanging backend")
	}

	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, map[string]int{"remote": 2}, report.Failures)
	assert.Equal(t, []string{"m00", "m01"}, report.FailedIDs)
	assert.Equal(t, 2, localIndex.Len("local"))

	// the lock is released, so single record indexing still works
	_, err = indexer.IndexOne(context.Background(), "m00")
	require.NoError(t, err)
}

func TestIndexAll_DimensionMismatchIsFatal(t *testing.T) {
	index := vector.NewMemoryIndex()
	b, err := vector.NewBackend(context.Background(), "local", vector.KindLocal,
		&shortEmbedder{EmbeddingService: ai.NewHashEmbeddingService(32)}, index)
	require.NoError(t, err)
	indexer := NewIndexer(&fakeProvider{records: makeRecords(2)}, []vector.Backend{b}, nil, Options{})

	_, err = indexer.IndexAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrDimensionMismatch)
	assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeDimensionMismatch))
	assert.Equal(t, 0, index.Len("local"))
}

func TestIndexAll_ListError(t *testing.T) {
	indexer := NewIndexer(&fakeProvider{listErr: errors.New("db closed")}, nil, nil, Options{})
	_, err := indexer.IndexAll(context.Background())
	assert.ErrorContains(t, err, "db closed")
}

func TestIndexAll_Cancelled(t *testing.T) {
	index := vector.NewMemoryIndex()
	indexer := NewIndexer(&fakeProvider{records: makeRecords(5)},
		[]vector.Backend{newMemoryBackend(t, "local", vector.KindLocal, index)}, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := indexer.IndexAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Batches)
	assert.Equal(t, 0, index.Len("local"))
}

func TestIndexAll_RemotePause(t *testing.T) {
	backends := []vector.Backend{
		newMemoryBackend(t, "remote", vector.KindRemote, vector.NewMemoryIndex()),
	}
	indexer := NewIndexer(&fakeProvider{records: makeRecords(3)}, backends, nil, Options{
		BatchSize:   1,
		RemotePause: 50 * time.Millisecond,
	})

	start := time.Now()
	report, err := indexer.IndexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Batches)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestIndexOne(t *testing.T) {
	index := vector.NewMemoryIndex()
	indexer := NewIndexer(&fakeProvider{records: makeRecords(3)},
		[]vector.Backend{newMemoryBackend(t, "local", vector.KindLocal, index)}, nil, Options{})

	report, err := indexer.IndexOne(context.Background(), "m01")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 1, index.Len("local"))

	_, err = indexer.IndexOne(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeNotFound))
}

func TestIndexChanged(t *testing.T) {
	ctx := context.Background()
	ts := storetest.NewTestingStore(ctx, t)
	for _, r := range makeRecords(2) {
		_, err := ts.UpsertMemoryRecord(ctx, r)
		require.NoError(t, err)
	}

	index := vector.NewMemoryIndex()
	indexer := NewIndexer(ts, []vector.Backend{newMemoryBackend(t, "local", vector.KindLocal, index)}, nil, Options{})

	report, err := indexer.IndexChanged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)

	report, err = indexer.IndexChanged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)

	changed := makeRecords(1)[0]
	changed.Caption = "walk along the harbor"
	changed.UpdatedTs = 500
	_, err = ts.UpsertMemoryRecord(ctx, changed)
	require.NoError(t, err)

	report, err = indexer.IndexChanged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 2, index.Len("local"))
}

func TestIndexChanged_RetriesFailedRecords(t *testing.T) {
	records := makeRecords(3)
	records[1].Location = "Seoul"

	remoteIndex := vector.NewMemoryIndex()
	remote := &failingBackend{Backend: newMemoryBackend(t, "remote", vector.KindRemote, remoteIndex), failOn: "Seoul"}
	indexer := NewIndexer(&fakeProvider{records: records}, []vector.Backend{remote}, nil, Options{})

	report, err := indexer.IndexChanged(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, []string{"m01"}, report.FailedIDs)

	// the provider recovers; m01 is older than the watermark but still retried
	remote.failOn = "no such text"
	report, err = indexer.IndexChanged(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 3, remoteIndex.Len("remote"))

	report, err = indexer.IndexChanged(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
}

func TestIndexChanged_SameSecondEdit(t *testing.T) {
	records := makeRecords(2)
	provider := &fakeProvider{records: records}
	index := vector.NewMemoryIndex()
	indexer := NewIndexer(provider, []vector.Backend{newMemoryBackend(t, "local", vector.KindLocal, index)}, nil, Options{})

	report, err := indexer.IndexChanged(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)

	// edited within the second of the last indexed update
	records[1].Caption = "walk along the harbor"
	report, err = indexer.IndexChanged(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Indexed)

	neighbors, err := index.SearchNearest(context.Background(), "local", mustEmbed(t, "harbor"), 0)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	for _, n := range neighbors {
		if n.ID == "m01" {
			assert.Contains(t, n.Text, "harbor")
		}
	}

	report, err = indexer.IndexChanged(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
}

func mustEmbed(t *testing.T, text string) []float32 {
	t.Helper()
	v, err := ai.NewHashEmbeddingService(64).EmbedQuery(context.Background(), text)
	require.NoError(t, err)
	return v
}

func TestRunStopsWithContext(t *testing.T) {
	index := vector.NewMemoryIndex()
	indexer := NewIndexer(&fakeProvider{records: makeRecords(2)},
		[]vector.Backend{newMemoryBackend(t, "local", vector.KindLocal, index)}, nil, Options{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		indexer.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return index.Len("local") == 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
