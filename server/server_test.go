package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/decade/internal/profile"
	"github.com/hrygo/decade/plugin/ai"
	"github.com/hrygo/decade/plugin/ai/vector"
	"github.com/hrygo/decade/store"
	"github.com/hrygo/decade/store/db"
)

func newTestStore(t *testing.T, p *profile.Profile) *store.Store {
	t.Helper()
	require.NoError(t, p.Validate())
	driver, err := db.NewDBDriver(p)
	require.NoError(t, err)
	s := store.New(driver, p)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testProfile(t *testing.T) *profile.Profile {
	return &profile.Profile{Mode: "dev", Data: t.TempDir(), Driver: "sqlite"}
}

func TestBackendsWithoutRemoteKey(t *testing.T) {
	p := testProfile(t)
	p.RemoteProvider = "openai"
	st := newTestStore(t, p)
	t.Cleanup(func() { _ = st.Close() })

	s, err := NewServer(context.Background(), p, st)
	require.NoError(t, err)

	backends, err := s.Backends(context.Background())
	require.NoError(t, err)
	require.Len(t, backends, 1)
	assert.Equal(t, "local", backends[0].Name())
	assert.Equal(t, vector.KindLocal, backends[0].Kind())
	assert.Equal(t, 384, backends[0].Dimension())
}

func TestBackendsWithRemote(t *testing.T) {
	p := testProfile(t)
	p.RemoteProvider = "siliconflow"
	p.RemoteAPIKey = "test-key"
	p.RemoteBaseURL = "http://127.0.0.1:1/v1"
	st := newTestStore(t, p)
	t.Cleanup(func() { _ = st.Close() })

	s, err := NewServer(context.Background(), p, st)
	require.NoError(t, err)

	backends, err := s.Backends(context.Background())
	require.NoError(t, err)
	require.Len(t, backends, 2)
	assert.Equal(t, vector.KindRemote, backends[1].Kind())
	assert.Equal(t, 1024, backends[1].Dimension())
}

func TestDimensionChangeFailsAtStartup(t *testing.T) {
	p := testProfile(t)
	st := newTestStore(t, p)
	_, err := NewServer(context.Background(), p, st)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	changed := testProfile(t)
	changed.Data = p.Data
	changed.LocalDimensions = 128
	st = newTestStore(t, changed)
	t.Cleanup(func() { _ = st.Close() })

	_, err = NewServer(context.Background(), changed, st)
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrDimensionMismatch)
}

func TestServicesAreBuiltOnce(t *testing.T) {
	p := testProfile(t)
	st := newTestStore(t, p)
	t.Cleanup(func() { _ = st.Close() })
	s, err := NewServer(context.Background(), p, st)
	require.NoError(t, err)

	o1, err := s.Orchestrator(context.Background())
	require.NoError(t, err)
	o2, err := s.Orchestrator(context.Background())
	require.NoError(t, err)
	assert.Same(t, o1, o2)

	i1, err := s.Indexer(context.Background())
	require.NoError(t, err)
	i2, err := s.Indexer(context.Background())
	require.NoError(t, err)
	assert.Same(t, i1, i2)

	// reranking needs a model
	assert.Nil(t, s.Reranker())
}

func TestLexiconFile(t *testing.T) {
	p := testProfile(t)
	p.LexiconFile = filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(p.LexiconFile, []byte("words:\n  - cozy\n"), 0o600))
	st := newTestStore(t, p)
	t.Cleanup(func() { _ = st.Close() })
	s, err := NewServer(context.Background(), p, st)
	require.NoError(t, err)

	scorer, err := s.Scorer()
	require.NoError(t, err)
	assert.Equal(t, 0.9, scorer.Alpha("a cozy evening"))
	assert.Equal(t, 0.7, scorer.Alpha("happy evening"))
}

func TestEchoServesAPI(t *testing.T) {
	p := testProfile(t)
	st := newTestStore(t, p)
	t.Cleanup(func() { _ = st.Close() })
	s, err := NewServer(context.Background(), p, st)
	require.NoError(t, err)

	e, err := s.Echo(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=beach", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), s.Metrics().Snapshot().SearchTotal)
}
