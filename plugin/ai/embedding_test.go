package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewEmbeddingService tests service creation.
func TestNewEmbeddingService(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *EmbeddingConfig
		wantErr error
	}{
		{
			name: "SiliconFlow config",
			cfg: &EmbeddingConfig{
				Provider:   "siliconflow",
				Model:      "BAAI/bge-m3",
				Dimensions: 1024,
				APIKey:     "test-key",
				BaseURL:    "https://api.siliconflow.cn/v1",
			},
		},
		{
			name: "Ollama config needs no key",
			cfg: &EmbeddingConfig{
				Provider:   "ollama",
				Model:      "nomic-embed-text",
				Dimensions: 768,
				BaseURL:    "http://localhost:11434/v1",
			},
		},
		{
			name:    "Gemini without key",
			cfg:     &EmbeddingConfig{Provider: "gemini", Dimensions: 768},
			wantErr: ErrBackendUnconfigured,
		},
		{
			name:    "Unsupported provider",
			cfg:     &EmbeddingConfig{Provider: "unsupported", APIKey: "k"},
			wantErr: ErrUnsupportedProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewEmbeddingService(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Dimensions, svc.Dimensions())
			assert.Equal(t, tt.cfg.Model, svc.Model())
		})
	}
}

func TestNewEmbeddingService_Hash(t *testing.T) {
	svc, err := NewEmbeddingService(&EmbeddingConfig{Provider: "hash", Dimensions: 64})
	require.NoError(t, err)
	assert.Equal(t, 64, svc.Dimensions())
	assert.Equal(t, "hash-v1", svc.Model())
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

func newEmbeddingServer(t *testing.T, dims int, failures int32) (*httptest.Server, *atomic.Int32, *embeddingRequest) {
	t.Helper()
	var calls atomic.Int32
	var last embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= failures {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&last))

		data := make([]map[string]any, len(last.Input))
		for i := range last.Input {
			vec := make([]float32, dims)
			vec[i%dims] = 1
			// reversed order: the service must place vectors by index
			data[len(last.Input)-1-i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "model": last.Model, "data": data})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &last
}

func TestEmbeddingService_EmbedBatch(t *testing.T) {
	srv, _, last := newEmbeddingServer(t, 4, 0)

	svc, err := NewEmbeddingService(&EmbeddingConfig{
		Provider: "openai", Model: "text-embedding-3-small", Dimensions: 4, APIKey: "k", BaseURL: srv.URL,
	})
	require.NoError(t, err)

	vectors, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0, 0, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1, 0, 0}, vectors[1])
	assert.Equal(t, 4, last.Dimensions)
}

func TestEmbeddingService_DimensionsOnlySentToOpenAI(t *testing.T) {
	srv, _, last := newEmbeddingServer(t, 4, 0)

	svc, err := NewEmbeddingService(&EmbeddingConfig{
		Provider: "siliconflow", Model: "BAAI/bge-m3", Dimensions: 4, APIKey: "k", BaseURL: srv.URL,
	})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Zero(t, last.Dimensions)
}

func TestEmbeddingService_DimensionMismatch(t *testing.T) {
	srv, _, _ := newEmbeddingServer(t, 8, 0)

	svc, err := NewEmbeddingService(&EmbeddingConfig{
		Provider: "siliconflow", Model: "m", Dimensions: 4, APIKey: "k", BaseURL: srv.URL,
		Retry: RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEmbeddingService_RetriesServerErrors(t *testing.T) {
	srv, calls, _ := newEmbeddingServer(t, 4, 2)

	svc, err := NewEmbeddingService(&EmbeddingConfig{
		Provider: "siliconflow", Model: "m", Dimensions: 4, APIKey: "k", BaseURL: srv.URL,
		Retry: RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2},
	})
	require.NoError(t, err)

	v, err := svc.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, v, 4)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbeddingService_EmptyText(t *testing.T) {
	svc, err := NewEmbeddingService(&EmbeddingConfig{Provider: "openai", Model: "m", Dimensions: 4, APIKey: "k"})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}
