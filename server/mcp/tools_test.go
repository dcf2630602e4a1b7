package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/decade/plugin/ai"
	"github.com/hrygo/decade/plugin/ai/vector"
	"github.com/hrygo/decade/server/retrieval"
	"github.com/hrygo/decade/server/runner/embedding"
	"github.com/hrygo/decade/store"
	storetest "github.com/hrygo/decade/store/test"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	ts := storetest.NewTestingStore(ctx, t)
	for _, r := range []*store.MemoryRecord{
		{ID: "1", Date: "2022-07-10", Location: "Jeju", Caption: "Family at the beach, laughing", MediaType: "photo"},
		{ID: "2", Date: "2022-07-10", Location: "Seoul", Caption: "Office meeting", MediaType: "photo"},
	} {
		_, err := ts.UpsertMemoryRecord(ctx, r)
		require.NoError(t, err)
	}

	local, err := vector.NewBackend(ctx, "local", vector.KindLocal, ai.NewHashEmbeddingService(384), vector.NewMemoryIndex())
	require.NoError(t, err)
	backends := []vector.Backend{local}
	return NewServer("test", retrieval.NewOrchestrator(backends, nil, nil, nil, retrieval.Options{}),
		embedding.NewIndexer(ts, backends, nil, embedding.Options{}))
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestReindexThenSearch(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleReindexMemories(ctx, callRequest("reindex_memories", map[string]interface{}{}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), `"indexed": 2`)

	result, err = s.handleSearchMemories(ctx, callRequest("search_memories", map[string]interface{}{
		"query": "beach family",
		"k":     float64(1),
	}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, `"count": 1`)
	assert.Contains(t, text, `"id": "1"`)
	assert.NotContains(t, text, "Seoul")
}

func TestSearchMemoriesNoResults(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleSearchMemories(context.Background(), callRequest("search_memories", map[string]interface{}{
		"query": "beach",
	}))
	require.NoError(t, err)
	assert.Equal(t, "No memories found.", resultText(t, result))
}

func TestSearchMemoriesInvalidParams(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{name: "missing query", args: map[string]interface{}{}},
		{name: "k too large", args: map[string]interface{}{"query": "x", "k": float64(500)}},
		{name: "k zero", args: map[string]interface{}{"query": "x", "k": float64(0)}},
		{name: "unknown mode", args: map[string]interface{}{"query": "x", "mode": "cloud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleSearchMemories(ctx, callRequest("search_memories", tt.args))
			var mcpErr *MCPError
			require.True(t, errors.As(err, &mcpErr))
			assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
		})
	}
}

func TestIndexMemory(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleIndexMemory(ctx, callRequest("index_memory", map[string]interface{}{"id": "2"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), `"indexed": true`)

	_, err = s.handleIndexMemory(ctx, callRequest("index_memory", map[string]interface{}{"id": "missing"}))
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr))
	assert.Equal(t, ErrorCodeMemoryNotFound, mcpErr.Code)

	_, err = s.handleIndexMemory(ctx, callRequest("index_memory", map[string]interface{}{}))
	require.True(t, errors.As(err, &mcpErr))
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}
