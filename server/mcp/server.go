// Package mcp exposes memory search and indexing as Model Context Protocol
// tools over stdio:
//   - search_memories: hybrid search across the configured embedding backends
//   - index_memory: reindex one memory record by id
//   - reindex_memories: reindex the whole archive
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hrygo/decade/plugin/ai/rag"
	"github.com/hrygo/decade/server/retrieval"
	"github.com/hrygo/decade/server/runner/embedding"
)

const (
	// ServerName is the MCP server name
	ServerName = "decade"
)

// Searcher runs a retrieval query.
type Searcher interface {
	Search(ctx context.Context, query string, k int, mode retrieval.Mode) ([]*rag.Hit, error)
}

// Indexer reindexes memory records.
type Indexer interface {
	IndexAll(ctx context.Context) (*embedding.IndexReport, error)
	IndexOne(ctx context.Context, id string) (*embedding.IndexReport, error)
}

// Server wraps the MCP server with the retrieval services.
type Server struct {
	mcp      *server.MCPServer
	searcher Searcher
	indexer  Indexer
}

// NewServer creates an MCP server with every tool registered.
func NewServer(version string, searcher Searcher, indexer Indexer) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, version),
		searcher: searcher,
		indexer:  indexer,
	}
	s.registerTools()
	return s
}

// Serve serves MCP on stdio and blocks until the client disconnects.
func (s *Server) Serve(_ context.Context) error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchMemoriesTool(), s.handleSearchMemories)
	s.mcp.AddTool(indexMemoryTool(), s.handleIndexMemory)
	s.mcp.AddTool(reindexMemoriesTool(), s.handleReindexMemories)
}
