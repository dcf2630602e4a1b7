package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	aierrors "github.com/hrygo/decade/server/internal/errors"
	"github.com/hrygo/decade/server/retrieval"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrorCodeMemoryNotFound = -32001 // No memory record with the given id
)

const maxK = 50

func (s *Server) handleSearchMemories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing",
		})
	}
	k := getIntDefault(args, "k", retrieval.DefaultK)
	if k < 1 || k > maxK {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("k must be between 1 and %d", maxK), map[string]interface{}{
			"param": "k",
			"value": k,
		})
	}
	mode, err := retrieval.ParseMode(getStringDefault(args, "mode", ""))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"allowed": []string{"local", "remote", "ensemble"},
		})
	}

	hits, err := s.searcher.Search(ctx, query, k, mode)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("No memories found."), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"count": len(hits),
		"hits":  hits,
	})), nil
}

func (s *Server) handleIndexMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}

	report, err := s.indexer.IndexOne(ctx, id)
	if aierrors.IsCode(err, aierrors.ErrCodeNotFound) {
		return nil, newMCPError(ErrorCodeMemoryNotFound, "memory not found", map[string]interface{}{"id": id})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"id":       id,
		"indexed":  report.Indexed == 1,
		"failures": report.Failures,
	})), nil
}

func (s *Server) handleReindexMemories(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.indexer.IndexAll(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "reindexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"total":    report.Total,
		"indexed":  report.Indexed,
		"batches":  report.Batches,
		"failures": report.Failures,
	})), nil
}

// newMCPError creates an error the MCP framework reports to the client.
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
