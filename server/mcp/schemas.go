package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func searchMemoriesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_memories",
		Description: "Search the personal photo and video archive with a free-text query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What to look for, e.g. 'beach with family in 2019'",
				},
				"k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of memories to return (1-50)",
					"default":     5,
					"minimum":     1,
					"maximum":     50,
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Embedding backends to query",
					"enum":        []string{"local", "remote", "ensemble"},
					"default":     "ensemble",
				},
			},
			Required: []string{"query"},
		},
	}
}

func indexMemoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_memory",
		Description: "Reindex one memory record after its caption, note, people or mood changed",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Memory record id",
				},
			},
			Required: []string{"id"},
		},
	}
}

func reindexMemoriesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reindex_memories",
		Description: "Reindex every memory record into every embedding backend",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
