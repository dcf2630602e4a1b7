// Package timeout defines centralized timeout constants for AI operations.
package timeout

import "time"

const (
	// BackendTimeout bounds one backend's embed-and-search during a query.
	BackendTimeout = 8 * time.Second

	// QueryTimeout is the overall deadline of a hybrid search.
	QueryTimeout = 15 * time.Second

	// RerankTimeout bounds the LLM reranking call. On expiry the fused order is kept.
	RerankTimeout = 10 * time.Second

	// EmbeddingTimeout bounds embedding and storing one record on one backend
	// while indexing. An expiry counts as a failure of that record.
	EmbeddingTimeout = 30 * time.Second

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	MaxTruncateLength = 200
)
