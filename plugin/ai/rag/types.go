// Package rag turns memory records into searchable documents and ranks
// retrieved candidates: hybrid scoring, reciprocal rank fusion and LLM reranking.
package rag

import "github.com/hrygo/decade/store"

// IndexedDocument is the searchable projection of a memory record.
type IndexedDocument struct {
	ID       string
	Text     string
	Metadata store.VectorMetadata
}

// Hit is one search result.
type Hit struct {
	ID string `json:"id"`
	// Score is the best hybrid score the hit received from any backend.
	Score float64 `json:"score"`
	// FusedScore is the reciprocal rank fusion sum across backends.
	FusedScore float64              `json:"fused_score"`
	Text       string               `json:"text"`
	Metadata   store.VectorMetadata `json:"metadata"`
	Backends   []string             `json:"backends"`
}
