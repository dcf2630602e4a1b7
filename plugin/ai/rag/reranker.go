package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/hrygo/decade/plugin/ai"
	"github.com/hrygo/decade/plugin/ai/timeout"
)

const rerankSystemPrompt = `You filter search results from a personal photo and video archive.
You receive a query and a numbered list of candidate memories.
Rules:
1. Reject every candidate that contradicts an explicit constraint of the query, such as a different place, year or person.
2. Select at most %d candidates, most relevant first.
3. If nothing is relevant, answer [].
Answer with a JSON array of candidate numbers only, for example [2, 0].`

// Reranker asks a generative model to select and reorder fused candidates.
// Any failure falls back to the fused order; it never returns an error.
type Reranker struct {
	llm           ai.LLMService
	retry         ai.RetryPolicy
	maxSelect     int
	snippetLength int
	temperature   float32
	timeout       time.Duration
}

// NewReranker creates a reranker. A nil llm yields a pass-through reranker.
func NewReranker(llm ai.LLMService, cfg ai.RerankerConfig, retry ai.RetryPolicy) *Reranker {
	r := &Reranker{
		llm:           llm,
		retry:         retry,
		maxSelect:     cfg.MaxSelect,
		snippetLength: cfg.SnippetLength,
		temperature:   cfg.Temperature,
		timeout:       timeout.RerankTimeout,
	}
	if r.maxSelect <= 0 {
		r.maxSelect = 5
	}
	if r.snippetLength <= 0 {
		r.snippetLength = 160
	}
	return r
}

// Enabled reports whether a model is attached.
func (r *Reranker) Enabled() bool {
	return r != nil && r.llm != nil
}

// Rerank returns at most min(5, topK) candidates chosen by the model, or the
// first topK candidates in their given order when the model fails or answers
// something unusable. An explicit empty selection returns no candidates.
// applied is false whenever the fused order was kept.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []*Hit, topK int) (hits []*Hit, applied bool) {
	fallback := truncateHits(candidates, topK)
	if !r.Enabled() || len(candidates) == 0 || topK <= 0 {
		return fallback, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	limit := min(r.maxSelect, topK)
	messages := []ai.Message{
		ai.SystemPrompt(fmt.Sprintf(rerankSystemPrompt, limit)),
		ai.UserMessage(r.buildPrompt(query, candidates)),
	}
	temperature := r.temperature
	reply, err := ai.Retry(ctx, r.retry, func(ctx context.Context) (string, error) {
		return r.llm.Chat(ctx, messages, ai.ChatOptions{Temperature: &temperature, MaxTokens: 64})
	})
	if err != nil {
		slog.WarnContext(ctx, "rerank failed, keeping fused order", "error", err)
		return fallback, false
	}

	indices, err := parseSelection(reply, len(candidates))
	if err != nil {
		slog.WarnContext(ctx, "rerank reply unusable, keeping fused order",
			"error", err,
			"reply", truncate(reply, timeout.MaxTruncateLength))
		return fallback, false
	}

	if len(indices) > limit {
		indices = indices[:limit]
	}
	selected := make([]*Hit, 0, len(indices))
	for _, i := range indices {
		selected = append(selected, candidates[i])
	}
	slog.DebugContext(ctx, "rerank applied", "candidates", len(candidates), "selected", len(selected))
	return selected, true
}

func (r *Reranker) buildPrompt(query string, candidates []*Hit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nCandidates:\n", query)
	for i, c := range candidates {
		date := c.Metadata.Date
		if date == "" {
			date = "unknown date"
		}
		location := c.Metadata.Location
		if location == "" {
			location = "unknown place"
		}
		fmt.Fprintf(&b, "[%d] %s | %s | %s | %s\n", i, c.ID, date, location, truncate(c.Text, r.snippetLength))
	}
	return b.String()
}

// parseSelection extracts the first JSON array from reply and returns its
// valid, de-duplicated indices in order. A non-empty array without a single
// valid index is an error; an empty array is a valid rejection of everything.
func parseSelection(reply string, n int) ([]int, error) {
	raw, err := extractArray(reply)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []int{}, nil
	}

	indices := make([]int, 0, len(raw))
	seen := make(map[int]bool, len(raw))
	for _, v := range raw {
		i, ok := toIndex(v)
		if !ok || i < 0 || i >= n || seen[i] {
			continue
		}
		seen[i] = true
		indices = append(indices, i)
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("no valid index in %v", raw)
	}
	return indices, nil
}

// extractArray tries a strict decode at every '[' first and only then lets
// jsonrepair fix a truncated or sloppy array starting at the first '['.
func extractArray(reply string) ([]any, error) {
	first := strings.IndexByte(reply, '[')
	if first < 0 {
		return nil, fmt.Errorf("no JSON array in reply")
	}

	for i := first; i < len(reply); i++ {
		if reply[i] != '[' {
			continue
		}
		var arr []any
		if err := json.NewDecoder(strings.NewReader(reply[i:])).Decode(&arr); err == nil {
			return arr, nil
		}
	}

	repaired, err := jsonrepair.JSONRepair(reply[first:])
	if err != nil {
		return nil, fmt.Errorf("repair JSON array: %w", err)
	}
	var arr []any
	if err := json.Unmarshal([]byte(repaired), &arr); err != nil {
		return nil, fmt.Errorf("decode repaired JSON array: %w", err)
	}
	// only a literal [] rejects everything; a repaired one is noise
	if len(arr) == 0 {
		return nil, fmt.Errorf("empty array after repair")
	}
	return arr, nil
}

func toIndex(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		return i, err == nil
	}
	return 0, false
}

func truncateHits(hits []*Hit, k int) []*Hit {
	if k < 0 {
		k = 0
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
