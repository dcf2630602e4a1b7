package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const hashModelName = "hash-v1"

// hashEmbeddingService embeds text by feature hashing. Each lowercased word
// and each character trigram of it is hashed into a signed bucket, and the
// result is L2 normalized. Deterministic, no network.
type hashEmbeddingService struct {
	dimensions int
}

// NewHashEmbeddingService creates the offline feature hashing embedder.
func NewHashEmbeddingService(dimensions int) EmbeddingService {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &hashEmbeddingService{dimensions: dimensions}
}

func (s *hashEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	return s.vector(text), nil
}

func (s *hashEmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return s.Embed(ctx, query)
}

func (s *hashEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (s *hashEmbeddingService) Dimensions() int {
	return s.dimensions
}

func (s *hashEmbeddingService) Model() string {
	return hashModelName
}

func (s *hashEmbeddingService) vector(text string) []float32 {
	v := make([]float32, s.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, word := range words {
		s.add(v, "w:"+word, 1)
		runes := []rune("^" + word + "$")
		for i := 0; i+3 <= len(runes); i++ {
			s.add(v, "g:"+string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

func (s *hashEmbeddingService) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(s.dimensions))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}
