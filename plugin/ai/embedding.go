package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates the vector of a document text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery generates the vector of a search query. Providers that do not
	// distinguish queries from documents return the same vector as Embed.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int

	// Model returns the model identifier recorded with every stored vector.
	Model() string
}

type embeddingService struct {
	client     *openai.Client
	provider   string
	model      string
	dimensions int
	retry      RetryPolicy
}

// NewEmbeddingService creates a new EmbeddingService.
// A remote provider without an API key yields ErrBackendUnconfigured.
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	if cfg.Provider == "hash" {
		return NewHashEmbeddingService(cfg.Dimensions), nil
	}
	if cfg.IsRemote() && cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s has no API key", ErrBackendUnconfigured, cfg.Provider)
	}

	var clientConfig openai.ClientConfig
	switch cfg.Provider {
	case "openai", "siliconflow", "gemini":
		// SiliconFlow and Gemini expose OpenAI compatible endpoints.
		clientConfig = openai.DefaultConfig(cfg.APIKey)
	case "ollama":
		clientConfig = openai.DefaultConfig("ollama")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &embeddingService{
		client:     openai.NewClientWithConfig(clientConfig),
		provider:   cfg.Provider,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		retry:      cfg.Retry,
	}, nil
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

func (s *embeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return s.Embed(ctx, query)
}

func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(s.model),
	}
	// Only OpenAI's v3 models accept a reduced output size.
	if s.provider == "openai" {
		req.Dimensions = s.dimensions
	}

	resp, err := Retry(ctx, s.retry, func(ctx context.Context) (openai.EmbeddingResponse, error) {
		return s.client.CreateEmbeddings(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("embedding response index %d out of range", data.Index)
		}
		if len(data.Embedding) != s.dimensions {
			return nil, fmt.Errorf("%w: model %s returned %d, expected %d",
				ErrDimensionMismatch, s.model, len(data.Embedding), s.dimensions)
		}
		vectors[data.Index] = data.Embedding
	}
	return vectors, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}

func (s *embeddingService) Model() string {
	return s.model
}
