package ai

import (
	"errors"
	"fmt"
	"time"

	"github.com/hrygo/decade/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Local  EmbeddingConfig
	Remote EmbeddingConfig

	LLM      LLMConfig
	Reranker RerankerConfig

	Retry   RetryPolicy
	Breaker BreakerConfig
	Cache   CacheConfig
}

// EmbeddingConfig represents one embedding backend.
type EmbeddingConfig struct {
	Name       string // collection name: local, remote
	Provider   string // hash, ollama, openai, siliconflow, gemini
	Model      string
	Dimensions int
	APIKey     string
	BaseURL    string
	Retry      RetryPolicy // zero value: single attempt
}

// RerankerConfig represents the LLM reranker configuration.
type RerankerConfig struct {
	Enabled       bool
	MaxSelect     int     // most indices the model may return, default 5
	SnippetLength int     // runes of text per candidate in the prompt
	Temperature   float32 // default: 0.1
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider    string // openai, deepseek, groq, ollama
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 256
	Temperature float32 // default: 0.7
}

// CacheConfig sizes the query embedding cache of every backend.
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

type providerDefaults struct {
	model      string
	dimensions int
	baseURL    string
}

var embeddingDefaults = map[string]providerDefaults{
	"hash":        {model: "hash-v1", dimensions: 384},
	"ollama":      {model: "nomic-embed-text", dimensions: 768, baseURL: "http://localhost:11434/v1"},
	"openai":      {model: "text-embedding-3-small", dimensions: 1536, baseURL: "https://api.openai.com/v1"},
	"siliconflow": {model: "BAAI/bge-m3", dimensions: 1024, baseURL: "https://api.siliconflow.cn/v1"},
	"gemini":      {model: "text-embedding-004", dimensions: 768, baseURL: "https://generativelanguage.googleapis.com/v1beta/openai/"},
}

var llmDefaults = map[string]providerDefaults{
	"openai":   {model: "gpt-4o-mini", baseURL: "https://api.openai.com/v1"},
	"deepseek": {model: "deepseek-chat", baseURL: "https://api.deepseek.com"},
	"groq":     {model: "llama-3.1-8b-instant", baseURL: "https://api.groq.com/openai/v1"},
	"ollama":   {model: "llama3.1", baseURL: "http://localhost:11434/v1"},
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Local: withEmbeddingDefaults(EmbeddingConfig{
			Name:       "local",
			Provider:   p.LocalProvider,
			Model:      p.LocalModel,
			Dimensions: p.LocalDimensions,
			BaseURL:    p.LocalBaseURL,
		}),
		Retry: DefaultRetryPolicy(),
		Breaker: BreakerConfig{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			MinRequests: 5,
			FailureRate: 0.6,
		},
		Cache: CacheConfig{
			Size: p.CacheSize,
			TTL:  p.CacheTTL,
		},
	}
	if cfg.Local.Provider == "ollama" {
		cfg.Local.Retry = cfg.Retry
	}
	if cfg.Cache.Size <= 0 {
		cfg.Cache.Size = 256
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = 10 * time.Minute
	}

	if p.RemoteProvider != "" {
		cfg.Remote = withEmbeddingDefaults(EmbeddingConfig{
			Name:       "remote",
			Provider:   p.RemoteProvider,
			Model:      p.RemoteModel,
			Dimensions: p.RemoteDimensions,
			APIKey:     p.RemoteAPIKey,
			BaseURL:    p.RemoteBaseURL,
			Retry:      cfg.Retry,
		})
	}

	if p.LLMProvider != "" {
		d := llmDefaults[p.LLMProvider]
		cfg.LLM = LLMConfig{
			Provider:    p.LLMProvider,
			Model:       firstNonEmpty(p.LLMModel, d.model),
			APIKey:      p.LLMAPIKey,
			BaseURL:     firstNonEmpty(p.LLMBaseURL, d.baseURL),
			MaxTokens:   256,
			Temperature: 0.7,
		}
		if p.LLMTemperature > 0 {
			cfg.LLM.Temperature = p.LLMTemperature
		}
	}

	cfg.Reranker = RerankerConfig{
		Enabled:       p.RerankerEnabled && p.HasLLM(),
		MaxSelect:     5,
		SnippetLength: 160,
		Temperature:   0.1,
	}

	return cfg
}

func withEmbeddingDefaults(c EmbeddingConfig) EmbeddingConfig {
	d := embeddingDefaults[c.Provider]
	c.Model = firstNonEmpty(c.Model, d.model)
	c.BaseURL = firstNonEmpty(c.BaseURL, d.baseURL)
	if c.Dimensions <= 0 {
		c.Dimensions = d.dimensions
	}
	return c
}

// IsRemote reports whether the provider needs network access and a credential.
func (c *EmbeddingConfig) IsRemote() bool {
	switch c.Provider {
	case "hash", "ollama":
		return false
	}
	return true
}

// IsConfigured reports whether the backend can be built. A remote backend
// without an API key is unconfigured, which is not an error.
func (c *EmbeddingConfig) IsConfigured() bool {
	if c.Provider == "" {
		return false
	}
	return !c.IsRemote() || c.APIKey != ""
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Local.Provider == "" {
		return errors.New("local embedding provider is required")
	}
	if c.Local.IsRemote() {
		return fmt.Errorf("local backend cannot use remote provider %q", c.Local.Provider)
	}
	for _, e := range []EmbeddingConfig{c.Local, c.Remote} {
		if e.Provider == "" {
			continue
		}
		if _, ok := embeddingDefaults[e.Provider]; !ok {
			return fmt.Errorf("%w: embedding provider %q", ErrUnsupportedProvider, e.Provider)
		}
		if e.Dimensions <= 0 {
			return fmt.Errorf("%s backend: dimensions must be positive", e.Name)
		}
	}
	if c.Remote.Provider != "" && !c.Remote.IsRemote() {
		return fmt.Errorf("remote backend cannot use local provider %q", c.Remote.Provider)
	}
	if c.LLM.Provider != "" {
		if _, ok := llmDefaults[c.LLM.Provider]; !ok {
			return fmt.Errorf("%w: LLM provider %q", ErrUnsupportedProvider, c.LLM.Provider)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
