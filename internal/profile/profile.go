package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the retrieval service.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where decade stores records and vectors
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	LogLevel  string // text log level: debug, info, warn, error
	LogFormat string // text or json

	// Local embedding backend. Always available.
	LocalProvider   string // hash, ollama
	LocalModel      string
	LocalDimensions int
	LocalBaseURL    string // ollama only (default: http://localhost:11434/v1)

	// Remote embedding backend. Treated as unconfigured without an API key.
	RemoteProvider   string // openai, siliconflow, gemini
	RemoteModel      string
	RemoteDimensions int
	RemoteAPIKey     string // DECADE_REMOTE_API_KEY, falls back to the provider's conventional variable
	RemoteBaseURL    string

	// Generative model used by the reranker.
	LLMProvider     string // openai, deepseek, groq, ollama
	LLMModel        string
	LLMAPIKey       string // DECADE_LLM_API_KEY, falls back to the provider's conventional variable
	LLMBaseURL      string
	LLMTemperature  float32
	RerankerEnabled bool

	// Retrieval tunables.
	MinScore        float64
	RRFK            int
	CandidateFactor int
	BackendTimeout  time.Duration
	QueryTimeout    time.Duration
	LexiconFile     string

	// Indexer tunables.
	IndexBatchSize    int
	IndexRemotePause  time.Duration
	IndexInterval     time.Duration
	IndexEmbedTimeout time.Duration // per record and backend

	CacheSize    int
	CacheTTL     time.Duration
	APIRateLimit float64 // requests per second per client
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// HasRemoteBackend reports whether the remote backend has the credentials it needs.
func (p *Profile) HasRemoteBackend() bool {
	return p.RemoteProvider != "" && p.RemoteAPIKey != ""
}

// HasLLM reports whether a generative model is usable for reranking.
func (p *Profile) HasLLM() bool {
	if p.LLMProvider == "" {
		return false
	}
	return p.LLMProvider == "ollama" || p.LLMAPIKey != ""
}

// conventional API key variables per provider, used when DECADE_* keys are absent.
var providerKeyEnv = map[string]string{
	"openai":      "OPENAI_API_KEY",
	"siliconflow": "SILICONFLOW_API_KEY",
	"gemini":      "GEMINI_API_KEY",
	"deepseek":    "DEEPSEEK_API_KEY",
	"groq":        "GROQ_API_KEY",
}

// FromEnv fills credentials that were not set through the config layer.
// DECADE_* variables win over the provider's conventional variable.
func (p *Profile) FromEnv() {
	getEnvWithFallback := func(key, provider string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		if legacy, ok := providerKeyEnv[provider]; ok {
			return os.Getenv(legacy)
		}
		return ""
	}

	if p.RemoteAPIKey == "" {
		p.RemoteAPIKey = getEnvWithFallback("DECADE_REMOTE_API_KEY", p.RemoteProvider)
	}
	if p.LLMAPIKey == "" {
		p.LLMAPIKey = getEnvWithFallback("DECADE_LLM_API_KEY", p.LLMProvider)
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "decade")
		} else {
			p.Data = "/var/opt/decade"
		}
	}
	if p.Data == "" {
		p.Data = "."
	}
	if _, err := os.Stat(p.Data); os.IsNotExist(err) {
		if err := os.MkdirAll(p.Data, 0770); err != nil {
			slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
			return err
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case "":
		p.Driver = "sqlite"
	case "sqlite", "postgres":
	default:
		return errors.Errorf("unsupported driver %q", p.Driver)
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("decade_%s.db", p.Mode))
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a dsn")
	}

	p.normalizeTunables()
	return nil
}

func (p *Profile) normalizeTunables() {
	if p.LocalProvider == "" {
		p.LocalProvider = "hash"
	}
	if p.LocalProvider == "hash" && p.LocalDimensions <= 0 {
		p.LocalDimensions = 384
	}
	if p.RRFK <= 0 {
		p.RRFK = 60
	}
	if p.CandidateFactor <= 0 {
		p.CandidateFactor = 3
	}
	if p.MinScore < 0 {
		p.MinScore = 0
	}
	if p.MinScore > 1 {
		p.MinScore = 1
	}
	// Batches outside [20,50] either thrash the store or burst the remote API.
	if p.IndexBatchSize < 20 {
		p.IndexBatchSize = 20
	}
	if p.IndexBatchSize > 50 {
		p.IndexBatchSize = 50
	}
	if p.BackendTimeout <= 0 {
		p.BackendTimeout = 8 * time.Second
	}
	if p.QueryTimeout <= 0 {
		p.QueryTimeout = 15 * time.Second
	}
	if p.QueryTimeout < p.BackendTimeout {
		p.QueryTimeout = p.BackendTimeout
	}
	if p.IndexEmbedTimeout <= 0 {
		p.IndexEmbedTimeout = 30 * time.Second
	}
}
