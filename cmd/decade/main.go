package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/decade/internal/profile"
	"github.com/hrygo/decade/internal/version"
	"github.com/hrygo/decade/server"
	"github.com/hrygo/decade/store"
	"github.com/hrygo/decade/store/db"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "decade",
		Short: "Search a personal photo and video archive by meaning, date and place",
		Long: `decade indexes memory records (photos, videos, day summaries) into one or
more embedding backends and answers free-text queries with hybrid scoring,
reciprocal rank fusion and optional LLM reranking.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./decade.yaml)")
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", "database driver: sqlite or postgres")
	flags.String("dsn", "", "database source name")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	for key, flag := range map[string]string{
		"mode":       "mode",
		"data":       "data",
		"driver":     "driver",
		"dsn":        "dsn",
		"log.level":  "log-level",
		"log.format": "log-format",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)
	viper.SetDefault("backends.local.provider", "hash")
	viper.SetDefault("reranker.enabled", true)
	viper.SetDefault("retrieval.min_score", 0.25)
	viper.SetDefault("retrieval.rrf_k", 60)
	viper.SetDefault("retrieval.candidate_factor", 3)
	viper.SetDefault("retrieval.backend_timeout", "8s")
	viper.SetDefault("retrieval.query_timeout", "15s")
	viper.SetDefault("indexer.batch_size", 32)
	viper.SetDefault("indexer.remote_pause", "1s")
	viper.SetDefault("indexer.interval", "2m")
	viper.SetDefault("indexer.embed_timeout", "30s")
	viper.SetDefault("cache.size", 256)
	viper.SetDefault("cache.ttl", "10m")
	viper.SetDefault("api.rate_limit", 10)

	rootCmd.AddCommand(serveCmd, mcpCmd, indexCmd, searchCmd, importCmd, migrateCmd)
}

// initConfig reads .env, the config file and DECADE_* variables.
func initConfig() {
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("decade")
	}

	viper.SetEnvPrefix("decade")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Failed to read config file:", err)
		os.Exit(1)
	}
}

func setupLogger() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		return fmt.Errorf("invalid log level %q", viper.GetString("log.level"))
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch viper.GetString("log.format") {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q, want text or json", viper.GetString("log.format"))
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// loadProfile maps the configuration onto a validated profile.
func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:      viper.GetString("mode"),
		Addr:      viper.GetString("addr"),
		Port:      viper.GetInt("port"),
		Data:      viper.GetString("data"),
		Driver:    viper.GetString("driver"),
		DSN:       viper.GetString("dsn"),
		LogLevel:  viper.GetString("log.level"),
		LogFormat: viper.GetString("log.format"),

		LocalProvider:   viper.GetString("backends.local.provider"),
		LocalModel:      viper.GetString("backends.local.model"),
		LocalDimensions: viper.GetInt("backends.local.dimensions"),
		LocalBaseURL:    viper.GetString("backends.local.base_url"),

		RemoteProvider:   viper.GetString("backends.remote.provider"),
		RemoteModel:      viper.GetString("backends.remote.model"),
		RemoteDimensions: viper.GetInt("backends.remote.dimensions"),
		RemoteAPIKey:     viper.GetString("backends.remote.api_key"),
		RemoteBaseURL:    viper.GetString("backends.remote.base_url"),

		LLMProvider:     viper.GetString("llm.provider"),
		LLMModel:        viper.GetString("llm.model"),
		LLMAPIKey:       viper.GetString("llm.api_key"),
		LLMBaseURL:      viper.GetString("llm.base_url"),
		LLMTemperature:  float32(viper.GetFloat64("llm.temperature")),
		RerankerEnabled: viper.GetBool("reranker.enabled"),

		MinScore:        viper.GetFloat64("retrieval.min_score"),
		RRFK:            viper.GetInt("retrieval.rrf_k"),
		CandidateFactor: viper.GetInt("retrieval.candidate_factor"),
		BackendTimeout:  viper.GetDuration("retrieval.backend_timeout"),
		QueryTimeout:    viper.GetDuration("retrieval.query_timeout"),
		LexiconFile:     viper.GetString("retrieval.lexicon_file"),

		IndexBatchSize:    viper.GetInt("indexer.batch_size"),
		IndexRemotePause:  viper.GetDuration("indexer.remote_pause"),
		IndexInterval:     viper.GetDuration("indexer.interval"),
		IndexEmbedTimeout: viper.GetDuration("indexer.embed_timeout"),

		CacheSize:    viper.GetInt("cache.size"),
		CacheTTL:     viper.GetDuration("cache.ttl"),
		APIRateLimit: viper.GetFloat64("api.rate_limit"),
	}
	p.Version = version.GetCurrentVersion(p.Mode)
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// openStore opens and migrates the database of p.
func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create db driver: %w", err)
	}
	s := store.New(dbDriver, p)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

// newServer builds the profile, the store and the service container.
func newServer(ctx context.Context) (*server.Server, error) {
	p, err := loadProfile()
	if err != nil {
		return nil, err
	}
	s, err := openStore(ctx, p)
	if err != nil {
		return nil, err
	}
	srv, err := server.NewServer(ctx, p, s)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return srv, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
