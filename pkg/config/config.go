// Package config loads runtime settings from an optional TOML file, a .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/perbu/trustmed/pkg/answer"
	"github.com/perbu/trustmed/pkg/embedder"
	"github.com/perbu/trustmed/pkg/index"
)

// Embedding providers.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
)

// Config holds all runtime settings.
type Config struct {
	Index      IndexConfig      `toml:"index"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Generation GenerationConfig `toml:"generation"`
	Retrieval  RetrievalConfig  `toml:"retrieval"`
	Server     ServerConfig     `toml:"server"`

	// OpenAIAPIKey is only read from the environment.
	OpenAIAPIKey string `toml:"-"`
}

// IndexConfig locates the corpus and the persisted artifacts.
type IndexConfig struct {
	Dir          string `toml:"dir"`
	ProcessedDir string `toml:"processed_dir"`
}

// EmbeddingConfig selects the embedding function shared by build and query.
type EmbeddingConfig struct {
	Provider    string `toml:"provider"`
	Model       string `toml:"model"`
	Dimension   int    `toml:"dimension"`
	BaseURL     string `toml:"base_url"`
	Concurrency int    `toml:"concurrency"`

	// RequestsPerSecond throttles calls to a remote embedding API. Zero
	// disables throttling.
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// GenerationConfig configures the answer model.
type GenerationConfig struct {
	Model       string  `toml:"model"`
	BaseURL     string  `toml:"base_url"`
	Temperature float32 `toml:"temperature"`
	TopP        float32 `toml:"top_p"`
	MaxTokens   int     `toml:"max_tokens"`
}

// RetrievalConfig configures query-time retrieval.
type RetrievalConfig struct {
	TopK int `toml:"top_k"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr                  string   `toml:"addr"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
	AllowedOrigins        []string `toml:"allowed_origins"`
}

// RequestTimeout returns the per-request timeout.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Index: IndexConfig{
			Dir:          "data/embeddings",
			ProcessedDir: "data/processed",
		},
		Embedding: EmbeddingConfig{
			Provider:    ProviderHash,
			Model:       embedder.DefaultOpenAIModel,
			Dimension:   embedder.DefaultDimension,
			Concurrency: index.DefaultConcurrency,
		},
		Generation: GenerationConfig{
			Model:       answer.DefaultModel,
			Temperature: answer.DefaultTemperature,
			TopP:        answer.DefaultTopP,
			MaxTokens:   answer.DefaultMaxTokens,
		},
		Retrieval: RetrievalConfig{
			TopK: answer.DefaultK,
		},
		Server: ServerConfig{
			Addr:                  ":8000",
			RequestTimeoutSeconds: 30,
			AllowedOrigins:        []string{"*"},
		},
	}
}

// Load builds the configuration. Values in a .env file in the working
// directory are exported first (existing environment variables win), then
// the TOML file at path is applied over the defaults, then environment
// overrides. An empty path skips the file; a missing file is an error.
func Load(path string) (Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
		c.Generation.BaseURL = v
	}
	if v := os.Getenv("TRUSTMED_INDEX_DIR"); v != "" {
		c.Index.Dir = v
	}
	if v := os.Getenv("TRUSTMED_PROCESSED_DIR"); v != "" {
		c.Index.ProcessedDir = v
	}
	if v := os.Getenv("TRUSTMED_EMBEDDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("TRUSTMED_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TRUSTMED_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("TRUSTMED_TOP_K"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: TRUSTMED_TOP_K: %w", err)
		}
		c.Retrieval.TopK = k
	}
	return nil
}

// Validate checks settings that apply to every command. Requirements of the
// generation model are checked by the commands that use it.
func (c Config) Validate() error {
	var errs []error

	switch c.Embedding.Provider {
	case ProviderHash:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai embedder"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must not be negative, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.Provider == ProviderHash && c.Embedding.Dimension == 0 {
		errs = append(errs, errors.New("embedding.dimension is required for the hash embedder"))
	}
	if c.Embedding.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("embedding.requests_per_second must not be negative, got %v", c.Embedding.RequestsPerSecond))
	}
	if c.Embedding.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("embedding.concurrency must be at least 1, got %d", c.Embedding.Concurrency))
	}
	if c.Retrieval.TopK < 1 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK))
	}
	if c.Index.Dir == "" {
		errs = append(errs, errors.New("index.dir is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// NewEmbedder returns the configured embedding function.
func (c Config) NewEmbedder() (embedder.Embedder, error) {
	switch c.Embedding.Provider {
	case ProviderHash:
		return embedder.NewHashEmbedder(c.Embedding.Dimension), nil
	case ProviderOpenAI:
		emb, err := embedder.NewOpenAIEmbedder(embedder.OpenAIConfig{
			APIKey:     c.OpenAIAPIKey,
			BaseURL:    c.Embedding.BaseURL,
			Model:      c.Embedding.Model,
			Dimensions: c.Embedding.Dimension,
		})
		if err != nil {
			return nil, err
		}
		if c.Embedding.RequestsPerSecond > 0 {
			return embedder.NewRateLimited(emb, embedder.RateLimitConfig{
				RequestsPerSecond: c.Embedding.RequestsPerSecond,
				BurstSize:         c.Embedding.Concurrency,
			}), nil
		}
		return emb, nil
	default:
		return nil, fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
}

// NewCompleter returns the configured answer model.
func (c Config) NewCompleter() (*answer.OpenAICompleter, error) {
	return answer.NewOpenAICompleter(answer.OpenAIConfig{
		APIKey:  c.OpenAIAPIKey,
		BaseURL: c.Generation.BaseURL,
		Model:   c.Generation.Model,
	})
}

// CompletionOptions returns the configured sampling settings.
func (c Config) CompletionOptions() answer.CompletionOptions {
	return answer.CompletionOptions{
		Temperature: c.Generation.Temperature,
		TopP:        c.Generation.TopP,
		MaxTokens:   c.Generation.MaxTokens,
	}
}
