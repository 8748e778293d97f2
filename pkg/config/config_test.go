package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perbu/trustmed/pkg/embedder"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "TRUSTMED_INDEX_DIR", "TRUSTMED_PROCESSED_DIR",
		"TRUSTMED_EMBEDDER", "TRUSTMED_ADDR", "TRUSTMED_TOP_K", "TRUSTMED_ALLOWED_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trustmed.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout())
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[index]
dir = "/srv/index"

[embedding]
provider = "hash"
dimension = 128
concurrency = 4

[generation]
model = "gpt-4o"
temperature = 0.2

[retrieval]
top_k = 3

[server]
addr = "127.0.0.1:9000"
request_timeout_seconds = 5
allowed_origins = ["https://trustmed.example", "http://localhost:3000"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/index", cfg.Index.Dir)
	assert.Equal(t, "data/processed", cfg.Index.ProcessedDir)
	assert.Equal(t, 128, cfg.Embedding.Dimension)
	assert.Equal(t, 4, cfg.Embedding.Concurrency)
	assert.Equal(t, "gpt-4o", cfg.Generation.Model)
	assert.InDelta(t, 0.2, cfg.Generation.Temperature, 1e-6)
	assert.InDelta(t, 0.95, cfg.Generation.TopP, 1e-6)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout())
	assert.Equal(t, []string{"https://trustmed.example", "http://localhost:3000"}, cfg.Server.AllowedOrigins)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[index]\ndir = \"/from/file\"\n")

	t.Setenv("TRUSTMED_INDEX_DIR", "/from/env")
	t.Setenv("TRUSTMED_EMBEDDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:1234/v1")
	t.Setenv("TRUSTMED_TOP_K", "7")
	t.Setenv("TRUSTMED_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.Index.Dir)
	assert.Equal(t, ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	assert.Equal(t, "http://localhost:1234/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, "http://localhost:1234/v1", cfg.Generation.BaseURL)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "[index\ndir ="))
	assert.Error(t, err)

	t.Setenv("TRUSTMED_TOP_K", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "TRUSTMED_TOP_K")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "unknown provider", mutate: func(c *Config) { c.Embedding.Provider = "bert" }, want: "unknown embedding provider"},
		{name: "openai without key", mutate: func(c *Config) { c.Embedding.Provider = ProviderOpenAI }, want: "OPENAI_API_KEY"},
		{name: "hash without dimension", mutate: func(c *Config) { c.Embedding.Dimension = 0 }, want: "embedding.dimension is required"},
		{name: "negative rate", mutate: func(c *Config) { c.Embedding.RequestsPerSecond = -1 }, want: "embedding.requests_per_second"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Embedding.Concurrency = 0 }, want: "embedding.concurrency"},
		{name: "zero top k", mutate: func(c *Config) { c.Retrieval.TopK = 0 }, want: "retrieval.top_k"},
		{name: "no index dir", mutate: func(c *Config) { c.Index.Dir = "" }, want: "index.dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestNewEmbedder(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Dimension = 64

	emb, err := cfg.NewEmbedder()
	require.NoError(t, err)
	assert.IsType(t, &embedder.HashEmbedder{}, emb)
	assert.Equal(t, 64, emb.Dimension())

	cfg.Embedding.Provider = ProviderOpenAI
	_, err = cfg.NewEmbedder()
	assert.Error(t, err, "missing API key")

	cfg.OpenAIAPIKey = "sk-test"
	emb, err = cfg.NewEmbedder()
	require.NoError(t, err)
	assert.IsType(t, &embedder.OpenAIEmbedder{}, emb)
	assert.Equal(t, 64, emb.Dimension())

	cfg.Embedding.RequestsPerSecond = 5
	emb, err = cfg.NewEmbedder()
	require.NoError(t, err)
	assert.IsType(t, &embedder.RateLimited{}, emb)
	assert.Equal(t, "openai-text-embedding-3-small-64", emb.ModelInfo())
}

func TestNewCompleter(t *testing.T) {
	cfg := Default()
	_, err := cfg.NewCompleter()
	assert.Error(t, err)

	cfg.OpenAIAPIKey = "sk-test"
	c, err := cfg.NewCompleter()
	require.NoError(t, err)
	assert.Equal(t, cfg.Generation.Model, c.Model())

	opts := cfg.CompletionOptions()
	assert.Equal(t, 1500, opts.MaxTokens)
}
