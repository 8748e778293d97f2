package embedder

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when OpenAIConfig.Model is empty.
const DefaultOpenAIModel = "text-embedding-3-small"

// Model dimensions for OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	// APIKey is required.
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string

	// Model defaults to text-embedding-3-small.
	Model string

	// Dimensions requests shortened vectors from text-embedding-3-* models.
	// Zero keeps the model's native size, which must be known for the model.
	// Responses of any other length are rejected.
	Dimensions int
}

// OpenAIEmbedder uses OpenAI API for embeddings
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dim       int
	shortened bool
}

// NewOpenAIEmbedder creates an OpenAI embedder
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embedder: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	dim := cfg.Dimensions
	shortened := dim > 0
	if dim == 0 {
		var ok bool
		dim, ok = modelDimensions[cfg.Model]
		if !ok {
			return nil, fmt.Errorf("openai embedder: unknown dimension for model %q, set Dimensions", cfg.Model)
		}
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dim:       dim,
		shortened: shortened,
	}, nil
}

// Embed generates an embedding for a single text. Empty text embeds to the
// zero vector without calling the API, which rejects empty input.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) == 0 {
		return make([]float32, e.dim), nil
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	}
	if e.shortened {
		req.Dimensions = e.dim
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("openai embedder: no embedding data returned from API")
	}
	if got := len(resp.Data[0].Embedding); got != e.dim {
		return nil, fmt.Errorf("openai embedder: model %s returned %d dimensions, want %d", e.model, got, e.dim)
	}

	v := make([]float32, len(resp.Data[0].Embedding))
	copy(v, resp.Data[0].Embedding)

	// L2 normalize so squared L2 distance ranks like cosine similarity
	l2normalize(v)

	return v, nil
}

// Dimension returns the embedding dimension
func (e *OpenAIEmbedder) Dimension() int {
	return e.dim
}

// ModelInfo returns model information
func (e *OpenAIEmbedder) ModelInfo() string {
	return fmt.Sprintf("openai-%s-%d", e.model, e.dim)
}
