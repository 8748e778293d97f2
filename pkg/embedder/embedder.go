package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/errgroup"
)

// Embedder turns text into a fixed-length vector. The same Embedder (same
// ModelInfo) must be used for indexed chunks and for queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ModelInfo() string
}

// DefaultDimension matches the sentence-embedding size the corpus was
// originally built with.
const DefaultDimension = 384

// HashEmbedder is a local, deterministic bag-of-words embedder. Each
// lowercased word is hashed into one of dim buckets and the counts are L2
// normalized, so texts that share words are close in L2 distance. It needs
// no network and no model files.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hashing embedder with the given dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashEmbedder{dim: dimension}
}

// Embed generates the embedding for text. Text without any words embeds to
// the zero vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, word := range Tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%uint32(e.dim)]++
	}
	l2normalize(vec)
	return vec, nil
}

// Dimension returns the embedding dimension
func (e *HashEmbedder) Dimension() int {
	return e.dim
}

// ModelInfo returns model information
func (e *HashEmbedder) ModelInfo() string {
	return fmt.Sprintf("hash-embedder-v1-%d", e.dim)
}

// Tokenize splits text into lowercase words made of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// EmbedAll embeds texts with at most concurrency calls in flight. Result i
// always belongs to texts[i]. progressFn, if set, is called with
// (completed, total) after each embedding. The first error cancels the rest.
func EmbedAll(ctx context.Context, e Embedder, texts []string, concurrency int, progressFn func(int, int)) ([][]float32, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	embeddings := make([][]float32, len(texts))

	var mu sync.Mutex
	completed := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range texts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			vec, err := e.Embed(ctx, texts[i])
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			embeddings[i] = vec

			if progressFn != nil {
				mu.Lock()
				completed++
				progressFn(completed, len(texts))
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// l2normalize normalizes a vector to unit length
func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
