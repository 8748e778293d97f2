// Package index builds the persisted vector index from a list of chunks.
//
// A build embeds every chunk in input order, constructs an exact flat L2
// index over the embeddings and writes three artifacts: the index, the raw
// embedding matrix and the chunk metadata. Row i of the index and the
// matrix always belongs to element i of the metadata.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/perbu/trustmed/pkg/embedder"
	"github.com/perbu/trustmed/pkg/trustmed"
)

// DefaultConcurrency limits concurrent embedding calls during a build.
const DefaultConcurrency = 10

const progressEvery = 50

// Artifacts is the result of a build.
type Artifacts struct {
	Index     *trustmed.FlatIndex
	Chunks    []trustmed.Chunk
	ModelInfo string
}

type buildOptions struct {
	concurrency int
	logger      *slog.Logger
}

// Option configures Build.
type Option func(*buildOptions)

// WithConcurrency sets the number of concurrent embedding calls.
func WithConcurrency(n int) Option {
	return func(o *buildOptions) { o.concurrency = n }
}

// WithLogger sets the logger used for progress reporting.
func WithLogger(l *slog.Logger) Option {
	return func(o *buildOptions) { o.logger = l }
}

// Build embeds chunks with emb and returns the index and aligned metadata.
// Empty chunk text is embedded as given. Failures wrap trustmed.ErrIngestion.
func Build(ctx context.Context, chunks []trustmed.Chunk, emb embedder.Embedder, opts ...Option) (*Artifacts, error) {
	o := buildOptions{concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to index", trustmed.ErrIngestion)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		if c.Text == "" {
			o.logger.Warn("indexing chunk with empty text", "chunk_id", c.ChunkID, "row", i)
		}
	}

	o.logger.Info("embedding chunks",
		"chunks", len(chunks),
		"model", emb.ModelInfo(),
		"concurrency", o.concurrency)

	vectors, err := embedder.EmbedAll(ctx, emb, texts, o.concurrency, func(done, total int) {
		if done%progressEvery == 0 || done == total {
			o.logger.Info("embedding progress", "done", done, "total", total)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embed chunks: %w", trustmed.ErrIngestion, err)
	}

	if err := checkVectors(vectors); err != nil {
		return nil, fmt.Errorf("%w: %w", trustmed.ErrIngestion, err)
	}

	ix, err := trustmed.NewFlatIndex(vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", trustmed.ErrIngestion, err)
	}

	o.logger.Info("index built", "rows", ix.Len(), "dimension", ix.Dimension())

	return &Artifacts{
		Index:     ix,
		Chunks:    slices.Clone(chunks),
		ModelInfo: emb.ModelInfo(),
	}, nil
}

// checkVectors rejects embeddings whose dimension differs from the first
// row's, zero-length embeddings and non-finite values.
func checkVectors(vectors [][]float32) error {
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("chunk %d: empty embedding", i)
		}
		if len(v) != dim {
			return fmt.Errorf("chunk %d: embedding dimension %d, want %d", i, len(v), dim)
		}
		for _, x := range v {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return fmt.Errorf("chunk %d: non-finite embedding value", i)
			}
		}
	}
	return nil
}
