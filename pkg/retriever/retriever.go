// Package retriever serves k-nearest-neighbour queries over a persisted
// index. A Retriever is loaded once and is read-only afterwards, so a single
// instance can be shared by any number of concurrent callers.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/perbu/trustmed/pkg/embedder"
	"github.com/perbu/trustmed/pkg/index"
	"github.com/perbu/trustmed/pkg/trustmed"
)

// Retriever answers "which k chunks are closest to this query".
type Retriever struct {
	index  *trustmed.FlatIndex
	chunks []trustmed.Chunk
	emb    embedder.Embedder
	model  string
	logger *slog.Logger
}

type options struct {
	logger *slog.Logger
}

// Option configures a Retriever.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Open loads the artifacts in dir and returns a ready Retriever. emb must be
// the embedder the index was built with. Failures wrap trustmed.ErrLoad.
func Open(dir string, emb embedder.Embedder, opts ...Option) (*Retriever, error) {
	a, err := index.Load(dir)
	if err != nil {
		return nil, err
	}
	return New(a, emb, opts...)
}

// New returns a Retriever over already loaded artifacts after checking that
// metadata, index rows and the query embedder agree.
func New(a *index.Artifacts, emb embedder.Embedder, opts ...Option) (*Retriever, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	if a == nil || a.Index == nil {
		return nil, fmt.Errorf("%w: no index", trustmed.ErrLoad)
	}
	if len(a.Chunks) != a.Index.Len() {
		return nil, fmt.Errorf("%w: metadata has %d entries, index has %d rows", trustmed.ErrLoad, len(a.Chunks), a.Index.Len())
	}
	if a.ModelInfo != "" && a.ModelInfo != emb.ModelInfo() {
		return nil, fmt.Errorf("%w: index built with %q, query embedder is %q", trustmed.ErrLoad, a.ModelInfo, emb.ModelInfo())
	}
	if emb.Dimension() != a.Index.Dimension() {
		return nil, fmt.Errorf("%w: index dimension %d, query embedder dimension %d", trustmed.ErrLoad, a.Index.Dimension(), emb.Dimension())
	}

	o.logger.Info("retriever ready",
		"chunks", a.Index.Len(),
		"dimension", a.Index.Dimension(),
		"model", a.ModelInfo)

	return &Retriever{
		index:  a.Index,
		chunks: a.Chunks,
		emb:    emb,
		model:  a.ModelInfo,
		logger: o.logger,
	}, nil
}

// Retrieve embeds query and returns the min(k, Size()) closest chunks,
// ascending by squared L2 distance with ties in corpus order. Rank 1 is the
// closest. Failures wrap trustmed.ErrQuery.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]trustmed.RankedChunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: %w (got %d)", trustmed.ErrQuery, trustmed.ErrInvalidK, k)
	}

	vec, err := r.emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", trustmed.ErrQuery, err)
	}

	neighbors, err := r.index.Search(vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", trustmed.ErrQuery, err)
	}

	results := make([]trustmed.RankedChunk, len(neighbors))
	for i, n := range neighbors {
		results[i] = trustmed.Rank(i+1, n.Row, r.chunks[n.Row], n.Distance)
	}

	r.logger.Debug("retrieved", "query", query, "k", k, "results", len(results))
	return results, nil
}

// Size returns the number of indexed chunks.
func (r *Retriever) Size() int { return r.index.Len() }

// Dimension returns the embedding dimension.
func (r *Retriever) Dimension() int { return r.index.Dimension() }

// ModelInfo returns the embedding model the index was built with.
func (r *Retriever) ModelInfo() string { return r.model }

// Loader opens a Retriever at most once per process. Concurrent callers of
// Ready block until the single load completes and all observe its result,
// including a load error.
type Loader struct {
	once sync.Once
	open func() (*Retriever, error)
	r    *Retriever
	err  error
}

// NewLoader returns a Loader that opens dir with emb on first use.
func NewLoader(dir string, emb embedder.Embedder, opts ...Option) *Loader {
	return &Loader{
		open: func() (*Retriever, error) {
			return Open(dir, emb, opts...)
		},
	}
}

// Ready returns the loaded Retriever, loading it on the first call.
func (l *Loader) Ready() (*Retriever, error) {
	l.once.Do(func() {
		l.r, l.err = l.open()
	})
	return l.r, l.err
}
