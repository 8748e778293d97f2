package embedder

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration for an embedding API.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size. Zero means one request.
	BurstSize int
}

// RateLimited wraps an Embedder so that calls to Embed never exceed a
// sustained request rate. It reports the wrapped embedder's identity, so an
// index built through it can be queried without it.
type RateLimited struct {
	Embedder
	limiter *rate.Limiter
}

// NewRateLimited wraps e with a token bucket limiter.
func NewRateLimited(e Embedder, cfg RateLimitConfig) *RateLimited {
	burst := max(cfg.BurstSize, 1)
	return &RateLimited{
		Embedder: e,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
	}
}

// Embed waits for the rate limiter, then embeds text.
func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.Embedder.Embed(ctx, text)
}
