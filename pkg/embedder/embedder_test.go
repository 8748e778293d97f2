package embedder

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func sqDist(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Diabetes causes high blood sugar")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Diabetes causes high blood sugar")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, norm(a), 1e-6)
}

func TestHashEmbedder_CaseAndPunctuationInsensitive(t *testing.T) {
	e := NewHashEmbedder(DefaultDimension)
	ctx := context.Background()

	a, err := e.Embed(ctx, "High blood sugar!")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "high, BLOOD sugar")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestHashEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewHashEmbedder(8)

	v, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}

func TestHashEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := NewHashEmbedder(DefaultDimension)
	ctx := context.Background()

	q, _ := e.Embed(ctx, "what causes high blood sugar")
	near, _ := e.Embed(ctx, "diabetes causes high blood sugar")
	far, _ := e.Embed(ctx, "symptoms include fatigue and thirst")

	assert.Less(t, sqDist(q, near), sqDist(q, far))
}

func TestHashEmbedder_Defaults(t *testing.T) {
	e := NewHashEmbedder(0)
	assert.Equal(t, DefaultDimension, e.Dimension())
	assert.Equal(t, "hash-embedder-v1-384", e.ModelInfo())
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"type", "2", "diabetes", "a1c", "test"}, Tokenize("Type 2 diabetes: A1C-test."))
	assert.Empty(t, Tokenize("  ... "))
}

type failingEmbedder struct {
	HashEmbedder
	failOn string
	calls  atomic.Int32
}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if text == f.failOn {
		return nil, errors.New("boom")
	}
	return f.HashEmbedder.Embed(ctx, text)
}

func TestEmbedAll_PreservesOrder(t *testing.T) {
	e := NewHashEmbedder(32)
	texts := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}

	var last int
	got, err := EmbedAll(context.Background(), e, texts, 3, func(done, total int) {
		assert.Equal(t, len(texts), total)
		last = done
	})
	require.NoError(t, err)
	require.Len(t, got, len(texts))
	assert.Equal(t, len(texts), last)

	for i, text := range texts {
		want, _ := e.Embed(context.Background(), text)
		assert.Equal(t, want, got[i], "row %d", i)
	}
}

func TestEmbedAll_PropagatesError(t *testing.T) {
	e := &failingEmbedder{HashEmbedder: *NewHashEmbedder(8), failOn: "bad"}

	_, err := EmbedAll(context.Background(), e, []string{"ok", "bad", "ok"}, 1, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "text 1"))
}

func TestEmbedAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := &failingEmbedder{HashEmbedder: *NewHashEmbedder(8)}
	_, err := EmbedAll(ctx, e, []string{"a", "b"}, 2, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, e.calls.Load())
}
