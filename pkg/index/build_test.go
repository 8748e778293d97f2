package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perbu/trustmed/pkg/embedder"
	"github.com/perbu/trustmed/pkg/trustmed"
)

func testChunks() []trustmed.Chunk {
	return []trustmed.Chunk{
		{Text: "diabetes causes high blood sugar", Source: "mayo_t2dm", SourceType: trustmed.SourceStructured, Section: "Causes", Subsection: "Overview", ChunkID: "mayo_t2dm_Causes_0"},
		{Text: "symptoms include fatigue and thirst", Source: "nih_t2dm", SourceType: trustmed.SourceStructured, Section: "Symptoms", Subsection: "Common", ChunkID: "nih_t2dm_Symptoms_0"},
		{Text: "treatment involves diet and medication", Source: "forums_t2dm", SourceType: trustmed.SourceForum, Section: "How is it treated?", ChunkID: "forums_t2dm_How is it treated?"},
	}
}

// fixedEmbedder returns a preset vector per text.
type fixedEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[text], nil
}

func (f *fixedEmbedder) Dimension() int    { return 2 }
func (f *fixedEmbedder) ModelInfo() string { return "fixed" }

func TestBuild(t *testing.T) {
	chunks := testChunks()
	emb := embedder.NewHashEmbedder(64)

	a, err := Build(context.Background(), chunks, emb, WithConcurrency(2))
	require.NoError(t, err)

	assert.Equal(t, len(chunks), a.Index.Len())
	assert.Equal(t, 64, a.Index.Dimension())
	assert.Equal(t, chunks, a.Chunks)
	assert.Equal(t, emb.ModelInfo(), a.ModelInfo)

	for i, c := range chunks {
		want, _ := emb.Embed(context.Background(), c.Text)
		assert.Equal(t, want, a.Index.Vectors()[i], "row %d", i)
	}
}

func TestBuild_DoesNotAliasInput(t *testing.T) {
	chunks := testChunks()
	a, err := Build(context.Background(), chunks, embedder.NewHashEmbedder(16))
	require.NoError(t, err)

	chunks[0].Text = "changed"
	assert.Equal(t, "diabetes causes high blood sugar", a.Chunks[0].Text)
}

func TestBuild_EmptyTextIsIndexed(t *testing.T) {
	chunks := []trustmed.Chunk{{Text: "", Source: "s", ChunkID: "s_0"}, {Text: "blood sugar", Source: "s", ChunkID: "s_1"}}

	a, err := Build(context.Background(), chunks, embedder.NewHashEmbedder(16))
	require.NoError(t, err)
	assert.Equal(t, 2, a.Index.Len())
}

func TestBuild_Errors(t *testing.T) {
	chunks := []trustmed.Chunk{{Text: "a"}, {Text: "b"}}

	tests := []struct {
		name   string
		chunks []trustmed.Chunk
		emb    embedder.Embedder
	}{
		{
			name:   "no chunks",
			chunks: nil,
			emb:    embedder.NewHashEmbedder(8),
		},
		{
			name:   "embedding failure",
			chunks: chunks,
			emb:    &fixedEmbedder{err: errors.New("model unavailable")},
		},
		{
			name:   "inconsistent dimension",
			chunks: chunks,
			emb:    &fixedEmbedder{vectors: map[string][]float32{"a": {1, 0}, "b": {1, 0, 0}}},
		},
		{
			name:   "zero-length embedding",
			chunks: chunks,
			emb:    &fixedEmbedder{vectors: map[string][]float32{"a": {}, "b": {}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(context.Background(), tt.chunks, tt.emb, WithConcurrency(1))
			require.Error(t, err)
			assert.ErrorIs(t, err, trustmed.ErrIngestion)
		})
	}
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, testChunks(), embedder.NewHashEmbedder(8))
	assert.ErrorIs(t, err, trustmed.ErrIngestion)
	assert.ErrorIs(t, err, context.Canceled)
}
