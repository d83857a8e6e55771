package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder returns a fixed vector or error for every text.
type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func TestNewRetriever_NilDeps(t *testing.T) {
	t.Parallel()

	_, err := NewRetriever(nil, newTestJSONStore(t), 5)
	assert.Error(t, err)
	_, err = NewRetriever(&stubEmbedder{}, nil, 5)
	assert.Error(t, err)
}

func TestDefaultRetriever_Retrieve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newTestJSONStore(t)
	require.NoError(t, store.AddChunks(ctx, []Chunk{
		testChunk("x", "x.txt", 0, 1, 0),
		testChunk("y", "y.txt", 0, 0, 1),
	}))

	r, err := NewRetriever(&stubEmbedder{vec: []float32{0, 1}}, store, 1)
	require.NoError(t, err)

	hits, err := r.Retrieve(ctx, "anything", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "y", hits[0].Chunk.ID)
}

func TestDefaultRetriever_EmbedErrorIsWrapped(t *testing.T) {
	t.Parallel()

	cause := errors.New("ollama down")
	r, err := NewRetriever(&stubEmbedder{err: cause}, newTestJSONStore(t), 5)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "q", 5)
	assert.ErrorIs(t, err, cause)
}

func TestEmbedOne_RejectsEmptyVector(t *testing.T) {
	t.Parallel()

	_, err := EmbedOne(context.Background(), &stubEmbedder{vec: []float32{}}, "q")
	assert.Error(t, err)
}
