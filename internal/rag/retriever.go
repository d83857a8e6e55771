package rag

import (
	"context"
	"fmt"
)

// DefaultTopK is used when neither the constructor nor the caller names a
// result count.
const DefaultTopK = 5

// DefaultRetriever answers Retrieve by embedding the question and asking the
// store for its nearest fragments.
type DefaultRetriever struct {
	embedder Embedder
	store    VectorStore
	topK     int
}

// NewRetriever returns a retriever over store. topK <= 0 selects DefaultTopK.
func NewRetriever(embedder Embedder, store VectorStore, topK int) (*DefaultRetriever, error) {
	switch {
	case embedder == nil:
		return nil, fmt.Errorf("rag: retriever needs an embedder")
	case store == nil:
		return nil, fmt.Errorf("rag: retriever needs a vector store")
	case topK <= 0:
		topK = DefaultTopK
	}
	return &DefaultRetriever{embedder: embedder, store: store, topK: topK}, nil
}

// Retrieve returns at most topK fragments ranked by similarity to query;
// topK <= 0 uses the constructor's value. Embedder failures keep their
// apperr kind through the wrap.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = r.topK
	}

	vec, err := EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed question: %w", err)
	}
	hits, err := r.store.FindMostSimilar(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("rag: similarity search: %w", err)
	}
	return hits, nil
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for one text", len(vecs))
	}
	if len(vecs[0]) == 0 {
		return nil, fmt.Errorf("rag: embedder returned an empty vector")
	}
	return vecs[0], nil
}
