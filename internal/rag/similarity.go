package rag

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrDimensionMismatch is returned when two vectors of different lengths are
// compared.
var ErrDimensionMismatch = errors.New("rag: vector dimension mismatch")

// CosineSimilarity returns dot(a,b) / (|a|*|b|). A zero-length vector has no
// direction and scores 0 against everything.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// rankBySimilarity scores every chunk against query and returns the top k,
// highest first. The sort is stable so equal scores keep the order of chunks.
func rankBySimilarity(chunks []Chunk, query []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 || len(chunks) == 0 {
		return []ScoredChunk{}, nil
	}

	scored := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		sim, err := CosineSimilarity(query, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		scored = append(scored, ScoredChunk{Chunk: c, Similarity: sim, Scored: true})
	}

	slices.SortStableFunc(scored, func(a, b ScoredChunk) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
