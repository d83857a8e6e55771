// Package rag defines the data types and interfaces of the retrieval
// pipeline (fragments, vector storage, embedding, retrieval) together with
// the two vector store backends: a JSON snapshot scanned in process and a
// Qdrant collection searched remotely. The orchestration layer depends only
// on the interfaces, so either backend can be selected at construction time.
package rag

import (
	"context"
	"fmt"
	"time"
)

// Metadata describes where a fragment came from.
type Metadata struct {
	// FileName is the sanitized name of the source document.
	FileName string `json:"fileName"`

	// ChunkIndex is the fragment's position within its file, starting at 0.
	ChunkIndex int `json:"chunkIndex"`

	// UploadDate is when the file was ingested. All fragments of one upload
	// share it.
	UploadDate time.Time `json:"uploadDate"`

	// FileType is the source extension without the dot (txt, pdf, ...).
	FileType string `json:"fileType"`
}

// Chunk is a stored fragment: a bounded slice of a source document with its
// embedding. Chunks are never mutated after ingestion.
type Chunk struct {
	// ID is globally unique.
	ID string `json:"id"`

	// Text is the fragment content.
	Text string `json:"text"`

	// Embedding has the same length for every chunk in a store.
	Embedding []float32 `json:"embedding"`

	// Metadata records the fragment's origin.
	Metadata Metadata `json:"metadata"`
}

// ScoredChunk is a search hit.
type ScoredChunk struct {
	Chunk Chunk

	// Similarity is higher-is-closer, cosine in [-1, 1] for both backends.
	Similarity float64

	// Scored is false when the backend could not express the hit as a
	// similarity.
	Scored bool
}

// FormatSimilarity renders the score with three decimals, or "N/A".
func (s ScoredChunk) FormatSimilarity() string {
	if !s.Scored {
		return "N/A"
	}
	return fmt.Sprintf("%.3f", s.Similarity)
}

// Stats summarises store contents.
type Stats struct {
	TotalChunks int `json:"totalChunks"`
	UniqueFiles int `json:"uniqueFiles"`
}

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a question asked by the user.
	RoleUser Role = "user"
	// RoleAssistant is an answer produced by the model.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// VectorStore persists chunks and answers nearest-neighbour queries.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// AddChunks appends chunks to the durable set. It returns only after the
	// chunks are persisted.
	AddChunks(ctx context.Context, chunks []Chunk) error

	// AllChunks returns every stored chunk, read from durable storage at call
	// time.
	AllChunks(ctx context.Context) ([]Chunk, error)

	// ChunksByFileName returns the chunks of one file in chunk order.
	ChunksByFileName(ctx context.Context, fileName string) ([]Chunk, error)

	// DeleteByFileName removes every chunk of fileName. Missing files are a
	// no-op.
	DeleteByFileName(ctx context.Context, fileName string) error

	// ReplaceFiles swaps every chunk of fileNames for chunks. The old chunks
	// are only removed once the new ones are stored; on failure the old
	// chunks remain.
	ReplaceFiles(ctx context.Context, fileNames []string, chunks []Chunk) error

	// Clear removes all chunks.
	Clear(ctx context.Context) error

	// Stats reports the chunk count and the number of distinct file names.
	Stats(ctx context.Context) (Stats, error)

	// FindMostSimilar returns at most k chunks ordered by descending
	// similarity to query, ties in insertion order. A query whose length
	// differs from the stored embeddings fails with ErrDimensionMismatch.
	FindMostSimilar(ctx context.Context, query []float32, k int) ([]ScoredChunk, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever fetches the chunks most relevant to a natural-language query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error)
}
