//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// TestOllamaEmbedder_Integration calls a locally running Ollama instance.
//
// Prerequisites:
//
//	ollama pull nomic-embed-text
//	ollama serve
//
// Run with:
//
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}

	emb := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	texts := []string{
		"The quarterly report covers revenue growth in the retail segment.",
		"The quarterly report covers revenue growth in the retail segment.",
		"Photosynthesis converts light into chemical energy in plants.",
	}

	embeddings, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure Ollama is running and %q is pulled:\n  ollama pull %s", err, model, model)
	}
	if len(embeddings) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(embeddings))
	}

	same, err := rag.CosineSimilarity(embeddings[0], embeddings[1])
	if err != nil {
		t.Fatalf("similarity: %v", err)
	}
	other, err := rag.CosineSimilarity(embeddings[0], embeddings[2])
	if err != nil {
		t.Fatalf("similarity: %v", err)
	}
	if same < 0.99 {
		t.Errorf("identical texts should embed identically, similarity=%.3f", same)
	}
	if other >= same {
		t.Errorf("unrelated text scored %.3f, not below identical %.3f", other, same)
	}

	t.Logf("model=%s dim=%d (set EMBEDDING_DIMENSIONS=%d for the Qdrant collection)", model, len(embeddings[0]), len(embeddings[0]))
}
