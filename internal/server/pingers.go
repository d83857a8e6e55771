package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docqa-go/internal/rag"
)

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// StorePinger reports a vector store ready when it can compute its stats,
// which for the JSON backend means the snapshot is readable and parses.
type StorePinger struct {
	store rag.VectorStore
}

// NewStorePinger constructs a StorePinger.
func NewStorePinger(store rag.VectorStore) *StorePinger {
	return &StorePinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "vectorstore" }

// Ping reads the store statistics.
func (p *StorePinger) Ping(ctx context.Context) error {
	if _, err := p.store.Stats(ctx); err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}
	return nil
}

// HTTPPinger probes an HTTP endpoint that costs nothing to call, such as
// Ollama's GET /api/tags, and treats any 2xx as healthy.
type HTTPPinger struct {
	name   string
	url    string
	client *http.Client
}

// NewOllamaPinger probes the Ollama server at host.
func NewOllamaPinger(host string) *HTTPPinger {
	return &HTTPPinger{
		name:   "ollama",
		url:    strings.TrimRight(host, "/") + "/api/tags",
		client: http.DefaultClient,
	}
}

// Name returns the dependency label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues a GET to the probe URL.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
