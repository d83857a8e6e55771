package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/ratelimit"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full generation call.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxBodyBytes caps request bodies. Defaults to 512MB so a full upload
	// batch fits.
	MaxBodyBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// ChatLimiter admits POST /api/chat. Nil disables limiting.
	ChatLimiter *ratelimit.Limiter
	// UploadLimiter admits POST /api/upload. Nil disables limiting.
	UploadLimiter *ratelimit.Limiter
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Answerer runs one question through retrieval and generation.
// *agent.Assistant satisfies it; tests inject a fake.
type Answerer interface {
	Answer(ctx context.Context, req agent.Request) (*agent.Response, error)
}

// Ingester commits uploaded documents. *ingestion.Pipeline satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, docs []ingestion.Document, opts ...ingestion.IngestOption) (*ingestion.Stats, error)
}

// DocumentStore is the part of rag.VectorStore the document routes use.
type DocumentStore interface {
	Stats(ctx context.Context) (rag.Stats, error)
	ChunksByFileName(ctx context.Context, fileName string) ([]rag.Chunk, error)
	DeleteByFileName(ctx context.Context, fileName string) error
	Clear(ctx context.Context) error
}

// Conversation is the process-wide history. *history.Conversation
// satisfies it.
type Conversation interface {
	All() []rag.Message
	Clear(ctx context.Context) error
}

// Services are the collaborators the handlers call into.
type Services struct {
	Assistant Answerer
	Ingester  Ingester
	Store     DocumentStore
	History   Conversation
}

// Server is the HTTP front end of the document assistant.
type Server struct {
	svc        Services
	cfg        *Config
	httpServer *http.Server
	log        *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	metrics *serverMetrics
	started time.Time
}

// uploadRequest is the JSON body for POST /api/upload.
type uploadRequest struct {
	Documents []ingestion.Document `json:"documents"`
}

// uploadResponse is the JSON response for POST /api/upload.
type uploadResponse struct {
	Message string `json:"message"`
	ingestion.Stats
}

// fragmentView is a stored fragment as returned by
// GET /api/documents/{fileName}; embeddings are omitted.
type fragmentView struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	Metadata rag.Metadata `json:"metadata"`
}

// documentResponse is the JSON response for GET /api/documents/{fileName}.
type documentResponse struct {
	FileName  string         `json:"fileName"`
	Fragments []fragmentView `json:"fragments"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	Messages []rag.Message `json:"messages"`
	Count    int           `json:"count"`
}

// messageResponse acknowledges a mutation.
type messageResponse struct {
	Message string `json:"message"`
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	// Error is the failure kind (validation, not_found, ...).
	Error   string     `json:"error"`
	Message string     `json:"message"`
	Field   string     `json:"field,omitempty"`
	Hint    string     `json:"hint,omitempty"`
	ResetAt *time.Time `json:"resetAt,omitempty"`
}
