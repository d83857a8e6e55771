// Package ingestion implements the document ingestion pipeline. It validates
// a batch of already-extracted documents, chunks each one, embeds every
// fragment and commits the whole batch to the vector store in one write.
// This pipeline backs the upload endpoint, `docqa ingest` and the watcher.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docqa-go/internal/apperr"
	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Defaults applied by NewPipeline.
const (
	DefaultMaxFiles    = 10
	DefaultMaxFileSize = 50 * 1024 * 1024
	DefaultConcurrency = 4
)

// Document is one source document whose text has already been extracted.
type Document struct {
	// FileName is the client-supplied name; it is sanitized before use.
	FileName string `json:"fileName"`
	// Content is the document text.
	Content string `json:"content"`
}

// Stats reports the outcome of an ingestion batch.
type Stats struct {
	// ChunksCreated is the number of fragments added by this batch.
	ChunksCreated int `json:"chunksCreated"`
	// TotalChunks is the store-wide fragment count after the batch.
	TotalChunks int `json:"totalChunks"`
	// TotalFiles is the store-wide distinct file count after the batch.
	TotalFiles int `json:"totalFiles"`
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// Chunker splits normalized text into fragments. Defaults to the
	// sentence policy with chunker.DefaultMaxSize.
	Chunker chunker.Chunker

	// MaxFiles caps documents per batch. Defaults to 10.
	MaxFiles int
	// MaxFileSize caps the content size of one document in bytes.
	// Defaults to 50MB.
	MaxFileSize int64
	// AllowedExtensions restricts document names. Defaults to
	// DefaultAllowedExtensions.
	AllowedExtensions []string

	// Concurrency bounds in-flight embedding calls. Defaults to 4.
	Concurrency int

	// HTTPTimeout is the timeout for FetchURL. Defaults to 30s.
	HTTPTimeout time.Duration
	// UserAgent is sent with FetchURL requests.
	UserAgent string

	// Logger receives progress records. Defaults to slog.Default().
	Logger *slog.Logger
}

// Pipeline orchestrates the validate → chunk → embed → commit flow.
type Pipeline struct {
	embedder rag.Embedder
	store    rag.VectorStore
	cfg      *Config
	log      *slog.Logger

	// httpClient is used by FetchURL.
	httpClient *http.Client

	// now is replaceable in tests.
	now func() time.Time
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Chunker == nil {
		cfg.Chunker = chunker.NewSentenceChunker(chunker.DefaultMaxSize)
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = DefaultMaxFiles
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = DefaultAllowedExtensions
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "docqa-go/1.0 (document ingestion)"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		embedder:   embedder,
		store:      store,
		cfg:        cfg,
		log:        log.With(slog.String("component", "ingestion")),
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		now:        time.Now,
	}, nil
}

// IngestOption adjusts a single Ingest call.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	replace bool
}

// WithReplace swaps each document's existing fragments for the new ones in
// one store call, so re-ingesting a file does not duplicate it and a failed
// commit keeps the old fragments.
func WithReplace() IngestOption {
	return func(o *ingestOptions) { o.replace = true }
}

// Ingest validates, chunks, embeds and stores docs.
//
// The batch is all-or-nothing: every document is validated before any
// embedding call, and fragments are committed with a single store call only
// after every document has been embedded. Any failure leaves the store
// untouched.
func (p *Pipeline) Ingest(ctx context.Context, docs []Document, opts ...IngestOption) (*Stats, error) {
	var o ingestOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := p.validateBatch(docs); err != nil {
		return nil, err
	}

	uploadDate := p.now().UTC()
	var all []rag.Chunk
	names := make([]string, 0, len(docs))

	for _, doc := range docs {
		name := SanitizeFileName(doc.FileName)
		names = append(names, name)

		texts := p.cfg.Chunker.Chunk(chunker.Normalize(doc.Content))
		p.log.Debug("chunked document", slog.String("file", name), slog.Int("chunks", len(texts)))

		embeddings, err := p.embedAll(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("ingestion: embedding %s: %w", name, err)
		}

		for i, text := range texts {
			all = append(all, rag.Chunk{
				ID:        uuid.NewString(),
				Text:      text,
				Embedding: embeddings[i],
				Metadata: rag.Metadata{
					FileName:   name,
					ChunkIndex: i,
					UploadDate: uploadDate,
					FileType:   FileType(name),
				},
			})
		}
	}

	var err error
	if o.replace {
		err = p.store.ReplaceFiles(ctx, names, all)
	} else {
		err = p.store.AddChunks(ctx, all)
	}
	if err != nil {
		return nil, fmt.Errorf("ingestion: committing %d chunks: %w", len(all), err)
	}

	st, err := p.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingestion: reading store stats: %w", err)
	}

	p.log.Info("ingested documents",
		slog.Int("files", len(docs)),
		slog.Int("chunks_created", len(all)),
		slog.Int("total_chunks", st.TotalChunks),
	)

	return &Stats{
		ChunksCreated: len(all),
		TotalChunks:   st.TotalChunks,
		TotalFiles:    st.UniqueFiles,
	}, nil
}

// embedAll embeds each fragment with its own call, keeping at most
// cfg.Concurrency calls in flight. The first failure cancels the rest.
func (p *Pipeline) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := rag.EmbedOne(gctx, p.embedder, text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// validate is the shared validator instance.
var validate = validator.New()

// validateBatch enforces batch and per-document limits before any network
// call. Messages are caller-facing.
func (p *Pipeline) validateBatch(docs []Document) error {
	if err := validate.Var(docs, "min=1"); err != nil {
		return apperr.Validation("files", "No files uploaded.")
	}
	if err := validate.Var(docs, fmt.Sprintf("max=%d", p.cfg.MaxFiles)); err != nil {
		return apperr.Validation("files",
			fmt.Sprintf("Too many files. Maximum %d files allowed per upload.", p.cfg.MaxFiles))
	}

	for _, doc := range docs {
		if err := validate.Var(strings.TrimSpace(doc.FileName), "required"); err != nil {
			return apperr.Validation("fileName", "File name is required.")
		}
		if int64(len(doc.Content)) > p.cfg.MaxFileSize {
			return apperr.Validation("files", fmt.Sprintf("File %q is too large. Maximum size is %dMB.",
				doc.FileName, p.cfg.MaxFileSize/(1024*1024)))
		}
		if err := validate.Var(strings.TrimSpace(doc.Content), "required"); err != nil {
			return apperr.Validation("files", fmt.Sprintf("File %q is empty.", doc.FileName))
		}
		if !extensionAllowed(doc.FileName, p.cfg.AllowedExtensions) {
			return apperr.Validation("files", fmt.Sprintf("File %q has an unsupported format. Allowed: %s.",
				doc.FileName, allowedList(p.cfg.AllowedExtensions)))
		}
		// Documents arrive already extracted; raw PDF or DOCX bytes are not.
		if !utf8.ValidString(doc.Content) {
			return apperr.Validation("files", fmt.Sprintf("File %q is not valid UTF-8 text. Extract its text before uploading.",
				doc.FileName))
		}
	}
	return nil
}

func allowedList(exts []string) string {
	out := make([]string, len(exts))
	for i, e := range exts {
		out[i] = strings.ToUpper(strings.TrimPrefix(e, "."))
	}
	return strings.Join(out, ", ")
}

// IsValidation reports whether err was produced by batch validation.
func IsValidation(err error) bool {
	return errors.Is(err, apperr.ErrValidation)
}
