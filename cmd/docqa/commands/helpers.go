package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/history"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/ratelimit"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/store"
)

// app wires the components shared by the commands. Parts other than the
// vector store are built on first use so that, for example, `docs stats`
// never needs a reachable embedding provider.
type app struct {
	settings *config.Settings
	log      *slog.Logger

	store       rag.VectorStore
	storePinger server.Pinger

	embedder rag.Embedder
	closers  []func() error
}

// newApp resolves settings and opens the configured vector store.
func newApp(ctx context.Context, log *slog.Logger) (*app, error) {
	a := &app{settings: config.FromEnv(log), log: log}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases everything the app opened, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", slog.Any("error", err))
		}
	}
}

func (a *app) openStore(ctx context.Context) error {
	s := a.settings
	storeLog := logging.Component(a.log, "vectorstore")

	switch s.VectorBackend {
	case "json":
		js := rag.NewJSONStore(s.VectorDBPath, storeLog)
		a.store = js
		a.storePinger = server.NewStorePinger(js)
		storeLog.Info("json store selected", slog.String("path", js.Path()))

	case "qdrant":
		vectorSize := uint64(embedder.DefaultDimensions(embedder.Backend())) //nolint:gosec // dimensions are bounded
		qs, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       s.QdrantHost,
			Port:       s.QdrantPort,
			Collection: s.QdrantCollection,
			VectorSize: vectorSize,
			APIKey:     s.QdrantAPIKey,
			UseTLS:     s.QdrantTLS,
		}, storeLog)
		if err != nil {
			return fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", s.QdrantHost, s.QdrantPort, err)
		}
		a.store = qs
		a.storePinger = server.NewQdrantPinger(qs.Client())
		storeLog.Info("qdrant store ready",
			slog.String("host", s.QdrantHost),
			slog.Int("port", s.QdrantPort),
			slog.String("collection", s.QdrantCollection),
		)

	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q (valid: json, qdrant)", s.VectorBackend)
	}

	a.closers = append(a.closers, a.store.Close)
	return nil
}

// Embedder returns the configured embedding provider.
func (a *app) Embedder() (rag.Embedder, error) {
	if a.embedder != nil {
		return a.embedder, nil
	}
	if err := embedder.ValidateForRAG(a.log); err != nil {
		return nil, err
	}
	e, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	a.log.Info("embedder initialised", slog.String("provider", embedder.Backend()))
	a.embedder = e
	return e, nil
}

// Chunker builds the fragmenting policy from settings.
func (a *app) Chunker() (chunker.Chunker, error) {
	s := a.settings
	return chunker.New(chunker.Config{
		Policy:      chunker.Policy(s.ChunkPolicy),
		MaxSize:     s.ChunkSize,
		WindowWords: s.ChunkWindowWords,
		Overlap:     s.ChunkOverlap,
	})
}

// Pipeline builds the ingestion pipeline.
func (a *app) Pipeline() (*ingestion.Pipeline, error) {
	emb, err := a.Embedder()
	if err != nil {
		return nil, err
	}
	ch, err := a.Chunker()
	if err != nil {
		return nil, err
	}
	return ingestion.NewPipeline(emb, a.store, &ingestion.Config{
		Chunker:     ch,
		MaxFiles:    a.settings.MaxFiles,
		MaxFileSize: a.settings.MaxFileSize,
		Logger:      a.log,
	})
}

// History opens the conversation, persisted to SQLite unless disabled. A
// transcript that cannot be opened degrades to memory only.
func (a *app) History(ctx context.Context) *history.Conversation {
	s := a.settings
	histLog := logging.Component(a.log, "history")

	var persist history.Persister
	switch {
	case s.HistoryDisabled():
		histLog.Info("transcript disabled via DOCQA_HISTORY_DB=disabled")
	default:
		path := s.HistoryDB
		if path == "" {
			var err error
			path, err = store.DefaultDBPath()
			if err != nil {
				histLog.Warn("could not resolve default transcript path, keeping history in memory", slog.Any("error", err))
			}
		}
		if path != "" {
			hs, err := store.Open(path)
			if err != nil {
				histLog.Warn("failed to open transcript, keeping history in memory", slog.Any("error", err))
			} else {
				persist = hs
				a.closers = append(a.closers, hs.Close)
				histLog.Info("transcript opened", slog.String("path", path))
			}
		}
	}

	conv := history.New(s.HistoryCap, persist, histLog)
	if err := conv.Hydrate(ctx); err != nil {
		histLog.Warn("failed to restore history", slog.Any("error", err))
	}
	return conv
}

// Assistant builds the retrieval orchestrator over the configured provider.
func (a *app) Assistant(ctx context.Context, conv *history.Conversation) (*agent.Assistant, error) {
	emb, err := a.Embedder()
	if err != nil {
		return nil, err
	}
	s := a.settings

	retriever, err := rag.NewRetriever(emb, a.store, s.MaxContextChunks)
	if err != nil {
		return nil, err
	}

	providerCfg := provider.ConfigFromEnv()
	gen, err := provider.New(ctx, providerCfg, provider.WithLogger(a.log))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	a.log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

	return agent.New(&agent.Config{
		Retriever:         retriever,
		Generator:         gen,
		History:           conv,
		AllowedModels:     s.AllowedModels,
		DefaultModel:      s.DefaultModel,
		MaxQuestionLength: s.MaxQuestionLength,
		MaxContextChunks:  s.MaxContextChunks,
		HistoryTokens:     s.HistoryTokens,
		PromptStyle:       agent.ParsePromptStyle(s.PromptStyle),
	})
}

// Limiters builds the chat and upload rate limiters. The caller stops them.
func (a *app) Limiters() (chat, upload *ratelimit.Limiter) {
	s := a.settings
	rlLog := logging.Component(a.log, "ratelimit")
	chat = ratelimit.New(ratelimit.Config{
		MaxRequests:   s.ChatRateLimit,
		Window:        s.ChatRateWindow,
		SweepInterval: s.RateLimitSweep,
	}, ratelimit.WithLogger(rlLog))
	upload = ratelimit.New(ratelimit.Config{
		MaxRequests:   s.UploadRateLimit,
		Window:        s.UploadRateWindow,
		SweepInterval: s.RateLimitSweep,
	}, ratelimit.WithLogger(rlLog))
	return chat, upload
}

// Pingers returns the readiness probes for the configured dependencies.
func (a *app) Pingers() []server.Pinger {
	pingers := []server.Pinger{a.storePinger}
	if cfg := provider.ConfigFromEnv(); cfg.Backend == provider.BackendOllama {
		pingers = append(pingers, server.NewOllamaPinger(cfg.Ollama.Host))
	}
	return pingers
}
