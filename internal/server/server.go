// Package server implements the HTTP API of the document assistant: upload,
// chat, document and history management, health, readiness and metrics.
// The server is started by the `docqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docqa-go/internal/apperr"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/ratelimit"
)

// New constructs a Server from the provided services and config.
func New(svc Services, cfg *Config) (*Server, error) {
	if svc.Assistant == nil {
		return nil, fmt.Errorf("server: assistant must not be nil")
	}
	if svc.Ingester == nil {
		return nil, fmt.Errorf("server: ingester must not be nil")
	}
	if svc.Store == nil {
		return nil, fmt.Errorf("server: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 512 << 20
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		svc:     svc,
		cfg:     cfg,
		log:     logging.Component(log, "server"),
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
		started: time.Now(),
	}

	if cfg.APIKey == "" {
		s.log.Warn("API key not set, authentication disabled")
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully wrapped route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/upload", s.protect(s.limit("upload", s.cfg.UploadLimiter, http.HandlerFunc(s.handleUpload))))
	mux.Handle("POST /api/chat", s.protect(s.limit("chat", s.cfg.ChatLimiter, http.HandlerFunc(s.handleChat))))

	mux.Handle("GET /api/documents", s.protect(http.HandlerFunc(s.handleDocumentStats)))
	mux.Handle("DELETE /api/documents", s.protect(http.HandlerFunc(s.handleClearDocuments)))
	mux.Handle("GET /api/documents/{fileName}", s.protect(http.HandlerFunc(s.handleGetDocument)))
	mux.Handle("DELETE /api/documents/{fileName}", s.protect(http.HandlerFunc(s.handleDeleteDocument)))

	mux.Handle("GET /api/history", s.protect(http.HandlerFunc(s.handleGetHistory)))
	mux.Handle("DELETE /api/history", s.protect(http.HandlerFunc(s.handleClearHistory)))

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	return requestLogger(s.log, s.instrument(mux))
}

func (s *Server) protect(h http.Handler) http.Handler {
	return authMiddleware(s.cfg.APIKey, h)
}

func (s *Server) limit(class string, l *ratelimit.Limiter, h http.Handler) http.Handler {
	if l == nil {
		return h
	}
	return rateLimit(class, l, s.metrics, h)
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("shutting down", slog.Duration("timeout", s.cfg.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// decodeJSON reads a size-capped JSON body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("body", "Request body too large.")
		}
		return apperr.Validation("body", "Invalid request body.")
	}
	return nil
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError renders err as an errorResponse. Internal details are logged
// and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())
	kind := apperr.KindOf(err)

	resp := errorResponse{Error: string(kind), Message: apperr.PublicMessage(err)}
	if e, ok := apperr.As(err); ok && kind != apperr.KindInternal {
		resp.Message = e.Message
		resp.Field = e.Field
		resp.Hint = e.Hint
		if !e.ResetAt.IsZero() {
			reset := e.ResetAt.UTC()
			resp.ResetAt = &reset
		}
	}

	if kind == apperr.KindInternal {
		log.Error("request failed", slog.Any("error", err))
	} else {
		log.Warn("request rejected", slog.String("kind", string(kind)), slog.Any("error", err))
	}

	writeJSON(w, r, kind.HTTPStatus(), resp)
}
