package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP API server",
		Long: `Start the docqa HTTP API server.

Routes:
  POST   /api/upload                 ingest a batch of documents
  POST   /api/chat                   ask a question
  GET    /api/documents              store statistics
  GET    /api/documents/{fileName}   fragments of one document
  DELETE /api/documents/{fileName}   remove one document
  DELETE /api/documents              remove every document
  GET    /api/history                conversation history
  DELETE /api/history                clear conversation history
  GET    /api/health, /api/ready     liveness and readiness
  GET    /metrics                    Prometheus metrics

Examples:
  docqa serve
  docqa serve --port 9090
  VECTOR_BACKEND=qdrant MODEL_PROVIDER=openai docqa serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Langfuse tracing is opt-in and a no-op when keys are absent.
			flush, _ := tracing.Setup(log)
			defer flush()

			a, err := newApp(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.Close()

			pipeline, err := a.Pipeline()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			conv := a.History(ctx)
			assistant, err := a.Assistant(ctx, conv)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			chatLimiter, uploadLimiter := a.Limiters()
			defer chatLimiter.Stop()
			defer uploadLimiter.Stop()

			if !cmd.Flags().Changed("host") {
				host = a.settings.Host
			}
			if !cmd.Flags().Changed("port") {
				port = a.settings.Port
			}

			srv, err := server.New(server.Services{
				Assistant: assistant,
				Ingester:  pipeline,
				Store:     a.store,
				History:   conv,
			}, &server.Config{
				Host:          host,
				Port:          port,
				Logger:        log,
				Pingers:       a.Pingers(),
				ChatLimiter:   chatLimiter,
				UploadLimiter: uploadLimiter,
				APIKey:        a.settings.APIKey,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			log.Info("serve starting",
				slog.String("vector_backend", a.settings.VectorBackend),
				slog.String("default_model", a.settings.DefaultModel),
				slog.Int("history_messages", conv.Len()),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (default from DOCQA_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (default from DOCQA_PORT)")

	return cmd
}
