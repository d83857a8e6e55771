package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/watcher"
)

// NewIngestCmd constructs the `docqa ingest` command, which adds documents
// to the vector store from local files, URLs, or a watched directory.
func NewIngestCmd() *cobra.Command {
	var urls []string
	var watchDir string
	var replace bool

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest documents into the vector store",
		Long: `Split, embed, and store documents so they can be used to answer questions.

Files must already contain text and have one of the extensions .txt, .md,
.pdf, or .docx. Each batch of up to MAX_FILES_PER_UPLOAD files is committed
all or nothing. Web pages given with --url are fetched and stored as
Markdown-named documents.

With --watch the command keeps running and re-ingests files in the directory
whenever they change, removing the fragments of deleted files.

Examples:
  docqa ingest handbook.md policies/*.txt
  docqa ingest --url https://example.com/docs/getting-started
  docqa ingest --replace handbook.md
  docqa ingest --watch ./docs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(urls) == 0 && watchDir == "" {
				return fmt.Errorf("ingest: provide files, --url, or --watch")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			a, err := newApp(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer a.Close()

			pipeline, err := a.Pipeline()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			var docs []ingestion.Document
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				docs = append(docs, ingestion.Document{FileName: filepath.Base(path), Content: string(data)})
			}
			for _, u := range urls {
				doc, err := pipeline.FetchURL(ctx, u)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				log.Info("fetched url", slog.String("url", u), slog.String("file", doc.FileName))
				docs = append(docs, doc)
			}

			var opts []ingestion.IngestOption
			if replace {
				opts = append(opts, ingestion.WithReplace())
			}

			batchSize := a.settings.MaxFiles
			for start := 0; start < len(docs); start += batchSize {
				batch := docs[start:min(start+batchSize, len(docs))]
				stats, err := pipeline.Ingest(ctx, batch, opts...)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d file(s): %d chunks created, %d chunks across %d files in store\n",
					len(batch), stats.ChunksCreated, stats.TotalChunks, stats.TotalFiles)
			}

			if watchDir == "" {
				return nil
			}

			w, err := watcher.New(watchDir, pipeline, a.store, watcher.WithLogger(log))
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			return w.Run(ctx)
		},
	}

	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Web page to fetch and ingest (repeatable)")
	cmd.Flags().StringVarP(&watchDir, "watch", "w", "", "Directory to watch and keep in sync with the store")
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace existing fragments of files with the same name")

	return cmd
}
