// Package watcher keeps the vector store in step with a directory. Files
// created or written there are re-ingested, replacing their old fragments;
// removed or renamed files have their fragments deleted.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/54b3r/docqa-go/internal/ingestion"
)

// DefaultDebounce is how long a path must stay quiet before it is synced.
const DefaultDebounce = 500 * time.Millisecond

// Ingester commits documents; *ingestion.Pipeline satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, docs []ingestion.Document, opts ...ingestion.IngestOption) (*ingestion.Stats, error)
}

// Remover deletes a file's fragments; every rag.VectorStore satisfies it.
type Remover interface {
	DeleteByFileName(ctx context.Context, fileName string) error
}

// Watcher syncs one directory into the store.
type Watcher struct {
	dir        string
	ingester   Ingester
	remover    Remover
	extensions []string
	debounce   time.Duration
	log        *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExtensions restricts the watched extensions (with leading dot).
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		if len(exts) > 0 {
			w.extensions = exts
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// New returns a Watcher for dir. The directory must exist.
func New(dir string, ingester Ingester, remover Remover, opts ...Option) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watcher: %s is not a directory", dir)
	}
	w := &Watcher{
		dir:        dir,
		ingester:   ingester,
		remover:    remover,
		extensions: ingestion.DefaultAllowedExtensions,
		debounce:   DefaultDebounce,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With(slog.String("component", "watcher"), slog.String("dir", dir))
	return w, nil
}

// Run watches until ctx is cancelled. Syncs run one at a time on the calling
// goroutine, in the order their debounce timers fire.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watcher: watching %s: %w", w.dir, err)
	}
	w.log.Info("watching directory for changes")

	ready := make(chan string, 64)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			path := ev.Name
			if t, ok := timers[path]; ok {
				t.Reset(w.debounce)
				continue
			}
			timers[path] = time.AfterFunc(w.debounce, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})

		case path := <-ready:
			delete(timers, path)
			w.sync(ctx, path)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// sync reconciles one path with the store based on whether it still exists.
func (w *Watcher) sync(ctx context.Context, path string) {
	base := filepath.Base(path)
	name := ingestion.SanitizeFileName(base)
	log := w.log.With(slog.String("file", name))

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := w.remover.DeleteByFileName(ctx, name); err != nil {
			log.Error("removing fragments failed", slog.String("error", err.Error()))
			return
		}
		log.Info("removed fragments of deleted file")
		return
	}
	if err != nil {
		log.Error("stat failed", slog.String("error", err.Error()))
		return
	}
	if info.IsDir() {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("read failed", slog.String("error", err.Error()))
		return
	}
	if strings.TrimSpace(string(data)) == "" {
		log.Debug("skipping empty file")
		return
	}

	stats, err := w.ingester.Ingest(ctx, []ingestion.Document{{FileName: base, Content: string(data)}}, ingestion.WithReplace())
	if err != nil {
		if ingestion.IsValidation(err) {
			log.Warn("file rejected", slog.String("error", err.Error()))
			return
		}
		log.Error("ingest failed", slog.String("error", err.Error()))
		return
	}
	log.Info("re-ingested file",
		slog.Int("chunks_created", stats.ChunksCreated),
		slog.Int("total_chunks", stats.TotalChunks),
	)
}
