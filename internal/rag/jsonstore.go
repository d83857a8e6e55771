package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// DefaultSnapshotPath is where the JSON backend keeps its snapshot when no
// path is configured.
const DefaultSnapshotPath = "data/vector-db.json"

// snapshot is the on-disk document.
type snapshot struct {
	Chunks      []Chunk   `json:"chunks"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// JSONStore is a brute-force VectorStore backed by a single JSON file.
//
// Every read reloads the file, so chunks written by another process are
// visible. Every write reloads, mutates and rewrites the whole document
// under mu, and the rewrite goes to a temporary file that is renamed over
// the snapshot, so concurrent writers in this process never lose updates and
// a crash never leaves a torn file. Writers in other processes are not
// coordinated.
type JSONStore struct {
	// path is the snapshot file location.
	path string

	// mu serialises read-modify-write cycles.
	mu sync.Mutex

	// now stamps lastUpdated; replaced in tests.
	now func() time.Time

	log *slog.Logger
}

// NewJSONStore returns a store persisting to path. The file and its
// directory are created on first write.
func NewJSONStore(path string, log *slog.Logger) *JSONStore {
	if path == "" {
		path = DefaultSnapshotPath
	}
	if log == nil {
		log = slog.Default()
	}
	return &JSONStore{path: path, now: time.Now, log: log}
}

// Path returns the snapshot location.
func (s *JSONStore) Path() string { return s.path }

// load reads the snapshot. A missing file is an empty store.
func (s *JSONStore) load() (*snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &snapshot{Chunks: []Chunk{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jsonstore: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return &snapshot{Chunks: []Chunk{}}, nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("jsonstore: decode %s: %w", s.path, err)
	}
	if snap.Chunks == nil {
		snap.Chunks = []Chunk{}
	}
	return &snap, nil
}

// save atomically replaces the snapshot file.
func (s *JSONStore) save(snap *snapshot) error {
	snap.LastUpdated = s.now().UTC()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonstore: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsonstore: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".vector-db-*.json")
	if err != nil {
		return fmt.Errorf("jsonstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonstore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonstore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("jsonstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("jsonstore: replace %s: %w", s.path, err)
	}
	return nil
}

// update runs fn on a freshly loaded snapshot and saves the result. Nothing
// is written when fn fails.
func (s *JSONStore) update(fn func(*snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(snap); err != nil {
		return err
	}
	return s.save(snap)
}

// checkDimensions rejects incoming chunks whose embedding length differs
// from the stored chunks or from each other.
func checkDimensions(stored, incoming []Chunk) error {
	want := -1
	if len(stored) > 0 {
		want = len(stored[0].Embedding)
	}
	for _, c := range incoming {
		if want < 0 {
			want = len(c.Embedding)
			continue
		}
		if len(c.Embedding) != want {
			return fmt.Errorf("jsonstore: chunk %s: %w: %d != %d", c.ID, ErrDimensionMismatch, len(c.Embedding), want)
		}
	}
	return nil
}

// AddChunks appends chunks and persists the snapshot before returning. A
// chunk whose embedding length differs from the store's fails the whole
// call with ErrDimensionMismatch.
func (s *JSONStore) AddChunks(ctx context.Context, chunks []Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	var total int
	err := s.update(func(snap *snapshot) error {
		if err := checkDimensions(snap.Chunks, chunks); err != nil {
			return err
		}
		snap.Chunks = append(snap.Chunks, chunks...)
		total = len(snap.Chunks)
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Debug("jsonstore: chunks added",
		slog.Int("added", len(chunks)),
		slog.Int("total", total),
	)
	return nil
}

// ReplaceFiles removes every chunk of fileNames and appends chunks in a
// single read-modify-write, so a failure leaves the old chunks in place.
func (s *JSONStore) ReplaceFiles(ctx context.Context, fileNames []string, chunks []Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var removed int
	err := s.update(func(snap *snapshot) error {
		kept := slices.DeleteFunc(slices.Clone(snap.Chunks), func(c Chunk) bool {
			return slices.Contains(fileNames, c.Metadata.FileName)
		})
		if err := checkDimensions(kept, chunks); err != nil {
			return err
		}
		removed = len(snap.Chunks) - len(kept)
		snap.Chunks = append(kept, chunks...)
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Debug("jsonstore: files replaced",
		slog.Int("files", len(fileNames)),
		slog.Int("removed", removed),
		slog.Int("added", len(chunks)),
	)
	return nil
}

// AllChunks returns every chunk in insertion order.
func (s *JSONStore) AllChunks(ctx context.Context) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	return snap.Chunks, nil
}

// ChunksByFileName returns the chunks of fileName in insertion order.
func (s *JSONStore) ChunksByFileName(ctx context.Context, fileName string) ([]Chunk, error) {
	all, err := s.AllChunks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Chunk, 0)
	for _, c := range all {
		if c.Metadata.FileName == fileName {
			out = append(out, c)
		}
	}
	return out, nil
}

// DeleteByFileName removes the chunks of fileName. The snapshot is not
// rewritten when nothing matches.
func (s *JSONStore) DeleteByFileName(ctx context.Context, fileName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return err
	}
	before := len(snap.Chunks)
	snap.Chunks = slices.DeleteFunc(snap.Chunks, func(c Chunk) bool {
		return c.Metadata.FileName == fileName
	})
	if len(snap.Chunks) == before {
		return nil
	}
	if err := s.save(snap); err != nil {
		return err
	}

	s.log.Info("jsonstore: file removed",
		slog.String("file", fileName),
		slog.Int("chunks", before-len(snap.Chunks)),
	)
	return nil
}

// Clear empties the store.
func (s *JSONStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(snap *snapshot) error {
		snap.Chunks = []Chunk{}
		return nil
	})
}

// Stats counts chunks and distinct file names.
func (s *JSONStore) Stats(ctx context.Context) (Stats, error) {
	all, err := s.AllChunks(ctx)
	if err != nil {
		return Stats{}, err
	}
	return statsOf(all), nil
}

// FindMostSimilar scans every chunk and returns the k closest to query.
func (s *JSONStore) FindMostSimilar(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	all, err := s.AllChunks(ctx)
	if err != nil {
		return nil, err
	}
	hits, err := rankBySimilarity(all, query, k)
	if err != nil {
		return nil, fmt.Errorf("jsonstore: %w", err)
	}
	return hits, nil
}

// Close is a no-op; the store holds no open handles between calls.
func (s *JSONStore) Close() error { return nil }

// statsOf computes Stats over chunks.
func statsOf(chunks []Chunk) Stats {
	files := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		files[c.Metadata.FileName] = struct{}{}
	}
	return Stats{TotalChunks: len(chunks), UniqueFiles: len(files)}
}
