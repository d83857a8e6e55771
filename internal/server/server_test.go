package server

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// fakeAnswerer records the last request and replies with resp or err.
type fakeAnswerer struct {
	mu   sync.Mutex
	got  []agent.Request
	resp *agent.Response
	err  error
}

func (f *fakeAnswerer) Answer(_ context.Context, req agent.Request) (*agent.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &agent.Response{Answer: "ok", Sources: []agent.Source{}}, nil
}

// fakeIngester records the uploaded batch.
type fakeIngester struct {
	docs  []ingestion.Document
	stats *ingestion.Stats
	err   error
}

func (f *fakeIngester) Ingest(_ context.Context, docs []ingestion.Document, _ ...ingestion.IngestOption) (*ingestion.Stats, error) {
	f.docs = docs
	if f.err != nil {
		return nil, f.err
	}
	if f.stats != nil {
		return f.stats, nil
	}
	return &ingestion.Stats{ChunksCreated: len(docs), TotalChunks: len(docs), TotalFiles: len(docs)}, nil
}

// fakeStore is an in-memory DocumentStore keyed by file name.
type fakeStore struct {
	files   map[string][]rag.Chunk
	cleared bool
	err     error
}

func (f *fakeStore) Stats(context.Context) (rag.Stats, error) {
	if f.err != nil {
		return rag.Stats{}, f.err
	}
	st := rag.Stats{UniqueFiles: len(f.files)}
	for _, cs := range f.files {
		st.TotalChunks += len(cs)
	}
	return st, nil
}

func (f *fakeStore) ChunksByFileName(_ context.Context, name string) ([]rag.Chunk, error) {
	return f.files[name], f.err
}

func (f *fakeStore) DeleteByFileName(_ context.Context, name string) error {
	delete(f.files, name)
	return f.err
}

func (f *fakeStore) Clear(context.Context) error {
	f.files = map[string][]rag.Chunk{}
	f.cleared = true
	return f.err
}

// fakeHistory is an in-memory Conversation.
type fakeHistory struct {
	msgs []rag.Message
}

func (f *fakeHistory) All() []rag.Message          { return f.msgs }
func (f *fakeHistory) Clear(context.Context) error { f.msgs = nil; return nil }

// testDeps bundles the fakes behind a test server.
type testDeps struct {
	answerer *fakeAnswerer
	ingester *fakeIngester
	store    *fakeStore
	history  *fakeHistory
	registry *prometheus.Registry
}

// newTestServerWith builds a Server over fresh fakes and an isolated
// metrics registry. cfg may be nil.
func newTestServerWith(cfg *Config) (*Server, *testDeps) {
	deps := &testDeps{
		answerer: &fakeAnswerer{},
		ingester: &fakeIngester{},
		store:    &fakeStore{files: map[string][]rag.Chunk{}},
		history:  &fakeHistory{},
		registry: prometheus.NewRegistry(),
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Logger = logging.Discard()
	cfg.MetricsRegistry = deps.registry
	cfg.MetricsGatherer = deps.registry

	s, err := New(Services{
		Assistant: deps.answerer,
		Ingester:  deps.ingester,
		Store:     deps.store,
		History:   deps.history,
	}, cfg)
	if err != nil {
		panic(err)
	}
	return s, deps
}

func newTestServer() *Server {
	s, _ := newTestServerWith(nil)
	return s
}
