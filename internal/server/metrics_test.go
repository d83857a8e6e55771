package server

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/54b3r/docqa-go/internal/apperr"
)

// counterValue reads a single counter.
func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

// findCounter returns the value of name{label=value} in reg.
func findCounter(t *testing.T, reg prometheus.Gatherer, name, label, value string) (float64, bool) {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue(), true
				}
			}
		}
	}
	return 0, false
}

func Test_Metrics_EndpointServesRegistry(t *testing.T) {
	t.Parallel()
	s, _ := newTestServerWith(nil)
	h := s.Handler()

	do(t, h, http.MethodPost, "/api/chat", `{"question":"q"}`)
	w := do(t, h, http.MethodGet, "/metrics", "")

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), `docqa_chat_requests_total{outcome="ok"} 1`) {
		t.Errorf("chat counter missing from exposition:\n%s", w.Body.String())
	}
}

func Test_Metrics_ChatOutcomes(t *testing.T) {
	t.Parallel()
	s, deps := newTestServerWith(nil)
	h := s.Handler()

	do(t, h, http.MethodPost, "/api/chat", `{"question":"q"}`)
	deps.answerer.err = apperr.Timeout("slow", errors.New("deadline"))
	do(t, h, http.MethodPost, "/api/chat", `{"question":"q"}`)
	do(t, h, http.MethodPost, "/api/chat", `{"question":"q"}`)

	if v, ok := findCounter(t, deps.registry, "docqa_chat_requests_total", "outcome", "ok"); !ok || v != 1 {
		t.Errorf("ok outcome: got %v (found=%v)", v, ok)
	}
	if v, ok := findCounter(t, deps.registry, "docqa_chat_requests_total", "outcome", "timeout"); !ok || v != 2 {
		t.Errorf("timeout outcome: got %v (found=%v)", v, ok)
	}
}

func Test_Metrics_UploadChunksAndHTTPPattern(t *testing.T) {
	t.Parallel()
	s, deps := newTestServerWith(nil)
	h := s.Handler()

	do(t, h, http.MethodPost, "/api/upload", `{"documents":[{"fileName":"a.txt","content":"x"},{"fileName":"b.txt","content":"y"}]}`)
	do(t, h, http.MethodGet, "/api/documents/a.txt", "")

	if got := counterValue(t, s.metrics.chunksIngestedTotal); got != 2 {
		t.Errorf("chunks_ingested_total: got %v, want 2", got)
	}
	if _, ok := findCounter(t, deps.registry, "docqa_http_requests_total", labelHandler, "GET /api/documents/{fileName}"); !ok {
		t.Error("http counter should be labelled by route pattern")
	}
}
