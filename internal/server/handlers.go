package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/apperr"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// handleUpload handles POST /api/upload. The batch is committed all or
// nothing.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req uploadRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.metrics.observeUpload(err, start)
		writeError(w, r, err)
		return
	}

	stats, err := s.svc.Ingester.Ingest(r.Context(), req.Documents)
	s.metrics.observeUpload(err, start)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.chunksIngestedTotal.Add(float64(stats.ChunksCreated))

	logging.FromContext(r.Context()).Info("upload committed",
		slog.Int("files", len(req.Documents)),
		slog.Int("chunks_created", stats.ChunksCreated),
	)
	writeJSON(w, r, http.StatusOK, uploadResponse{
		Message: fmt.Sprintf("Successfully processed %d file(s)", len(req.Documents)),
		Stats:   *stats,
	})
}

// handleChat handles POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req agent.Request
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.metrics.observeChat(err, start)
		writeError(w, r, err)
		return
	}

	s.metrics.chatInFlight.Inc()
	resp, err := s.svc.Assistant.Answer(r.Context(), req)
	s.metrics.chatInFlight.Dec()
	s.metrics.observeChat(err, start)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleDocumentStats handles GET /api/documents.
func (s *Server) handleDocumentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Store.Stats(r.Context())
	if err != nil {
		writeError(w, r, apperr.Internal("Failed to read store statistics", err))
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// handleGetDocument handles GET /api/documents/{fileName}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	name := ingestion.SanitizeFileName(r.PathValue("fileName"))
	chunks, err := s.svc.Store.ChunksByFileName(r.Context(), name)
	if err != nil {
		writeError(w, r, apperr.Internal("Failed to read document", err))
		return
	}
	if len(chunks) == 0 {
		writeError(w, r, apperr.NotFound(fmt.Sprintf("Document %q not found", name), "", nil))
		return
	}

	resp := documentResponse{FileName: name, Fragments: make([]fragmentView, 0, len(chunks))}
	for _, c := range chunks {
		resp.Fragments = append(resp.Fragments, fragmentView{ID: c.ID, Text: c.Text, Metadata: c.Metadata})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleDeleteDocument handles DELETE /api/documents/{fileName}. Deleting
// an unknown file succeeds.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := ingestion.SanitizeFileName(r.PathValue("fileName"))
	if err := s.svc.Store.DeleteByFileName(r.Context(), name); err != nil {
		writeError(w, r, apperr.Internal("Failed to delete document", err))
		return
	}
	logging.FromContext(r.Context()).Info("document deleted", slog.String("file", name))
	writeJSON(w, r, http.StatusOK, messageResponse{Message: fmt.Sprintf("Deleted %s", name)})
}

// handleClearDocuments handles DELETE /api/documents.
func (s *Server) handleClearDocuments(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Store.Clear(r.Context()); err != nil {
		writeError(w, r, apperr.Internal("Failed to clear documents", err))
		return
	}
	logging.FromContext(r.Context()).Info("document store cleared")
	writeJSON(w, r, http.StatusOK, messageResponse{Message: "All documents cleared"})
}

// handleGetHistory handles GET /api/history.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	msgs := []rag.Message{}
	if s.svc.History != nil {
		msgs = append(msgs, s.svc.History.All()...)
	}
	writeJSON(w, r, http.StatusOK, historyResponse{Messages: msgs, Count: len(msgs)})
}

// handleClearHistory handles DELETE /api/history.
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if s.svc.History != nil {
		if err := s.svc.History.Clear(r.Context()); err != nil {
			writeError(w, r, apperr.Internal("Failed to clear history", err))
			return
		}
	}
	writeJSON(w, r, http.StatusOK, messageResponse{Message: "Conversation history cleared"})
}
