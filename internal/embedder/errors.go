package embedder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/54b3r/docqa-go/internal/apperr"
)

// transportError classifies a failed HTTP round trip.
func transportError(backend, model string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Timeout(
			fmt.Sprintf("%s embedder: model %q did not respond in time", backend, model), err)
	}
	return apperr.Internal(fmt.Sprintf("%s embedder: request failed", backend), err)
}

// statusError classifies a non-2xx response. msg is the error text the
// backend returned, if any.
func statusError(backend, model string, status int, msg string) error {
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", status)
	}
	cause := fmt.Errorf("%s embedder: %s", backend, msg)

	switch {
	case status == http.StatusNotFound || strings.Contains(strings.ToLower(msg), "not found"):
		return apperr.NotFound(
			fmt.Sprintf("Embedding model %q not found", model), pullHint(backend, model), cause)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return apperr.Timeout(fmt.Sprintf("%s embedder: model %q timed out", backend, model), cause)
	default:
		return apperr.Internal(fmt.Sprintf("%s embedder: unexpected response", backend), cause)
	}
}

// pullHint tells the operator how to make model available.
func pullHint(backend, model string) string {
	if backend == "ollama" {
		return "ollama pull " + model
	}
	return fmt.Sprintf("check that the %s deployment for %q exists", backend, model)
}

// checkTexts rejects an empty batch or a blank text before any network call.
func checkTexts(texts []string) error {
	if len(texts) == 0 {
		return apperr.Validation("text", "at least one text is required")
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return apperr.Validation("text", "text to embed must not be empty")
		}
	}
	return nil
}
