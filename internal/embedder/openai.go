// Package embedder implements rag.Embedder over plain HTTP for Ollama and
// OpenAI-compatible (including Azure) embedding APIs. Every failure is tagged
// with an apperr kind where it happens, so callers can distinguish a missing
// model from a timeout without reading error text.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/apperr"
)

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is "https://api.openai.com/v1" for OpenAI or
	// "https://<resource>.openai.azure.com/openai" for Azure.
	BaseURL string
	APIKey  string
	Model   string
	// Dimensions requests a shortened vector; 0 keeps the model default.
	Dimensions int
	// Azure switches to deployment URLs, the api-key header and APIVersion.
	Azure      bool
	APIVersion string
	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration
}

// OpenAIEmbedder embeds fragments through the OpenAI embeddings API or an
// Azure deployment of it. It is safe for concurrent use.
type OpenAIEmbedder struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	c := *cfg
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return &OpenAIEmbedder{cfg: c, client: &http.Client{Timeout: c.Timeout}}
}

func (e *OpenAIEmbedder) backend() string {
	if e.cfg.Azure {
		return "azure"
	}
	return "openai"
}

func (e *OpenAIEmbedder) endpoint() string {
	if e.cfg.Azure {
		return fmt.Sprintf("%s/deployments/%s/embeddings?api-version=%s", e.cfg.BaseURL, e.cfg.Model, e.cfg.APIVersion)
	}
	return e.cfg.BaseURL + "/embeddings"
}

func (e *OpenAIEmbedder) authorize(req *http.Request) {
	if e.cfg.Azure {
		req.Header.Set("api-key", e.cfg.APIKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
}

type embeddingsRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns one vector per text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(embeddingsRequest{Input: texts, Model: e.cfg.Model, Dimensions: e.cfg.Dimensions})
	if err != nil {
		return nil, fmt.Errorf("openai embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	e.authorize(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, transportError(e.backend(), e.cfg.Model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(e.backend(), e.cfg.Model, err)
	}

	var out embeddingsResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var msg string
		if out.Error != nil {
			msg = out.Error.Message
		}
		return nil, statusError(e.backend(), e.cfg.Model, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, apperr.Internal("openai embedder: decode response", decodeErr)
	}
	if len(out.Data) != len(texts) {
		return nil, apperr.Internal(fmt.Sprintf("openai embedder: %d texts but %d embeddings", len(texts), len(out.Data)), nil)
	}

	// Data may arrive out of order; each item carries its input index.
	vecs := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) || vecs[d.Index] != nil {
			return nil, apperr.Internal(fmt.Sprintf("openai embedder: bad embedding index %d", d.Index), nil)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}
