// Package agent is the retrieval orchestrator. It validates a question,
// retrieves the most similar fragments, assembles a grounded prompt from
// them and the prior conversation, calls the generation model and records
// the exchange in the conversation history.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/history"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultModel             = "gpt-oss:20b"
	DefaultMaxQuestionLength = 1000
	DefaultMaxContextChunks  = 5
	DefaultPreviewChars      = 150
	DefaultHistoryTokens     = 2000
)

// DefaultAllowedModels is the generation model allow-list used when
// Config.AllowedModels is empty.
var DefaultAllowedModels = []string{"gpt-oss:20b", "gemma3:12b", "gemma3:4b", "llama3.2:3b"}

// Generator produces answer text for a prompt with the named model.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Config holds the dependencies required to construct an Assistant.
type Config struct {
	// Retriever embeds the question and searches the vector store.
	Retriever rag.Retriever

	// Generator is the generation provider.
	Generator Generator

	// History is the process-wide conversation. It is consulted when a
	// request carries no history of its own and always receives the new
	// exchange. May be nil.
	History *history.Conversation

	// AllowedModels is the model allow-list. Defaults to DefaultAllowedModels.
	AllowedModels []string
	// DefaultModel is used when a request names no model.
	DefaultModel string

	MaxQuestionLength int
	MaxContextChunks  int
	PreviewChars      int

	// HistoryTokens is the estimated token budget for the prompt as a whole;
	// prior conversation is trimmed oldest-first to fit. Negative disables
	// trimming.
	HistoryTokens int

	// PromptStyle selects the instruction template. Defaults to PromptFull.
	PromptStyle PromptStyle
}

// Assistant answers questions from ingested documents.
type Assistant struct {
	retriever rag.Retriever
	generator Generator
	history   *history.Conversation

	allowed      []string
	defaultModel string
	maxQuestion  int
	topK         int
	previewChars int
	tokenBudget  int
	style        PromptStyle
}

// New constructs an Assistant from cfg, filling unset limits with defaults.
func New(cfg *Config) (*Assistant, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("agent: Retriever must not be nil")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("agent: Generator must not be nil")
	}

	a := &Assistant{
		retriever:    cfg.Retriever,
		generator:    cfg.Generator,
		history:      cfg.History,
		allowed:      cfg.AllowedModels,
		defaultModel: cfg.DefaultModel,
		maxQuestion:  cfg.MaxQuestionLength,
		topK:         cfg.MaxContextChunks,
		previewChars: cfg.PreviewChars,
		tokenBudget:  cfg.HistoryTokens,
		style:        cfg.PromptStyle,
	}
	if len(a.allowed) == 0 {
		a.allowed = DefaultAllowedModels
	}
	if a.defaultModel == "" {
		a.defaultModel = DefaultModel
	}
	if !slices.Contains(a.allowed, a.defaultModel) {
		return nil, fmt.Errorf("agent: default model %q is not in the allowed models %v", a.defaultModel, a.allowed)
	}
	if a.maxQuestion <= 0 {
		a.maxQuestion = DefaultMaxQuestionLength
	}
	if a.topK <= 0 {
		a.topK = DefaultMaxContextChunks
	}
	if a.previewChars <= 0 {
		a.previewChars = DefaultPreviewChars
	}
	if a.tokenBudget == 0 {
		a.tokenBudget = DefaultHistoryTokens
	}
	if a.style == "" {
		a.style = PromptFull
	}
	return a, nil
}

// AllowedModels returns a copy of the model allow-list.
func (a *Assistant) AllowedModels() []string {
	return slices.Clone(a.allowed)
}

// Answer runs one question through retrieval and generation.
//
// Validation failures are returned before any embedding call. A retrieval
// failure is logged and the question is answered without document context.
// When there is neither context nor prior conversation a fixed answer is
// returned without calling the generator. Generation failures are returned
// as-is, carrying their apperr kind.
func (a *Assistant) Answer(ctx context.Context, req Request) (*Response, error) {
	log := logging.FromContext(ctx).With(slog.String("component", "assistant"))

	question, model, err := a.validate(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	hits, err := a.retriever.Retrieve(ctx, question, a.topK)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("agent: retrieval cancelled: %w", err)
		}
		log.Warn("retrieval failed, answering without document context", slog.Any("error", err))
		hits = nil
	}
	log.Debug("retrieval complete",
		slog.Int("hits", len(hits)),
		slog.Duration("elapsed", time.Since(start)),
	)

	prior := req.History
	if prior == nil && a.history != nil {
		prior = a.history.All()
	}

	if len(hits) == 0 && len(prior) == 0 {
		return &Response{Answer: noDocumentsAnswer, Sources: []Source{}}, nil
	}

	prompt := a.prompt(log, hits, prior, question)

	answer, err := a.generator.Generate(ctx, model, prompt)
	if err != nil {
		return nil, err
	}

	if a.history != nil {
		a.history.Append(ctx,
			rag.Message{Role: rag.RoleUser, Content: question},
			rag.Message{Role: rag.RoleAssistant, Content: answer},
		)
	}

	return &Response{Answer: answer, Sources: a.sources(hits)}, nil
}

// prompt assembles the generation prompt, trimming prior conversation
// oldest-first so the whole prompt fits the token budget.
func (a *Assistant) prompt(log *slog.Logger, hits []rag.ScoredChunk, prior []rag.Message, question string) string {
	contextText := buildContext(hits)
	if a.style == PromptBasic {
		return buildPrompt(PromptBasic, contextText, "", question)
	}

	fixed := budget.Estimate(buildPrompt(a.style, contextText, "", question))
	trimmed := budget.TrimHistory(fixed, prior, a.tokenBudget)
	if dropped := len(prior) - len(trimmed); dropped > 0 {
		log.Warn("dropped prior messages to fit context budget",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(trimmed)),
			slog.Int("max_tokens", a.tokenBudget),
		)
	}
	return buildPrompt(a.style, contextText, renderHistory(trimmed), question)
}

func (a *Assistant) sources(hits []rag.ScoredChunk) []Source {
	out := make([]Source, 0, len(hits))
	for _, h := range hits {
		out = append(out, Source{
			Text:       preview(h.Chunk.Text, a.previewChars),
			FileName:   h.Chunk.Metadata.FileName,
			Similarity: h.FormatSimilarity(),
		})
	}
	return out
}

// validate returns the trimmed question and the effective model.
func (a *Assistant) validate(req Request) (string, string, error) {
	question := strings.TrimSpace(req.Question)
	if err := validateQuestion(question, req.Question, a.maxQuestion); err != nil {
		return "", "", err
	}

	model := req.Model
	if model == "" {
		model = a.defaultModel
	}
	if !slices.Contains(a.allowed, model) {
		return "", "", invalidModel()
	}
	if err := validateHistory(req.History); err != nil {
		return "", "", err
	}
	return question, model, nil
}
