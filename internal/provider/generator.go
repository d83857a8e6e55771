package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/apperr"
)

// Generator turns a fully assembled prompt into answer text using the model
// named on each call.
type Generator struct {
	chat    model.BaseChatModel
	timeout time.Duration
	log     *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithTimeout overrides the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets the logger used for generation diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(g *Generator) {
		if log != nil {
			g.log = log
		}
	}
}

// NewGenerator wraps an already constructed chat model.
func NewGenerator(chat model.BaseChatModel, opts ...Option) *Generator {
	g := &Generator{chat: chat, timeout: DefaultTimeout, log: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// New builds the backend chat model described by cfg and wraps it in a
// Generator honouring cfg.Timeout.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Generator, error) {
	chat, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewGenerator(chat, append([]Option{WithTimeout(cfg.Timeout)}, opts...)...), nil
}

// Generate sends prompt as a single user message to modelName and returns
// the reply text. An empty modelName uses the backend's configured model.
//
// Errors are tagged: deadline expiry is apperr.KindTimeout, an unknown model
// is apperr.KindNotFound with a pull hint, everything else is
// apperr.KindInternal.
func (g *Generator) Generate(ctx context.Context, modelName, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "docqa-generate",
		Type:      "ChatModel",
		Component: components.ComponentOfChatModel,
	})

	var opts []model.Option
	if modelName != "" {
		opts = append(opts, model.WithModel(modelName))
	}

	start := time.Now()
	msg, err := g.chat.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, opts...)
	if err != nil {
		g.log.Error("generation failed",
			slog.String("model", modelName),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return "", classify(ctx, modelName, err)
	}
	if msg == nil {
		return "", apperr.Internal("Failed to generate response", errors.New("provider: model returned no message"))
	}

	g.log.Debug("generation complete",
		slog.String("model", modelName),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("chars", len(msg.Content)),
	)
	return msg.Content, nil
}

// classify maps an upstream failure to an apperr kind. Upstream text is only
// inspected here, at the boundary.
func classify(ctx context.Context, modelName string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Timeout("Request timeout. The model is taking too long to respond.", err)
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "not found") || strings.Contains(lower, "404") {
		return apperr.NotFound(
			fmt.Sprintf("Model %q not found", modelName),
			fmt.Sprintf("ollama pull %s", modelName),
			err,
		)
	}
	return apperr.Internal("Failed to generate response", err)
}
