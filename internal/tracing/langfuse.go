// Package tracing wires optional Langfuse tracing into every generation call.
package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// Settings holds the Langfuse connection details.
type Settings struct {
	Host      string
	PublicKey string
	SecretKey string
}

// SettingsFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY.
func SettingsFromEnv() Settings {
	return Settings{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// Enabled reports whether both keys are present.
func (s Settings) Enabled() bool {
	return s.PublicKey != "" && s.SecretKey != ""
}

// Handler builds the Langfuse callback handler and its flush function.
// It returns nil, nil when s is not enabled.
func (s Settings) Handler() (callbacks.Handler, func()) {
	if !s.Enabled() {
		return nil, nil
	}
	host := s.Host
	if host == "" {
		host = "http://localhost:3000"
	}
	return langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: s.PublicKey,
		SecretKey: s.SecretKey,
	})
}

// Setup registers the Langfuse handler globally when configured, so every
// provider.Generator call is traced. The returned flush must be called before
// process exit; it is a no-op when tracing is disabled.
func Setup(log *slog.Logger) (flush func(), enabled bool) {
	s := SettingsFromEnv()
	handler, flusher := s.Handler()
	if handler == nil {
		log.Debug("langfuse tracing disabled")
		return func() {}, false
	}
	callbacks.AppendGlobalHandlers(handler)
	log.Info("langfuse tracing enabled", slog.String("host", s.Host))
	return flusher, true
}
