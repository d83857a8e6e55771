package audit

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestSanitiseKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key, value, want string
	}{
		{"OPENAI_API_KEY", "sk-abc123", "set"},
		{"OPENAI_API_KEY", "", "unset"},
		{"DOCQA_API_KEY", "hunter2", "set"},
		{"ARK_API_KEY", "ak", "set"},
		{"MODEL_PROVIDER", "azure", "azure"},
		{"MODEL_PROVIDER", "", "unset"},
	}
	for _, tt := range tests {
		if got := SanitiseKey(tt.key, tt.value); got != tt.want {
			t.Errorf("SanitiseKey(%q, %q) = %q, want %q", tt.key, tt.value, got, tt.want)
		}
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.docqa/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.docqa/config.yaml" {
			t.Errorf("expected '~/.docqa/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("DOCQA_API_KEY", "super-secret-token")
	t.Setenv("VECTOR_BACKEND", "qdrant")

	var buf bytes.Buffer
	LogCommandStart(slog.New(slog.NewTextHandler(&buf, nil)), "serve", "")

	out := buf.String()
	if strings.Contains(out, "super-secret-token") {
		t.Fatalf("secret value leaked into audit log: %s", out)
	}
	for _, want := range []string{"command=serve", "DOCQA_API_KEY=set", "VECTOR_BACKEND=qdrant", "config_file=none", "version="} {
		if !strings.Contains(out, want) {
			t.Errorf("audit line missing %q: %s", want, out)
		}
	}
}
