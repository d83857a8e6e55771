package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings is the resolved, typed runtime configuration read by the commands.
// Provider and embedding credentials are resolved by their own packages
// (provider.ConfigFromEnv, embedder.NewFromEnv) and are not repeated here.
type Settings struct {
	// VectorBackend is "json" or "qdrant".
	VectorBackend string
	// VectorDBPath is the JSON snapshot path.
	VectorDBPath string

	QdrantHost       string
	QdrantPort       int
	QdrantCollection string
	QdrantAPIKey     string
	QdrantTLS        bool

	ChunkPolicy      string
	ChunkSize        int
	ChunkWindowWords int
	ChunkOverlap     int

	MaxContextChunks  int
	MaxQuestionLength int
	AllowedModels     []string
	DefaultModel      string
	PromptStyle       string
	HistoryTokens     int

	MaxFileSize int64
	MaxFiles    int

	HistoryCap int
	// HistoryDB is the SQLite transcript path; empty selects the default
	// location and "disabled" turns persistence off.
	HistoryDB string

	ChatRateLimit    int
	ChatRateWindow   time.Duration
	UploadRateLimit  int
	UploadRateWindow time.Duration
	RateLimitSweep   time.Duration

	Host   string
	Port   int
	APIKey string
}

// Defaults.
const (
	DefaultVectorBackend     = "json"
	DefaultVectorDBPath      = "data/vector-db.json"
	DefaultChunkPolicy       = "sentence"
	DefaultChunkSize         = 1000
	DefaultChunkWindowWords  = 500
	DefaultChunkOverlap      = 50
	DefaultMaxContextChunks  = 5
	DefaultMaxQuestionLength = 1000
	DefaultModel             = "gpt-oss:20b"
	DefaultPromptStyle       = "full"
	DefaultHistoryTokens     = 2000
	DefaultMaxFileSizeMB     = 50
	DefaultMaxFiles          = 10
	DefaultHistoryCap        = 100
	DefaultChatRateLimit     = 20
	DefaultChatRateWindow    = time.Minute
	DefaultUploadRateLimit   = 10
	DefaultUploadRateWindow  = 15 * time.Minute
	DefaultRateLimitSweep    = 5 * time.Minute
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 8080
)

// DefaultAllowedModels is the generation model allow-list used when
// ALLOWED_MODELS is unset.
var DefaultAllowedModels = []string{"gpt-oss:20b", "gemma3:12b", "gemma3:4b", "llama3.2:3b"}

// FromEnv resolves Settings from the environment. Call Load first so the
// YAML and .env layers are projected onto env vars. Unparseable values are
// logged at warn level and replaced by their default.
func FromEnv(log *slog.Logger) *Settings {
	if log == nil {
		log = slog.Default()
	}
	e := envReader{log: log}

	return &Settings{
		VectorBackend:    strings.ToLower(e.str("VECTOR_BACKEND", DefaultVectorBackend)),
		VectorDBPath:     e.str("VECTOR_DB_PATH", DefaultVectorDBPath),
		QdrantHost:       e.str("QDRANT_HOST", "localhost"),
		QdrantPort:       e.int("QDRANT_PORT", 6334),
		QdrantCollection: e.str("QDRANT_COLLECTION", "documents"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantTLS:        e.bool("QDRANT_TLS", false),

		ChunkPolicy:      strings.ToLower(e.str("CHUNK_POLICY", DefaultChunkPolicy)),
		ChunkSize:        e.int("CHUNK_SIZE", DefaultChunkSize),
		ChunkWindowWords: e.int("CHUNK_WINDOW_WORDS", DefaultChunkWindowWords),
		ChunkOverlap:     e.int("CHUNK_OVERLAP", DefaultChunkOverlap),

		MaxContextChunks:  e.int("MAX_CONTEXT_CHUNKS", DefaultMaxContextChunks),
		MaxQuestionLength: e.int("MAX_QUESTION_LENGTH", DefaultMaxQuestionLength),
		AllowedModels:     e.list("ALLOWED_MODELS", DefaultAllowedModels),
		DefaultModel:      e.str("DEFAULT_MODEL", DefaultModel),
		PromptStyle:       e.str("PROMPT_STYLE", DefaultPromptStyle),
		HistoryTokens:     e.int("HISTORY_TOKENS", DefaultHistoryTokens),

		MaxFileSize: int64(e.int("MAX_FILE_SIZE_MB", DefaultMaxFileSizeMB)) * 1024 * 1024,
		MaxFiles:    e.int("MAX_FILES_PER_UPLOAD", DefaultMaxFiles),

		HistoryCap: e.int("HISTORY_CAP", DefaultHistoryCap),
		HistoryDB:  os.Getenv("DOCQA_HISTORY_DB"),

		ChatRateLimit:    e.int("CHAT_RATE_LIMIT", DefaultChatRateLimit),
		ChatRateWindow:   e.duration("CHAT_RATE_WINDOW", DefaultChatRateWindow),
		UploadRateLimit:  e.int("UPLOAD_RATE_LIMIT", DefaultUploadRateLimit),
		UploadRateWindow: e.duration("UPLOAD_RATE_WINDOW", DefaultUploadRateWindow),
		RateLimitSweep:   e.duration("RATE_LIMIT_SWEEP", DefaultRateLimitSweep),

		Host:   e.str("DOCQA_HOST", DefaultHost),
		Port:   e.int("DOCQA_PORT", DefaultPort),
		APIKey: os.Getenv("DOCQA_API_KEY"),
	}
}

// HistoryDisabled reports whether transcript persistence is turned off.
func (s *Settings) HistoryDisabled() bool {
	return strings.EqualFold(s.HistoryDB, "disabled")
}

type envReader struct {
	log *slog.Logger
}

func (e envReader) str(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// int parses a positive integer.
func (e envReader) int(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		e.invalid(key, raw, fallback)
		return fallback
	}
	return n
}

func (e envReader) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		e.invalid(key, raw, fallback)
		return fallback
	}
	return d
}

func (e envReader) bool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		e.invalid(key, raw, fallback)
		return fallback
	}
	return b
}

// list splits a comma-separated value, dropping empty entries.
func (e envReader) list(key string, fallback []string) []string {
	raw := os.Getenv(key)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

func (e envReader) invalid(key, raw string, fallback any) {
	e.log.Warn("config: invalid value, using default",
		slog.String("key", key),
		slog.String("value", raw),
		slog.Any("default", fallback),
	)
}
