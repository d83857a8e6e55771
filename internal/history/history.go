// Package history holds the process-wide conversation record: an ordered,
// capped sequence of messages shared by every request. It is not scoped per
// client. An optional Persister mirrors appends to durable storage and lets
// the record be rebuilt at startup.
package history

import (
	"context"
	"log/slog"
	"sync"

	"github.com/54b3r/docqa-go/internal/rag"
)

// DefaultCap is the number of messages kept when no cap is configured.
const DefaultCap = 100

// Persister is durable storage for the transcript.
type Persister interface {
	Append(ctx context.Context, msgs ...rag.Message) error
	Recent(ctx context.Context, n int) ([]rag.Message, error)
	Clear(ctx context.Context) error
}

// Conversation is a FIFO-capped message sequence safe for concurrent use.
type Conversation struct {
	// mu guards msgs.
	mu   sync.Mutex
	msgs []rag.Message
	cap  int

	// writeMu serializes writers so the transcript receives appends in the
	// same order as msgs. It is always taken before mu.
	writeMu sync.Mutex

	// persist may be nil.
	persist Persister
	log     *slog.Logger
}

// New returns an empty Conversation keeping at most capacity messages.
// persist may be nil.
func New(capacity int, persist Persister, log *slog.Logger) *Conversation {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	if log == nil {
		log = slog.Default()
	}
	return &Conversation{cap: capacity, persist: persist, log: log}
}

// Cap returns the configured maximum length.
func (c *Conversation) Cap() int { return c.cap }

// Hydrate replaces the in-memory sequence with the newest Cap messages from
// the persister. It is a no-op without one.
func (c *Conversation) Hydrate(ctx context.Context) error {
	if c.persist == nil {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	msgs, err := c.persist.Recent(ctx, c.cap)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.msgs = msgs
	c.mu.Unlock()

	c.log.Info("history: restored from transcript", slog.Int("messages", len(msgs)))
	return nil
}

// Append adds msgs to the end and evicts from the front until the sequence
// is back at its cap. Persistence failures are logged and do not affect the
// in-memory record.
func (c *Conversation) Append(ctx context.Context, msgs ...rag.Message) {
	if len(msgs) == 0 {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.msgs = append(c.msgs, msgs...)
	if over := len(c.msgs) - c.cap; over > 0 {
		c.msgs = append([]rag.Message(nil), c.msgs[over:]...)
	}
	c.mu.Unlock()

	if c.persist != nil {
		if err := c.persist.Append(ctx, msgs...); err != nil {
			c.log.Warn("history: transcript append failed", slog.String("error", err.Error()))
		}
	}
}

// All returns a copy of the sequence, oldest first.
func (c *Conversation) All() []rag.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]rag.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Len returns the number of held messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

// Clear empties the sequence and the transcript.
func (c *Conversation) Clear(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.msgs = nil
	c.mu.Unlock()

	if c.persist != nil {
		return c.persist.Clear(ctx)
	}
	return nil
}
