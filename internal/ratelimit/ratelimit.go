// Package ratelimit implements fixed-window admission control keyed by a
// client identifier. Each Limiter owns its table and sweeper goroutine, so
// endpoint classes with different budgets use separate instances.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often expired entries are evicted when
// Config.SweepInterval is zero.
const DefaultSweepInterval = 5 * time.Minute

// Config is the budget of one limiter.
type Config struct {
	// MaxRequests is the number of requests admitted per window.
	MaxRequests int

	// Window is the length of a counting window.
	Window time.Duration

	// SweepInterval is the period of the background eviction pass.
	SweepInterval time.Duration
}

// Decision is the outcome of a Check.
type Decision struct {
	// Allowed reports whether the request was admitted.
	Allowed bool

	// Remaining is how many more requests the window admits.
	Remaining int

	// ResetAt is when the current window ends.
	ResetAt time.Time
}

// entry is the window state of one identifier.
type entry struct {
	windowStart time.Time
	count       int
}

// Limiter is a fixed-window rate limiter. It is safe for concurrent use.
type Limiter struct {
	cfg Config

	// mu guards entries.
	mu      sync.Mutex
	entries map[string]*entry

	now  func() time.Time
	log  *slog.Logger
	stop chan struct{}
	once sync.Once
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

// WithoutSweeper disables the background goroutine. Sweep can still be
// called directly.
func WithoutSweeper() Option {
	return func(l *Limiter) { l.cfg.SweepInterval = -1 }
}

// New returns a Limiter and starts its sweeper. Call Stop to end it.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	l := &Limiter{
		cfg:     cfg,
		entries: make(map[string]*entry),
		now:     time.Now,
		log:     slog.Default(),
		stop:    make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}

	if l.cfg.SweepInterval > 0 {
		go l.sweepLoop()
	}
	return l
}

// Config returns the limiter's budget.
func (l *Limiter) Config() Config { return l.cfg }

// expired reports whether e's window has fully elapsed at now.
func (l *Limiter) expired(e *entry, now time.Time) bool {
	return now.Sub(e.windowStart) > l.cfg.Window
}

// Check admits or denies one request for id and reports the window state.
// A denied request does not count against the window.
func (l *Limiter) Check(id string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[id]
	if !ok || l.expired(e, now) {
		e = &entry{windowStart: now, count: 1}
		l.entries[id] = e
		return Decision{Allowed: true, Remaining: l.cfg.MaxRequests - 1, ResetAt: now.Add(l.cfg.Window)}
	}

	resetAt := e.windowStart.Add(l.cfg.Window)
	if e.count >= l.cfg.MaxRequests {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}
	e.count++
	return Decision{Allowed: true, Remaining: l.cfg.MaxRequests - e.count, ResetAt: resetAt}
}

// IsAllowed admits or denies one request for id.
func (l *Limiter) IsAllowed(id string) bool {
	return l.Check(id).Allowed
}

// RemainingRequests returns how many requests id may still make in its
// current window, without consuming one.
func (l *Limiter) RemainingRequests(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok || l.expired(e, l.now()) {
		return l.cfg.MaxRequests
	}
	return max(l.cfg.MaxRequests-e.count, 0)
}

// ResetTime returns when id's current window ends. It is the zero time when
// id has no live window.
func (l *Limiter) ResetTime(id string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok || l.expired(e, l.now()) {
		return time.Time{}
	}
	return e.windowStart.Add(l.cfg.Window)
}

// Len returns the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep drops every entry whose window has elapsed and returns how many were
// removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, e := range l.entries {
		if l.expired(e, now) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// sweepLoop runs Sweep on every tick until Stop.
func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.log.Debug("ratelimit: swept expired entries",
					slog.Int("removed", n),
					slog.Int("remaining", l.Len()),
				)
			}
		}
	}
}

// Stop ends the sweeper. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}
