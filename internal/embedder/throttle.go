package embedder

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Throttled wraps an Embedder with a token-bucket limit on outbound calls so
// bulk ingestion cannot saturate a shared embedding service.
type Throttled struct {
	next    rag.Embedder
	limiter *rate.Limiter
}

// Throttle returns e limited to rps calls per second with the given burst.
// rps <= 0 returns e unchanged.
func Throttle(e rag.Embedder, rps float64, burst int) rag.Embedder {
	if rps <= 0 {
		return e
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{next: e, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Embed waits for a token, then delegates. Cancelling ctx while waiting
// returns the context error.
func (t *Throttled) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedder: throttle: %w", err)
	}
	return t.next.Embed(ctx, texts)
}
