package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/apperr"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/ratelimit"
)

// maxUserAgentKey is how much of the User-Agent contributes to the client key.
const maxUserAgentKey = 50

// rateLimit admits requests through l. Every response carries
// X-RateLimit-Remaining and X-RateLimit-Reset; denials get 429 with
// Retry-After.
func rateLimit(class string, l *ratelimit.Limiter, m *serverMetrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := clientIdentifier(r)
		d := l.Check(id)

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))

		if !d.Allowed {
			m.rateLimitedTotal.WithLabelValues(class).Inc()
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("class", class),
				slog.String("client", id),
			)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.ResetAt, time.Now())))
			writeError(w, r, apperr.RateLimited(d.ResetAt))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds rounds the wait up to whole seconds, at least 1.
func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// clientIdentifier keys a client by its first forwarded address (else the
// remote IP) joined with the start of its User-Agent.
func clientIdentifier(r *http.Request) string {
	ua := r.UserAgent()
	if len(ua) > maxUserAgentKey {
		ua = ua[:maxUserAgentKey]
	}
	return clientIP(r) + "-" + ua
}

// clientIP returns the first X-Forwarded-For entry, or the remote IP without
// its port.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
