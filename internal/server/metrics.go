// Prometheus collectors for the HTTP server and the helpers handlers use to
// record them.

package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/docqa-go/internal/apperr"
)

// labelHandler partitions HTTP metrics by route pattern rather than raw path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// Each Server registers into its own Config.MetricsRegistry so tests stay
// hermetic.
type serverMetrics struct {
	// chatRequestsTotal counts completed /api/chat requests by outcome:
	// "ok" or the apperr kind of the failure.
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records retrieval plus generation latency.
	chatDurationSeconds *prometheus.HistogramVec

	// chatInFlight is the number of questions currently being answered.
	chatInFlight prometheus.Gauge

	// uploadRequestsTotal counts completed /api/upload requests by outcome.
	uploadRequestsTotal *prometheus.CounterVec

	// uploadDurationSeconds records ingestion batch latency.
	uploadDurationSeconds *prometheus.HistogramVec

	// chunksIngestedTotal counts fragments committed by uploads.
	chunksIngestedTotal prometheus.Counter

	// rateLimitedTotal counts denials by endpoint class (chat, upload).
	rateLimitedTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests by method, pattern and code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of /api/chat requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/chat requests including retrieval and generation.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),

		chatInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "chat",
			Name:      "in_flight",
			Help:      "Number of /api/chat requests currently being answered.",
		}),

		uploadRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "upload",
			Name:      "requests_total",
			Help:      "Total number of /api/upload requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		uploadDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/upload requests including embedding.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 300, 900},
		}, []string{"outcome"}),

		chunksIngestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "upload",
			Name:      "chunks_ingested_total",
			Help:      "Total number of fragments committed by uploads.",
		}),

		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "ratelimit",
			Name:      "denied_total",
			Help:      "Total number of requests denied by a rate limiter, partitioned by endpoint class.",
		}, []string{"class"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// outcome labels a finished request.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}

func (m *serverMetrics) observeChat(err error, start time.Time) {
	o := outcome(err)
	m.chatRequestsTotal.WithLabelValues(o).Inc()
	m.chatDurationSeconds.WithLabelValues(o).Observe(time.Since(start).Seconds())
}

func (m *serverMetrics) observeUpload(err error, start time.Time) {
	o := outcome(err)
	m.uploadRequestsTotal.WithLabelValues(o).Inc()
	m.uploadDurationSeconds.WithLabelValues(o).Observe(time.Since(start).Seconds())
}
