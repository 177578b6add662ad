// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and the session engine.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/pdfchat-go/internal/engine"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// Metrics holds every Prometheus collector owned by the service. It is
// created once, passed to the engine as its Observer, and to the server via
// Config.Metrics. Tests inject a fresh prometheus.Registry.
type Metrics struct {
	// chatRequestsTotal counts completed chat calls, partitioned by mode and
	// outcome: "ok", "rejected", "canceled", or "error".
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall-clock duration of each chat call,
	// retrieval and generation included.
	chatDurationSeconds *prometheus.HistogramVec

	// processDurationSeconds records the duration of successful index builds.
	processDurationSeconds prometheus.Histogram

	// chunksIndexedTotal counts chunks written into session indexes.
	chunksIndexedTotal prometheus.Counter

	// activeSessions is the number of sessions currently held in memory.
	activeSessions prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

var _ engine.Observer = (*Metrics)(nil)

// NewMetrics registers all metrics against reg and returns them.
// promauto.With(reg) is used so that each call registers into the provided
// registry rather than the global default, keeping unit tests hermetic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfchat",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of chat calls completed, partitioned by mode and outcome.",
		}, []string{"mode", "outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdfchat",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of chat calls including retrieval and generation.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"mode"}),

		processDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pdfchat",
			Subsystem: "process",
			Name:      "duration_seconds",
			Help:      "Duration of successful index builds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 180},
		}),

		chunksIndexedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pdfchat",
			Subsystem: "process",
			Name:      "chunks_indexed_total",
			Help:      "Total number of chunks embedded into session indexes.",
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pdfchat",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of sessions currently held in memory.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfchat",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdfchat",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// ChatCompleted implements engine.Observer.
func (m *Metrics) ChatCompleted(mode, outcome string, elapsed time.Duration) {
	m.chatRequestsTotal.WithLabelValues(mode, outcome).Inc()
	m.chatDurationSeconds.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// IndexBuilt implements engine.Observer.
func (m *Metrics) IndexBuilt(chunks int, elapsed time.Duration) {
	m.processDurationSeconds.Observe(elapsed.Seconds())
	m.chunksIndexedTotal.Add(float64(chunks))
}

// SessionsActive implements engine.Observer.
func (m *Metrics) SessionsActive(n int) {
	m.activeSessions.Set(float64(n))
}

// instrument wraps next so every request is counted and timed under the
// given handler name.
func (m *Metrics) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		m.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
	})
}
