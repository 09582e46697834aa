package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "skechum",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skechum",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "skechum",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method"},
	)

	generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skechum",
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Image generation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "skechum",
			Subsystem: "generation",
			Name:      "provider_duration_seconds",
			Help:      "Time spent waiting on the image provider.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 9), // 0.5s to ~2m
		},
		[]string{"outcome"},
	)

	creditsMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skechum",
			Subsystem: "credits",
			Name:      "moved_total",
			Help:      "Credits appended to the ledger, by direction.",
		},
		[]string{"direction"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		generations,
		generationDuration,
		creditsMoved,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// InstrumentHandler records request counts, durations and in-flight requests.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		httpRequests.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
		httpDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// Generation outcomes.
const (
	OutcomeSucceeded    = "succeeded"
	OutcomeProviderFail = "provider_error"
	OutcomeTimeout      = "timeout"
	OutcomeInsufficient = "insufficient_credits"
	OutcomeInternal     = "internal_error"
	OutcomeReplayed     = "replayed"
)

// RecordGeneration counts one generation attempt and, when the provider was called, its latency.
func RecordGeneration(outcome string, providerTime time.Duration) {
	generations.WithLabelValues(outcome).Inc()
	if providerTime > 0 {
		generationDuration.WithLabelValues(outcome).Observe(providerTime.Seconds())
	}
}

// RecordCredits tracks ledger movement; delta is signed.
func RecordCredits(delta int) {
	switch {
	case delta > 0:
		creditsMoved.WithLabelValues("credit").Add(float64(delta))
	case delta < 0:
		creditsMoved.WithLabelValues("debit").Add(float64(-delta))
	}
}
