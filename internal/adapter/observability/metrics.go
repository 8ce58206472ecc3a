package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and
	// status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// QueueDepth is a gauge of currently waiting (non-stale,
	// non-complete) prompts.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_queue_depth",
			Help: "Number of waiting prompts currently queued",
		},
	)
	// ActiveWorkers is a gauge of non-stale workers.
	ActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_active_workers",
			Help: "Number of workers that have checked in within the staleness window",
		},
	)
	// DispatchLatency records the time between prompt admission and
	// first dispatch.
	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broker_dispatch_latency_seconds",
			Help:    "Seconds between prompt submission and first unit dispatch",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	// SkipReasonsTotal counts poll_work rejections by eligibility reason.
	SkipReasonsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_skip_reasons_total",
			Help: "Total poll_work rejections by eligibility reason",
		},
		[]string{"reason"},
	)
	// GenerationsCompletedTotal counts completed sub-units.
	GenerationsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_generations_completed_total",
			Help: "Total number of completed processing generations",
		},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(ActiveWorkers)
	prometheus.MustRegister(DispatchLatency)
	prometheus.MustRegister(SkipReasonsTotal)
	prometheus.MustRegister(GenerationsCompletedTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// RecordSkip increments the skip-reason counter (§4.4 poll_work step 4).
func RecordSkip(reason string) {
	SkipReasonsTotal.WithLabelValues(reason).Inc()
}

// RecordGenerationCompleted increments the completed-generations counter.
func RecordGenerationCompleted() {
	GenerationsCompletedTotal.Inc()
}
