package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	queueItemsTotal       *prometheus.CounterVec
	queueItemDuration     *prometheus.HistogramVec
	queueEnqueuedTotal    prometheus.Counter
	queueProcessingGauge  prometheus.Gauge
	historyAppendFailures prometheus.Counter
	streamClientsActive   *prometheus.GaugeVec
)

// RegisterMetrics initialises the Prometheus collectors used by the grader.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		queueItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gema",
			Subsystem: "queue",
			Name:      "items_finished_total",
			Help:      "Queue items that reached a terminal state.",
		}, []string{"status"})

		queueItemDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gema",
			Subsystem: "queue",
			Name:      "item_duration_seconds",
			Help:      "Time spent extracting and grading a single queue item.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 90, 180},
		}, []string{"status"})

		queueEnqueuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gema",
			Subsystem: "queue",
			Name:      "items_enqueued_total",
			Help:      "Files added to the grading queue.",
		})

		queueProcessingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gema",
			Subsystem: "queue",
			Name:      "processing",
			Help:      "1 while a queue drain is running.",
		})

		historyAppendFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gema",
			Subsystem: "history",
			Name:      "append_failures_total",
			Help:      "History entries that could not be persisted.",
		})

		streamClientsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gema",
			Subsystem: "queue",
			Name:      "stream_clients_active",
			Help:      "Connected queue progress subscribers.",
		}, []string{"transport"})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			queueItemsTotal, queueItemDuration, queueEnqueuedTotal, queueProcessingGauge,
			historyAppendFailures, streamClientsActive,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// QueueItemsFinished counts items by terminal status.
func QueueItemsFinished() *prometheus.CounterVec {
	RegisterMetrics()
	return queueItemsTotal
}

// QueueItemDuration observes per-item processing time by terminal status.
func QueueItemDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return queueItemDuration
}

// QueueEnqueued counts files added to the queue.
func QueueEnqueued() prometheus.Counter {
	RegisterMetrics()
	return queueEnqueuedTotal
}

// QueueProcessing reports whether a drain is running.
func QueueProcessing() prometheus.Gauge {
	RegisterMetrics()
	return queueProcessingGauge
}

// HistoryAppendFailures counts history writes that failed.
func HistoryAppendFailures() prometheus.Counter {
	RegisterMetrics()
	return historyAppendFailures
}

// StreamClientsActive tracks connected progress subscribers per transport.
func StreamClientsActive() *prometheus.GaugeVec {
	RegisterMetrics()
	return streamClientsActive
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}
