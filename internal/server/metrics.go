package server

import (
	"time"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/MeKo-Tech/cutout/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cutout_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cutout_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Task metrics
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cutout_tasks_total",
			Help: "Total number of finished tasks",
		},
		[]string{"kind", "outcome"}, // outcome: completed, cancelled, failed, rejected
	)

	tasksInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cutout_tasks_in_flight",
			Help: "Number of queued or running tasks",
		},
		[]string{"kind"},
	)

	taskQueueWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cutout_task_queue_wait_seconds",
			Help:    "Time tasks spend queued before a worker picks them up",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"kind"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cutout_task_duration_seconds",
			Help:    "Task processing duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 25},
		},
		[]string{"kind"},
	)

	// Segmentation metrics
	segmentationRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cutout_segmentation_rounds",
			Help:    "Rounds executed per completed segmentation",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 20, 50, 100},
		},
	)

	segmentationRegionPixels = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cutout_segmentation_region_pixels",
			Help:    "Pixels in the region of completed segmentations",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	segmentationFlow = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cutout_segmentation_max_flow",
			Help:    "Max-flow value of the final round",
			Buckets: prometheus.ExponentialBuckets(1, 10, 10),
		},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cutout_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // type: minute, hour, requests, data
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cutout_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024, 100 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cutout_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cutout_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)

// metricsObserver feeds worker pool lifecycle events into prometheus.
type metricsObserver struct{}

var _ worker.Observer = metricsObserver{}

func (metricsObserver) TaskQueued(kind string) {
	tasksInFlight.WithLabelValues(kind).Inc()
}

func (metricsObserver) TaskStarted(kind string, waited time.Duration) {
	taskQueueWait.WithLabelValues(kind).Observe(waited.Seconds())
}

func (metricsObserver) TaskFinished(kind string, outcome worker.Outcome, elapsed time.Duration) {
	if outcome != worker.OutcomeRejected {
		tasksInFlight.WithLabelValues(kind).Dec()
		taskDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
	tasksTotal.WithLabelValues(kind, string(outcome)).Inc()
}

// recordSegmentation records the statistics of a completed segmentation.
func recordSegmentation(res *grabcut.Result) {
	if res == nil {
		return
	}
	segmentationRounds.Observe(float64(res.Iterations))
	segmentationRegionPixels.Observe(float64(res.Region.Area()))
	segmentationFlow.Observe(res.Flow)
}
