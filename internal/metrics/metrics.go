package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder knows how to record task and download metrics.
type Recorder interface {
	TaskFinished(ctx context.Context, operation string, failed bool, duration time.Duration)
	DownloadedBytes(ctx context.Context, n int64)
	BookEvent(ctx context.Context, eventType string)
}

// Noop is a recorder that doesn't record anything.
const Noop = noop(0)

type noop int

func (noop) TaskFinished(_ context.Context, _ string, _ bool, _ time.Duration) {}
func (noop) DownloadedBytes(_ context.Context, _ int64)                        {}
func (noop) BookEvent(_ context.Context, _ string)                             {}

const prefix = "lendr"

type prometheusRecorder struct {
	tasks         *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	downloadBytes prometheus.Counter
	bookEvents    *prometheus.CounterVec
}

// NewPrometheus returns a recorder backed by Prometheus metrics registered on reg.
func NewPrometheus(reg prometheus.Registerer) Recorder {
	factory := promauto.With(reg)

	return prometheusRecorder{
		tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Subsystem: "task",
			Name:      "runs_total",
			Help:      "Total number of finished tasks.",
		}, []string{"operation", "result"}),

		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prefix,
			Subsystem: "task",
			Name:      "duration_seconds",
			Help:      "Task execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		downloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: prefix,
			Subsystem: "download",
			Name:      "bytes_total",
			Help:      "Total bytes of book content downloaded.",
		}),

		bookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Subsystem: "book_registry",
			Name:      "events_total",
			Help:      "Total number of book registry events published.",
		}, []string{"type"}),
	}
}

func (p prometheusRecorder) TaskFinished(_ context.Context, operation string, failed bool, duration time.Duration) {
	result := "success"
	if failed {
		result = "failure"
	}
	p.tasks.WithLabelValues(operation, result).Inc()
	p.taskDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (p prometheusRecorder) DownloadedBytes(_ context.Context, n int64) {
	p.downloadBytes.Add(float64(n))
}

func (p prometheusRecorder) BookEvent(_ context.Context, eventType string) {
	p.bookEvents.WithLabelValues(eventType).Inc()
}
