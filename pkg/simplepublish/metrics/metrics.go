// Package metrics provides a Prometheus implementation of
// simplepublish.MetricsRecorder.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

const namespace = "simplepublish"

// Collector records orchestrator measurements into a Prometheus registry.
type Collector struct {
	publishAttempts *prometheus.CounterVec
	itemsPublished  *prometheus.CounterVec
	breakerChanges  *prometheus.CounterVec
	testsTotal      *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	batchDuration   prometheus.Histogram
	compatScore     prometheus.Histogram
	queueDepth      *prometheus.GaugeVec
	breakerOpen     *prometheus.GaugeVec
}

var _ simplepublish.MetricsRecorder = (*Collector)(nil)

// NewCollector creates a Collector registered on the given registerer. Pass
// prometheus.DefaultRegisterer to expose the metrics through the default
// promhttp handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		publishAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_attempts_total",
				Help:      "Total publish attempts including retries, labeled by final outcome",
			},
			[]string{"target", "outcome"},
		),
		itemsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_published_total",
				Help:      "Total successful target deliveries",
			},
			[]string{"target"},
		),
		breakerChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_transitions_total",
				Help:      "Total circuit breaker state transitions, labeled by the state entered",
			},
			[]string{"target", "state"},
		),
		testsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compatibility_tests_total",
				Help:      "Total compatibility tests",
			},
			[]string{"target", "compatible"},
		),
		publishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "publish_duration_seconds",
				Help:      "Wall time of one publish call including retries and backoff",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
			[]string{"target"},
		),
		batchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Wall time of one batch publishing pass",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		compatScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compatibility_score",
				Help:      "Compatibility score distribution (0-100)",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
		),
		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Items per lifecycle status",
			},
			[]string{"status"},
		),
		breakerOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_open",
				Help:      "1 while the target's circuit breaker is open",
			},
			[]string{"target"},
		),
	}
}

// RecordPublish implements simplepublish.MetricsRecorder.
func (c *Collector) RecordPublish(target string, success bool, kind simplepublish.ErrorKind, attempts int, elapsed time.Duration) {
	outcome := "success"
	if !success {
		outcome = string(kind)
		if outcome == "" {
			outcome = string(simplepublish.ErrorKindUnknown)
		}
	}
	c.publishAttempts.WithLabelValues(target, outcome).Add(float64(attempts))
	c.publishDuration.WithLabelValues(target).Observe(elapsed.Seconds())
	if success {
		c.itemsPublished.WithLabelValues(target).Inc()
	}
}

// RecordTest implements simplepublish.MetricsRecorder.
func (c *Collector) RecordTest(target string, score int, compatible bool) {
	verdict := "false"
	if compatible {
		verdict = "true"
	}
	c.testsTotal.WithLabelValues(target, verdict).Inc()
	c.compatScore.Observe(float64(score))
}

// RecordBatch implements simplepublish.MetricsRecorder.
func (c *Collector) RecordBatch(result *simplepublish.BatchResult) {
	if result == nil {
		return
	}
	c.batchDuration.Observe(result.Elapsed.Seconds())
}

// RecordBreakerState implements simplepublish.MetricsRecorder.
func (c *Collector) RecordBreakerState(target string, state simplepublish.BreakerState) {
	c.breakerChanges.WithLabelValues(target, string(state)).Inc()

	open := 0.0
	if state == simplepublish.BreakerOpen {
		open = 1.0
	}
	c.breakerOpen.WithLabelValues(target).Set(open)
}

// RecordQueueDepth implements simplepublish.MetricsRecorder.
func (c *Collector) RecordQueueDepth(counts map[simplepublish.ItemStatus]int) {
	statuses := []simplepublish.ItemStatus{
		simplepublish.ItemStatusPending,
		simplepublish.ItemStatusReady,
		simplepublish.ItemStatusPublishing,
		simplepublish.ItemStatusPublished,
		simplepublish.ItemStatusFailed,
	}
	// Set every status so vanished ones drop back to zero.
	for _, status := range statuses {
		c.queueDepth.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
