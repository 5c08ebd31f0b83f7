package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

func histogramSamples(t *testing.T, reg *prometheus.Registry, name string) (uint64, float64) {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		h := mf.GetMetric()[0].GetHistogram()
		return h.GetSampleCount(), h.GetSampleSum()
	}

	t.Fatalf("histogram %q not found", name)
	return 0, 0
}

func TestCollector_RecordPublish(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPublish("blog", true, "", 2, 150*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.publishAttempts.WithLabelValues("blog", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.itemsPublished.WithLabelValues("blog")))

	c.RecordPublish("blog", false, simplepublish.ErrorKindTimeout, 3, time.Second)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.publishAttempts.WithLabelValues("blog", string(simplepublish.ErrorKindTimeout))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.itemsPublished.WithLabelValues("blog")), "failures must not count as published")

	c.RecordPublish("blog", false, "", 1, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.publishAttempts.WithLabelValues("blog", string(simplepublish.ErrorKindUnknown))))

	count, _ := histogramSamples(t, reg, "simplepublish_publish_duration_seconds")
	assert.Equal(t, uint64(3), count)
}

func TestCollector_RecordTest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTest("blog", 95, true)
	c.RecordTest("blog", 40, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.testsTotal.WithLabelValues("blog", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.testsTotal.WithLabelValues("blog", "false")))

	count, sum := histogramSamples(t, reg, "simplepublish_compatibility_score")
	assert.Equal(t, uint64(2), count)
	assert.Equal(t, 135.0, sum)
}

func TestCollector_RecordBatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBatch(&simplepublish.BatchResult{Elapsed: 2 * time.Second})
	c.RecordBatch(nil)

	count, sum := histogramSamples(t, reg, "simplepublish_batch_duration_seconds")
	assert.Equal(t, uint64(1), count)
	assert.Equal(t, 2.0, sum)
}

func TestCollector_RecordBreakerState(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBreakerState("blog", simplepublish.BreakerOpen)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.breakerChanges.WithLabelValues("blog", string(simplepublish.BreakerOpen))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.breakerOpen.WithLabelValues("blog")))

	c.RecordBreakerState("blog", simplepublish.BreakerClosed)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.breakerChanges.WithLabelValues("blog", string(simplepublish.BreakerClosed))))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.breakerOpen.WithLabelValues("blog")))
}

func TestCollector_RecordQueueDepth(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordQueueDepth(map[simplepublish.ItemStatus]int{
		simplepublish.ItemStatusPending: 2,
		simplepublish.ItemStatusReady:   1,
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.queueDepth.WithLabelValues(string(simplepublish.ItemStatusPending))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queueDepth.WithLabelValues(string(simplepublish.ItemStatusReady))))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.queueDepth.WithLabelValues(string(simplepublish.ItemStatusPublishing))))

	// A later snapshot resets statuses that emptied out.
	c.RecordQueueDepth(map[simplepublish.ItemStatus]int{})

	assert.Equal(t, 0.0, testutil.ToFloat64(c.queueDepth.WithLabelValues(string(simplepublish.ItemStatusPending))))
}
