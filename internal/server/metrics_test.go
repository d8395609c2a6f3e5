package server

import (
	"testing"
	"time"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/MeKo-Tech/cutout/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserver(t *testing.T) {
	const kind = "observer-test"
	obs := metricsObserver{}

	obs.TaskQueued(kind)
	obs.TaskQueued(kind)
	assert.InDelta(t, 2, testutil.ToFloat64(tasksInFlight.WithLabelValues(kind)), 0)

	obs.TaskStarted(kind, 10*time.Millisecond)
	obs.TaskFinished(kind, worker.OutcomeCompleted, 20*time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(tasksInFlight.WithLabelValues(kind)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(tasksTotal.WithLabelValues(kind, "completed")), 0)

	obs.TaskFinished(kind, worker.OutcomeRejected, 0)
	assert.InDelta(t, 1, testutil.ToFloat64(tasksInFlight.WithLabelValues(kind)), 0, "rejected tasks were never queued")
	assert.InDelta(t, 1, testutil.ToFloat64(tasksTotal.WithLabelValues(kind, "rejected")), 0)
}

func histogramCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestRecordSegmentation(t *testing.T) {
	before := histogramCount(t, segmentationRounds)
	recordSegmentation(nil)
	assert.Equal(t, before, histogramCount(t, segmentationRounds))

	recordSegmentation(&grabcut.Result{Iterations: 3, Region: grabcut.Rect{Width: 4, Height: 4}, Flow: 12})
	assert.Equal(t, before+1, histogramCount(t, segmentationRounds))
	assert.Equal(t, before+1, histogramCount(t, segmentationRegionPixels))
}
