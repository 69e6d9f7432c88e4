package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// recordingHistogram keeps every value passed to Observe.
type recordingHistogram struct {
	prometheus.Histogram
	observed []float64
}

func (r *recordingHistogram) Observe(v float64) { r.observed = append(r.observed, v) }

func TestTimerObservesElapsedDuration(t *testing.T) {
	h := &recordingHistogram{Histogram: TickDuration}
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDuration(h)

	require.NotNil(t, timer)
	require.Len(t, h.observed, 1)
	require.GreaterOrEqual(t, h.observed[0], 0.005)
}

func TestCollectorsAreRegistered(t *testing.T) {
	require.NotNil(t, TasksWaiting)
	require.NotNil(t, TasksRunning)
	require.NotNil(t, AdmissionsTotal)
	require.NotNil(t, AccidentsTotal)
	require.NotNil(t, TickDuration)

	for _, c := range []prometheus.Collector{TasksWaiting, TasksRunning, AdmissionsTotal, AccidentsTotal, TickDuration} {
		var already prometheus.AlreadyRegisteredError
		require.ErrorAs(t, prometheus.Register(c), &already)
	}
}
