// Package metrics declares the prometheus collectors published by the
// supervisor. Nothing in this package starts an HTTP listener; a
// caller that wants a /metrics endpoint wires Handler() into its own
// server, keeping tasque free of any network protocol of its own.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TasksWaiting is the current size of the Waiting set.
	TasksWaiting = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tasque_tasks_waiting",
			Help: "Number of tasks currently waiting for admission",
		},
	)

	// TasksRunning is the current size of the supervisor's worker
	// registry.
	TasksRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tasque_tasks_running",
			Help: "Number of tasks currently running",
		},
	)

	// AdmissionsTotal counts tasks admitted (forked) since startup.
	AdmissionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasque_admissions_total",
			Help: "Total number of tasks admitted and forked",
		},
	)

	// AccidentsTotal counts reconcile transitions into Accident.
	AccidentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasque_accidents_total",
			Help: "Total number of tasks reconciled into the accident state",
		},
	)

	// TickDuration observes the wall time of one main-loop iteration.
	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tasque_tick_duration_seconds",
			Help:    "Duration of one supervisor main-loop tick in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(TasksWaiting)
	prometheus.MustRegister(TasksRunning)
	prometheus.MustRegister(AdmissionsTotal)
	prometheus.MustRegister(AccidentsTotal)
	prometheus.MustRegister(TickDuration)
}

// Handler exposes the registered collectors for a caller that wants
// to mount them on its own HTTP server.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an elapsed duration for ObserveDuration-style calls.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time on the given histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}
