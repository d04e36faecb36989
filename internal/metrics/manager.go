// Package metrics exposes Prometheus instrumentation for frame processing and sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
)

// Fallback reasons.
const (
	ReasonUnknownExercise = "unknown_exercise"
	ReasonUncalibrated    = "uncalibrated"
)

type Manager struct {
	// counters
	FramesProcessed *prometheus.CounterVec
	RepsCounted     *prometheus.CounterVec
	ConfigFallbacks *prometheus.CounterVec

	// gauges
	ActiveSessions prometheus.Gauge

	// histograms
	ProcessDuration prometheus.Histogram
}

func NewTestManager() *Manager {
	return NewManager("repsense", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("repsense", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	framesProcessed := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "frames_processed",
		Help:      "The total number of landmark frames processed",
	}, []string{"outcome"})
	repsCounted := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "reps_counted",
		Help:      "The total number of completed reps",
	}, []string{"exercise"})
	configFallbacks := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "config_fallbacks",
		Help:      "The total number of configurations that fell back to defaults",
	}, []string{"reason"})

	activeSessions := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "active_sessions",
		Help:      "Current number of open workout sessions",
	})

	processDuration := factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "process_duration_seconds",
		Help:      "Time spent smoothing and detecting one frame in seconds",
		Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
	})

	return &Manager{
		FramesProcessed: framesProcessed,
		RepsCounted:     repsCounted,
		ConfigFallbacks: configFallbacks,
		ActiveSessions:  activeSessions,
		ProcessDuration: processDuration,
	}
}

// SetupPrometheus returns a registry with the Go runtime and process collectors.
func SetupPrometheus() *prometheus.Registry {
	promRegistry := prometheus.NewRegistry()

	promRegistry.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return promRegistry
}
