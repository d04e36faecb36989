// Package engine routes landmark frames through smoothing and the selected rep detector.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/repsense/internal/envelope"
	"github.com/ayusman/repsense/internal/exercise"
	"github.com/ayusman/repsense/internal/metrics"
	"github.com/ayusman/repsense/internal/pose"
	"github.com/ayusman/repsense/internal/rep"
	"github.com/ayusman/repsense/internal/smoother"
)

// DefaultCalibrationTimeout bounds sample loading in Configure.
const DefaultCalibrationTimeout = 2 * time.Second

// Options configures a Dispatcher. Zero values select defaults.
type Options struct {
	Catalog            *exercise.Catalog
	Source             envelope.SampleSource
	SmoothingWindow    int
	MinConfidence      float64
	CalibrationTimeout time.Duration
	Logger             *slog.Logger
	Metrics            *metrics.Manager
}

// Result is the per-frame output delivered to the session layer.
type Result struct {
	RepCompleted    bool   `json:"repCompleted"`
	TotalReps       int    `json:"totalReps"`
	State           string `json:"state"`
	Feedback        string `json:"feedbackMessage"`
	FormIssueJoints []int  `json:"formIssueJointIndices,omitempty"`
	Exercise        string `json:"exercise"`
	Skipped         bool   `json:"skipped,omitempty"`
}

type calibration struct {
	env        envelope.Envelope
	calibrated bool
}

// Dispatcher maps an exercise to its detector and feeds it smoothed frames.
// Configure and Process may be called from different goroutines.
type Dispatcher struct {
	source        envelope.SampleSource
	minConfidence float64
	timeout       time.Duration
	logger        *slog.Logger
	metrics       *metrics.Manager

	mu         sync.Mutex
	generation uint64
	catalog    *exercise.Catalog
	cfg        exercise.Config
	detector   rep.Detector
	smoother   *smoother.Smoother
	calibrated bool

	cacheMu sync.Mutex
	cache   map[string]calibration
}

// New creates a dispatcher running the fallback detector until Configure is called.
func New(opts Options) *Dispatcher {
	if opts.Catalog == nil {
		opts.Catalog = exercise.Default()
	}
	if opts.CalibrationTimeout <= 0 {
		opts.CalibrationTimeout = DefaultCalibrationTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fallback := exercise.Fallback()
	return &Dispatcher{
		source:        opts.Source,
		minConfidence: opts.MinConfidence,
		timeout:       opts.CalibrationTimeout,
		logger:        opts.Logger.With("component", "engine"),
		metrics:       opts.Metrics,
		catalog:       opts.Catalog,
		cfg:           fallback,
		detector:      fallback.NewDetector(envelope.Default(), false, opts.MinConfidence),
		smoother:      smoother.New(opts.SmoothingWindow, opts.MinConfidence),
		cache:         make(map[string]calibration),
	}
}

// Configure selects the exercise and resets all detector and smoothing state.
// Unknown names fall back to the generic wrist-versus-shoulder detector.
// Sample loading happens before the swap, so concurrent Process calls keep
// running against the previous detector until it completes. When calls
// overlap, the one made last wins regardless of which calibration finishes first.
func (d *Dispatcher) Configure(ctx context.Context, name string) {
	d.mu.Lock()
	d.generation++
	gen := d.generation
	catalog := d.catalog
	d.mu.Unlock()

	cfg, err := catalog.Lookup(name)
	if err != nil {
		if errors.Is(err, exercise.ErrUnknownExercise) {
			d.logger.Warn("Unknown exercise, using generic detector", "exercise", name)
		} else {
			d.logger.Warn("Exercise lookup failed, using generic detector", "exercise", name, "error", err)
		}
		d.fallback(metrics.ReasonUnknownExercise)
		cfg = exercise.Fallback()
	}

	cal := calibration{env: envelope.Default()}
	if cfg.Kind == exercise.KindHysteresis && cfg.Name != exercise.FallbackName {
		cal = d.calibrate(ctx, cfg.Name)
		if !cal.calibrated {
			d.fallback(metrics.ReasonUncalibrated)
		}
	}

	detector := cfg.NewDetector(cal.env, cal.calibrated, d.minConfidence)

	d.mu.Lock()
	if gen != d.generation {
		d.mu.Unlock()
		d.logger.Debug("Discarding superseded exercise configuration", "exercise", cfg.Name)
		return
	}
	d.cfg = cfg
	d.detector = detector
	d.calibrated = cal.calibrated
	d.smoother.Reset()
	d.mu.Unlock()

	d.logger.Info("Exercise configured", "exercise", cfg.Name, "kind", cfg.Kind, "calibrated", cal.calibrated)
}

// calibrate returns the cached envelope for name, building it on first use.
func (d *Dispatcher) calibrate(ctx context.Context, name string) calibration {
	d.cacheMu.Lock()
	cal, ok := d.cache[name]
	d.cacheMu.Unlock()
	if ok {
		return cal
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	env, calibrated := envelope.Calibrate(ctx, d.source, name, d.logger)
	cal = calibration{env: env, calibrated: calibrated}

	// Only successful calibrations are cached so a later sample upload is picked up.
	if calibrated {
		d.cacheMu.Lock()
		d.cache[name] = cal
		d.cacheMu.Unlock()
	}
	return cal
}

// Invalidate drops the cached envelope for an exercise, forcing recalibration
// on the next Configure.
func (d *Dispatcher) Invalidate(name string) {
	d.cacheMu.Lock()
	delete(d.cache, exercise.Normalize(name))
	d.cacheMu.Unlock()
}

// SetCatalog replaces the catalog used by subsequent Configure calls.
func (d *Dispatcher) SetCatalog(c *exercise.Catalog) {
	if c == nil {
		return
	}
	d.mu.Lock()
	d.catalog = c
	d.mu.Unlock()
}

// Process smooths the frame and runs the active detector. A malformed frame is
// skipped without touching any state.
func (d *Dispatcher) Process(frame pose.Frame, timestampMs int64) Result {
	start := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := frame.Validate(); err != nil {
		d.logger.Debug("Skipping malformed frame", "error", err)
		d.countFrame(metrics.OutcomeSkipped)
		return Result{
			TotalReps: d.detector.Reps(),
			State:     d.detector.State(),
			Exercise:  d.cfg.Name,
			Skipped:   true,
		}
	}

	ev := d.detector.Update(d.smoother.Smooth(frame), timestampMs)

	res := Result{
		RepCompleted: ev.RepCompleted,
		TotalReps:    ev.Reps,
		State:        ev.State,
		Feedback:     ev.Feedback,
		Exercise:     d.cfg.Name,
	}
	if fr, ok := d.detector.(rep.FormReporter); ok {
		res.FormIssueJoints = issueJoints(fr.FormIssues())
	}

	d.countFrame(metrics.OutcomeOK)
	if ev.RepCompleted && d.metrics != nil {
		d.metrics.RepsCounted.WithLabelValues(d.cfg.Name).Inc()
	}
	if d.metrics != nil {
		d.metrics.ProcessDuration.Observe(time.Since(start).Seconds())
	}

	return res
}

// issueJoints returns the distinct vertex landmark indices of the issues.
func issueJoints(issues []rep.FormIssue) []int {
	if len(issues) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(issues))
	var out []int
	for _, is := range issues {
		if is.Vertex < 0 || seen[is.Vertex] {
			continue
		}
		seen[is.Vertex] = true
		out = append(out, is.Vertex)
	}
	return out
}

// Reset zeroes the rep count and clears smoothing history for the current exercise.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Reset()
	d.smoother.Reset()
}

// Exercise returns the name of the active exercise.
func (d *Dispatcher) Exercise() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Name
}

// Calibrated reports whether the active detector uses an envelope built from samples.
func (d *Dispatcher) Calibrated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calibrated
}

// Reps returns the active detector's rep count.
func (d *Dispatcher) Reps() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detector.Reps()
}

func (d *Dispatcher) countFrame(outcome string) {
	if d.metrics != nil {
		d.metrics.FramesProcessed.WithLabelValues(outcome).Inc()
	}
}

func (d *Dispatcher) fallback(reason string) {
	if d.metrics != nil {
		d.metrics.ConfigFallbacks.WithLabelValues(reason).Inc()
	}
}
