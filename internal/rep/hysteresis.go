package rep

import (
	"fmt"

	"github.com/ayusman/repsense/internal/envelope"
	"github.com/ayusman/repsense/internal/geometry"
	"github.com/ayusman/repsense/internal/pose"
)

// recentSize is the number of metric values kept for inspection.
const recentSize = 8

// Direction is the way a metric moves when a rep begins.
type Direction string

const (
	// Rise means the landmarks move up the image, so the metric decreases.
	Rise Direction = "rise"
	// Fall means the landmarks move down the image, so the metric increases.
	Fall Direction = "fall"
)

// HysteresisConfig selects the metric and tuning of a threshold detector.
type HysteresisConfig struct {
	Metric        envelope.Metric `json:"metric" yaml:"metric"`
	Direction     Direction       `json:"direction" yaml:"direction"`
	Sensitivity   float64         `json:"sensitivity" yaml:"sensitivity"`
	DebounceMs    int64           `json:"debounceMs" yaml:"debounce_ms"`
	MinConfidence float64         `json:"minConfidence" yaml:"min_confidence"`
	StartCue      string          `json:"startCue,omitempty" yaml:"start_cue,omitempty"`
	ReturnCue     string          `json:"returnCue,omitempty" yaml:"return_cue,omitempty"`
}

// withDefaults fills zero fields.
func (c HysteresisConfig) withDefaults() HysteresisConfig {
	if c.Direction == "" {
		c.Direction = Rise
	}
	if c.Sensitivity <= 0 {
		c.Sensitivity = DefaultSensitivity
	}
	if c.DebounceMs <= 0 {
		c.DebounceMs = DefaultDebounceMs
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = geometry.DefaultMinConfidence
	}
	if c.StartCue == "" {
		c.StartCue = "Begin the movement"
	}
	if c.ReturnCue == "" {
		c.ReturnCue = "Return to start"
	}
	return c
}

// Hysteresis counts reps as a metric leaves its midpoint by more than a threshold
// and then returns past the midpoint.
type Hysteresis struct {
	cfg       HysteresisConfig
	rng       envelope.Range
	threshold float64

	phase   string
	reps    int
	lastRep int64
	hasLast bool

	recent [recentSize]float64
	head   int
	count  int
}

// NewHysteresis creates a detector over rng, typically an envelope range.
func NewHysteresis(cfg HysteresisConfig, rng envelope.Range) *Hysteresis {
	cfg = cfg.withDefaults()
	return &Hysteresis{
		cfg:       cfg,
		rng:       rng,
		threshold: rng.Span() * cfg.Sensitivity,
		phase:     PhaseWaiting,
	}
}

// Config returns the effective configuration.
func (h *Hysteresis) Config() HysteresisConfig {
	return h.cfg
}

// Range returns the range the thresholds were derived from.
func (h *Hysteresis) Range() envelope.Range {
	return h.rng
}

// Threshold returns (max-min) * sensitivity.
func (h *Hysteresis) Threshold() float64 {
	return h.threshold
}

// Update measures the configured metric and advances the state machine.
func (h *Hysteresis) Update(frame pose.Frame, timestampMs int64) Event {
	v, ok := envelope.MetricValue(frame, h.cfg.Metric, h.cfg.MinConfidence)
	return h.Observe(v, ok, timestampMs)
}

// Observe advances the state machine with an already computed metric value.
// known=false leaves the state untouched. A return past the midpoint within
// DebounceMs of the last counted rep goes back to WAITING without counting,
// and that movement is not counted later; the next rep needs a fresh engage.
func (h *Hysteresis) Observe(value float64, known bool, timestampMs int64) Event {
	if !known {
		return h.event(false, FeedbackOutOfView)
	}

	h.remember(value)

	switch h.phase {
	case PhaseWaiting:
		if h.engaged(value) {
			h.phase = PhaseEngaged
			return h.event(false, h.cfg.ReturnCue)
		}
		return h.event(false, h.cfg.StartCue)

	case PhaseEngaged:
		if !h.released(value) {
			return h.event(false, h.cfg.ReturnCue)
		}
		h.phase = PhaseWaiting
		// A return inside the debounce window is treated as noise and not counted.
		if !debounced(h.hasLast, h.lastRep, timestampMs, h.cfg.DebounceMs) {
			return h.event(false, h.cfg.StartCue)
		}
		h.reps++
		h.lastRep = timestampMs
		h.hasLast = true
		return h.event(true, fmt.Sprintf("Rep %d", h.reps))
	}

	return h.event(false, "")
}

func (h *Hysteresis) engaged(v float64) bool {
	if h.cfg.Direction == Fall {
		return v > h.rng.Mid+h.threshold
	}
	return v < h.rng.Mid-h.threshold
}

func (h *Hysteresis) released(v float64) bool {
	if h.cfg.Direction == Fall {
		return v <= h.rng.Mid
	}
	return v >= h.rng.Mid
}

func (h *Hysteresis) remember(v float64) {
	h.recent[h.head] = v
	h.head = (h.head + 1) % recentSize
	if h.count < recentSize {
		h.count++
	}
}

// Recent returns the buffered metric values, oldest first.
func (h *Hysteresis) Recent() []float64 {
	out := make([]float64, 0, h.count)
	start := (h.head - h.count + recentSize) % recentSize
	for i := 0; i < h.count; i++ {
		out = append(out, h.recent[(start+i)%recentSize])
	}
	return out
}

func (h *Hysteresis) event(completed bool, feedback string) Event {
	return Event{RepCompleted: completed, Reps: h.reps, State: h.phase, Feedback: feedback}
}

// Reset implements Detector.
func (h *Hysteresis) Reset() {
	h.phase = PhaseWaiting
	h.reps = 0
	h.lastRep = 0
	h.hasLast = false
	h.head = 0
	h.count = 0
}

// Reps implements Detector.
func (h *Hysteresis) Reps() int {
	return h.reps
}

// State implements Detector.
func (h *Hysteresis) State() string {
	return h.phase
}
