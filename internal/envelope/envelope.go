// Package envelope derives per-exercise motion envelopes from recorded sample frames.
package envelope

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/repsense/internal/geometry"
	"github.com/ayusman/repsense/internal/pose"
)

// MinFrames is the smallest sample that yields an envelope.
const MinFrames = 2

// Range is the observed span of one metric.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
	Mid float64 `json:"mid" yaml:"mid"`
}

// NewRange builds a Range with Mid halfway between min and max.
func NewRange(min, max float64) Range {
	if min > max {
		min, max = max, min
	}
	return Range{Min: min, Max: max, Mid: (min + max) / 2}
}

// Span returns Max - Min.
func (r Range) Span() float64 {
	return r.Max - r.Min
}

// Contains reports whether v lies within [Min, Max].
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// DefaultRange is the fallback range for every vertical position metric.
var DefaultRange = Range{Min: 0.2, Max: 0.8, Mid: 0.5}

// DefaultWristShoulderRange is the fallback range for WristShoulderY.
var DefaultWristShoulderRange = Range{Min: -0.4, Max: 0.4, Mid: 0}

// Envelope maps each metric to its observed range. Treat it as immutable once built.
type Envelope map[Metric]Range

// Default returns the envelope used when no sample data is available.
func Default() Envelope {
	e := make(Envelope, len(TrackedMetrics)+1)
	for _, m := range TrackedMetrics {
		e[m] = DefaultRange
	}
	e[WristShoulderY] = DefaultWristShoulderRange
	return e
}

// Range returns the range for m, falling back to the default when m is absent.
func (e Envelope) Range(m Metric) Range {
	if r, ok := e[m]; ok {
		return r
	}
	if m == WristShoulderY {
		return DefaultWristShoulderRange
	}
	return DefaultRange
}

// Metrics returns the metrics present in the envelope, sorted by name.
func (e Envelope) Metrics() []Metric {
	out := make([]Metric, 0, len(e))
	for m := range e {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Build derives the envelope of the tracked metrics over the whole sample.
// It returns false with fewer than MinFrames frames. A metric measurable in fewer than
// MinFrames frames is left out so that lookups fall back to its default.
func Build(frames []pose.Frame) (Envelope, bool) {
	if len(frames) < MinFrames {
		return nil, false
	}

	e := make(Envelope, len(TrackedMetrics))
	values := make([]float64, 0, len(frames))

	for _, m := range TrackedMetrics {
		values = values[:0]
		for _, f := range frames {
			if v, ok := MetricValue(f, m, geometry.DefaultMinConfidence); ok {
				values = append(values, v)
			}
		}
		if len(values) < MinFrames {
			continue
		}
		e[m] = NewRange(floats.Min(values), floats.Max(values))
	}

	if len(e) == 0 {
		return nil, false
	}
	return e, true
}

// BuildAngles derives ranges over named joint angles, keyed by joint name.
// Unknown joint names and joints measurable in fewer than MinFrames frames are skipped.
func BuildAngles(frames []pose.Frame, joints []string) map[string]Range {
	if len(frames) < MinFrames {
		return nil
	}

	out := make(map[string]Range, len(joints))
	for _, name := range joints {
		var values []float64
		for _, f := range frames {
			if a, ok := geometry.NamedAngle(f, name, geometry.DefaultMinConfidence); ok {
				values = append(values, a)
			}
		}
		if len(values) < MinFrames {
			continue
		}
		out[name] = NewRange(floats.Min(values), floats.Max(values))
	}
	return out
}
