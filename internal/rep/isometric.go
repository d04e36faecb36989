package rep

import (
	"fmt"

	"github.com/ayusman/repsense/internal/geometry"
	"github.com/ayusman/repsense/internal/pose"
)

// Isometric tracks a static hold. It never reports a rep.
type Isometric struct {
	minConfidence float64
	phase         string
	holdStart     int64
	holdMs        int64
}

// NewIsometric creates a hold tracker. minConfidence <= 0 selects the default gate.
func NewIsometric(minConfidence float64) *Isometric {
	if minConfidence <= 0 {
		minConfidence = geometry.DefaultMinConfidence
	}
	return &Isometric{minConfidence: minConfidence, phase: PhaseIdle}
}

// Update implements Detector. The hold timer runs while the torso is visible.
func (d *Isometric) Update(frame pose.Frame, timestampMs int64) Event {
	if !d.torsoVisible(frame) {
		d.phase = PhaseIdle
		d.holdMs = 0
		return Event{State: d.phase, Feedback: FeedbackOutOfView}
	}

	if d.phase != PhaseHolding {
		d.phase = PhaseHolding
		d.holdStart = timestampMs
	}
	d.holdMs = timestampMs - d.holdStart

	return Event{State: d.phase, Feedback: fmt.Sprintf("Holding %ds", d.holdMs/1000)}
}

func (d *Isometric) torsoVisible(frame pose.Frame) bool {
	shoulder := geometry.IsConfident(frame.At(pose.LeftShoulder), d.minConfidence) ||
		geometry.IsConfident(frame.At(pose.RightShoulder), d.minConfidence)
	hip := geometry.IsConfident(frame.At(pose.LeftHip), d.minConfidence) ||
		geometry.IsConfident(frame.At(pose.RightHip), d.minConfidence)
	return shoulder && hip
}

// HoldMs returns the duration of the current hold.
func (d *Isometric) HoldMs() int64 {
	return d.holdMs
}

// Reset implements Detector.
func (d *Isometric) Reset() {
	d.phase = PhaseIdle
	d.holdStart = 0
	d.holdMs = 0
}

// Reps implements Detector. Holds have no repetitions.
func (d *Isometric) Reps() int {
	return 0
}

// State implements Detector.
func (d *Isometric) State() string {
	return d.phase
}
