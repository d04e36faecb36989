// Package rep turns smoothed landmark frames into repetition events.
package rep

import (
	"github.com/ayusman/repsense/internal/pose"
)

// DefaultDebounceMs is the minimum time between two counted reps.
const DefaultDebounceMs = 300

// DefaultSensitivity is the fraction of the envelope span used as the hysteresis threshold.
const DefaultSensitivity = 0.15

// Detector phases.
const (
	PhaseWaiting = "WAITING"
	PhaseEngaged = "ENGAGED"
	PhaseHolding = "HOLDING"
	PhaseIdle    = "IDLE"
)

// Feedback shown when the tracked landmarks are not visible.
const FeedbackOutOfView = "Move into view"

// Detector consumes one frame at a time and reports rep completions.
// Implementations are not safe for concurrent use.
type Detector interface {
	// Update processes a smoothed frame observed at timestampMs.
	Update(frame pose.Frame, timestampMs int64) Event
	// Reset returns the detector to its initial state and zeroes the rep count.
	Reset()
	// Reps returns the number of reps counted so far.
	Reps() int
	// State returns the current phase or state name.
	State() string
}

// FormReporter is implemented by detectors that can name the joints keeping
// the user from reaching the next position.
type FormReporter interface {
	FormIssues() []FormIssue
}

// Event is the outcome of processing one frame.
type Event struct {
	RepCompleted bool
	Reps         int
	State        string
	Feedback     string
}

// FormIssue describes one joint angle outside its required range.
type FormIssue struct {
	Joint  string  `json:"joint"`
	Vertex int     `json:"vertex"`
	Angle  float64 `json:"angle"`
	Known  bool    `json:"known"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// debounced reports whether a rep at now is far enough from the last counted one.
func debounced(hasLast bool, last, now, debounceMs int64) bool {
	return !hasLast || now-last >= debounceMs
}
