package rep

import (
	"fmt"
	"sort"

	"github.com/ayusman/repsense/internal/geometry"
	"github.com/ayusman/repsense/internal/pose"
)

// AngleRange is an inclusive range of joint angles in degrees.
type AngleRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether angle lies within the range.
func (r AngleRange) Contains(angle float64) bool {
	return angle >= r.Min && angle <= r.Max
}

// StateSpec is one named body position and the joint angles that define it.
type StateSpec struct {
	Name   string                `json:"name" yaml:"name"`
	Angles map[string]AngleRange `json:"angles" yaml:"angles"`
	Cue    string                `json:"cue,omitempty" yaml:"cue,omitempty"`
}

// StateMachineConfig is an ordered cycle of states. A rep is one full cycle.
type StateMachineConfig struct {
	States []StateSpec `json:"states" yaml:"states"`
	// Joints resolves angle names not found in geometry.Joints.
	Joints        map[string]geometry.Joint `json:"joints,omitempty" yaml:"joints,omitempty"`
	MinConfidence float64                   `json:"minConfidence" yaml:"min_confidence"`
	DebounceMs    int64                     `json:"debounceMs" yaml:"debounce_ms"`
}

// StateMachine advances through configured states when every angle requirement
// of the next state holds, counting a rep on each wrap back to the first state.
type StateMachine struct {
	cfg     StateMachineConfig
	current int
	reps    int
	lastRep int64
	hasLast bool
	issues  []FormIssue
}

// NewStateMachine creates a detector starting in the first state.
func NewStateMachine(cfg StateMachineConfig) *StateMachine {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = geometry.DefaultMinConfidence
	}
	return &StateMachine{cfg: cfg}
}

// Update implements Detector.
func (s *StateMachine) Update(frame pose.Frame, timestampMs int64) Event {
	n := len(s.cfg.States)
	if n < 2 {
		s.issues = nil
		return Event{Reps: s.reps, State: s.State()}
	}

	next := (s.current + 1) % n
	satisfied, issues := s.check(frame, s.cfg.States[next])
	s.issues = issues

	if !satisfied {
		feedback := s.cfg.States[next].Cue
		for _, is := range issues {
			if !is.Known {
				feedback = FeedbackOutOfView
				break
			}
		}
		return Event{Reps: s.reps, State: s.State(), Feedback: feedback}
	}

	prev := s.current
	s.current = next

	if next == 0 && prev != 0 && debounced(s.hasLast, s.lastRep, timestampMs, s.cfg.DebounceMs) {
		s.reps++
		s.lastRep = timestampMs
		s.hasLast = true
		return Event{RepCompleted: true, Reps: s.reps, State: s.State(), Feedback: fmt.Sprintf("Rep %d", s.reps)}
	}

	return Event{Reps: s.reps, State: s.State(), Feedback: s.cfg.States[(next+1)%n].Cue}
}

// check evaluates every requirement of st in name order. An unmeasurable angle fails.
func (s *StateMachine) check(frame pose.Frame, st StateSpec) (bool, []FormIssue) {
	names := make([]string, 0, len(st.Angles))
	for name := range st.Angles {
		names = append(names, name)
	}
	sort.Strings(names)

	var issues []FormIssue
	for _, name := range names {
		want := st.Angles[name]
		joint, ok := s.joint(name)
		if !ok {
			issues = append(issues, FormIssue{Joint: name, Vertex: -1, Angle: geometry.UnknownAngle, Min: want.Min, Max: want.Max})
			continue
		}

		angle, known := geometry.JointAngle(frame, joint, s.cfg.MinConfidence)
		if known && want.Contains(angle) {
			continue
		}
		issues = append(issues, FormIssue{Joint: name, Vertex: joint.B, Angle: angle, Known: known, Min: want.Min, Max: want.Max})
	}

	return len(issues) == 0, issues
}

func (s *StateMachine) joint(name string) (geometry.Joint, bool) {
	if j, ok := s.cfg.Joints[name]; ok {
		return j, true
	}
	j, ok := geometry.Joints[name]
	return j, ok
}

// FormIssues returns the requirements of the next state that failed on the last frame.
func (s *StateMachine) FormIssues() []FormIssue {
	return s.issues
}

// Reset implements Detector.
func (s *StateMachine) Reset() {
	s.current = 0
	s.reps = 0
	s.lastRep = 0
	s.hasLast = false
	s.issues = nil
}

// Reps implements Detector.
func (s *StateMachine) Reps() int {
	return s.reps
}

// State implements Detector.
func (s *StateMachine) State() string {
	if len(s.cfg.States) == 0 {
		return PhaseIdle
	}
	return s.cfg.States[s.current].Name
}
