package rep

import (
	"testing"

	"github.com/ayusman/repsense/internal/envelope"
	"github.com/ayusman/repsense/internal/geometry"
	"github.com/ayusman/repsense/internal/pose"
)

// pushupDetector has mid 0.5 and threshold 0.1.
func pushupDetector(debounceMs int64) *Hysteresis {
	return NewHysteresis(HysteresisConfig{
		Metric:      envelope.ElbowY,
		Direction:   Rise,
		Sensitivity: 0.1,
		DebounceMs:  debounceMs,
	}, envelope.Range{Min: 0, Max: 1, Mid: 0.5})
}

func feed(d *Hysteresis, values []float64, spacingMs int64) (reps int, events []Event) {
	for i, v := range values {
		ev := d.Update(pose.MetricFrame(pose.LeftElbow, pose.RightElbow, v), int64(i)*spacingMs)
		if ev.RepCompleted {
			reps++
		}
		events = append(events, ev)
	}
	return reps, events
}

func TestHysteresis_OneRepPerOscillation(t *testing.T) {
	d := pushupDetector(300)
	if d.Threshold() != 0.1 {
		t.Fatalf("expected threshold 0.1, got %f", d.Threshold())
	}

	reps, events := feed(d, []float64{0.5, 0.3, 0.5, 0.7, 0.5, 0.3, 0.5, 0.7}, 400)

	if reps != 2 {
		t.Errorf("expected exactly 2 rep events, got %d", reps)
	}
	if d.Reps() != 2 {
		t.Errorf("expected Reps() = 2, got %d", d.Reps())
	}
	if last := events[len(events)-1]; last.Reps != 2 {
		t.Errorf("expected last event to carry 2 reps, got %d", last.Reps)
	}
}

func TestHysteresis_LongOscillation(t *testing.T) {
	d := pushupDetector(300)

	// mid - 2*threshold and mid + 2*threshold, many cycles.
	var values []float64
	for i := 0; i < 10; i++ {
		values = append(values, 0.3, 0.7)
	}
	reps, _ := feed(d, values, 400)

	if reps != 10 {
		t.Errorf("expected 10 reps for 10 oscillations, got %d", reps)
	}
}

func TestHysteresis_Debounce(t *testing.T) {
	d := pushupDetector(300)

	// Two oscillations completing 50ms apart.
	values := []struct {
		v  float64
		ts int64
	}{
		{0.5, 0}, {0.3, 25}, {0.7, 50}, {0.3, 75}, {0.7, 100},
	}

	reps := 0
	for _, s := range values {
		if d.Update(pose.MetricFrame(pose.LeftElbow, pose.RightElbow, s.v), s.ts).RepCompleted {
			reps++
		}
	}

	if reps != 1 {
		t.Errorf("expected debounce to leave exactly 1 rep, got %d", reps)
	}
	if d.State() != PhaseWaiting {
		t.Errorf("expected WAITING after suppressed return, got %s", d.State())
	}
}

func TestHysteresis_SuppressedReturnIsNotCountedLater(t *testing.T) {
	d := pushupDetector(300)

	values := []struct {
		v  float64
		ts int64
	}{
		{0.3, 0}, {0.5, 100},
		// Returns inside the window, then rests past mid after it.
		{0.3, 200}, {0.5, 250},
		{0.5, 600}, {0.6, 900},
		{0.3, 1000}, {0.5, 1100},
	}

	var counted []int64
	for _, s := range values {
		if d.Update(pose.MetricFrame(pose.LeftElbow, pose.RightElbow, s.v), s.ts).RepCompleted {
			counted = append(counted, s.ts)
		}
	}

	if len(counted) != 2 || counted[0] != 100 || counted[1] != 1100 {
		t.Errorf("expected reps at 100ms and 1100ms, got %v", counted)
	}
	if d.State() != PhaseWaiting {
		t.Errorf("expected WAITING, got %s", d.State())
	}
}

func TestHysteresis_FallDirection(t *testing.T) {
	d := NewHysteresis(HysteresisConfig{Metric: envelope.KneeY, Direction: Fall, Sensitivity: 0.1},
		envelope.Range{Min: 0, Max: 1, Mid: 0.5})

	reps := 0
	for i, v := range []float64{0.5, 0.3, 0.5, 0.7, 0.5, 0.3, 0.7, 0.4} {
		if d.Update(pose.MetricFrame(pose.LeftKnee, pose.RightKnee, v), int64(i)*400).RepCompleted {
			reps++
		}
	}

	if reps != 2 {
		t.Errorf("expected 2 reps for knee drops, got %d", reps)
	}
}

func TestHysteresis_SmallMovementsIgnored(t *testing.T) {
	d := pushupDetector(300)

	reps, _ := feed(d, []float64{0.5, 0.45, 0.55, 0.42, 0.58, 0.5}, 400)

	if reps != 0 {
		t.Errorf("expected movements inside the threshold to be ignored, got %d reps", reps)
	}
	if d.State() != PhaseWaiting {
		t.Errorf("expected WAITING, got %s", d.State())
	}
}

func TestHysteresis_MissingLandmark(t *testing.T) {
	d := pushupDetector(300)
	d.Update(pose.MetricFrame(pose.LeftElbow, pose.RightElbow, 0.3), 0)

	if d.State() != PhaseEngaged {
		t.Fatalf("expected ENGAGED, got %s", d.State())
	}

	ev := d.Update(pose.OccludedFrame(pose.LeftElbow, pose.RightElbow), 400)
	if ev.RepCompleted || ev.State != PhaseEngaged {
		t.Errorf("expected no state change on occlusion, got %+v", ev)
	}
	if ev.Feedback != FeedbackOutOfView {
		t.Errorf("expected out-of-view feedback, got %q", ev.Feedback)
	}
	if len(d.Recent()) != 1 {
		t.Errorf("unknown values must not enter the rolling buffer, got %v", d.Recent())
	}
}

func TestHysteresis_RecentAndReset(t *testing.T) {
	d := pushupDetector(300)
	for i := 0; i < recentSize+3; i++ {
		d.Observe(float64(i), true, int64(i))
	}

	recent := d.Recent()
	if len(recent) != recentSize {
		t.Fatalf("expected %d recent values, got %d", recentSize, len(recent))
	}
	if recent[0] != 3 || recent[recentSize-1] != float64(recentSize+2) {
		t.Errorf("unexpected recent order: %v", recent)
	}

	d.Reset()
	if d.Reps() != 0 || d.State() != PhaseWaiting || len(d.Recent()) != 0 {
		t.Errorf("Reset() left state behind: reps=%d state=%s recent=%v", d.Reps(), d.State(), d.Recent())
	}
}

func TestHysteresis_Defaults(t *testing.T) {
	d := NewHysteresis(HysteresisConfig{Metric: envelope.WristY}, envelope.DefaultRange)
	cfg := d.Config()

	if cfg.Direction != Rise {
		t.Errorf("expected default direction rise, got %s", cfg.Direction)
	}
	if cfg.DebounceMs != DefaultDebounceMs {
		t.Errorf("expected default debounce %d, got %d", DefaultDebounceMs, cfg.DebounceMs)
	}
	if cfg.Sensitivity != DefaultSensitivity {
		t.Errorf("expected default sensitivity %f, got %f", DefaultSensitivity, cfg.Sensitivity)
	}
}

func TestIsometric_NeverCounts(t *testing.T) {
	d := NewIsometric(0)

	frames := []pose.Frame{
		pose.StandingFrame(),
		pose.MetricFrame(pose.LeftElbow, pose.RightElbow, 0.1),
		pose.MetricFrame(pose.LeftElbow, pose.RightElbow, 0.9),
		pose.OccludedFrame(pose.LeftHip, pose.RightHip),
		pose.MetricFrame(pose.LeftKnee, pose.RightKnee, 0.2),
	}

	for i := 0; i < 50; i++ {
		ev := d.Update(frames[i%len(frames)], int64(i)*100)
		if ev.RepCompleted {
			t.Fatalf("frame %d: isometric detector reported a rep", i)
		}
		if ev.Reps != 0 || d.Reps() != 0 {
			t.Fatalf("frame %d: rep count changed to %d", i, d.Reps())
		}
	}
}

func TestIsometric_HoldTimer(t *testing.T) {
	d := NewIsometric(0)

	d.Update(pose.StandingFrame(), 1000)
	ev := d.Update(pose.StandingFrame(), 13500)

	if ev.State != PhaseHolding {
		t.Errorf("expected HOLDING, got %s", ev.State)
	}
	if d.HoldMs() != 12500 {
		t.Errorf("expected 12500ms hold, got %d", d.HoldMs())
	}
	if ev.Feedback != "Holding 12s" {
		t.Errorf("unexpected feedback %q", ev.Feedback)
	}

	ev = d.Update(pose.OccludedFrame(pose.LeftShoulder, pose.RightShoulder), 14000)
	if ev.State != PhaseIdle || d.HoldMs() != 0 {
		t.Errorf("expected hold to stop when torso leaves view, got %s %d", ev.State, d.HoldMs())
	}
}

// Elbow angle fixtures: standing arm is nearly straight, curled is about 42 degrees,
// and the right-angle pose fits neither state.
func straightArm() pose.Frame { return pose.StandingFrame() }

func curledArm() pose.Frame {
	f := pose.StandingFrame()
	f[pose.LeftWrist] = pose.Landmark{X: 0.50, Y: 0.30, Visibility: 0.97}
	return f
}

func rightAngleArm() pose.Frame {
	f := pose.StandingFrame()
	f[pose.LeftWrist] = pose.Landmark{X: 0.73, Y: 0.36, Visibility: 0.97}
	return f
}

func curlConfig() StateMachineConfig {
	return StateMachineConfig{
		States: []StateSpec{
			{Name: "EXTENDED", Angles: map[string]AngleRange{"leftElbow": {Min: 150, Max: 180}}, Cue: "Lower the weight"},
			{Name: "CURLED", Angles: map[string]AngleRange{"leftElbow": {Min: 0, Max: 60}}, Cue: "Curl up"},
		},
	}
}

func runStates(sm *StateMachine, frames []pose.Frame) int {
	reps := 0
	for i, f := range frames {
		if sm.Update(f, int64(i)*500).RepCompleted {
			reps++
		}
	}
	return reps
}

func TestStateMachine_FullCycle(t *testing.T) {
	sm := NewStateMachine(curlConfig())

	reps := runStates(sm, []pose.Frame{straightArm(), curledArm(), straightArm()})

	if reps != 1 {
		t.Errorf("expected 1 rep for A,B,A, got %d", reps)
	}
	if sm.State() != "EXTENDED" {
		t.Errorf("expected EXTENDED, got %s", sm.State())
	}
}

func TestStateMachine_UnknownStateNeverAdvances(t *testing.T) {
	sm := NewStateMachine(curlConfig())

	reps := runStates(sm, []pose.Frame{straightArm(), curledArm(), rightAngleArm(), rightAngleArm()})

	if reps != 0 {
		t.Errorf("expected 0 reps for A,B,C, got %d", reps)
	}
	if sm.State() != "CURLED" {
		t.Errorf("expected to stay in CURLED, got %s", sm.State())
	}
}

func TestStateMachine_RepeatedCycles(t *testing.T) {
	sm := NewStateMachine(curlConfig())

	var frames []pose.Frame
	for i := 0; i < 4; i++ {
		frames = append(frames, straightArm(), curledArm(), curledArm())
	}
	frames = append(frames, straightArm())

	if reps := runStates(sm, frames); reps != 4 {
		t.Errorf("expected 4 reps, got %d", reps)
	}
}

func TestStateMachine_OcclusionFailsCheck(t *testing.T) {
	sm := NewStateMachine(curlConfig())

	curledHidden := curledArm()
	curledHidden[pose.LeftElbow].Visibility = 0.1

	ev := sm.Update(curledHidden, 0)
	if sm.State() != "EXTENDED" {
		t.Errorf("expected no advance on unmeasurable angle, got %s", sm.State())
	}
	if ev.Feedback != FeedbackOutOfView {
		t.Errorf("expected out-of-view feedback, got %q", ev.Feedback)
	}

	issues := sm.FormIssues()
	if len(issues) != 1 || issues[0].Known || issues[0].Vertex != pose.LeftElbow {
		t.Errorf("unexpected form issues: %+v", issues)
	}
}

func TestStateMachine_FormIssues(t *testing.T) {
	sm := NewStateMachine(curlConfig())

	sm.Update(rightAngleArm(), 0)
	issues := sm.FormIssues()

	if len(issues) != 1 {
		t.Fatalf("expected 1 form issue, got %d", len(issues))
	}
	if issues[0].Joint != "leftElbow" || !issues[0].Known || issues[0].Angle != 90 {
		t.Errorf("unexpected issue: %+v", issues[0])
	}

	sm.Update(curledArm(), 500)
	if len(sm.FormIssues()) != 0 {
		t.Errorf("expected no issues after reaching CURLED, got %+v", sm.FormIssues())
	}

	// Next state is EXTENDED and the arm is still curled.
	sm.Update(curledArm(), 1000)
	if len(sm.FormIssues()) != 1 {
		t.Errorf("expected an issue against EXTENDED, got %+v", sm.FormIssues())
	}
}

func TestStateMachine_Debounce(t *testing.T) {
	cfg := curlConfig()
	cfg.DebounceMs = 1000
	sm := NewStateMachine(cfg)

	frames := []pose.Frame{straightArm(), curledArm(), straightArm(), curledArm(), straightArm()}
	reps := 0
	for i, f := range frames {
		if sm.Update(f, int64(i)*100).RepCompleted {
			reps++
		}
	}

	if reps != 1 {
		t.Errorf("expected debounce to keep 1 rep, got %d", reps)
	}
}

func TestStateMachine_Degenerate(t *testing.T) {
	sm := NewStateMachine(StateMachineConfig{States: []StateSpec{{Name: "ONLY"}}})
	for i := 0; i < 5; i++ {
		if sm.Update(straightArm(), int64(i)*1000).RepCompleted {
			t.Fatal("single-state machine must never count")
		}
	}

	empty := NewStateMachine(StateMachineConfig{})
	if empty.State() != PhaseIdle {
		t.Errorf("expected IDLE for empty config, got %s", empty.State())
	}
	empty.Update(straightArm(), 0)
}

func TestStateMachine_CustomJoint(t *testing.T) {
	cfg := StateMachineConfig{
		Joints: map[string]geometry.Joint{"armpit": {A: pose.LeftElbow, B: pose.LeftShoulder, C: pose.LeftHip}},
		States: []StateSpec{
			{Name: "DOWN", Angles: map[string]AngleRange{"armpit": {Min: 0, Max: 40}}},
			{Name: "UP", Angles: map[string]AngleRange{"armpit": {Min: 80, Max: 180}}},
		},
	}
	sm := NewStateMachine(cfg)

	raised := pose.StandingFrame()
	raised[pose.LeftElbow] = pose.Landmark{X: 0.72, Y: 0.24, Visibility: 0.98}

	reps := runStates(sm, []pose.Frame{pose.StandingFrame(), raised, pose.StandingFrame()})
	if reps != 1 {
		t.Errorf("expected 1 rep with custom joint, got %d", reps)
	}
}
