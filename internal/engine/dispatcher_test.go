package engine

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ayusman/repsense/internal/envelope"
	"github.com/ayusman/repsense/internal/exercise"
	"github.com/ayusman/repsense/internal/metrics"
	"github.com/ayusman/repsense/internal/pose"
	"github.com/ayusman/repsense/internal/rep"
)

// memSource serves in-memory samples and counts lookups.
type memSource struct {
	frames map[string][]pose.Frame
	calls  atomic.Int32
}

func (s *memSource) Samples(_ context.Context, name string) ([]pose.Frame, error) {
	s.calls.Add(1)
	f, ok := s.frames[name]
	if !ok {
		return nil, envelope.ErrNoSamples
	}
	return f, nil
}

// slowSource delays sampling for one exercise.
type slowSource struct {
	slow  string
	delay time.Duration
}

func (s slowSource) Samples(ctx context.Context, name string) ([]pose.Frame, error) {
	if name == s.slow {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, envelope.ErrNoSamples
}

func hipFrames(ys ...float64) []pose.Frame {
	out := make([]pose.Frame, 0, len(ys))
	for _, y := range ys {
		out = append(out, pose.MetricFrame(pose.LeftHip, pose.RightHip, y))
	}
	return out
}

func squatSource() *memSource {
	return &memSource{frames: map[string][]pose.Frame{
		"squats": hipFrames(0.52, 0.60, 0.72, 0.60, 0.52, 0.72),
	}}
}

func run(d *Dispatcher, frames []pose.Frame, spacingMs int64) (reps int, last Result) {
	for i, f := range frames {
		last = d.Process(f, int64(i)*spacingMs)
		if last.RepCompleted {
			reps++
		}
	}
	return reps, last
}

func TestConfigure_UnknownExercise(t *testing.T) {
	d := New(Options{})
	d.Configure(context.Background(), "unknown_xyz")

	res := d.Process(pose.StandingFrame(), 0)

	if res.Exercise != exercise.FallbackName {
		t.Errorf("expected generic exercise, got %q", res.Exercise)
	}
	if res.State != rep.PhaseWaiting {
		t.Errorf("expected WAITING, got %q", res.State)
	}
	if res.Skipped || res.RepCompleted || res.TotalReps != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Feedback == "" {
		t.Error("expected a feedback message from the fallback detector")
	}

	if _, err := json.Marshal(res); err != nil {
		t.Errorf("result must serialize: %v", err)
	}
}

func TestProcess_Unconfigured(t *testing.T) {
	d := New(Options{})
	if d.Exercise() != exercise.FallbackName {
		t.Errorf("expected generic detector before Configure, got %s", d.Exercise())
	}
	if res := d.Process(pose.StandingFrame(), 0); res.State == "" {
		t.Errorf("expected a state, got %+v", res)
	}
}

func TestProcess_MalformedFrames(t *testing.T) {
	m := metrics.NewTestManager()
	d := New(Options{Metrics: m})
	d.Configure(context.Background(), "pushups")

	nan := pose.StandingFrame()
	nan[pose.LeftElbow].Y = math.NaN()

	inf := pose.StandingFrame()
	inf[pose.Nose].X = math.Inf(1)

	frames := []pose.Frame{nil, {}, pose.StandingFrame()[:32], append(pose.StandingFrame(), pose.Landmark{}), nan, inf}
	for i, f := range frames {
		res := d.Process(f, int64(i)*100)
		if !res.Skipped {
			t.Errorf("frame %d: expected skip, got %+v", i, res)
		}
		if res.State != rep.PhaseWaiting || res.TotalReps != 0 || res.Exercise != "pushups" {
			t.Errorf("frame %d: skipped frame must report unchanged state, got %+v", i, res)
		}
	}

	if got := testutil.ToFloat64(m.FramesProcessed.WithLabelValues(metrics.OutcomeSkipped)); got != float64(len(frames)) {
		t.Errorf("expected %d skipped frames counted, got %v", len(frames), got)
	}
}

func TestProcess_PlankNeverCounts(t *testing.T) {
	d := New(Options{})
	d.Configure(context.Background(), "plank")

	frames := []pose.Frame{
		pose.StandingFrame(),
		pose.MetricFrame(pose.LeftHip, pose.RightHip, 0.9),
		pose.MetricFrame(pose.LeftHip, pose.RightHip, 0.1),
		pose.OccludedFrame(pose.LeftShoulder, pose.RightShoulder),
	}
	for i := 0; i < 40; i++ {
		res := d.Process(frames[i%len(frames)], int64(i)*250)
		if res.RepCompleted || res.TotalReps != 0 {
			t.Fatalf("frame %d: plank reported reps %+v", i, res)
		}
	}
}

func TestConfigure_Calibrated(t *testing.T) {
	src := squatSource()
	m := metrics.NewTestManager()
	d := New(Options{Source: src, SmoothingWindow: 1, Metrics: m})

	d.Configure(context.Background(), "Squats")
	if !d.Calibrated() {
		t.Fatal("expected calibrated detector")
	}

	// Envelope hipY is {0.52, 0.72, 0.62}: engage above 0.65, release at or below 0.62.
	reps, last := run(d, hipFrames(0.52, 0.72, 0.52, 0.66, 0.55, 0.64, 0.50), 500)

	if reps != 2 {
		t.Errorf("expected 2 squats, got %d", reps)
	}
	if last.TotalReps != 2 || last.Exercise != "squats" {
		t.Errorf("unexpected final result %+v", last)
	}
	if got := testutil.ToFloat64(m.RepsCounted.WithLabelValues("squats")); got != 2 {
		t.Errorf("expected 2 reps in metrics, got %v", got)
	}
}

func TestConfigure_UncalibratedUsesFixedRange(t *testing.T) {
	m := metrics.NewTestManager()
	d := New(Options{Source: &memSource{}, SmoothingWindow: 1, Metrics: m})
	d.Configure(context.Background(), "squats")

	if d.Calibrated() {
		t.Fatal("expected uncalibrated detector without samples")
	}
	if got := testutil.ToFloat64(m.ConfigFallbacks.WithLabelValues(metrics.ReasonUncalibrated)); got != 1 {
		t.Errorf("expected one uncalibrated fallback, got %v", got)
	}

	// Fixed squat range is {0.5, 0.75, 0.625}: engage above 0.6625, release at or below 0.625.
	reps, _ := run(d, hipFrames(0.55, 0.70, 0.60, 0.70, 0.60), 500)
	if reps != 2 {
		t.Errorf("expected 2 reps on the fixed range, got %d", reps)
	}
}

func TestConfigure_ResetsState(t *testing.T) {
	d := New(Options{Source: squatSource(), SmoothingWindow: 1})
	d.Configure(context.Background(), "squats")

	run(d, hipFrames(0.52, 0.72, 0.52), 500)
	if d.Reps() != 1 {
		t.Fatalf("expected 1 rep before reconfigure, got %d", d.Reps())
	}

	d.Configure(context.Background(), "squats")
	if d.Reps() != 0 {
		t.Errorf("Configure must reset the rep count, got %d", d.Reps())
	}

	run(d, hipFrames(0.52, 0.72, 0.52), 500)
	d.Reset()
	if d.Reps() != 0 {
		t.Errorf("Reset must zero the rep count, got %d", d.Reps())
	}
}

func TestConfigure_CachesEnvelope(t *testing.T) {
	src := squatSource()
	d := New(Options{Source: src})

	d.Configure(context.Background(), "squats")
	d.Configure(context.Background(), "squats")
	if n := src.calls.Load(); n != 1 {
		t.Errorf("expected one sample load, got %d", n)
	}

	d.Invalidate("Squats")
	d.Configure(context.Background(), "squats")
	if n := src.calls.Load(); n != 2 {
		t.Errorf("expected reload after Invalidate, got %d loads", n)
	}

	// Non-hysteresis exercises never load samples.
	d.Configure(context.Background(), "plank")
	d.Configure(context.Background(), "bicep_curls")
	if n := src.calls.Load(); n != 2 {
		t.Errorf("unexpected sample loads for non-hysteresis exercises: %d", n)
	}
}

func TestProcess_FormIssueJoints(t *testing.T) {
	d := New(Options{SmoothingWindow: 1})
	d.Configure(context.Background(), "bicep_curls")

	// Straight arms satisfy EXTENDED but not CURLED.
	res := d.Process(pose.StandingFrame(), 0)

	if len(res.FormIssueJoints) != 2 || res.FormIssueJoints[0] != pose.LeftElbow || res.FormIssueJoints[1] != pose.RightElbow {
		t.Errorf("expected elbow form issues, got %v", res.FormIssueJoints)
	}
	if res.State != "EXTENDED" {
		t.Errorf("expected EXTENDED, got %s", res.State)
	}
}

func TestSetCatalog(t *testing.T) {
	d := New(Options{})
	d.SetCatalog(exercise.NewCatalog(exercise.Config{Name: "Hold", Kind: exercise.KindIsometric}))
	d.Configure(context.Background(), "hold")

	if d.Exercise() != "hold" {
		t.Errorf("expected custom catalog entry, got %s", d.Exercise())
	}

	d.Configure(context.Background(), "pushups")
	if d.Exercise() != exercise.FallbackName {
		t.Errorf("expected fallback for name missing from new catalog, got %s", d.Exercise())
	}
}

func TestConcurrentConfigureAndProcess(t *testing.T) {
	d := New(Options{Source: squatSource()})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		names := []string{"squats", "pushups", "plank", "bicep_curls", "unknown_xyz"}
		for i := 0; i < 50; i++ {
			d.Configure(context.Background(), names[i%len(names)])
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			res := d.Process(pose.StandingFrame(), int64(i)*33)
			if res.State == "" || res.Exercise == "" {
				t.Errorf("frame %d: incomplete result %+v", i, res)
				return
			}
		}
	}()
	wg.Wait()
}

func TestProcess_OccludedFrameDoesNotCountRep(t *testing.T) {
	d := New(Options{})
	d.Configure(context.Background(), "high_knees")

	var frames []pose.Frame
	for i := 0; i < 5; i++ {
		frames = append(frames, pose.StandingFrame())
	}
	occluded := pose.StandingFrame()
	occluded[pose.LeftKnee] = pose.Landmark{}
	occluded[pose.RightKnee] = pose.Landmark{}
	frames = append(frames, occluded)
	for i := 0; i < 10; i++ {
		frames = append(frames, pose.StandingFrame())
	}

	reps, last := run(d, frames, 100)
	if reps != 0 || last.TotalReps != 0 {
		t.Errorf("standing still with one occluded frame counted %d reps, expected 0", reps)
	}
	if last.State != rep.PhaseWaiting {
		t.Errorf("expected WAITING, got %q", last.State)
	}
}

func TestConfigure_LastCallWins(t *testing.T) {
	d := New(Options{Source: slowSource{slow: "squats", delay: 200 * time.Millisecond}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Configure(context.Background(), "squats")
	}()

	time.Sleep(50 * time.Millisecond)
	d.Configure(context.Background(), "pushups")
	<-done

	if d.Exercise() != "pushups" {
		t.Errorf("expected the later Configure to stay active, got %q", d.Exercise())
	}
	if res := d.Process(pose.StandingFrame(), 0); res.Exercise != "pushups" {
		t.Errorf("expected results for pushups, got %q", res.Exercise)
	}
}
