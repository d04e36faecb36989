package geometry

import (
	"math"
	"testing"

	"github.com/ayusman/repsense/internal/pose"
)

func lm(x, y float64) pose.Landmark {
	return pose.Landmark{X: x, Y: y, Visibility: 1}
}

func TestAngleAtVertex(t *testing.T) {
	tests := []struct {
		name     string
		a, b, c  pose.Landmark
		expected float64
	}{
		{"right angle", lm(1, 0), lm(0, 0), lm(0, 1), 90},
		{"straight line", lm(-1, 0), lm(0, 0), lm(1, 0), 180},
		{"same direction", lm(1, 0), lm(0, 0), lm(2, 0), 0},
		{"forty five", lm(1, 0), lm(0, 0), lm(1, 1), 45},
		{"rounds to integer", lm(1, 0), lm(0, 0), lm(math.Cos(0.5), math.Sin(0.5)), 29},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AngleAtVertex(tt.a, tt.b, tt.c)
			if got != tt.expected {
				t.Errorf("AngleAtVertex() = %f, expected %f", got, tt.expected)
			}
		})
	}
}

func TestAngleAtVertex_Degenerate(t *testing.T) {
	a := lm(0.3, 0.4)
	c := lm(0.7, 0.1)

	tests := []struct {
		name    string
		a, b, c pose.Landmark
	}{
		{"a equals b", a, a, c},
		{"b equals c", a, c, c},
		{"all equal", a, a, a},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AngleAtVertex(tt.a, tt.b, tt.c)
			if math.IsNaN(got) {
				t.Fatal("expected 0, got NaN")
			}
			if got != 0 {
				t.Errorf("expected 0, got %f", got)
			}
		})
	}
}

func TestAngleAtVertex_TranslationRotationInvariant(t *testing.T) {
	a, b, c := lm(0.2, 0.1), lm(0.5, 0.5), lm(0.9, 0.4)
	base := AngleAtVertex(a, b, c)

	transform := func(p pose.Landmark, theta, dx, dy float64) pose.Landmark {
		cos, sin := math.Cos(theta), math.Sin(theta)
		return lm(p.X*cos-p.Y*sin+dx, p.X*sin+p.Y*cos+dy)
	}

	for _, theta := range []float64{0, 0.3, math.Pi / 2, 2.1, math.Pi, 4.4} {
		for _, d := range []float64{-3, 0, 0.25, 10} {
			got := AngleAtVertex(transform(a, theta, d, -d), transform(b, theta, d, -d), transform(c, theta, d, -d))
			if got != base {
				t.Errorf("theta=%f d=%f: angle %f, expected %f", theta, d, got, base)
			}
		}
	}
}

func TestDistance(t *testing.T) {
	a := pose.Landmark{X: 0, Y: 0, Z: 5}
	b := pose.Landmark{X: 3, Y: 4, Z: -2}

	if got := Distance(a, b); math.Abs(got-5) > 1e-12 {
		t.Errorf("Distance() = %f, expected 5 (z ignored)", got)
	}
}

func TestIsConfident(t *testing.T) {
	tests := []struct {
		name     string
		l        *pose.Landmark
		min      float64
		expected bool
	}{
		{"nil landmark", nil, DefaultMinConfidence, false},
		{"below threshold", &pose.Landmark{Visibility: 0.49}, DefaultMinConfidence, false},
		{"at threshold", &pose.Landmark{Visibility: 0.5}, DefaultMinConfidence, true},
		{"above threshold", &pose.Landmark{Visibility: 0.9}, DefaultMinConfidence, true},
		{"custom threshold", &pose.Landmark{Visibility: 0.6}, 0.8, false},
	}

	for _, tt := range tests {
		if got := IsConfident(tt.l, tt.min); got != tt.expected {
			t.Errorf("%s: IsConfident() = %v, expected %v", tt.name, got, tt.expected)
		}
	}
}

func TestJointAngle(t *testing.T) {
	t.Run("standing elbow is nearly straight", func(t *testing.T) {
		angle, ok := NamedAngle(pose.StandingFrame(), "leftElbow", DefaultMinConfidence)
		if !ok {
			t.Fatal("expected measurable angle")
		}
		if angle < 160 {
			t.Errorf("expected straight arm, got %f", angle)
		}
	})

	t.Run("occluded vertex is unknown", func(t *testing.T) {
		angle, ok := NamedAngle(pose.OccludedFrame(pose.LeftElbow), "leftElbow", DefaultMinConfidence)
		if ok {
			t.Error("expected unknown angle for occluded elbow")
		}
		if angle != UnknownAngle {
			t.Errorf("expected UnknownAngle, got %f", angle)
		}
	})

	t.Run("occluded end point is unknown", func(t *testing.T) {
		if _, ok := NamedAngle(pose.OccludedFrame(pose.LeftWrist), "leftElbow", DefaultMinConfidence); ok {
			t.Error("expected unknown angle for occluded wrist")
		}
	})

	t.Run("short frame is unknown", func(t *testing.T) {
		if _, ok := JointAngle(pose.Frame{}, Joints["leftKnee"], DefaultMinConfidence); ok {
			t.Error("expected unknown angle for empty frame")
		}
	})

	t.Run("unknown joint name", func(t *testing.T) {
		if _, ok := NamedAngle(pose.StandingFrame(), "tail", DefaultMinConfidence); ok {
			t.Error("expected unknown angle for unknown joint")
		}
	})
}
