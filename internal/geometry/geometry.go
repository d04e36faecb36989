// Package geometry provides the angle and distance helpers used by every rep detector.
package geometry

import (
	"math"

	"github.com/ayusman/repsense/internal/pose"
)

// DefaultMinConfidence is the visibility below which a landmark is treated as absent.
const DefaultMinConfidence = 0.5

// UnknownAngle is the serialized form of an angle that could not be measured.
const UnknownAngle = -1

// Joint names the three landmarks forming an angle, with B as the vertex.
type Joint struct {
	A int `json:"a" yaml:"a"`
	B int `json:"b" yaml:"b"`
	C int `json:"c" yaml:"c"`
}

// Joints holds the named joint angles the detectors can refer to.
var Joints = map[string]Joint{
	"leftElbow":     {A: pose.LeftShoulder, B: pose.LeftElbow, C: pose.LeftWrist},
	"rightElbow":    {A: pose.RightShoulder, B: pose.RightElbow, C: pose.RightWrist},
	"leftShoulder":  {A: pose.LeftElbow, B: pose.LeftShoulder, C: pose.LeftHip},
	"rightShoulder": {A: pose.RightElbow, B: pose.RightShoulder, C: pose.RightHip},
	"leftHip":       {A: pose.LeftShoulder, B: pose.LeftHip, C: pose.LeftKnee},
	"rightHip":      {A: pose.RightShoulder, B: pose.RightHip, C: pose.RightKnee},
	"leftKnee":      {A: pose.LeftHip, B: pose.LeftKnee, C: pose.LeftAnkle},
	"rightKnee":     {A: pose.RightHip, B: pose.RightKnee, C: pose.RightAnkle},
}

// AngleAtVertex returns the interior angle in degrees at b formed by the rays b->a and b->c,
// rounded to the nearest integer. A zero-length ray yields 0.
func AngleAtVertex(a, b, c pose.Landmark) float64 {
	bax, bay := a.X-b.X, a.Y-b.Y
	bcx, bcy := c.X-b.X, c.Y-b.Y

	norm := math.Hypot(bax, bay) * math.Hypot(bcx, bcy)
	if norm == 0 {
		return 0
	}

	cos := (bax*bcx + bay*bcy) / norm
	// Rounding error can push |cos| just past 1.
	cos = math.Max(-1, math.Min(1, cos))

	return math.Round(math.Acos(cos) * 180 / math.Pi)
}

// Distance returns the planar Euclidean distance between two landmarks, ignoring z.
func Distance(p1, p2 pose.Landmark) float64 {
	return math.Hypot(p1.X-p2.X, p1.Y-p2.Y)
}

// IsConfident reports whether the landmark is present with at least minConfidence visibility.
func IsConfident(l *pose.Landmark, minConfidence float64) bool {
	if l == nil {
		return false
	}
	return l.Visibility >= minConfidence
}

// JointAngle computes the angle at j.B when all three landmarks pass the confidence gate.
// ok is false when the angle cannot be measured.
func JointAngle(frame pose.Frame, j Joint, minConfidence float64) (angle float64, ok bool) {
	a, b, c := frame.At(j.A), frame.At(j.B), frame.At(j.C)
	if !IsConfident(a, minConfidence) || !IsConfident(b, minConfidence) || !IsConfident(c, minConfidence) {
		return UnknownAngle, false
	}
	return AngleAtVertex(*a, *b, *c), true
}

// NamedAngle looks up a joint by name in Joints and measures it.
func NamedAngle(frame pose.Frame, name string, minConfidence float64) (float64, bool) {
	j, ok := Joints[name]
	if !ok {
		return UnknownAngle, false
	}
	return JointAngle(frame, j, minConfidence)
}
