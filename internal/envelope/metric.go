package envelope

import (
	"github.com/ayusman/repsense/internal/geometry"
	"github.com/ayusman/repsense/internal/pose"
)

// Metric names a scalar derived from one frame.
type Metric string

// Tracked vertical position metrics, each the average Y of a left/right landmark pair.
const (
	ElbowY    Metric = "elbowY"
	KneeY     Metric = "kneeY"
	HipY      Metric = "hipY"
	WristY    Metric = "wristY"
	ShoulderY Metric = "shoulderY"

	// WristShoulderY is wristY minus shoulderY. Negative once the wrists are above the shoulders.
	WristShoulderY Metric = "wristShoulderY"
)

// TrackedMetrics lists the metrics derived by Build, in a stable order.
var TrackedMetrics = []Metric{ElbowY, KneeY, HipY, WristY, ShoulderY}

var pairs = map[Metric][2]int{
	ElbowY:    {pose.LeftElbow, pose.RightElbow},
	KneeY:     {pose.LeftKnee, pose.RightKnee},
	HipY:      {pose.LeftHip, pose.RightHip},
	WristY:    {pose.LeftWrist, pose.RightWrist},
	ShoulderY: {pose.LeftShoulder, pose.RightShoulder},
}

// Valid reports whether the metric is one MetricValue can compute.
func (m Metric) Valid() bool {
	if m == WristShoulderY {
		return true
	}
	_, ok := pairs[m]
	return ok
}

// MetricValue computes the metric for the frame. When only one landmark of a pair passes
// the confidence gate its value is used alone. ok is false when neither side is visible.
func MetricValue(frame pose.Frame, m Metric, minConfidence float64) (float64, bool) {
	if m == WristShoulderY {
		wrist, ok := MetricValue(frame, WristY, minConfidence)
		if !ok {
			return 0, false
		}
		shoulder, ok := MetricValue(frame, ShoulderY, minConfidence)
		if !ok {
			return 0, false
		}
		return wrist - shoulder, true
	}

	pair, ok := pairs[m]
	if !ok {
		return 0, false
	}

	left, right := frame.At(pair[0]), frame.At(pair[1])
	leftOK := geometry.IsConfident(left, minConfidence)
	rightOK := geometry.IsConfident(right, minConfidence)

	switch {
	case leftOK && rightOK:
		return (left.Y + right.Y) / 2, true
	case leftOK:
		return left.Y, true
	case rightOK:
		return right.Y, true
	default:
		return 0, false
	}
}
