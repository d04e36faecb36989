// Package pose provides the body landmark types shared by every stage of rep detection.
package pose

import (
	"errors"
	"fmt"
	"math"
)

// Body landmark indices following the MediaPipe pose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

var (
	// ErrWrongLandmarkCount is returned when a frame does not hold exactly NumLandmarks entries.
	ErrWrongLandmarkCount = errors.New("wrong landmark count")
	// ErrNonFinite is returned when a landmark carries a NaN or infinite value.
	ErrNonFinite = errors.New("non-finite landmark value")
)

// Landmark is a single body keypoint in normalized image coordinates.
// Y grows downward. Z is depth relative to the hips.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Frame is the ordered set of landmarks for one video frame.
type Frame []Landmark

// Validate reports whether the frame can be fed to a detector.
func (f Frame) Validate() error {
	if len(f) != NumLandmarks {
		return fmt.Errorf("%w: got %d, want %d", ErrWrongLandmarkCount, len(f), NumLandmarks)
	}
	for i, l := range f {
		if !finite(l.X) || !finite(l.Y) || !finite(l.Z) || !finite(l.Visibility) {
			return fmt.Errorf("%w at index %d", ErrNonFinite, i)
		}
	}
	return nil
}

// At returns the landmark at index i, or nil when the index is out of range.
func (f Frame) At(i int) *Landmark {
	if i < 0 || i >= len(f) {
		return nil
	}
	return &f[i]
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	if f == nil {
		return nil
	}
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
