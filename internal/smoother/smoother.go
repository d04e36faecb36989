// Package smoother suppresses single-frame landmark jitter with a windowed moving average.
package smoother

import (
	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/repsense/internal/geometry"
	"github.com/ayusman/repsense/internal/pose"
)

// DefaultWindow is the number of frames averaged when no window is given.
const DefaultWindow = 5

// ring is a fixed-capacity FIFO of one landmark's recent coordinates.
type ring struct {
	xs, ys, zs []float64
	head       int
	count      int
}

func newRing(capacity int) *ring {
	return &ring{
		xs: make([]float64, capacity),
		ys: make([]float64, capacity),
		zs: make([]float64, capacity),
	}
}

// push adds a position, evicting the oldest entry once the ring is full.
func (r *ring) push(l pose.Landmark) {
	r.xs[r.head] = l.X
	r.ys[r.head] = l.Y
	r.zs[r.head] = l.Z
	r.head = (r.head + 1) % len(r.xs)
	if r.count < len(r.xs) {
		r.count++
	}
}

// mean returns the averaged coordinates over the occupied slots.
func (r *ring) mean() (x, y, z float64) {
	n := float64(r.count)
	return floats.Sum(r.xs[:r.count]) / n, floats.Sum(r.ys[:r.count]) / n, floats.Sum(r.zs[:r.count]) / n
}

// Smoother holds per-landmark history for one camera session.
// It is not safe for concurrent use.
type Smoother struct {
	window        int
	minConfidence float64
	history       []*ring
}

// New creates a Smoother averaging over the last window frames.
// Values less than or equal to 0 select DefaultWindow and
// geometry.DefaultMinConfidence.
func New(window int, minConfidence float64) *Smoother {
	if window <= 0 {
		window = DefaultWindow
	}
	if minConfidence <= 0 {
		minConfidence = geometry.DefaultMinConfidence
	}
	return &Smoother{window: window, minConfidence: minConfidence}
}

// Window returns the configured window size.
func (s *Smoother) Window() int {
	return s.window
}

// Smooth records the frame and returns the averaged positions.
// Visibility is taken from the incoming frame only. A landmark below the
// confidence gate is returned as-is and its position is not recorded.
// An empty frame is returned unchanged and leaves the history untouched.
func (s *Smoother) Smooth(frame pose.Frame) pose.Frame {
	if len(frame) == 0 {
		return frame
	}

	// A change in landmark layout means the old history describes a different skeleton.
	if len(s.history) != len(frame) {
		s.history = make([]*ring, len(frame))
		for i := range s.history {
			s.history[i] = newRing(s.window)
		}
	}

	out := make(pose.Frame, len(frame))
	for i, l := range frame {
		if !geometry.IsConfident(&l, s.minConfidence) {
			out[i] = l
			continue
		}
		r := s.history[i]
		r.push(l)
		x, y, z := r.mean()
		out[i] = pose.Landmark{X: x, Y: y, Z: z, Visibility: l.Visibility}
	}

	return out
}

// Len returns the deepest per-landmark history currently buffered.
func (s *Smoother) Len() int {
	n := 0
	for _, r := range s.history {
		n = max(n, r.count)
	}
	return n
}

// Reset clears all history. Call it whenever motion becomes discontinuous,
// such as an exercise change or a camera restart.
func (s *Smoother) Reset() {
	s.history = nil
}
