package capture

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/repsense/internal/pose"
)

// PoseDetector extracts body landmarks from a video frame.
type PoseDetector interface {
	// Detect returns the landmarks of the most prominent person, or nil
	// when nobody is visible.
	Detect(frame *gocv.Mat) (pose.Frame, error)

	// Close releases any resources held by the detector.
	Close() error
}

// MockPoseDetector is a test implementation of PoseDetector that replays
// a fixed sequence of landmark frames.
type MockPoseDetector struct {
	mu     sync.Mutex
	frames []pose.Frame
	index  int
	calls  int
	err    error
	closed bool
}

// NewMockPoseDetector creates a detector returning frames in order and then
// repeating the last one.
func NewMockPoseDetector(frames ...pose.Frame) *MockPoseDetector {
	return &MockPoseDetector{frames: frames}
}

// SetFrames replaces the sequence and restarts it.
func (m *MockPoseDetector) SetFrames(frames ...pose.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = frames
	m.index = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockPoseDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the next configured frame or error.
func (m *MockPoseDetector) Detect(*gocv.Mat) (pose.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.frames) == 0 {
		return nil, nil
	}

	f := m.frames[m.index]
	if m.index < len(m.frames)-1 {
		m.index++
	}
	return f.Clone(), nil
}

// Calls returns how many times Detect ran.
func (m *MockPoseDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the detector closed.
func (m *MockPoseDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockPoseDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
