// Package app runs the local camera mode: webcam frames through pose detection into a workout session.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/repsense/internal/capture"
	"github.com/ayusman/repsense/internal/engine"
	"github.com/ayusman/repsense/internal/exercise"
	"github.com/ayusman/repsense/internal/session"
)

// ErrNotRunning is returned by Stop and SetExercise before Start.
var ErrNotRunning = errors.New("app is not running")

// Config holds configuration options for the application.
type Config struct {
	// Camera defaults to a GoCV camera built from CameraConfig.
	Camera       capture.Camera
	CameraConfig capture.CameraConfig
	// Detector defaults to the MediaPipe pose service, or a mock when it is unavailable.
	Detector capture.PoseDetector
	Pose     capture.PoseConfig
	// NewSession creates the session for each Start.
	NewSession func() *session.Session
	// Exercise is selected on Start.
	Exercise string
	// OnResult, if set, receives every processed frame result.
	OnResult func(engine.Result)
	// Now stamps frames. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// App drives one session from the local camera.
type App struct {
	config   Config
	camera   capture.Camera
	detector capture.PoseDetector
	logger   *slog.Logger

	mu       sync.RWMutex
	enabled  bool
	session  *session.Session
	exercise string
	last     engine.Result
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.NewSession == nil {
		config.NewSession = func() *session.Session {
			return session.New(session.Options{Logger: config.Logger})
		}
	}

	a := &App{
		config:   config,
		camera:   config.Camera,
		detector: config.Detector,
		logger:   config.Logger.With("component", "app"),
		enabled:  true,
		exercise: exercise.Normalize(config.Exercise),
	}

	if a.camera == nil {
		a.camera = capture.NewCameraWithConfig(config.CameraConfig)
	}

	// Try MediaPipe first, fall back to mock detector
	if a.detector == nil {
		if mp, err := capture.NewMediaPipePose(config.Pose); err == nil {
			a.detector = mp
			a.logger.Info("Using MediaPipe pose detection")
		} else {
			a.logger.Warn("MediaPipe not available, using mock detector", "error", err)
			a.detector = capture.NewMockPoseDetector()
		}
	}

	return a
}

// SetEnabled pauses or resumes frame processing.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether frames are being processed.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Start opens the camera, begins a session and starts the frame loop.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	s := a.config.NewSession()
	if err := s.Start(ctx, a.exercise); err != nil {
		a.camera.Close()
		return err
	}

	a.session = s
	a.last = engine.Result{Exercise: s.Dispatcher().Exercise()}
	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.runPipeline(a.stopCh, a.done)

	a.logger.Info("Camera pipeline started", "exercise", a.exercise, "fps", a.camera.FPS())
	return nil
}

// Stop halts the frame loop, releases the camera and ends the session.
func (a *App) Stop(ctx context.Context) (session.Summary, error) {
	a.mu.Lock()
	if a.stopCh == nil {
		a.mu.Unlock()
		return session.Summary{}, ErrNotRunning
	}
	close(a.stopCh)
	done := a.done
	s := a.session
	a.stopCh = nil
	a.done = nil
	a.session = nil
	a.mu.Unlock()

	<-done

	if err := a.camera.Close(); err != nil {
		a.logger.Warn("Error closing camera", "error", err)
	}
	if err := a.detector.Close(); err != nil {
		a.logger.Warn("Error closing detector", "error", err)
	}

	sum, err := s.End(ctx)
	a.logger.Info("Camera pipeline stopped", "total_reps", sum.TotalReps)
	return sum, err
}

// SetExercise switches the running session to another exercise, or selects
// the exercise for the next Start.
func (a *App) SetExercise(ctx context.Context, name string) error {
	a.mu.Lock()
	a.exercise = exercise.Normalize(name)
	s := a.session
	a.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Start(ctx, name)
}

// SetCatalog swaps the catalog of the running session.
func (a *App) SetCatalog(c *exercise.Catalog) {
	a.mu.RLock()
	s := a.session
	a.mu.RUnlock()

	if s != nil {
		s.Dispatcher().SetCatalog(c)
	}
}

// Invalidate drops the running session's cached envelope for name.
func (a *App) Invalidate(name string) {
	a.mu.RLock()
	s := a.session
	a.mu.RUnlock()

	if s != nil {
		s.Dispatcher().Invalidate(name)
	}
}

// Exercise returns the selected exercise.
func (a *App) Exercise() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.exercise
}

// Last returns the most recent frame result.
func (a *App) Last() engine.Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// TotalReps returns the reps counted across all exercises in the running session.
func (a *App) TotalReps() int {
	a.mu.RLock()
	s := a.session
	a.mu.RUnlock()

	if s == nil {
		return 0
	}
	total := 0
	for _, n := range s.Totals() {
		total += n
	}
	return total
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Detector returns the pose detector.
func (a *App) Detector() capture.PoseDetector {
	return a.detector
}
