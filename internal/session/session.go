// Package session drives one workout: a dispatcher per session, rep events and a persisted summary.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/repsense/internal/engine"
	"github.com/ayusman/repsense/internal/events"
	"github.com/ayusman/repsense/internal/metrics"
	"github.com/ayusman/repsense/internal/pose"
	"github.com/ayusman/repsense/internal/store"
)

// ErrEnded is returned when a finished session is started again.
var ErrEnded = errors.New("session ended")

// Recorder persists session history. *store.SessionRepository implements it.
type Recorder interface {
	Create(ctx context.Context, s *store.Session) error
	End(ctx context.Context, id string, at time.Time) error
	AddExercise(ctx context.Context, id, exercise string, reps int) error
}

// Options configures a Session.
type Options struct {
	// Engine configures the session's dispatcher. Its Metrics field is
	// overwritten with Metrics below.
	Engine    engine.Options
	Recorder  Recorder
	Publisher events.Publisher
	Metrics   *metrics.Manager
	Logger    *slog.Logger
}

// Summary is reported when a session ends.
type Summary struct {
	SessionID string                `json:"sessionId"`
	StartedAt time.Time             `json:"startedAt"`
	EndedAt   time.Time             `json:"endedAt"`
	Exercises []store.ExerciseTotal `json:"exercises"`
	TotalReps int                   `json:"totalReps"`
}

// Session owns the detection state of one workout.
type Session struct {
	id         string
	dispatcher *engine.Dispatcher
	recorder   Recorder
	publisher  events.Publisher
	metrics    *metrics.Manager
	logger     *slog.Logger

	mu        sync.Mutex
	started   bool
	ended     bool
	startedAt time.Time
	totals    map[string]int
}

// New creates a session with a fresh id. Nothing is recorded until Start.
func New(opts Options) *Session {
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Engine.Metrics = opts.Metrics
	if opts.Engine.Logger == nil {
		opts.Engine.Logger = opts.Logger
	}

	id := uuid.New().String()
	return &Session{
		id:         id,
		dispatcher: engine.New(opts.Engine),
		recorder:   opts.Recorder,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With("component", "session", "session_id", id),
		totals:     make(map[string]int),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Dispatcher returns the session's dispatcher.
func (s *Session) Dispatcher() *engine.Dispatcher {
	return s.dispatcher
}

// Start begins the session on first call and selects the exercise. Calling it
// again switches exercise; reps already counted stay in the session totals.
func (s *Session) Start(ctx context.Context, exercise string) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrEnded
	}
	first := !s.started
	if first {
		s.started = true
		s.startedAt = time.Now()
	}
	startedAt := s.startedAt
	s.mu.Unlock()

	if first {
		if s.recorder != nil {
			if err := s.recorder.Create(ctx, &store.Session{ID: s.id, StartedAt: startedAt}); err != nil {
				return fmt.Errorf("record session start: %w", err)
			}
		}
		if s.metrics != nil {
			s.metrics.ActiveSessions.Inc()
		}
		s.logger.Info("Session started", "exercise", exercise)
	}

	s.dispatcher.Configure(ctx, exercise)
	return nil
}

// Process runs one frame through the dispatcher and publishes a rep event
// when a rep completes. Frames before Start use the generic detector.
func (s *Session) Process(frame pose.Frame, timestampMs int64) engine.Result {
	res := s.dispatcher.Process(frame, timestampMs)
	if !res.RepCompleted {
		return res
	}

	s.mu.Lock()
	s.totals[res.Exercise]++
	s.mu.Unlock()

	err := s.publisher.PublishRep(events.RepEvent{
		SessionID:   s.id,
		Exercise:    res.Exercise,
		TotalReps:   res.TotalReps,
		TimestampMs: timestampMs,
	})
	if err != nil {
		s.logger.Warn("Failed to publish rep event", "exercise", res.Exercise, "error", err)
	}

	return res
}

// Totals returns the reps counted so far per exercise.
func (s *Session) Totals() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int, len(s.totals))
	for k, v := range s.totals {
		out[k] = v
	}
	return out
}

// End finishes the session and persists the summary. Calling End again
// returns the same totals without recording anything.
func (s *Session) End(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	wasActive := s.started && !s.ended
	s.ended = true
	sum := Summary{
		SessionID: s.id,
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
	}
	names := make([]string, 0, len(s.totals))
	for name := range s.totals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sum.Exercises = append(sum.Exercises, store.ExerciseTotal{Exercise: name, Reps: s.totals[name]})
		sum.TotalReps += s.totals[name]
	}
	s.mu.Unlock()

	if !wasActive {
		return sum, nil
	}

	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
	s.logger.Info("Session ended", "total_reps", sum.TotalReps)

	if s.recorder == nil {
		return sum, nil
	}
	for _, e := range sum.Exercises {
		if err := s.recorder.AddExercise(ctx, s.id, e.Exercise, e.Reps); err != nil {
			return sum, fmt.Errorf("record %s reps: %w", e.Exercise, err)
		}
	}
	if err := s.recorder.End(ctx, s.id, sum.EndedAt); err != nil {
		return sum, fmt.Errorf("record session end: %w", err)
	}

	return sum, nil
}
