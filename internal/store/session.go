package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Session represents a workout session and its rep totals per exercise.
type Session struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Exercises []ExerciseTotal `json:"exercises"`
}

// ExerciseTotal is the number of reps done for one exercise in a session.
type ExerciseTotal struct {
	Exercise string `json:"exercise"`
	Reps     int    `json:"reps"`
}

// SessionRepository provides CRUD operations for workout sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, s *Session) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at) VALUES (?, ?)`,
		s.ID, s.StartedAt,
	)
	return err
}

// End records when the session finished.
func (r *SessionRepository) End(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// AddExercise adds reps to the session's total for an exercise.
func (r *SessionRepository) AddExercise(ctx context.Context, id, exercise string, reps int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_exercises (session_id, exercise, reps) VALUES (?, ?, ?)
		 ON CONFLICT(session_id, exercise) DO UPDATE SET reps = reps + excluded.reps`,
		id, exercise, reps,
	)
	return err
}

// GetByID retrieves a session with its exercise totals.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	s := &Session{}
	var ended sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, started_at, ended_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.StartedAt, &ended)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT exercise, reps FROM session_exercises WHERE session_id = ? ORDER BY exercise`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e ExerciseTotal
		if err := rows.Scan(&e.Exercise, &e.Reps); err != nil {
			return nil, err
		}
		s.Exercises = append(s.Exercises, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return s, nil
}

// List retrieves the most recent sessions without exercise totals.
func (r *SessionRepository) List(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, started_at, ended_at FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s := &Session{}
		var ended sql.NullTime
		if err := rows.Scan(&s.ID, &s.StartedAt, &ended); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}
