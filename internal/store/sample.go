package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/repsense/internal/envelope"
	"github.com/ayusman/repsense/internal/pose"
)

// Sample represents one recorded take of an exercise, stored in the 99-float CSV format.
type Sample struct {
	ID        string    `json:"id"`
	Exercise  string    `json:"exercise"`
	Frames    int       `json:"frames"`
	Data      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// SampleRepository provides CRUD operations for recorded samples.
// It implements envelope.SampleSource.
type SampleRepository struct {
	db *sql.DB
}

var _ envelope.SampleSource = (*SampleRepository)(nil)

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Create stores frames as a new take for the exercise.
func (r *SampleRepository) Create(ctx context.Context, exercise string, frames []pose.Frame) (*Sample, error) {
	var buf bytes.Buffer
	if err := envelope.WriteCSV(&buf, frames); err != nil {
		return nil, fmt.Errorf("encode sample: %w", err)
	}

	s := &Sample{
		ID:        uuid.New().String(),
		Exercise:  exercise,
		Frames:    len(frames),
		Data:      buf.String(),
		CreatedAt: time.Now(),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO samples (id, exercise, frames, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Exercise, s.Frames, s.Data, s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// ListByExercise retrieves all takes for an exercise, oldest first.
func (r *SampleRepository) ListByExercise(ctx context.Context, exercise string) ([]Sample, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, exercise, frames, data, created_at
		 FROM samples
		 WHERE exercise = ?
		 ORDER BY created_at, id`,
		exercise,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.ID, &s.Exercise, &s.Frames, &s.Data, &s.CreatedAt); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// DeleteByExercise removes all takes for an exercise and returns how many were removed.
func (r *SampleRepository) DeleteByExercise(ctx context.Context, exercise string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM samples WHERE exercise = ?`, exercise)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Samples concatenates every stored take for the exercise, oldest first.
// It returns envelope.ErrNoSamples when nothing is stored.
func (r *SampleRepository) Samples(ctx context.Context, exercise string) ([]pose.Frame, error) {
	takes, err := r.ListByExercise(ctx, exercise)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	if len(takes) == 0 {
		return nil, envelope.ErrNoSamples
	}

	var frames []pose.Frame
	for _, take := range takes {
		f, err := envelope.ReadCSV(strings.NewReader(take.Data))
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", take.ID, err)
		}
		frames = append(frames, f...)
	}

	return frames, nil
}
