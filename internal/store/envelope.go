package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ayusman/repsense/internal/envelope"
)

// EnvelopeRepository persists derived motion envelopes.
type EnvelopeRepository struct {
	db *sql.DB
}

// Envelopes returns the envelope repository for this store.
func (s *Store) Envelopes() *EnvelopeRepository {
	return &EnvelopeRepository{db: s.db}
}

// Save replaces the stored envelope for the exercise.
func (r *EnvelopeRepository) Save(ctx context.Context, exercise string, env envelope.Envelope) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM envelopes WHERE exercise = ?`, exercise); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO envelopes (exercise, metric, min, max, mid, updated_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, m := range env.Metrics() {
		rng := env[m]
		if _, err := stmt.ExecContext(ctx, exercise, string(m), rng.Min, rng.Max, rng.Mid, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Get retrieves the stored envelope and when it was saved.
func (r *EnvelopeRepository) Get(ctx context.Context, exercise string) (envelope.Envelope, time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT metric, min, max, mid, updated_at FROM envelopes WHERE exercise = ?`,
		exercise,
	)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer rows.Close()

	env := envelope.Envelope{}
	var updated time.Time
	for rows.Next() {
		var (
			metric string
			rng    envelope.Range
			at     time.Time
		)
		if err := rows.Scan(&metric, &rng.Min, &rng.Max, &rng.Mid, &at); err != nil {
			return nil, time.Time{}, err
		}
		env[envelope.Metric(metric)] = rng
		if at.After(updated) {
			updated = at
		}
	}

	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}
	if len(env) == 0 {
		return nil, time.Time{}, ErrNotFound
	}

	return env, updated, nil
}

// Delete removes the stored envelope for the exercise.
func (r *EnvelopeRepository) Delete(ctx context.Context, exercise string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM envelopes WHERE exercise = ?`, exercise)
	return err
}
