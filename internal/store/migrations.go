package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Samples table - one recorded CSV take per row
		`CREATE TABLE IF NOT EXISTS samples (
			id TEXT PRIMARY KEY,
			exercise TEXT NOT NULL,
			frames INTEGER NOT NULL,
			data TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Envelopes table - derived metric ranges per exercise
		`CREATE TABLE IF NOT EXISTS envelopes (
			exercise TEXT NOT NULL,
			metric TEXT NOT NULL,
			min REAL NOT NULL,
			max REAL NOT NULL,
			mid REAL NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (exercise, metric),
			CHECK (min <= mid AND mid <= max)
		)`,

		// Sessions table - one row per workout session
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		// Session exercises table - rep totals per exercise within a session
		`CREATE TABLE IF NOT EXISTS session_exercises (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			exercise TEXT NOT NULL,
			reps INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (session_id, exercise)
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_samples_exercise ON samples(exercise)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
