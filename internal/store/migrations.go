package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Signs table - the vocabulary catalog, in declaration order
		`CREATE TABLE IF NOT EXISTS signs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL CHECK(kind IN ('static', 'dynamic')),
			tolerance REAL NOT NULL DEFAULT 0,
			position INTEGER NOT NULL,
			samples INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Sign landmarks table - normalized signature of static signs
		`CREATE TABLE IF NOT EXISTS sign_landmarks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sign_id TEXT NOT NULL REFERENCES signs(id) ON DELETE CASCADE,
			landmark_index INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL
		)`,

		// Sign paths table - index fingertip trajectory of dynamic signs
		`CREATE TABLE IF NOT EXISTS sign_paths (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sign_id TEXT NOT NULL REFERENCES signs(id) ON DELETE CASCADE,
			sequence INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			timestamp_ms INTEGER NOT NULL
		)`,

		// Sign samples table - raw recorded samples the signature was trained from
		`CREATE TABLE IF NOT EXISTS sign_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sign_id TEXT NOT NULL REFERENCES signs(id) ON DELETE CASCADE,
			sample_index INTEGER NOT NULL,
			data TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Bindings table - plugin action to run when a sign is recognized
		`CREATE TABLE IF NOT EXISTS bindings (
			id TEXT PRIMARY KEY,
			sign_name TEXT NOT NULL UNIQUE,
			plugin_name TEXT NOT NULL,
			action_name TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Sessions table - recognition session history
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			ended_at DATETIME,
			end_reason TEXT NOT NULL DEFAULT ''
		)`,

		// Recognitions table - the conversation log
		`CREATE TABLE IF NOT EXISTS recognitions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			sign_name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL,
			side TEXT NOT NULL DEFAULT '',
			vocabulary_version TEXT NOT NULL DEFAULT '',
			recognized_at DATETIME NOT NULL
		)`,

		// Delivery failures table - events a consumer never received
		`CREATE TABLE IF NOT EXISTS delivery_failures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			consumer TEXT NOT NULL,
			event_id TEXT NOT NULL,
			sign_name TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL,
			failed_at DATETIME NOT NULL
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_sign_landmarks_sign_id ON sign_landmarks(sign_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sign_paths_sign_id ON sign_paths(sign_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sign_samples_sign_id ON sign_samples(sign_id)`,
		`CREATE INDEX IF NOT EXISTS idx_recognitions_session_id ON recognitions(session_id, recognized_at)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_failures_consumer ON delivery_failures(consumer)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
