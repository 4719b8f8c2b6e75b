package store

import (
	"database/sql"
	"errors"
	"time"
)

// SessionRecord is one row of recognition session history.
type SessionRecord struct {
	ID        string     `json:"session_id"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
}

// SessionRepository records session lifecycles.
type SessionRepository struct {
	db queryer
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Begin records a newly started session.
func (r *SessionRepository) Begin(id string, createdAt time.Time) error {
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, created_at) VALUES (?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, createdAt,
	)
	return err
}

// End marks a session as finished. Ending an already ended session keeps
// the first reason.
func (r *SessionRepository) End(id, reason string, at time.Time) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, end_reason = ? WHERE id = ? AND ended_at IS NULL`,
		at, reason, id,
	)
	if err != nil {
		return err
	}
	if err := requireAffected(result); err != nil {
		if _, getErr := r.Get(id); getErr != nil {
			return getErr
		}
		return nil
	}
	return nil
}

// Get retrieves a session by ID.
func (r *SessionRepository) Get(id string) (*SessionRecord, error) {
	rec, err := scanSession(r.db.QueryRow(
		`SELECT id, created_at, ended_at, end_reason FROM sessions WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List returns the most recent sessions first.
func (r *SessionRepository) List(limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		`SELECT id, created_at, ended_at, end_reason FROM sessions ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSession(row interface{ Scan(...any) error }) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var ended sql.NullTime
	if err := row.Scan(&rec.ID, &rec.CreatedAt, &ended, &rec.EndReason); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		rec.EndedAt = &t
	}
	return rec, nil
}
