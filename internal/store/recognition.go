package store

import "time"

// Recognition is one entry of the conversation log.
type Recognition struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"session_id"`
	SignName          string    `json:"sign_name"`
	Category          string    `json:"category"`
	Confidence        float64   `json:"confidence"`
	Side              string    `json:"side,omitempty"`
	VocabularyVersion string    `json:"vocabulary_version,omitempty"`
	RecognizedAt      time.Time `json:"timestamp"`
}

// RecognitionRepository stores the conversation log.
type RecognitionRepository struct {
	db queryer
}

// Recognitions returns the recognition repository for this store.
func (s *Store) Recognitions() *RecognitionRepository {
	return &RecognitionRepository{db: s.db}
}

// Insert appends one recognition. Re-inserting the same ID is a no-op, so
// a retried delivery does not duplicate the log.
func (r *RecognitionRepository) Insert(rec *Recognition) error {
	_, err := r.db.Exec(
		`INSERT INTO recognitions (id, session_id, sign_name, category, confidence, side, vocabulary_version, recognized_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		rec.ID, rec.SessionID, rec.SignName, rec.Category, rec.Confidence, rec.Side, rec.VocabularyVersion, rec.RecognizedAt,
	)
	return err
}

// ListBySession returns the conversation of one session, oldest first.
func (r *RecognitionRepository) ListBySession(sessionID string, limit int) ([]*Recognition, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(
		`SELECT id, session_id, sign_name, category, confidence, side, vocabulary_version, recognized_at
		 FROM recognitions
		 WHERE session_id = ?
		 ORDER BY recognized_at, rowid
		 LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Recognition
	for rows.Next() {
		rec := &Recognition{}
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.SignName, &rec.Category, &rec.Confidence,
			&rec.Side, &rec.VocabularyVersion, &rec.RecognizedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of recognitions in a session.
func (r *RecognitionRepository) Count(sessionID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM recognitions WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
