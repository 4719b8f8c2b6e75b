package store

import "time"

// DeliveryFailure records an event a consumer never received.
type DeliveryFailure struct {
	ID        int64     `json:"id"`
	Consumer  string    `json:"consumer"`
	EventID   string    `json:"event_id"`
	SignName  string    `json:"sign_name"`
	SessionID string    `json:"session_id"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}

// FailureRepository stores delivery failures.
type FailureRepository struct {
	db queryer
}

// Failures returns the delivery failure repository for this store.
func (s *Store) Failures() *FailureRepository {
	return &FailureRepository{db: s.db}
}

// Insert records one failure and sets its ID.
func (r *FailureRepository) Insert(f *DeliveryFailure) error {
	result, err := r.db.Exec(
		`INSERT INTO delivery_failures (consumer, event_id, sign_name, session_id, error, failed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.Consumer, f.EventID, f.SignName, f.SessionID, f.Error, f.FailedAt,
	)
	if err != nil {
		return err
	}
	f.ID, err = result.LastInsertId()
	return err
}

// List returns the most recent failures first.
func (r *FailureRepository) List(limit int) ([]*DeliveryFailure, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(
		`SELECT id, consumer, event_id, sign_name, session_id, error, failed_at
		 FROM delivery_failures ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DeliveryFailure
	for rows.Next() {
		f := &DeliveryFailure{}
		if err := rows.Scan(&f.ID, &f.Consumer, &f.EventID, &f.SignName, &f.SessionID, &f.Error, &f.FailedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CountByConsumer returns failure totals keyed by consumer name.
func (r *FailureRepository) CountByConsumer() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT consumer, COUNT(*) FROM delivery_failures GROUP BY consumer`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, rows.Err()
}
