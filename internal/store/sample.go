package store

import (
	"encoding/json"
	"time"
)

// Sample represents a recorded sign sample stored in the database.
type Sample struct {
	ID          int64           `json:"id"`
	SignID      string          `json:"sign_id"`
	SampleIndex int             `json:"sample_index"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SampleRepository provides access to raw training samples.
type SampleRepository struct {
	db queryer
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Create inserts the samples for a sign and updates its sample count.
func (r *SampleRepository) Create(signID string, samples []json.RawMessage) error {
	for i, data := range samples {
		if _, err := r.db.Exec(
			`INSERT INTO sign_samples (sign_id, sample_index, data) VALUES (?, ?, ?)`,
			signID, i, string(data),
		); err != nil {
			return err
		}
	}

	_, err := r.db.Exec(`UPDATE signs SET samples = ?, updated_at = ? WHERE id = ?`,
		len(samples), time.Now(), signID)
	return err
}

// GetBySignID retrieves all samples for a given sign.
func (r *SampleRepository) GetBySignID(signID string) ([]Sample, error) {
	rows, err := r.db.Query(
		`SELECT id, sign_id, sample_index, data, created_at
		 FROM sign_samples
		 WHERE sign_id = ?
		 ORDER BY sample_index`,
		signID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var data string
		if err := rows.Scan(&s.ID, &s.SignID, &s.SampleIndex, &data, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Data = json.RawMessage(data)
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// DeleteBySignID removes all samples for a given sign.
func (r *SampleRepository) DeleteBySignID(signID string) error {
	_, err := r.db.Exec(`DELETE FROM sign_samples WHERE sign_id = ?`, signID)
	return err
}
