package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// SignKind represents the kind of sign (static pose or dynamic motion).
type SignKind string

const (
	// SignKindStatic represents a single hand pose.
	SignKindStatic SignKind = "static"
	// SignKindDynamic represents a fingertip trajectory.
	SignKindDynamic SignKind = "dynamic"
)

// Sign represents a vocabulary entry stored in the database.
type Sign struct {
	ID        string
	Name      string
	Category  string
	Kind      SignKind
	Tolerance float64
	// Position is the declaration order; lower wins ties when matching.
	Position  int
	Samples   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Landmark is one stored signature point.
type Landmark struct {
	X, Y, Z float64
}

// PathPoint is one stored trajectory point.
type PathPoint struct {
	X, Y        float64
	TimestampMs int64
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// SignRepository provides CRUD operations for signs.
type SignRepository struct {
	db queryer
}

// Signs returns the sign repository for this store.
func (s *Store) Signs() *SignRepository {
	return &SignRepository{db: s.db}
}

const signColumns = `id, name, category, kind, tolerance, position, samples, created_at, updated_at`

func scanSign(row interface{ Scan(...any) error }) (*Sign, error) {
	g := &Sign{}
	var kind string
	if err := row.Scan(&g.ID, &g.Name, &g.Category, &kind, &g.Tolerance, &g.Position, &g.Samples, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.Kind = SignKind(kind)
	return g, nil
}

// Create inserts a new sign into the database.
func (r *SignRepository) Create(g *Sign) error {
	now := time.Now()
	g.CreatedAt = now
	g.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO signs (`+signColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Category, string(g.Kind), g.Tolerance, g.Position, g.Samples, g.CreatedAt, g.UpdatedAt,
	)
	return err
}

// GetByID retrieves a sign by its ID.
func (r *SignRepository) GetByID(id string) (*Sign, error) {
	g, err := scanSign(r.db.QueryRow(`SELECT `+signColumns+` FROM signs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return g, err
}

// GetByName retrieves a sign by its name.
func (r *SignRepository) GetByName(name string) (*Sign, error) {
	g, err := scanSign(r.db.QueryRow(`SELECT `+signColumns+` FROM signs WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return g, err
}

// List retrieves all signs in declaration order.
func (r *SignRepository) List() ([]*Sign, error) {
	rows, err := r.db.Query(`SELECT ` + signColumns + ` FROM signs ORDER BY position, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signs []*Sign
	for rows.Next() {
		g, err := scanSign(rows)
		if err != nil {
			return nil, err
		}
		signs = append(signs, g)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return signs, nil
}

// Update updates an existing sign in the database.
func (r *SignRepository) Update(g *Sign) error {
	g.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE signs SET name = ?, category = ?, kind = ?, tolerance = ?, position = ?, samples = ?, updated_at = ?
		 WHERE id = ?`,
		g.Name, g.Category, string(g.Kind), g.Tolerance, g.Position, g.Samples, g.UpdatedAt, g.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// Delete removes a sign and, by cascade, its signature, path and samples.
func (r *SignRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM signs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SetLandmarks replaces the signature of a static sign.
func (r *SignRepository) SetLandmarks(signID string, landmarks []Landmark) error {
	if _, err := r.db.Exec(`DELETE FROM sign_landmarks WHERE sign_id = ?`, signID); err != nil {
		return err
	}
	for i, l := range landmarks {
		if _, err := r.db.Exec(
			`INSERT INTO sign_landmarks (sign_id, landmark_index, x, y, z) VALUES (?, ?, ?, ?, ?)`,
			signID, i, l.X, l.Y, l.Z,
		); err != nil {
			return err
		}
	}
	return nil
}

// GetLandmarks returns the signature of a sign, ordered by landmark index.
func (r *SignRepository) GetLandmarks(signID string) ([]Landmark, error) {
	rows, err := r.db.Query(
		`SELECT x, y, z FROM sign_landmarks WHERE sign_id = ? ORDER BY landmark_index`,
		signID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Landmark
	for rows.Next() {
		var l Landmark
		if err := rows.Scan(&l.X, &l.Y, &l.Z); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SetPath replaces the trajectory of a dynamic sign.
func (r *SignRepository) SetPath(signID string, path []PathPoint) error {
	if _, err := r.db.Exec(`DELETE FROM sign_paths WHERE sign_id = ?`, signID); err != nil {
		return err
	}
	for i, p := range path {
		if _, err := r.db.Exec(
			`INSERT INTO sign_paths (sign_id, sequence, x, y, timestamp_ms) VALUES (?, ?, ?, ?, ?)`,
			signID, i, p.X, p.Y, p.TimestampMs,
		); err != nil {
			return err
		}
	}
	return nil
}

// GetPath returns the trajectory of a sign in sequence order.
func (r *SignRepository) GetPath(signID string) ([]PathPoint, error) {
	rows, err := r.db.Query(
		`SELECT x, y, timestamp_ms FROM sign_paths WHERE sign_id = ? ORDER BY sequence`,
		signID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PathPoint
	for rows.Next() {
		var p PathPoint
		if err := rows.Scan(&p.X, &p.Y, &p.TimestampMs); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
