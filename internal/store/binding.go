package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Binding maps a recognized sign to a plugin action.
type Binding struct {
	ID         string
	SignName   string
	PluginName string
	ActionName string
	Config     json.RawMessage
	Enabled    bool
	CreatedAt  time.Time
}

// BindingRepository provides CRUD operations for bindings.
type BindingRepository struct {
	db queryer
}

// Bindings returns the binding repository for this store.
func (s *Store) Bindings() *BindingRepository {
	return &BindingRepository{db: s.db}
}

const bindingColumns = `id, sign_name, plugin_name, action_name, config, enabled, created_at`

func scanBinding(row interface{ Scan(...any) error }) (*Binding, error) {
	b := &Binding{}
	var config string
	var enabled int
	if err := row.Scan(&b.ID, &b.SignName, &b.PluginName, &b.ActionName, &config, &enabled, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Config = json.RawMessage(config)
	b.Enabled = enabled != 0
	return b, nil
}

// Save inserts a binding, replacing any existing binding for the same sign.
func (r *BindingRepository) Save(b *Binding) error {
	b.CreatedAt = time.Now()

	config := b.Config
	if config == nil {
		config = json.RawMessage("{}")
	}
	enabled := 0
	if b.Enabled {
		enabled = 1
	}

	_, err := r.db.Exec(
		`INSERT INTO bindings (`+bindingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(sign_name) DO UPDATE SET
		   id = excluded.id,
		   plugin_name = excluded.plugin_name,
		   action_name = excluded.action_name,
		   config = excluded.config,
		   enabled = excluded.enabled,
		   created_at = excluded.created_at`,
		b.ID, b.SignName, b.PluginName, b.ActionName, string(config), enabled, b.CreatedAt,
	)
	return err
}

// GetBySignName retrieves the binding for a sign.
// Returns nil, nil if no binding exists for the sign.
func (r *BindingRepository) GetBySignName(signName string) (*Binding, error) {
	b, err := scanBinding(r.db.QueryRow(`SELECT `+bindingColumns+` FROM bindings WHERE sign_name = ?`, signName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Silent skip - no binding for this sign
		}
		return nil, err
	}
	return b, nil
}

// List retrieves all bindings ordered by sign name.
func (r *BindingRepository) List() ([]*Binding, error) {
	rows, err := r.db.Query(`SELECT ` + bindingColumns + ` FROM bindings ORDER BY sign_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []*Binding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bindings, nil
}

// Delete removes the binding for a sign.
func (r *BindingRepository) Delete(signName string) error {
	result, err := r.db.Exec(`DELETE FROM bindings WHERE sign_name = ?`, signName)
	if err != nil {
		return err
	}
	return requireAffected(result)
}
