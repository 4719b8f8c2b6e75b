package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SignDefinition is a sign with its signature, trajectory and raw samples.
type SignDefinition struct {
	Sign      Sign
	Landmarks []Landmark
	Path      []PathPoint
	Samples   []json.RawMessage
}

// ReplaceCatalog atomically swaps the whole sign catalog for defs, in the
// given order, and records version. Readers see either the old or the new
// catalog.
func (s *Store) ReplaceCatalog(version string, defs []SignDefinition) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM signs`); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}

	signs := &SignRepository{db: tx}
	samples := &SampleRepository{db: tx}
	for i := range defs {
		d := defs[i]
		if d.Sign.ID == "" {
			d.Sign.ID = uuid.NewString()
		}
		d.Sign.Position = i

		if err := signs.Create(&d.Sign); err != nil {
			return fmt.Errorf("create sign %q: %w", d.Sign.Name, err)
		}
		if err := signs.SetLandmarks(d.Sign.ID, d.Landmarks); err != nil {
			return fmt.Errorf("store landmarks for %q: %w", d.Sign.Name, err)
		}
		if err := signs.SetPath(d.Sign.ID, d.Path); err != nil {
			return fmt.Errorf("store path for %q: %w", d.Sign.Name, err)
		}
		if len(d.Samples) > 0 {
			if err := samples.Create(d.Sign.ID, d.Samples); err != nil {
				return fmt.Errorf("store samples for %q: %w", d.Sign.Name, err)
			}
		}
	}

	if err := (&SettingsRepository{db: tx}).Set(SettingVocabularyVersion, version); err != nil {
		return err
	}

	return tx.Commit()
}

// Catalog reads the whole sign catalog in declaration order. Samples are
// not loaded.
func (s *Store) Catalog() (string, []SignDefinition, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", nil, err
	}
	defer tx.Rollback()

	version, err := (&SettingsRepository{db: tx}).Get(SettingVocabularyVersion)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", nil, err
	}

	repo := &SignRepository{db: tx}
	signs, err := repo.List()
	if err != nil {
		return "", nil, err
	}

	defs := make([]SignDefinition, 0, len(signs))
	for _, g := range signs {
		landmarks, err := repo.GetLandmarks(g.ID)
		if err != nil {
			return "", nil, fmt.Errorf("load landmarks for %q: %w", g.Name, err)
		}
		path, err := repo.GetPath(g.ID)
		if err != nil {
			return "", nil, fmt.Errorf("load path for %q: %w", g.Name, err)
		}
		defs = append(defs, SignDefinition{Sign: *g, Landmarks: landmarks, Path: path})
	}

	return version, defs, tx.Commit()
}
