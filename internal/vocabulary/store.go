package vocabulary

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayusman/signbridge/internal/landmark"
	"github.com/ayusman/signbridge/internal/store"
)

// ErrEmptyCatalog is returned by FromStore when no signs were imported.
var ErrEmptyCatalog = errors.New("sign catalog is empty")

// FromStore builds a vocabulary from the persisted sign catalog.
func FromStore(s *store.Store) (*Vocabulary, error) {
	version, defs, err := s.Catalog()
	if err != nil {
		return nil, fmt.Errorf("read sign catalog: %w", err)
	}
	if len(defs) == 0 {
		return nil, ErrEmptyCatalog
	}

	entries := make([]Entry, 0, len(defs))
	for _, d := range defs {
		e := Entry{
			Name:      d.Sign.Name,
			Category:  d.Sign.Category,
			Kind:      Kind(d.Sign.Kind),
			Tolerance: d.Sign.Tolerance,
		}
		if e.Kind == KindStatic {
			if len(d.Landmarks) != landmark.NumLandmarks {
				return nil, fmt.Errorf("%w: sign %q has %d stored landmarks", ErrInvalidVocabulary, e.Name, len(d.Landmarks))
			}
			for i, l := range d.Landmarks {
				e.Signature[i] = landmark.Point3D{X: l.X, Y: l.Y, Z: l.Z}
			}
		}
		for _, p := range d.Path {
			e.Path = append(e.Path, PathPoint{X: p.X, Y: p.Y, Timestamp: p.TimestampMs})
		}
		entries = append(entries, e)
	}
	return New(version, entries)
}

// Import compiles f and replaces the persisted catalog with it, keeping the
// raw samples each signature was trained from. It returns the compiled
// vocabulary.
func Import(s *store.Store, f *File) (*Vocabulary, error) {
	v, err := f.Vocabulary()
	if err != nil {
		return nil, err
	}

	defs := make([]store.SignDefinition, len(v.Entries))
	for i, e := range v.Entries {
		d := store.SignDefinition{
			Sign: store.Sign{
				Name:      e.Name,
				Category:  e.Category,
				Kind:      store.SignKind(e.Kind),
				Tolerance: e.Tolerance,
			},
		}
		if e.Kind == KindStatic {
			d.Landmarks = make([]store.Landmark, len(e.Signature))
			for j, p := range e.Signature {
				d.Landmarks[j] = store.Landmark{X: p.X, Y: p.Y, Z: p.Z}
			}
		}
		for _, p := range e.Path {
			d.Path = append(d.Path, store.PathPoint{X: p.X, Y: p.Y, TimestampMs: p.Timestamp})
		}

		samples, err := rawSamples(f.Signs[i])
		if err != nil {
			return nil, err
		}
		d.Samples = samples
		defs[i] = d
	}

	if err := s.ReplaceCatalog(v.Version, defs); err != nil {
		return nil, fmt.Errorf("store sign catalog: %w", err)
	}
	return v, nil
}

func rawSamples(fs FileSign) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for _, raw := range fs.Samples {
		b, err := json.Marshal(StaticSample{Type: string(KindStatic), Landmarks: toPoints(raw)})
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	for _, path := range fs.Paths {
		b, err := json.Marshal(DynamicSample{Type: string(KindDynamic), Path: path})
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
