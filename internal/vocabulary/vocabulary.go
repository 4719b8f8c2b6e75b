// Package vocabulary holds the versioned catalog of recognizable signs.
//
// A Vocabulary is immutable once built. Reloading swaps a whole new
// Vocabulary into a Holder, so a reader that captured one keeps a consistent
// view for the rest of its match.
package vocabulary

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ayusman/signbridge/internal/landmark"
)

// Kind distinguishes pose signatures from fingertip trajectories.
type Kind string

const (
	// KindStatic is matched against a single frame.
	KindStatic Kind = "static"
	// KindDynamic is matched against a window of frames.
	KindDynamic Kind = "dynamic"
)

// ErrInvalidVocabulary is returned when entries fail validation.
var ErrInvalidVocabulary = errors.New("invalid vocabulary")

// PathPoint is one point of an index fingertip trajectory.
type PathPoint struct {
	X         float64 `json:"x" yaml:"x"`
	Y         float64 `json:"y" yaml:"y"`
	Timestamp int64   `json:"t" yaml:"t"`
}

// Entry is one recognizable sign.
type Entry struct {
	Name     string
	Category string
	Kind     Kind
	// Signature is the normalized pose for static entries.
	Signature [landmark.NumLandmarks]landmark.Point3D
	// Path is the trajectory for dynamic entries.
	Path []PathPoint
	// Tolerance is the largest accepted distance. Zero means unbounded.
	Tolerance float64
}

// Vocabulary is an ordered, versioned set of entries. Declaration order
// breaks score ties.
type Vocabulary struct {
	Version string
	Entries []Entry
}

// New validates entries and returns an immutable vocabulary.
func New(version string, entries []Entry) (*Vocabulary, error) {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", ErrInvalidVocabulary, i)
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate sign %q", ErrInvalidVocabulary, e.Name)
		}
		seen[e.Name] = struct{}{}

		switch e.Kind {
		case KindStatic:
		case KindDynamic:
			if len(e.Path) < 2 {
				return nil, fmt.Errorf("%w: dynamic sign %q needs at least 2 path points", ErrInvalidVocabulary, e.Name)
			}
		default:
			return nil, fmt.Errorf("%w: sign %q has unknown kind %q", ErrInvalidVocabulary, e.Name, e.Kind)
		}
		if e.Tolerance < 0 {
			return nil, fmt.Errorf("%w: sign %q has negative tolerance", ErrInvalidVocabulary, e.Name)
		}
	}

	cp := make([]Entry, len(entries))
	for i, e := range entries {
		e.Path = append([]PathPoint(nil), e.Path...)
		cp[i] = e
	}
	return &Vocabulary{Version: version, Entries: cp}, nil
}

// Len returns the number of entries.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Entries)
}

// Lookup returns the entry with the given name.
func (v *Vocabulary) Lookup(name string) (Entry, bool) {
	if v == nil {
		return Entry{}, false
	}
	for _, e := range v.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Holder publishes the current vocabulary to concurrent readers.
type Holder struct {
	p atomic.Pointer[Vocabulary]
}

// NewHolder returns a holder seeded with v.
func NewHolder(v *Vocabulary) *Holder {
	h := &Holder{}
	h.p.Store(v)
	return h
}

// Load returns the current vocabulary. It never returns a partially
// replaced value.
func (h *Holder) Load() *Vocabulary {
	return h.p.Load()
}

// Swap installs v and returns the previous vocabulary.
func (h *Holder) Swap(v *Vocabulary) *Vocabulary {
	return h.p.Swap(v)
}
