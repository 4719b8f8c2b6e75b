package vocabulary

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/signbridge/internal/landmark"
)

// File is the YAML catalog format:
//
//	version: "2026-03"
//	signs:
//	  - name: Hello
//	    category: greeting
//	    pose: open_palm
//	  - name: Wave
//	    kind: dynamic
//	    paths: [[{x: 0, y: 0}, {x: 1, y: 0}]]
//
// A static sign gives exactly one of pose, landmarks or samples. A dynamic
// sign gives path or paths.
type File struct {
	Version string     `yaml:"version"`
	Signs   []FileSign `yaml:"signs"`
}

// FileSign is one sign in a catalog file.
type FileSign struct {
	Name      string         `yaml:"name"`
	Category  string         `yaml:"category"`
	Kind      Kind           `yaml:"kind"`
	Tolerance float64        `yaml:"tolerance"`
	Pose      string         `yaml:"pose"`
	Landmarks [][3]float64   `yaml:"landmarks"`
	Samples   [][][3]float64 `yaml:"samples"`
	Path      []PathPoint    `yaml:"path"`
	Paths     [][]PathPoint  `yaml:"paths"`
}

// ReadFile parses a catalog file from disk.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a catalog file.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVocabulary, err)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidVocabulary)
	}
	return &f, nil
}

// LoadFile reads and compiles a catalog file in one step.
func LoadFile(path string) (*Vocabulary, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return f.Vocabulary()
}

// Vocabulary compiles the file into a validated vocabulary, training
// signatures from samples where given.
func (f *File) Vocabulary() (*Vocabulary, error) {
	entries := make([]Entry, 0, len(f.Signs))
	for _, s := range f.Signs {
		e, err := s.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return New(f.Version, entries)
}

func (s FileSign) entry() (Entry, error) {
	e := Entry{Name: s.Name, Category: s.Category, Kind: s.Kind, Tolerance: s.Tolerance}
	if e.Kind == "" {
		e.Kind = KindStatic
	}

	switch e.Kind {
	case KindStatic:
		sig, err := s.signature()
		if err != nil {
			return Entry{}, err
		}
		e.Signature = sig
	case KindDynamic:
		switch {
		case len(s.Path) > 0 && len(s.Paths) > 0:
			return Entry{}, fmt.Errorf("%w: sign %q sets both path and paths", ErrInvalidVocabulary, s.Name)
		case len(s.Path) > 0:
			e.Path = s.Path
		case len(s.Paths) > 0:
			path, err := TrainDynamic(s.Paths)
			if err != nil {
				return Entry{}, fmt.Errorf("%w: sign %q: %v", ErrInvalidVocabulary, s.Name, err)
			}
			e.Path = path
		}
	}
	return e, nil
}

func (s FileSign) signature() ([landmark.NumLandmarks]landmark.Point3D, error) {
	var zero [landmark.NumLandmarks]landmark.Point3D

	set := 0
	for _, given := range []bool{s.Pose != "", len(s.Landmarks) > 0, len(s.Samples) > 0} {
		if given {
			set++
		}
	}
	if set != 1 {
		return zero, fmt.Errorf("%w: static sign %q needs exactly one of pose, landmarks or samples", ErrInvalidVocabulary, s.Name)
	}

	switch {
	case s.Pose != "":
		pose, ok := landmark.Poses[s.Pose]
		if !ok {
			return zero, fmt.Errorf("%w: sign %q references unknown pose %q", ErrInvalidVocabulary, s.Name, s.Pose)
		}
		return pose().Normalize(), nil
	case len(s.Landmarks) > 0:
		sig, err := TrainStatic([][]landmark.Point3D{toPoints(s.Landmarks)})
		if err != nil {
			return zero, fmt.Errorf("%w: sign %q: %v", ErrInvalidVocabulary, s.Name, err)
		}
		return sig, nil
	default:
		samples := make([][]landmark.Point3D, len(s.Samples))
		for i, raw := range s.Samples {
			samples[i] = toPoints(raw)
		}
		sig, err := TrainStatic(samples)
		if err != nil {
			return zero, fmt.Errorf("%w: sign %q: %v", ErrInvalidVocabulary, s.Name, err)
		}
		return sig, nil
	}
}

func toPoints(raw [][3]float64) []landmark.Point3D {
	pts := make([]landmark.Point3D, len(raw))
	for i, v := range raw {
		pts[i] = landmark.Point3D{X: v[0], Y: v[1], Z: v[2]}
	}
	return pts
}
