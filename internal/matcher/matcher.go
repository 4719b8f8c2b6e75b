// Package matcher scores hand frames against a sign vocabulary.
package matcher

import (
	"math"

	"github.com/ayusman/signbridge/internal/landmark"
	"github.com/ayusman/signbridge/internal/vocabulary"
)

// DefaultThreshold is the minimum confidence a candidate needs.
const DefaultThreshold = 0.75

// Candidate is the best-scoring vocabulary entry for a frame.
type Candidate struct {
	Name       string
	Category   string
	Kind       vocabulary.Kind
	Confidence float64
	Distance   float64
	// Index is the entry's position in the vocabulary.
	Index int
	// Version is the vocabulary version the candidate was scored against.
	Version string
}

// Matcher maps one frame to at most one candidate. A false result means no
// entry reached the confidence threshold.
type Matcher interface {
	Match(f landmark.HandFrame, v *vocabulary.Vocabulary) (Candidate, bool)
}

// Resetter is implemented by matchers that keep state across frames.
type Resetter interface {
	Reset()
}

// Reset clears any per-session state held by m.
func Reset(m Matcher) {
	if r, ok := m.(Resetter); ok {
		r.Reset()
	}
}

// NearestSignature compares the normalized frame against every static
// entry's signature. Confidence is 1/(1+d) where d is the mean landmark
// distance, so identical poses score 1. It is stateless and deterministic.
type NearestSignature struct {
	Threshold float64
}

// Match implements Matcher.
func (m NearestSignature) Match(f landmark.HandFrame, v *vocabulary.Vocabulary) (Candidate, bool) {
	if v.Len() == 0 {
		return Candidate{}, false
	}

	norm := f.Normalize()

	var best Candidate
	found := false
	for i, e := range v.Entries {
		if e.Kind != vocabulary.KindStatic {
			continue
		}

		d := meanDistance(&norm, &e.Signature)
		if e.Tolerance > 0 && d > e.Tolerance {
			continue
		}

		score := 1.0 / (1.0 + d)
		// Strictly greater keeps the first declared entry on ties.
		if !found || score > best.Confidence {
			best = Candidate{
				Name:       e.Name,
				Category:   e.Category,
				Kind:       e.Kind,
				Confidence: score,
				Distance:   d,
				Index:      i,
				Version:    v.Version,
			}
			found = true
		}
	}

	if !found || best.Confidence < m.threshold() {
		return Candidate{}, false
	}
	return best, true
}

func (m NearestSignature) threshold() float64 {
	if m.Threshold <= 0 {
		return DefaultThreshold
	}
	return m.Threshold
}

func meanDistance(a, b *[landmark.NumLandmarks]landmark.Point3D) float64 {
	var total float64
	for i := range a {
		total += a[i].Distance(b[i])
	}
	d := total / landmark.NumLandmarks
	if math.IsNaN(d) {
		return math.Inf(1)
	}
	return d
}

// Chain asks every matcher and keeps the most confident candidate. Ties go
// to the entry declared first in the vocabulary, whichever matcher scored it.
type Chain []Matcher

// Match implements Matcher.
func (c Chain) Match(f landmark.HandFrame, v *vocabulary.Vocabulary) (Candidate, bool) {
	var best Candidate
	found := false
	for _, m := range c {
		cand, ok := m.Match(f, v)
		if !ok {
			continue
		}
		if !found || cand.Confidence > best.Confidence ||
			(cand.Confidence == best.Confidence && cand.Index < best.Index) {
			best, found = cand, true
		}
	}
	return best, found
}

// Reset implements Resetter.
func (c Chain) Reset() {
	for _, m := range c {
		Reset(m)
	}
}
