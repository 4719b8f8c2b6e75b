// Package landmark defines the hand pose model carried over the bridge:
// 21 three-dimensional landmarks per hand, following the MediaPipe layout.
package landmark

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21

	// NumValues is the number of scalar coordinates in one frame (21 x 3).
	NumValues = NumLandmarks * 3
)

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Distance returns the Euclidean distance between two points.
func (p Point3D) Distance(o Point3D) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Side tags which hand a frame belongs to when the producer tracks more than one.
type Side uint8

const (
	SideUnknown Side = iota
	SideLeft
	SideRight
)

// String returns "Left", "Right" or "" for an unknown side.
func (s Side) String() string {
	switch s {
	case SideLeft:
		return "Left"
	case SideRight:
		return "Right"
	default:
		return ""
	}
}

// ParseSide accepts "L", "Left", "R", "Right" in any case. The empty string is SideUnknown.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return SideUnknown, nil
	case "l", "left":
		return SideLeft, nil
	case "r", "right":
		return SideRight, nil
	}
	return SideUnknown, fmt.Errorf("unknown hand side %q", s)
}

// HandFrame is one timestamped snapshot of a hand pose.
// Frames are passed by value; the Points array is copied, so a constructed
// frame cannot be mutated by its consumers.
type HandFrame struct {
	Points    [NumLandmarks]Point3D `json:"points"`
	Timestamp time.Time             `json:"timestamp"`
	Side      Side                  `json:"side"`
	// SessionID optionally ties the frame to the recognition session the
	// producer was told about. Empty means "whatever session is current".
	SessionID string `json:"session_id,omitempty"`
}

// FromValues builds a frame from a flat x,y,z list. It fails unless exactly
// NumValues values are given.
func FromValues(values []float64) (HandFrame, error) {
	var f HandFrame
	if len(values) != NumValues {
		return f, fmt.Errorf("expected %d values, got %d", NumValues, len(values))
	}
	for i := 0; i < NumLandmarks; i++ {
		f.Points[i] = Point3D{X: values[i*3], Y: values[i*3+1], Z: values[i*3+2]}
	}
	return f, nil
}

// Values flattens the frame into x,y,z order.
func (f HandFrame) Values() []float64 {
	out := make([]float64, 0, NumValues)
	for _, p := range f.Points {
		out = append(out, p.X, p.Y, p.Z)
	}
	return out
}

// Normalize returns the pose translated so the wrist sits at the origin and
// scaled so the wrist to middle finger MCP distance is 1.0. A degenerate hand
// (zero scale) is only translated.
func (f HandFrame) Normalize() [NumLandmarks]Point3D {
	var normalized [NumLandmarks]Point3D

	wrist := f.Points[Wrist]
	for i := 0; i < NumLandmarks; i++ {
		normalized[i] = Point3D{
			X: f.Points[i].X - wrist.X,
			Y: f.Points[i].Y - wrist.Y,
			Z: f.Points[i].Z - wrist.Z,
		}
	}

	scale := normalized[MiddleMCP].Distance(Point3D{})
	if scale < 1e-10 {
		return normalized
	}

	for i := 0; i < NumLandmarks; i++ {
		normalized[i].X /= scale
		normalized[i].Y /= scale
		normalized[i].Z /= scale
	}

	return normalized
}

// Finite reports whether every coordinate is a finite number.
func (f HandFrame) Finite() bool {
	for _, p := range f.Points {
		for _, v := range [3]float64{p.X, p.Y, p.Z} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
