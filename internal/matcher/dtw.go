package matcher

import (
	"math"
	"sync"

	"github.com/ayusman/signbridge/internal/landmark"
	"github.com/ayusman/signbridge/internal/vocabulary"
)

// Trajectory defaults.
const (
	DefaultWindowSize = 60
	DefaultMinPoints  = 10
)

// DTWDistance calculates Dynamic Time Warping distance between two paths,
// normalized by the longer path length. Empty paths are infinitely far apart.
func DTWDistance(path1, path2 []vocabulary.PathPoint) float64 {
	n := len(path1)
	m := len(path2)

	if n == 0 || m == 0 {
		return math.Inf(1)
	}

	// Two rolling rows of the (n+1) x (m+1) cost matrix.
	prev := make([]float64, m+1)
	curr := make([]float64, m+1)
	for j := range prev {
		prev[j] = math.Inf(1)
	}
	prev[0] = 0

	for i := 1; i <= n; i++ {
		curr[0] = math.Inf(1)
		for j := 1; j <= m; j++ {
			cost := pointDistance(path1[i-1], path2[j-1])
			curr[j] = cost + min(prev[j], curr[j-1], prev[j-1])
		}
		prev, curr = curr, prev
	}

	return prev[m] / float64(max(n, m))
}

func pointDistance(a, b vocabulary.PathPoint) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// normalizePath scales path coordinates to the 0-1 range. Timestamps are
// preserved.
func normalizePath(path []vocabulary.PathPoint) []vocabulary.PathPoint {
	n := len(path)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []vocabulary.PathPoint{{Timestamp: path[0].Timestamp}}
	}

	minX, maxX := path[0].X, path[0].X
	minY, maxY := path[0].Y, path[0].Y
	for _, p := range path {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}
	rangeX := maxX - minX
	rangeY := maxY - minY

	normalized := make([]vocabulary.PathPoint, n)
	for i, p := range path {
		var normX, normY float64
		if rangeX > 0 {
			normX = (p.X - minX) / rangeX
		}
		if rangeY > 0 {
			normY = (p.Y - minY) / rangeY
		}
		normalized[i] = vocabulary.PathPoint{X: normX, Y: normY, Timestamp: p.Timestamp}
	}
	return normalized
}

// Trajectory matches dynamic entries by tracking the index fingertip over a
// sliding window of frames and scoring the window with DTW. The window is
// cleared after a match so one motion fires once.
type Trajectory struct {
	Threshold  float64
	WindowSize int
	MinPoints  int

	mu     sync.Mutex
	window []vocabulary.PathPoint
}

// NewTrajectory returns a trajectory matcher with default window sizes.
func NewTrajectory(threshold float64) *Trajectory {
	return &Trajectory{Threshold: threshold, WindowSize: DefaultWindowSize, MinPoints: DefaultMinPoints}
}

// Match implements Matcher. Every call appends the frame to the window.
func (m *Trajectory) Match(f landmark.HandFrame, v *vocabulary.Vocabulary) (Candidate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := m.WindowSize
	if size <= 0 {
		size = DefaultWindowSize
	}
	minPoints := m.MinPoints
	if minPoints <= 0 {
		minPoints = DefaultMinPoints
	}

	tip := f.Points[landmark.IndexTip]
	if len(m.window) >= size {
		copy(m.window, m.window[1:])
		m.window = m.window[:size-1]
	}
	m.window = append(m.window, vocabulary.PathPoint{X: tip.X, Y: tip.Y, Timestamp: f.Timestamp.UnixMilli()})

	if len(m.window) < minPoints || v.Len() == 0 {
		return Candidate{}, false
	}

	input := normalizePath(m.window)

	var best Candidate
	found := false
	for i, e := range v.Entries {
		if e.Kind != vocabulary.KindDynamic || len(e.Path) == 0 {
			continue
		}

		d := DTWDistance(input, normalizePath(e.Path))
		if math.IsInf(d, 1) {
			continue
		}
		if e.Tolerance > 0 && d > e.Tolerance {
			continue
		}

		score := 1.0 / (1.0 + d)
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

	threshold := m.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if !found || best.Confidence < threshold {
		return Candidate{}, false
	}

	m.window = m.window[:0]
	return best, true
}

// Reset implements Resetter.
func (m *Trajectory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = m.window[:0]
}

// Len returns the number of buffered points.
func (m *Trajectory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.window)
}
