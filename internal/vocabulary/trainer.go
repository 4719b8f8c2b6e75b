package vocabulary

import (
	"errors"
	"fmt"

	"github.com/ayusman/signbridge/internal/landmark"
)

// ErrNoSamples is returned when a trainer is given nothing to average.
var ErrNoSamples = errors.New("no samples provided")

// StaticSample is a recorded pose, as persisted alongside a trained sign.
type StaticSample struct {
	Type      string             `json:"type"`
	Landmarks []landmark.Point3D `json:"landmarks"`
	Timestamp int64              `json:"timestamp,omitempty"`
}

// DynamicSample is a recorded trajectory, as persisted alongside a trained sign.
type DynamicSample struct {
	Type      string      `json:"type"`
	Path      []PathPoint `json:"path"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

// TrainStatic normalizes each recorded pose and averages them into one
// signature.
func TrainStatic(samples [][]landmark.Point3D) ([landmark.NumLandmarks]landmark.Point3D, error) {
	var out [landmark.NumLandmarks]landmark.Point3D
	if len(samples) == 0 {
		return out, ErrNoSamples
	}

	for i, pts := range samples {
		if len(pts) != landmark.NumLandmarks {
			return out, fmt.Errorf("sample %d has %d landmarks, expected %d", i, len(pts), landmark.NumLandmarks)
		}
		var f landmark.HandFrame
		copy(f.Points[:], pts)
		norm := f.Normalize()
		for j := range out {
			out[j].X += norm[j].X
			out[j].Y += norm[j].Y
			out[j].Z += norm[j].Z
		}
	}

	n := float64(len(samples))
	for j := range out {
		out[j].X /= n
		out[j].Y /= n
		out[j].Z /= n
	}
	return out, nil
}

// TrainDynamic resamples every trajectory to the length of the first and
// averages them point by point.
func TrainDynamic(paths [][]PathPoint) ([]PathPoint, error) {
	if len(paths) == 0 {
		return nil, ErrNoSamples
	}
	for i, p := range paths {
		if len(p) < 2 {
			return nil, fmt.Errorf("sample %d has insufficient path points", i)
		}
	}

	targetLength := len(paths[0])
	resampled := make([][]PathPoint, len(paths))
	for i, p := range paths {
		resampled[i] = ResamplePath(p, targetLength)
	}

	averaged := make([]PathPoint, targetLength)
	n := float64(len(paths))
	for i := 0; i < targetLength; i++ {
		var sumX, sumY float64
		for _, p := range resampled {
			sumX += p[i].X
			sumY += p[i].Y
		}
		averaged[i] = PathPoint{
			X:         sumX / n,
			Y:         sumY / n,
			Timestamp: resampled[0][i].Timestamp,
		}
	}
	return averaged, nil
}

// ResamplePath linearly interpolates path to exactly targetLength points.
func ResamplePath(path []PathPoint, targetLength int) []PathPoint {
	if len(path) == 0 {
		return nil
	}
	if len(path) == 1 || targetLength <= 1 {
		return []PathPoint{path[0]}
	}

	result := make([]PathPoint, targetLength)
	for i := 0; i < targetLength; i++ {
		pos := float64(i) / float64(targetLength-1) * float64(len(path)-1)

		idx := int(pos)
		if idx >= len(path)-1 {
			idx = len(path) - 2
		}
		frac := pos - float64(idx)

		p1, p2 := path[idx], path[idx+1]
		result[i] = PathPoint{
			X:         p1.X + frac*(p2.X-p1.X),
			Y:         p1.Y + frac*(p2.Y-p1.Y),
			Timestamp: p1.Timestamp + int64(frac*float64(p2.Timestamp-p1.Timestamp)),
		}
	}
	return result
}
