package matcher

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/signbridge/internal/landmark"
	"github.com/ayusman/signbridge/internal/vocabulary"
)

func TestDTWDistance(t *testing.T) {
	line := []vocabulary.PathPoint{{X: 0, Y: 0}, {X: 1, Y: 1, Timestamp: 100}, {X: 2, Y: 2, Timestamp: 200}}

	t.Run("identical paths", func(t *testing.T) {
		assert.Equal(t, 0.0, DTWDistance(line, line))
	})

	t.Run("parallel paths", func(t *testing.T) {
		shifted := []vocabulary.PathPoint{{X: 0, Y: 2}, {X: 1, Y: 3}, {X: 2, Y: 4}}
		assert.Greater(t, DTWDistance(line, shifted), 0.0)
	})

	t.Run("speed invariant", func(t *testing.T) {
		fast := []vocabulary.PathPoint{{X: 0}, {X: 1}, {X: 2}}
		slow := make([]vocabulary.PathPoint, 9)
		for i := range slow {
			slow[i] = vocabulary.PathPoint{X: float64(i) * 0.25}
		}
		assert.Less(t, DTWDistance(fast, slow), 0.5)
	})

	t.Run("empty paths", func(t *testing.T) {
		assert.True(t, math.IsInf(DTWDistance(nil, line), 1))
		assert.True(t, math.IsInf(DTWDistance(line, nil), 1))
	})
}

func TestNormalizePath(t *testing.T) {
	assert.Nil(t, normalizePath(nil))

	single := normalizePath([]vocabulary.PathPoint{{X: 5, Y: 5, Timestamp: 7}})
	assert.Equal(t, []vocabulary.PathPoint{{Timestamp: 7}}, single)

	got := normalizePath([]vocabulary.PathPoint{{X: 10, Y: 4, Timestamp: 1}, {X: 20, Y: 4, Timestamp: 2}})
	assert.Equal(t, []vocabulary.PathPoint{{X: 0, Y: 0, Timestamp: 1}, {X: 1, Y: 0, Timestamp: 2}}, got)
}

func swipeVocabulary(t *testing.T) *vocabulary.Vocabulary {
	t.Helper()
	v, err := vocabulary.New("v", []vocabulary.Entry{
		{Name: "Hello", Kind: vocabulary.KindStatic, Signature: landmark.OpenPalm().Normalize()},
		{Name: "Swipe up", Category: "gesture", Kind: vocabulary.KindDynamic,
			Path: []vocabulary.PathPoint{{X: 0, Y: 1}, {X: 0, Y: 0.5}, {X: 0, Y: 0}}},
		{Name: "Swipe right", Category: "gesture", Kind: vocabulary.KindDynamic,
			Path: []vocabulary.PathPoint{{X: 0, Y: 0}, {X: 0.5, Y: 0}, {X: 1, Y: 0}}},
	})
	require.NoError(t, err)
	return v
}

func swipeFrame(i int, base time.Time) landmark.HandFrame {
	f := landmark.PointUp()
	f.Points[landmark.IndexTip].X = 0.3 + float64(i)*0.03
	f.Timestamp = base.Add(time.Duration(i) * 33 * time.Millisecond)
	return f
}

func TestTrajectory_MatchesSwipe(t *testing.T) {
	v := swipeVocabulary(t)
	m := NewTrajectory(0.8)
	base := time.Now()

	for i := 0; i < DefaultMinPoints-1; i++ {
		_, ok := m.Match(swipeFrame(i, base), v)
		require.False(t, ok, "frame %d matched before the window filled", i)
	}

	got, ok := m.Match(swipeFrame(DefaultMinPoints-1, base), v)
	require.True(t, ok)
	assert.Equal(t, "Swipe right", got.Name)
	assert.Equal(t, vocabulary.KindDynamic, got.Kind)
	assert.Equal(t, 2, got.Index)
	assert.Greater(t, got.Confidence, 0.85)

	assert.Equal(t, 0, m.Len(), "window is cleared after a match")
}

func TestTrajectory_WindowIsBounded(t *testing.T) {
	m := &Trajectory{WindowSize: 5, MinPoints: 100}
	v := swipeVocabulary(t)
	for i := 0; i < 20; i++ {
		m.Match(swipeFrame(i, time.Now()), v)
	}
	assert.Equal(t, 5, m.Len())

	m.Reset()
	assert.Equal(t, 0, m.Len())
}

func TestTrajectory_NoDynamicEntries(t *testing.T) {
	m := &Trajectory{MinPoints: 2}
	v := vocabulary.Default()
	for i := 0; i < 5; i++ {
		_, ok := m.Match(swipeFrame(i, time.Now()), v)
		assert.False(t, ok)
	}
}

func TestChain_StaticAndTrajectory(t *testing.T) {
	v := swipeVocabulary(t)
	c := Chain{NearestSignature{Threshold: 0.9}, NewTrajectory(0.8)}

	got, ok := c.Match(landmark.OpenPalm(), v)
	require.True(t, ok)
	assert.Equal(t, "Hello", got.Name)
}
