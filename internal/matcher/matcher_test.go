package matcher

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/signbridge/internal/landmark"
	"github.com/ayusman/signbridge/internal/vocabulary"
)

func staticEntry(name, category string, pose func() landmark.HandFrame) vocabulary.Entry {
	return vocabulary.Entry{Name: name, Category: category, Kind: vocabulary.KindStatic, Signature: pose().Normalize()}
}

func mustVocabulary(t *testing.T, version string, entries ...vocabulary.Entry) *vocabulary.Vocabulary {
	t.Helper()
	v, err := vocabulary.New(version, entries)
	require.NoError(t, err)
	return v
}

func TestNearestSignature_ExactPose(t *testing.T) {
	v := vocabulary.Default()
	m := NearestSignature{Threshold: 0.75}

	tests := []struct {
		pose     func() landmark.HandFrame
		want     string
		category string
	}{
		{landmark.OpenPalm, "Hello", "greeting"},
		{landmark.VSign, "Thank you", "polite"},
		{landmark.ThumbsUp, "Yes", "response"},
		{landmark.Fist, "No", "response"},
		{landmark.PointUp, "Help", "request"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, ok := m.Match(tt.pose(), v)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Name)
			assert.Equal(t, tt.category, got.Category)
			assert.InDelta(t, 1.0, got.Confidence, 1e-9)
			assert.Equal(t, v.Version, got.Version)
		})
	}
}

func TestNearestSignature_InvariantToPlacementAndScale(t *testing.T) {
	f := landmark.ThumbsUp()
	for i := range f.Points {
		f.Points[i].X = f.Points[i].X*0.5 + 0.2
		f.Points[i].Y = f.Points[i].Y*0.5 - 0.1
		f.Points[i].Z *= 0.5
	}

	got, ok := NearestSignature{}.Match(f, vocabulary.Default())
	require.True(t, ok)
	assert.Equal(t, "Yes", got.Name)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
}

func TestNearestSignature_BelowThreshold(t *testing.T) {
	v := mustVocabulary(t, "v", staticEntry("Yes", "response", landmark.ThumbsUp))

	got, ok := NearestSignature{Threshold: 0.99}.Match(landmark.OpenPalm(), v)
	assert.False(t, ok)
	assert.Equal(t, Candidate{}, got)
}

func TestNearestSignature_Tolerance(t *testing.T) {
	e := staticEntry("Yes", "response", landmark.ThumbsUp)
	e.Tolerance = 0.01
	v := mustVocabulary(t, "v", e)

	_, ok := NearestSignature{Threshold: 0.01}.Match(landmark.OpenPalm(), v)
	assert.False(t, ok, "distance beyond tolerance is rejected whatever the threshold")

	_, ok = NearestSignature{Threshold: 0.01}.Match(landmark.ThumbsUp(), v)
	assert.True(t, ok)
}

func TestNearestSignature_TieGoesToFirstDeclared(t *testing.T) {
	v := mustVocabulary(t, "v",
		staticEntry("First", "a", landmark.Fist),
		staticEntry("Second", "b", landmark.Fist),
	)

	got, ok := NearestSignature{}.Match(landmark.Fist(), v)
	require.True(t, ok)
	assert.Equal(t, "First", got.Name)
	assert.Equal(t, 0, got.Index)

	v = mustVocabulary(t, "v",
		staticEntry("Second", "b", landmark.Fist),
		staticEntry("First", "a", landmark.Fist),
	)
	got, _ = NearestSignature{}.Match(landmark.Fist(), v)
	assert.Equal(t, "Second", got.Name)
}

func TestNearestSignature_Deterministic(t *testing.T) {
	v := vocabulary.Default()
	f := landmark.VSign()
	f.Points[landmark.IndexTip].X += 0.01

	first, ok1 := NearestSignature{}.Match(f, v)
	for i := 0; i < 50; i++ {
		got, ok := NearestSignature{}.Match(f, v)
		assert.Equal(t, ok1, ok)
		assert.Equal(t, first, got)
	}
}

func TestNearestSignature_Monotonic(t *testing.T) {
	v := mustVocabulary(t, "v", staticEntry("Hello", "greeting", landmark.OpenPalm))
	m := NearestSignature{Threshold: 0.01}

	prev := math.Inf(1)
	for _, offset := range []float64{0, 0.02, 0.05, 0.1, 0.2} {
		f := landmark.OpenPalm()
		for _, idx := range []int{landmark.IndexTip, landmark.RingTip, landmark.PinkyTip} {
			f.Points[idx].Y += offset
		}
		got, ok := m.Match(f, v)
		require.True(t, ok)
		assert.LessOrEqual(t, got.Confidence, prev, "offset %.2f", offset)
		prev = got.Confidence
	}
}

func TestNearestSignature_EmptyVocabulary(t *testing.T) {
	_, ok := NearestSignature{}.Match(landmark.Fist(), nil)
	assert.False(t, ok)

	_, ok = NearestSignature{}.Match(landmark.Fist(), mustVocabulary(t, "v"))
	assert.False(t, ok)
}

func TestNearestSignature_SkipsDynamicEntries(t *testing.T) {
	v := mustVocabulary(t, "v", vocabulary.Entry{
		Name: "Wave", Kind: vocabulary.KindDynamic,
		Path: []vocabulary.PathPoint{{X: 0}, {X: 1}},
	})
	_, ok := NearestSignature{Threshold: 0.01}.Match(landmark.Fist(), v)
	assert.False(t, ok)
}

type fixedMatcher struct {
	c  Candidate
	ok bool

	resets int
}

func (f *fixedMatcher) Match(landmark.HandFrame, *vocabulary.Vocabulary) (Candidate, bool) {
	return f.c, f.ok
}

func (f *fixedMatcher) Reset() { f.resets++ }

func TestChain(t *testing.T) {
	low := &fixedMatcher{c: Candidate{Name: "low", Confidence: 0.8}, ok: true}
	high := &fixedMatcher{c: Candidate{Name: "high", Confidence: 0.9}, ok: true}
	tie := &fixedMatcher{c: Candidate{Name: "tie", Confidence: 0.9}, ok: true}
	none := &fixedMatcher{}

	got, ok := Chain{none, low, high, tie}.Match(landmark.Fist(), nil)
	require.True(t, ok)
	assert.Equal(t, "high", got.Name)

	_, ok = Chain{none}.Match(landmark.Fist(), nil)
	assert.False(t, ok)

	c := Chain{low, NearestSignature{}, high}
	Reset(c)
	assert.Equal(t, 1, low.resets)
	assert.Equal(t, 1, high.resets)
}

func TestChain_TiesFollowDeclarationOrder(t *testing.T) {
	static := &fixedMatcher{c: Candidate{Name: "wave-pose", Kind: vocabulary.KindStatic, Confidence: 0.9, Index: 2}, ok: true}
	dynamic := &fixedMatcher{c: Candidate{Name: "wave", Kind: vocabulary.KindDynamic, Confidence: 0.9, Index: 0}, ok: true}

	got, ok := Chain{static, dynamic}.Match(landmark.Fist(), nil)
	require.True(t, ok)
	assert.Equal(t, "wave", got.Name, "the entry declared first wins a tie")

	got, ok = Chain{dynamic, static}.Match(landmark.Fist(), nil)
	require.True(t, ok)
	assert.Equal(t, "wave", got.Name)
}
