package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/signbridge/internal/landmark"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSession_InitialState(t *testing.T) {
	s := New()
	assert.Equal(t, Idle, s.State())

	_, err := s.Admit(landmark.OpenPalm())
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestSession_StartStop(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	snap := s.Start()
	require.NotEmpty(t, snap.ID)
	assert.Equal(t, Active, snap.State)
	assert.Equal(t, clock.Now(), snap.CreatedAt)

	_, err := s.Admit(landmark.OpenPalm())
	require.NoError(t, err)

	t.Run("stop with wrong id", func(t *testing.T) {
		assert.ErrorIs(t, s.Stop("not-the-id"), ErrUnknownSession)
		assert.Equal(t, Active, s.State())
	})

	t.Run("stop with current id", func(t *testing.T) {
		require.NoError(t, s.Stop(snap.ID))
		assert.Equal(t, Idle, s.State())
		assert.Empty(t, s.Snapshot().ID)
	})

	t.Run("stop when idle", func(t *testing.T) {
		assert.ErrorIs(t, s.Stop(""), ErrSessionNotActive)
	})

	t.Run("frames ignored after stop", func(t *testing.T) {
		_, err := s.Admit(landmark.OpenPalm())
		assert.ErrorIs(t, err, ErrSessionNotActive)
	})
}

func TestSession_DoubleStartInvalidatesFirstID(t *testing.T) {
	s := New()

	first := s.Start()
	second := s.Start()
	require.NotEqual(t, first.ID, second.ID)

	tagged := landmark.OpenPalm()
	tagged.SessionID = first.ID
	_, err := s.Admit(tagged)
	assert.ErrorIs(t, err, ErrStaleSession)

	tagged.SessionID = second.ID
	_, err = s.Admit(tagged)
	assert.NoError(t, err)

	untagged := landmark.OpenPalm()
	_, err = s.Admit(untagged)
	assert.NoError(t, err)

	assert.ErrorIs(t, s.Stop(first.ID), ErrUnknownSession)
}

func TestSession_InactivityTimeout(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithTimeout(5*time.Second))

	s.Start()
	_, err := s.Admit(landmark.ThumbsUp())
	require.NoError(t, err)

	clock.Advance(6 * time.Second)
	assert.Equal(t, Expired, s.State())

	_, err = s.Admit(landmark.ThumbsUp())
	assert.ErrorIs(t, err, ErrSessionNotActive, "frame at second 6 must be dropped")

	restarted := s.Start()
	assert.Equal(t, Active, restarted.State)
	_, err = s.Admit(landmark.ThumbsUp())
	assert.NoError(t, err)
}

func TestSession_ActivityDefersExpiry(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithTimeout(5*time.Second))
	s.Start()

	for i := 0; i < 4; i++ {
		clock.Advance(4 * time.Second)
		_, err := s.Admit(landmark.OpenPalm())
		require.NoError(t, err, "iteration %d", i)
	}
	assert.Equal(t, Active, s.State())
}

func TestSession_Transitions(t *testing.T) {
	clock := newFakeClock()

	var mu sync.Mutex
	var got []string
	record := func(tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, tr.From.String()+">"+tr.To.String()+":"+tr.Reason)
	}

	s := New(WithClock(clock.Now), WithTimeout(time.Second), OnTransition(record))

	s.Start()
	s.Start()
	clock.Advance(2 * time.Second)
	s.Sweep()
	s.Sweep()
	first := s.Start()
	require.NoError(t, s.Stop(first.ID))

	assert.Equal(t, []string{
		"idle>active:start",
		"active>idle:replaced",
		"active>active:start",
		"active>expired:timeout",
		"expired>active:start",
		"active>idle:stop",
	}, got)
}

func TestSession_RunExpires(t *testing.T) {
	expired := make(chan Transition, 1)
	s := New(WithTimeout(40*time.Millisecond), OnTransition(func(tr Transition) {
		if tr.To == Expired {
			expired <- tr
		}
	}))
	s.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case tr := <-expired:
		assert.Equal(t, "timeout", tr.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not expire")
	}
}

func TestSession_ObserversSeeConcurrentStartsInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []Transition
	s := New(OnTransition(func(tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, tr)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Start()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 31, "16 starts and 15 replacements")

	// Every replacement ends the session started just before it.
	current := ""
	for _, tr := range got {
		switch tr.Reason {
		case "start":
			current = tr.Snapshot.ID
		case "replaced":
			require.Equal(t, current, tr.Snapshot.ID)
			current = ""
		}
	}
}

func TestSession_AdmitWaitsForObservers(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	s := New(OnTransition(func(tr Transition) {
		if tr.To == Active {
			close(entered)
			<-release
		}
	}))

	go s.Start()
	<-entered

	admitted := make(chan error, 1)
	go func() {
		_, err := s.Admit(landmark.OpenPalm())
		admitted <- err
	}()

	select {
	case <-admitted:
		t.Fatal("frame admitted before observers handled the start")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-admitted:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Admit did not return")
	}
}

func TestSession_ConcurrentAccess(t *testing.T) {
	s := New()
	s.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				switch (i + j) % 3 {
				case 0:
					s.Start()
				case 1:
					_, _ = s.Admit(landmark.OpenPalm())
				default:
					_ = s.Snapshot()
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, Active, s.State())
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{Active, "active"},
		{Expired, "expired"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}
