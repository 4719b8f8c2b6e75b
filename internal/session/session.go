// Package session tracks the single logical recognition session of a bridge.
//
// The session is independent of the transport: a UDP sender may come and go
// while the session stays Active, and the session expires on inactivity even
// if the socket is still bound.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/signbridge/internal/landmark"
)

// DefaultTimeout is the inactivity window after which an Active session expires.
const DefaultTimeout = 30 * time.Second

// State is the lifecycle state of a session.
type State int

const (
	// Idle means no session has been started, or the last one was stopped.
	Idle State = iota
	// Active means frames are admitted and matched.
	Active
	// Expired means the session timed out and must be restarted.
	Expired
)

// String returns the lowercase state name used on the control surface.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

var (
	// ErrSessionNotActive is returned when a frame or command needs an Active session.
	ErrSessionNotActive = errors.New("session not active")
	// ErrStaleSession is returned for frames tagged with a replaced session id.
	ErrStaleSession = errors.New("frame belongs to a stale session")
	// ErrUnknownSession is returned by Stop for an id that is not current.
	ErrUnknownSession = errors.New("unknown session id")
)

// Snapshot is a consistent copy of the session at one instant.
type Snapshot struct {
	ID           string    `json:"session_id"`
	State        State     `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Transition describes one state change, delivered to observers.
type Transition struct {
	From     State
	To       State
	Snapshot Snapshot
	// Reason is "start", "stop", "replaced" or "timeout".
	Reason string
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithTimeout sets the inactivity timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// OnTransition registers an observer. Observers run synchronously, in
// transition order, before any later transition or Admit proceeds. They must
// not block and must not call back into the session.
func OnTransition(fn func(Transition)) Option {
	return func(s *Session) { s.observers = append(s.observers, fn) }
}

// Session is the Idle/Active/Expired state machine. All reads and
// transitions go through one mutex, so Admit never observes a half-applied
// Start or Stop. A second mutex, always taken first, is held until observers
// have seen a transition, so a frame for a new session is only admitted once
// every observer has handled its start.
type Session struct {
	seq          sync.Mutex
	mu           sync.Mutex
	state        State
	id           string
	createdAt    time.Time
	lastActivity time.Time

	timeout   time.Duration
	now       func() time.Time
	newID     func() string
	observers []func(Transition)
}

// New returns an Idle session.
func New(opts ...Option) *Session {
	s := &Session{
		state:   Idle,
		timeout: DefaultTimeout,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timeout returns the configured inactivity timeout.
func (s *Session) Timeout() time.Duration {
	return s.timeout
}

// Start begins a new session with a fresh id. Any current session id is
// invalidated, whatever the prior state.
func (s *Session) Start() Snapshot {
	s.seq.Lock()
	defer s.seq.Unlock()
	var pending []Transition

	s.mu.Lock()
	now := s.now()
	pending = s.expireLocked(now, pending)

	prev := s.state
	if prev == Active {
		pending = append(pending, Transition{From: Active, To: Idle, Snapshot: s.snapshotLocked(), Reason: "replaced"})
	}

	s.id = s.newID()
	s.state = Active
	s.createdAt = now
	s.lastActivity = now
	snap := s.snapshotLocked()
	pending = append(pending, Transition{From: prev, To: Active, Snapshot: snap, Reason: "start"})
	s.mu.Unlock()

	s.notify(pending)
	return snap
}

// Stop ends the session with the given id. An empty id stops whatever is current.
func (s *Session) Stop(id string) error {
	s.seq.Lock()
	defer s.seq.Unlock()
	var pending []Transition

	s.mu.Lock()
	pending = s.expireLocked(s.now(), pending)

	if s.state != Active {
		current := s.id
		s.mu.Unlock()
		s.notify(pending)
		if id != "" && id != current {
			return ErrUnknownSession
		}
		return ErrSessionNotActive
	}
	if id != "" && id != s.id {
		s.mu.Unlock()
		return ErrUnknownSession
	}

	s.state = Idle
	pending = append(pending, Transition{From: Active, To: Idle, Snapshot: s.snapshotLocked(), Reason: "stop"})
	s.id = ""
	s.mu.Unlock()

	s.notify(pending)
	return nil
}

// State returns the current state, applying expiry first.
func (s *Session) State() State {
	return s.Snapshot().State
}

// Snapshot returns a consistent copy of the session, applying expiry first.
func (s *Session) Snapshot() Snapshot {
	s.seq.Lock()
	defer s.seq.Unlock()
	s.mu.Lock()
	pending := s.expireLocked(s.now(), nil)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(pending)
	return snap
}

// Admit gates one frame. It succeeds only while Active and, if the frame is
// tagged, only for the current id. A successful admit refreshes the
// inactivity timer.
func (s *Session) Admit(f landmark.HandFrame) (Snapshot, error) {
	s.seq.Lock()
	defer s.seq.Unlock()
	s.mu.Lock()
	now := s.now()
	pending := s.expireLocked(now, nil)

	if s.state != Active {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(pending)
		return snap, ErrSessionNotActive
	}
	if f.SessionID != "" && f.SessionID != s.id {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrStaleSession
	}

	s.lastActivity = now
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return snap, nil
}

// Sweep applies expiry. It is called by Run; tests may call it directly.
func (s *Session) Sweep() {
	s.seq.Lock()
	defer s.seq.Unlock()
	s.mu.Lock()
	pending := s.expireLocked(s.now(), nil)
	s.mu.Unlock()
	s.notify(pending)
}

// Run sweeps for expiry every timeout/4 until ctx is done, so observers hear
// about timeouts even when nothing queries the session.
func (s *Session) Run(ctx context.Context) {
	interval := s.timeout / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Session) expireLocked(now time.Time, pending []Transition) []Transition {
	if s.state != Active {
		return pending
	}
	if now.Sub(s.lastActivity) < s.timeout {
		return pending
	}
	s.state = Expired
	return append(pending, Transition{From: Active, To: Expired, Snapshot: s.snapshotLocked(), Reason: "timeout"})
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:           s.id,
		State:        s.state,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}

func (s *Session) notify(ts []Transition) {
	for _, t := range ts {
		for _, fn := range s.observers {
			fn(t)
		}
	}
}
