package store

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type sessionOp struct {
	id     string
	begin  bool
	reason string
	at     time.Time
}

// SessionRecorder writes session history on its own goroutine, in the order
// Begin and End are called. Neither call blocks on the database.
type SessionRecorder struct {
	repo *SessionRepository
	log  logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	ch     chan sessionOp
	done   chan struct{}
}

// NewSessionRecorder starts a recorder with room for buffer pending writes.
func NewSessionRecorder(s *Store, log logrus.FieldLogger, buffer int) *SessionRecorder {
	if buffer <= 0 {
		buffer = 64
	}
	r := &SessionRecorder{
		repo: s.Sessions(),
		log:  log,
		ch:   make(chan sessionOp, buffer),
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

// Begin queues the start of session id.
func (r *SessionRecorder) Begin(id string, at time.Time) {
	r.enqueue(sessionOp{id: id, begin: true, at: at})
}

// End queues the end of session id.
func (r *SessionRecorder) End(id, reason string, at time.Time) {
	r.enqueue(sessionOp{id: id, reason: reason, at: at})
}

func (r *SessionRecorder) enqueue(op sessionOp) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- op:
	default:
		r.log.WithFields(logrus.Fields{"session": op.id, "begin": op.begin}).
			Warn("session recorder saturated, history not persisted")
	}
}

// Close flushes pending writes and stops the recorder.
func (r *SessionRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()
	<-r.done
}

func (r *SessionRecorder) run() {
	defer close(r.done)
	for op := range r.ch {
		var err error
		if op.begin {
			err = r.repo.Begin(op.id, op.at)
		} else {
			err = r.repo.End(op.id, op.reason, op.at)
		}
		if err != nil {
			r.log.WithError(err).WithField("session", op.id).Warn("record session history")
		}
	}
}
