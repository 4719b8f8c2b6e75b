package store

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/signbridge/internal/dispatch"
)

// ConversationLog is the dispatcher consumer that appends every recognized
// sign to the recognitions table.
type ConversationLog struct {
	repo *RecognitionRepository
}

// NewConversationLog returns a consumer writing to s.
func NewConversationLog(s *Store) *ConversationLog {
	return &ConversationLog{repo: s.Recognitions()}
}

// Name implements dispatch.Consumer.
func (*ConversationLog) Name() string { return "conversation_log" }

// Deliver implements dispatch.Consumer.
func (c *ConversationLog) Deliver(ctx context.Context, e dispatch.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.repo.Insert(&Recognition{
		ID:                e.ID,
		SessionID:         e.SessionID,
		SignName:          e.SignName,
		Category:          e.Category,
		Confidence:        e.Confidence,
		Side:              e.Side,
		VocabularyVersion: e.VocabularyVersion,
		RecognizedAt:      e.Timestamp,
	})
}

// FailureRecorder persists dispatcher failures off the caller's goroutine.
// Record never blocks; when its buffer is full the failure is only logged.
type FailureRecorder struct {
	repo *FailureRepository
	log  logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	ch     chan dispatch.Failure
	done   chan struct{}
}

// NewFailureRecorder starts a recorder with room for buffer pending failures.
func NewFailureRecorder(s *Store, log logrus.FieldLogger, buffer int) *FailureRecorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &FailureRecorder{
		repo: s.Failures(),
		log:  log,
		ch:   make(chan dispatch.Failure, buffer),
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues f for persistence. It has the dispatch.OnFailure signature.
func (r *FailureRecorder) Record(f dispatch.Failure) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- f:
	default:
		r.log.WithFields(logrus.Fields{"consumer": f.Consumer, "event_id": f.Event.ID}).
			Warn("failure recorder saturated, failure not persisted")
	}
}

// Close flushes pending failures and stops the recorder.
func (r *FailureRecorder) Close() {
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

func (r *FailureRecorder) run() {
	defer close(r.done)
	for f := range r.ch {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		err := r.repo.Insert(&DeliveryFailure{
			Consumer:  f.Consumer,
			EventID:   f.Event.ID,
			SignName:  f.Event.SignName,
			SessionID: f.Event.SessionID,
			Error:     msg,
			FailedAt:  f.At,
		})
		if err != nil {
			r.log.WithError(err).Error("failed to persist delivery failure")
		}
	}
}
