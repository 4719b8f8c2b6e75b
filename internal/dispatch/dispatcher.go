// Package dispatch fans recognized signs out to downstream consumers.
//
// Every consumer owns a bounded queue and a goroutine. Publish never blocks:
// a full queue drops the event for that consumer only. A failed delivery is
// retried once, then dropped and reported through the failure hook.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Defaults applied by New for zero config values.
const (
	DefaultQueueSize       = 64
	DefaultRetryDelay      = 50 * time.Millisecond
	DefaultDeliveryTimeout = 2 * time.Second
)

var (
	// ErrConsumerDelivery wraps the last error of a delivery that failed twice.
	ErrConsumerDelivery = errors.New("consumer delivery failed")
	// ErrQueueFull is reported when a consumer's queue had no room for an event.
	ErrQueueFull = errors.New("consumer queue full")
	// ErrDispatcherClosed is returned by Register after Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")
	// ErrDuplicateConsumer is returned when a consumer name is registered twice.
	ErrDuplicateConsumer = errors.New("consumer already registered")
)

// Event is one recognized sign, as published to consumers.
type Event struct {
	ID                string    `json:"id"`
	SignName          string    `json:"sign_name"`
	Category          string    `json:"category"`
	Confidence        float64   `json:"confidence"`
	SessionID         string    `json:"session_id"`
	Timestamp         time.Time `json:"timestamp"`
	Side              string    `json:"side,omitempty"`
	VocabularyVersion string    `json:"vocabulary_version,omitempty"`
}

// Consumer receives events. Deliver should honour ctx.
type Consumer interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Failure describes an event a consumer never received.
type Failure struct {
	Consumer string
	Event    Event
	Err      error
	At       time.Time
}

// ConsumerStats counts outcomes for one consumer.
type ConsumerStats struct {
	Delivered uint64 `json:"delivered"`
	Retried   uint64 `json:"retried"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Queued    int    `json:"queued"`
}

// Config tunes queues and retries.
type Config struct {
	QueueSize       int
	RetryDelay      time.Duration
	DeliveryTimeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// OnFailure registers a hook called for every dropped or failed delivery.
// It runs on the consumer's goroutine, or on the publisher's for queue
// overflow, and must not block.
func OnFailure(fn func(Failure)) Option {
	return func(d *Dispatcher) { d.onFailure = append(d.onFailure, fn) }
}

// Dispatcher routes events to registered consumers.
type Dispatcher struct {
	cfg       Config
	log       logrus.FieldLogger
	onFailure []func(Failure)

	mu      sync.RWMutex
	workers []*worker
	closed  bool
	wg      sync.WaitGroup
}

type worker struct {
	consumer Consumer
	queue    chan Event

	delivered atomic.Uint64
	retried   atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a dispatcher with no consumers.
func New(cfg Config, log logrus.FieldLogger, opts ...Option) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	d := &Dispatcher{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a consumer and starts its goroutine.
func (d *Dispatcher) Register(c Consumer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	for _, w := range d.workers {
		if w.consumer.Name() == c.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateConsumer, c.Name())
		}
	}

	w := &worker{consumer: c, queue: make(chan Event, d.cfg.QueueSize)}
	d.workers = append(d.workers, w)
	d.wg.Add(1)
	go d.run(w)

	d.log.WithField("consumer", c.Name()).Debug("consumer registered")
	return nil
}

// Publish offers e to every consumer without blocking. It is a no-op after Close.
func (d *Dispatcher) Publish(e Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}
	for _, w := range d.workers {
		select {
		case w.queue <- e:
		default:
			w.dropped.Add(1)
			d.fail(w, e, ErrQueueFull)
		}
	}
}

// Stats returns per-consumer counters keyed by consumer name.
func (d *Dispatcher) Stats() map[string]ConsumerStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]ConsumerStats, len(d.workers))
	for _, w := range d.workers {
		out[w.consumer.Name()] = ConsumerStats{
			Delivered: w.delivered.Load(),
			Retried:   w.retried.Load(),
			Failed:    w.failed.Load(),
			Dropped:   w.dropped.Load(),
			Queued:    len(w.queue),
		}
	}
	return out
}

// Close stops accepting events, lets every consumer drain its queue, and
// waits for the goroutines to exit. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, w := range d.workers {
		close(w.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run(w *worker) {
	defer d.wg.Done()
	for e := range w.queue {
		d.deliver(w, e)
	}
}

func (d *Dispatcher) deliver(w *worker, e Event) {
	err := d.attempt(w, e)
	if err == nil {
		w.delivered.Add(1)
		return
	}

	w.retried.Add(1)
	d.log.WithFields(logrus.Fields{
		"consumer": w.consumer.Name(),
		"event_id": e.ID,
		"error":    err,
	}).Debug("delivery failed, retrying once")
	time.Sleep(d.cfg.RetryDelay)

	if err = d.attempt(w, e); err == nil {
		w.delivered.Add(1)
		return
	}

	w.failed.Add(1)
	d.fail(w, e, fmt.Errorf("%w: %v", ErrConsumerDelivery, err))
}

func (d *Dispatcher) attempt(w *worker, e Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DeliveryTimeout)
	defer cancel()
	return w.consumer.Deliver(ctx, e)
}

func (d *Dispatcher) fail(w *worker, e Event, err error) {
	d.log.WithFields(logrus.Fields{
		"consumer": w.consumer.Name(),
		"event_id": e.ID,
		"sign":     e.SignName,
		"error":    err,
	}).Warn("event dropped for consumer")

	f := Failure{Consumer: w.consumer.Name(), Event: e, Err: err, At: time.Now()}
	for _, fn := range d.onFailure {
		fn(f)
	}
}
