// Package ingest drains the transport channel and forwards decoded frames at
// a bounded cadence.
//
// Frames are never queued: a single latest-wins slot holds the newest valid
// frame, and each cadence tick forwards whatever is in the slot. A frame that
// is replaced before its tick is counted as coalesced.
package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ayusman/signbridge/internal/codec"
	"github.com/ayusman/signbridge/internal/landmark"
	"github.com/ayusman/signbridge/internal/transport"
)

// DefaultCadenceFPS is the target forward rate.
const DefaultCadenceFPS = 30

var (
	// ErrStaleFrame is returned by Offer for frames older than the last one forwarded.
	ErrStaleFrame = errors.New("stale frame")
)

// Source yields datagrams; *transport.Channel satisfies it.
type Source interface {
	Receive(ctx context.Context) (transport.Datagram, error)
}

// Sink receives one frame per tick. It must not block on slow consumers.
type Sink func(ctx context.Context, f landmark.HandFrame)

// Config tunes the loop.
type Config struct {
	// CadenceFPS is the number of forward opportunities per second.
	CadenceFPS int
	// MaxFrameAge drops frames whose producer timestamp lags arrival by more
	// than this. It compares the producer's clock with ours, so it is only
	// meaningful when both are synchronized. Zero disables the check.
	MaxFrameAge time.Duration
	// MalformedLogInterval bounds how often malformed datagrams are logged.
	MalformedLogInterval time.Duration
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Received  uint64 `json:"received"`
	Malformed uint64 `json:"malformed"`
	Stale     uint64 `json:"stale"`
	Coalesced uint64 `json:"coalesced"`
	Forwarded uint64 `json:"forwarded"`
	// ReadErrors counts transport errors other than an empty poll.
	ReadErrors uint64 `json:"read_errors"`
}

// Loop is the ingest task.
type Loop struct {
	source Source
	codec  codec.Codec
	sink   Sink
	log    logrus.FieldLogger

	interval    time.Duration
	maxAge      time.Duration
	malformedRL *rate.Limiter

	mu   sync.Mutex
	slot *landmark.HandFrame
	// slotStamped reports whether the slot frame carried a producer timestamp.
	slotStamped bool
	// lastProduced is the producer timestamp of the newest forwarded frame
	// that carried one. Arrival stamps are never ordered against it.
	lastProduced time.Time

	received   atomic.Uint64
	malformed  atomic.Uint64
	stale      atomic.Uint64
	coalesced  atomic.Uint64
	forwarded  atomic.Uint64
	readErrors atomic.Uint64
}

// New builds a loop reading from source and forwarding to sink.
func New(cfg Config, source Source, c codec.Codec, sink Sink, log logrus.FieldLogger) *Loop {
	fps := cfg.CadenceFPS
	if fps <= 0 {
		fps = DefaultCadenceFPS
	}
	every := cfg.MalformedLogInterval
	if every <= 0 {
		every = time.Second
	}
	return &Loop{
		source:      source,
		codec:       c,
		sink:        sink,
		log:         log,
		interval:    time.Second / time.Duration(fps),
		maxAge:      cfg.MaxFrameAge,
		malformedRL: rate.NewLimiter(rate.Every(every), 1),
	}
}

// Interval returns the cadence tick length.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Offer decodes one datagram into the slot. Malformed and stale datagrams
// are counted and dropped; the returned error is informational only.
func (l *Loop) Offer(dg transport.Datagram) error {
	l.received.Add(1)

	frame, err := l.codec.Decode(dg.Data)
	if err != nil {
		l.dropMalformed(dg, err)
		return err
	}

	arrival := dg.ReceivedAt
	if arrival.IsZero() {
		arrival = time.Now()
	}
	stamped := !frame.Timestamp.IsZero()
	if !stamped {
		frame.Timestamp = arrival
	} else if l.maxAge > 0 && arrival.Sub(frame.Timestamp) > l.maxAge {
		l.stale.Add(1)
		return ErrStaleFrame
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if stamped {
		if !l.lastProduced.IsZero() && frame.Timestamp.Before(l.lastProduced) {
			l.stale.Add(1)
			return ErrStaleFrame
		}
		if l.slot != nil && l.slotStamped && frame.Timestamp.Before(l.slot.Timestamp) {
			l.stale.Add(1)
			return ErrStaleFrame
		}
	}
	if l.slot != nil {
		l.coalesced.Add(1)
	}
	l.slot = &frame
	l.slotStamped = stamped
	return nil
}

// dropMalformed counts a rejected datagram and logs it at a bounded rate.
func (l *Loop) dropMalformed(dg transport.Datagram, err error) {
	n := l.malformed.Add(1)
	if !l.malformedRL.Allow() {
		return
	}
	fields := logrus.Fields{"error": err, "malformed_total": n, "bytes": len(dg.Data)}
	if dg.Addr != nil {
		fields["from"] = dg.Addr.String()
	}
	l.log.WithFields(fields).Warn("dropping malformed datagram")
}

// Flush forwards the slot, if filled, and reports whether a frame was forwarded.
func (l *Loop) Flush(ctx context.Context) bool {
	l.mu.Lock()
	slot := l.slot
	if slot != nil && l.slotStamped {
		l.lastProduced = slot.Timestamp
	}
	l.slot = nil
	l.slotStamped = false
	l.mu.Unlock()

	if slot == nil {
		return false
	}
	l.forwarded.Add(1)
	l.sink(ctx, *slot)
	return true
}

// Run drains the source on one goroutine and flushes on a ticker on another,
// until ctx is done or the source is closed.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var readErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		readErr = l.drain(ctx)
	}()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return readErr
		case <-ticker.C:
			l.Flush(ctx)
		}
	}
}

func (l *Loop) drain(ctx context.Context) error {
	for {
		dg, err := l.source.Receive(ctx)
		switch {
		case err == nil:
			_ = l.Offer(dg)
		case errors.Is(err, transport.ErrNoDatagram):
		case errors.Is(err, transport.ErrOversizedDatagram):
			l.received.Add(1)
			l.dropMalformed(dg, err)
		case errors.Is(err, transport.ErrClosed):
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			l.readErrors.Add(1)
			l.log.WithError(err).Error("transport read failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(l.interval):
			}
		}
	}
}

// Stats returns a snapshot of the counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Received:   l.received.Load(),
		Malformed:  l.malformed.Load(),
		Stale:      l.stale.Load(),
		Coalesced:  l.coalesced.Load(),
		Forwarded:  l.forwarded.Load(),
		ReadErrors: l.readErrors.Load(),
	}
}
