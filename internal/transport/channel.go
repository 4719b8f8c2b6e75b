// Package transport owns the UDP endpoint frames arrive on.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultPort is the well-known port trackers send landmark datagrams to.
const DefaultPort = 5052

// MaxUDPPayload is the largest payload a UDP datagram can carry.
const MaxUDPPayload = 65535

// Defaults applied by Listen for zero config values.
const (
	DefaultMaxDatagram  = MaxUDPPayload
	DefaultPollInterval = 100 * time.Millisecond
)

var (
	// ErrBindFailure wraps any failure to resolve or bind the local endpoint.
	ErrBindFailure = errors.New("transport bind failure")
	// ErrNoDatagram is returned by Receive when nothing arrived within the poll interval.
	ErrNoDatagram = errors.New("no datagram available")
	// ErrClosed is returned by Receive after Close.
	ErrClosed = errors.New("transport channel closed")
	// ErrOversizedDatagram is returned by Receive for a payload longer than
	// MaxDatagram. The payload is discarded, never truncated.
	ErrOversizedDatagram = errors.New("oversized datagram")
)

// Config describes the local endpoint.
type Config struct {
	// Address is host:port to bind, e.g. ":5052".
	Address string
	// ReadBuffer is the OS receive buffer size in bytes. Zero keeps the OS default.
	ReadBuffer int
	// MaxDatagram is the largest payload accepted. Longer datagrams are
	// rejected with ErrOversizedDatagram. Zero accepts any UDP payload.
	MaxDatagram int
	// PollInterval bounds how long Receive waits before reporting ErrNoDatagram.
	PollInterval time.Duration
}

// Datagram is one received payload. Data is owned by the caller.
type Datagram struct {
	Data       []byte
	Addr       *net.UDPAddr
	ReceivedAt time.Time
}

// Channel is a bound, receive-only UDP endpoint.
// Receive must only be called from one goroutine; Close may be called from any.
type Channel struct {
	sock  UDPSocket
	buf   []byte
	limit int
	poll  time.Duration
	log   logrus.FieldLogger

	closeOnce sync.Once
	closed    chan struct{}
}

// Listen binds the endpoint described by cfg. A nil factory binds a real socket.
func Listen(cfg Config, factory SocketFactory, log logrus.FieldLogger) (*Channel, error) {
	if factory == nil {
		factory = NetFactory{}
	}
	if cfg.MaxDatagram <= 0 || cfg.MaxDatagram > MaxUDPPayload {
		cfg.MaxDatagram = DefaultMaxDatagram
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	addr, err := net.ResolveUDPAddr("udp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q: %v", ErrBindFailure, cfg.Address, err)
	}

	sock, err := factory.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen on %s: %v", ErrBindFailure, addr, err)
	}

	if cfg.ReadBuffer > 0 {
		if err := sock.SetReadBuffer(cfg.ReadBuffer); err != nil {
			log.WithFields(logrus.Fields{"bytes": cfg.ReadBuffer, "error": err}).Warn("failed to set UDP receive buffer")
		}
	}

	log.WithFields(logrus.Fields{
		"address":     sock.LocalAddr().String(),
		"read_buffer": cfg.ReadBuffer,
	}).Info("UDP channel bound")

	return &Channel{
		sock:   sock,
		buf:    make([]byte, MaxUDPPayload+1),
		limit:  cfg.MaxDatagram,
		poll:   cfg.PollInterval,
		log:    log,
		closed: make(chan struct{}),
	}, nil
}

// LocalAddr returns the bound address, useful when binding port 0.
func (c *Channel) LocalAddr() net.Addr {
	return c.sock.LocalAddr()
}

// Receive waits at most one poll interval for a datagram. It returns
// ErrNoDatagram when nothing arrived, ctx.Err() once ctx is done, and
// ErrClosed after Close. Payload bytes are never inspected here. A payload
// over the size limit yields ErrOversizedDatagram together with a Datagram
// carrying the sender and arrival time but no data.
func (c *Channel) Receive(ctx context.Context) (Datagram, error) {
	if err := ctx.Err(); err != nil {
		return Datagram{}, err
	}
	select {
	case <-c.closed:
		return Datagram{}, ErrClosed
	default:
	}

	if err := c.sock.SetReadDeadline(time.Now().Add(c.poll)); err != nil {
		return Datagram{}, c.readError(err)
	}

	n, addr, err := c.sock.ReadFromUDP(c.buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Datagram{}, ErrNoDatagram
		}
		return Datagram{}, c.readError(err)
	}
	if n > c.limit {
		return Datagram{Addr: addr, ReceivedAt: time.Now()},
			fmt.Errorf("%w: %d bytes, limit %d", ErrOversizedDatagram, n, c.limit)
	}

	data := make([]byte, n)
	copy(data, c.buf[:n])
	return Datagram{Data: data, Addr: addr, ReceivedAt: time.Now()}, nil
}

func (c *Channel) readError(err error) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("udp read: %w", err)
}

// Close unbinds the socket. It is safe to call more than once.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.sock.Close()
		c.log.Info("UDP channel closed")
	})
	return err
}
