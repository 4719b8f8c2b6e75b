package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/signbridge/internal/dispatch"
)

const (
	defaultClientBuffer = 32
	writeWait           = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Broadcaster streams recognition events to websocket clients, such as an
// avatar renderer. It is a dispatch.Consumer; a client that falls behind by
// more than its buffer is disconnected rather than slowing the others.
type Broadcaster struct {
	log    logrus.FieldLogger
	buffer int

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewBroadcaster creates a Broadcaster. buffer is the number of events
// queued per client.
func NewBroadcaster(log logrus.FieldLogger, buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Broadcaster{log: log, buffer: buffer, clients: make(map[*client]struct{})}
}

// Name implements dispatch.Consumer.
func (b *Broadcaster) Name() string { return "websocket" }

// Deliver implements dispatch.Consumer. It never blocks on a client.
func (b *Broadcaster) Deliver(_ context.Context, e dispatch.Event) error {
	msg, err := json.Marshal(e)
	if err != nil {
		return err
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.log.WithField("remote", c.conn.RemoteAddr().String()).Warn("websocket client too slow, disconnecting")
		b.remove(c)
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP handles WebSocket upgrade requests.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		http.Error(w, "Shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &client{conn: conn, send: make(chan []byte, b.buffer)}
	if !b.add(c) {
		return
	}
	defer b.remove(c)

	go b.write(c)

	// Reads only detect disconnects; clients do not send anything.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Close disconnects every client and refuses new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		b.remove(c)
	}
}

func (b *Broadcaster) add(c *client) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.clients[c] = struct{}{}
	return true
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	c.once.Do(func() { close(c.send) })
}

// write is the only goroutine writing to c.conn.
func (b *Broadcaster) write(c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.conn.Close()
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}
