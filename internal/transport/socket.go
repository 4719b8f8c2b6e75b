package transport

import (
	"net"
	"sync"
	"time"
)

// UDPSocket is the subset of *net.UDPConn the channel needs.
// It lets tests feed datagrams without a real network.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// SocketFactory creates bound UDP sockets.
type SocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// NetFactory binds real sockets with net.ListenUDP.
type NetFactory struct{}

// ListenUDP binds a real UDP socket.
func (NetFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockPacket is one datagram queued on a MockSocket.
type MockPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// MockSocket implements UDPSocket for tests. Packets are returned in order;
// once exhausted, reads report a timeout like a real socket with a deadline.
type MockSocket struct {
	mu sync.Mutex

	packets      []MockPacket
	closed       bool
	readBuffer   int
	readDeadline time.Time
	local        *net.UDPAddr

	// ReadError is returned once by the next ReadFromUDP call if set.
	ReadError error
	// SetReadBufferError is returned by SetReadBuffer if set.
	SetReadBufferError error
}

// NewMockSocket creates a mock socket that will return the given packets.
func NewMockSocket(packets ...MockPacket) *MockSocket {
	return &MockSocket{
		packets: packets,
		local:   &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: DefaultPort},
	}
}

// Push queues more packets.
func (m *MockSocket) Push(packets ...MockPacket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, packets...)
}

// ReadFromUDP pops the next queued packet. An empty queue waits briefly, up
// to the read deadline, and then reports a timeout.
func (m *MockSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return 0, nil, net.ErrClosed
	}
	if m.ReadError != nil {
		err := m.ReadError
		m.ReadError = nil
		m.mu.Unlock()
		return 0, nil, err
	}
	if len(m.packets) == 0 {
		wait := time.Until(m.readDeadline)
		m.mu.Unlock()
		if wait > mockIdleWait {
			wait = mockIdleWait
		}
		if wait > 0 {
			time.Sleep(wait)
		}
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}

	pkt := m.packets[0]
	m.packets = m.packets[1:]
	m.mu.Unlock()
	return copy(b, pkt.Data), pkt.Addr, nil
}

const mockIdleWait = time.Millisecond

// SetReadBuffer records the requested size.
func (m *MockSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetReadBufferError != nil {
		return m.SetReadBufferError
	}
	m.readBuffer = bytes
	return nil
}

// SetReadDeadline records the deadline.
func (m *MockSocket) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readDeadline = t
	return nil
}

// Close marks the socket closed.
func (m *MockSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ReadBuffer returns the value passed to SetReadBuffer.
func (m *MockSocket) ReadBuffer() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBuffer
}

// LocalAddr returns the mock address.
func (m *MockSocket) LocalAddr() net.Addr {
	return m.local
}

// MockFactory hands out a fixed socket, or fails with Err.
type MockFactory struct {
	Socket *MockSocket
	Err    error
	Calls  []string
}

// ListenUDP records the call and returns the configured socket.
func (f *MockFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.Calls = append(f.Calls, network+" "+laddr.String())
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Socket, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
