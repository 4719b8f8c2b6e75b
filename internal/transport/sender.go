package transport

import (
	"fmt"
	"net"

	"github.com/ayusman/signbridge/internal/codec"
	"github.com/ayusman/signbridge/internal/landmark"
)

// Sender is the tracker side of the channel: it encodes frames and fires
// them at the bridge without waiting for any acknowledgement.
type Sender struct {
	conn  *net.UDPConn
	codec codec.Codec
}

// Dial prepares a sender for the bridge at addr.
func Dial(addr string, c codec.Codec) (*Sender, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", raddr, err)
	}
	return &Sender{conn: conn, codec: c}, nil
}

// Send encodes and transmits one frame.
func (s *Sender) Send(f landmark.HandFrame) error {
	return s.SendRaw(s.codec.Encode(f))
}

// SendRaw transmits an arbitrary payload, well-formed or not.
func (s *Sender) SendRaw(payload []byte) error {
	if _, err := s.conn.Write(payload); err != nil {
		return fmt.Errorf("send datagram: %w", err)
	}
	return nil
}

// Close releases the socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}
