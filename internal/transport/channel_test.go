package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/signbridge/internal/codec"
	"github.com/ayusman/signbridge/internal/landmark"
	"github.com/ayusman/signbridge/internal/logging"
)

func TestListen_BindFailure(t *testing.T) {
	factory := &MockFactory{Err: errors.New("address already in use")}

	_, err := Listen(Config{Address: ":5052"}, factory, logging.Discard())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBindFailure)
}

func TestListen_BadAddress(t *testing.T) {
	_, err := Listen(Config{Address: "not an address"}, &MockFactory{Socket: NewMockSocket()}, logging.Discard())
	assert.ErrorIs(t, err, ErrBindFailure)
}

func TestListen_SetsReadBuffer(t *testing.T) {
	sock := NewMockSocket()
	ch, err := Listen(Config{Address: ":5052", ReadBuffer: 1 << 20}, &MockFactory{Socket: sock}, logging.Discard())
	require.NoError(t, err)
	defer ch.Close()

	assert.Equal(t, 1<<20, sock.ReadBuffer())
}

func TestListen_ReadBufferFailureIsNotFatal(t *testing.T) {
	sock := NewMockSocket()
	sock.SetReadBufferError = errors.New("not permitted")

	ch, err := Listen(Config{Address: ":5052", ReadBuffer: 1 << 20}, &MockFactory{Socket: sock}, logging.Discard())
	require.NoError(t, err)
	assert.NoError(t, ch.Close())
}

func TestChannel_Receive(t *testing.T) {
	from := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 40000}
	sock := NewMockSocket(
		MockPacket{Data: []byte("garbage"), Addr: from},
		MockPacket{Data: codec.Encode(landmark.OpenPalm()), Addr: from},
	)
	ch, err := Listen(Config{Address: ":5052"}, &MockFactory{Socket: sock}, logging.Discard())
	require.NoError(t, err)
	defer ch.Close()

	ctx := context.Background()

	t.Run("malformed payload is delivered raw", func(t *testing.T) {
		dg, err := ch.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "garbage", string(dg.Data))
		assert.Equal(t, from, dg.Addr)
		assert.False(t, dg.ReceivedAt.IsZero())
	})

	t.Run("valid payload", func(t *testing.T) {
		dg, err := ch.Receive(ctx)
		require.NoError(t, err)
		_, err = codec.Decode(dg.Data)
		assert.NoError(t, err)
	})

	t.Run("empty socket does not block", func(t *testing.T) {
		_, err := ch.Receive(ctx)
		assert.ErrorIs(t, err, ErrNoDatagram)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := ch.Receive(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestChannel_Close(t *testing.T) {
	sock := NewMockSocket()
	ch, err := Listen(Config{Address: ":5052"}, &MockFactory{Socket: sock}, logging.Discard())
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close(), "second close is a no-op")
	assert.True(t, sock.Closed())

	_, err = ch.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannel_Loopback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping loopback test")
	}

	ch, err := Listen(Config{Address: "127.0.0.1:0", PollInterval: 50 * time.Millisecond}, nil, logging.Discard())
	require.NoError(t, err)
	defer ch.Close()

	sender, err := Dial(ch.LocalAddr().String(), codec.Codec{})
	require.NoError(t, err)
	defer sender.Close()

	frame := landmark.ThumbsUp()
	require.NoError(t, sender.Send(frame))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		dg, err := ch.Receive(context.Background())
		if errors.Is(err, ErrNoDatagram) {
			continue
		}
		require.NoError(t, err)

		got, err := codec.Decode(dg.Data)
		require.NoError(t, err)
		assert.Equal(t, frame.Points, got.Points)
		return
	}
	t.Fatal("datagram not received over loopback")
}

// paddedPayload is 22 landmarks whose last value sits past offset 5000, so a
// reader that keeps only the first 4096 bytes sees 21 well-formed landmarks.
func paddedPayload() []byte {
	var b bytes.Buffer
	b.WriteString(strings.TrimSuffix(strings.Repeat("0.5, ", 63), ", "))
	b.WriteString(strings.Repeat(" ", 5000))
	b.WriteString(", 1, 2, 3")
	return b.Bytes()
}

func TestChannel_OversizedDatagram(t *testing.T) {
	from := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 40000}
	sock := NewMockSocket(
		MockPacket{Data: paddedPayload(), Addr: from},
		MockPacket{Data: []byte("short"), Addr: from},
	)
	ch, err := Listen(Config{Address: ":5052", MaxDatagram: 4096}, &MockFactory{Socket: sock}, logging.Discard())
	require.NoError(t, err)
	defer ch.Close()

	dg, err := ch.Receive(context.Background())
	require.ErrorIs(t, err, ErrOversizedDatagram)
	assert.Nil(t, dg.Data, "oversized payloads are never handed out truncated")
	assert.Equal(t, from, dg.Addr)

	dg, err = ch.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "short", string(dg.Data))
}

func TestChannel_LoopbackLargePayload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping loopback test")
	}

	payload := paddedPayload()
	require.Greater(t, len(payload), 4096)

	_, err := codec.Decode(payload[:4096])
	require.NoError(t, err, "the first 4096 bytes alone look like a valid frame")

	receive := func(t *testing.T, ch *Channel) (Datagram, error) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			dg, err := ch.Receive(context.Background())
			if errors.Is(err, ErrNoDatagram) {
				continue
			}
			return dg, err
		}
		t.Fatal("datagram not received over loopback")
		return Datagram{}, nil
	}

	send := func(t *testing.T, ch *Channel) {
		t.Helper()
		sender, err := Dial(ch.LocalAddr().String(), codec.Codec{})
		require.NoError(t, err)
		defer sender.Close()
		require.NoError(t, sender.SendRaw(payload))
	}

	t.Run("default limit delivers the whole payload", func(t *testing.T) {
		ch, err := Listen(Config{Address: "127.0.0.1:0", PollInterval: 50 * time.Millisecond}, nil, logging.Discard())
		require.NoError(t, err)
		defer ch.Close()

		send(t, ch)
		dg, err := receive(t, ch)
		require.NoError(t, err)
		assert.Equal(t, payload, dg.Data)

		_, err = codec.Decode(dg.Data)
		assert.ErrorIs(t, err, codec.ErrMalformedFrame)
	})

	t.Run("over the limit is rejected", func(t *testing.T) {
		ch, err := Listen(Config{Address: "127.0.0.1:0", MaxDatagram: 4096, PollInterval: 50 * time.Millisecond}, nil, logging.Discard())
		require.NoError(t, err)
		defer ch.Close()

		send(t, ch)
		dg, err := receive(t, ch)
		assert.ErrorIs(t, err, ErrOversizedDatagram)
		assert.Nil(t, dg.Data)
	})
}
