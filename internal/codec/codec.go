// Package codec converts hand frames to and from their datagram wire forms.
//
// Text form (what trackers send):
//
//	[t=1712345678901;h=R;n=21;s=<session>|]x0, y0, z0, x1, y1, z1, ... x20, y20, z20
//
// The header before '|' is optional. The value list may be wrapped in square
// brackets and padded with whitespace; values are separated by commas or,
// when no comma is present, by whitespace.
//
// Binary form starts with the magic bytes "HF":
//
//	magic[2] version[1] side[1] count[1] unix_ms[8] values[count*3 float64], little-endian
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/signbridge/internal/landmark"
)

// ErrMalformedFrame is returned for any payload that does not decode into
// exactly one complete hand frame.
var ErrMalformedFrame = errors.New("malformed frame")

// Format selects the wire form produced by Encode.
type Format int

const (
	FormatText Format = iota
	FormatBinary
)

const (
	binaryVersion    = 1
	binaryHeaderSize = 2 + 1 + 1 + 1 + 8
	headerSeparator  = "|"
	structuralCutset = "[] \t\r\n,"
)

var binaryMagic = []byte("HF")

// Codec encodes and decodes frames. The zero value produces unscaled text.
type Codec struct {
	Format Format
	// Scale multiplies coordinates on encode and divides them on decode.
	// Trackers that send integer milli-units use 1000. Zero means 1.
	Scale float64
}

// Encode uses the default codec.
func Encode(f landmark.HandFrame) []byte {
	return Codec{}.Encode(f)
}

// Decode uses the default codec. Binary payloads are detected automatically.
func Decode(b []byte) (landmark.HandFrame, error) {
	return Codec{}.Decode(b)
}

func (c Codec) scale() float64 {
	if c.Scale == 0 {
		return 1
	}
	return c.Scale
}

// Encode renders the frame in the codec's format. Timestamps are carried
// with millisecond precision.
func (c Codec) Encode(f landmark.HandFrame) []byte {
	if c.Format == FormatBinary {
		return c.encodeBinary(f)
	}
	return c.encodeText(f)
}

func (c Codec) encodeText(f landmark.HandFrame) []byte {
	var sb strings.Builder

	var header []string
	if !f.Timestamp.IsZero() {
		header = append(header, "t="+strconv.FormatInt(f.Timestamp.UnixMilli(), 10))
	}
	if f.Side != landmark.SideUnknown {
		header = append(header, "h="+f.Side.String()[:1])
	}
	if f.SessionID != "" {
		header = append(header, "s="+f.SessionID)
	}
	if len(header) > 0 {
		header = append(header, "n="+strconv.Itoa(landmark.NumLandmarks))
		sb.WriteString(strings.Join(header, ";"))
		sb.WriteString(headerSeparator)
	}

	scale := c.scale()
	for i, v := range f.Values() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatFloat(v*scale, 'g', -1, 64))
	}

	return []byte(sb.String())
}

func (c Codec) encodeBinary(f landmark.HandFrame) []byte {
	buf := make([]byte, binaryHeaderSize+landmark.NumValues*8)
	copy(buf, binaryMagic)
	buf[2] = binaryVersion
	buf[3] = byte(f.Side)
	buf[4] = landmark.NumLandmarks

	var ms int64
	if !f.Timestamp.IsZero() {
		ms = f.Timestamp.UnixMilli()
	}
	binary.LittleEndian.PutUint64(buf[5:], uint64(ms))

	scale := c.scale()
	off := binaryHeaderSize
	for _, v := range f.Values() {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v*scale))
		off += 8
	}
	return buf
}

// Decode parses a text or binary payload. Every failure wraps ErrMalformedFrame.
func (c Codec) Decode(b []byte) (landmark.HandFrame, error) {
	if bytes.HasPrefix(b, binaryMagic) {
		return c.decodeBinary(b)
	}
	return c.decodeText(b)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFrame, fmt.Sprintf(format, args...))
}

func (c Codec) decodeText(b []byte) (landmark.HandFrame, error) {
	var f landmark.HandFrame

	payload := strings.TrimSpace(string(b))
	if payload == "" {
		return f, malformed("empty payload")
	}

	declared := -1
	if head, body, ok := strings.Cut(payload, headerSeparator); ok {
		var err error
		declared, err = parseHeader(head, &f)
		if err != nil {
			return landmark.HandFrame{}, err
		}
		payload = body
	}

	payload = strings.Trim(payload, structuralCutset)
	if payload == "" {
		return landmark.HandFrame{}, malformed("no values")
	}

	var tokens []string
	if strings.Contains(payload, ",") {
		tokens = strings.Split(payload, ",")
	} else {
		tokens = strings.Fields(payload)
	}

	if len(tokens)%3 != 0 {
		return landmark.HandFrame{}, malformed("value count %d is not a multiple of 3", len(tokens))
	}
	if n := len(tokens) / 3; n != landmark.NumLandmarks {
		return landmark.HandFrame{}, malformed("landmark count %d, want %d", n, landmark.NumLandmarks)
	}
	if declared >= 0 && declared != landmark.NumLandmarks {
		return landmark.HandFrame{}, malformed("header declares %d landmarks", declared)
	}

	scale := c.scale()
	values := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return landmark.HandFrame{}, malformed("token %d (%q) is not a finite number", i, tok)
		}
		values[i] = v / scale
	}

	for i := 0; i < landmark.NumLandmarks; i++ {
		f.Points[i] = landmark.Point3D{X: values[i*3], Y: values[i*3+1], Z: values[i*3+2]}
	}
	return f, nil
}

// parseHeader fills timestamp, side and session from key=value pairs and
// returns the declared landmark count, or -1 when the header has none.
func parseHeader(head string, f *landmark.HandFrame) (int, error) {
	declared := -1
	for _, field := range strings.Split(strings.TrimSpace(head), ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return 0, malformed("header field %q has no value", field)
		}
		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case "t":
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil || ms <= 0 {
				return 0, malformed("bad timestamp %q", value)
			}
			f.Timestamp = time.UnixMilli(ms)
		case "h":
			side, err := landmark.ParseSide(value)
			if err != nil {
				return 0, malformed("%v", err)
			}
			f.Side = side
		case "n":
			n, err := strconv.Atoi(value)
			if err != nil {
				return 0, malformed("bad landmark count %q", value)
			}
			declared = n
		case "s":
			f.SessionID = value
		default:
			return 0, malformed("unknown header field %q", key)
		}
	}
	return declared, nil
}

func (c Codec) decodeBinary(b []byte) (landmark.HandFrame, error) {
	var f landmark.HandFrame

	if len(b) < binaryHeaderSize {
		return f, malformed("binary payload too short (%d bytes)", len(b))
	}
	if b[2] != binaryVersion {
		return f, malformed("unsupported binary version %d", b[2])
	}
	if b[3] > byte(landmark.SideRight) {
		return f, malformed("unknown side byte %d", b[3])
	}
	if n := int(b[4]); n != landmark.NumLandmarks {
		return f, malformed("landmark count %d, want %d", n, landmark.NumLandmarks)
	}
	if want := binaryHeaderSize + landmark.NumValues*8; len(b) != want {
		return f, malformed("binary payload is %d bytes, want %d", len(b), want)
	}

	f.Side = landmark.Side(b[3])
	if ms := int64(binary.LittleEndian.Uint64(b[5:])); ms > 0 {
		f.Timestamp = time.UnixMilli(ms)
	}

	scale := c.scale()
	off := binaryHeaderSize
	for i := 0; i < landmark.NumLandmarks; i++ {
		var xyz [3]float64
		for j := range xyz {
			v := math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return landmark.HandFrame{}, malformed("landmark %d is not finite", i)
			}
			xyz[j] = v / scale
			off += 8
		}
		f.Points[i] = landmark.Point3D{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	}
	return f, nil
}
