package codec

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/signbridge/internal/landmark"
)

func joinValues(values []float64, sep string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, sep)
}

func TestRoundTrip(t *testing.T) {
	stamped := landmark.OpenPalm()
	stamped.Timestamp = time.UnixMilli(1712345678901)
	stamped.SessionID = "6f0c7b1e-7d1f-4b44-9d55-0d8f3f8e2a11"

	left := landmark.Fist()
	left.Side = landmark.SideLeft
	left.Timestamp = time.UnixMilli(1)

	bare := landmark.PointUp()
	bare.Side = landmark.SideUnknown

	frames := map[string]landmark.HandFrame{
		"thumbs up":      landmark.ThumbsUp(),
		"stamped":        stamped,
		"left hand":      left,
		"no header":      bare,
		"negative depth": landmark.VSign(),
	}

	for _, format := range []Format{FormatText, FormatBinary} {
		c := Codec{Format: format}
		for name, frame := range frames {
			if format == FormatBinary {
				// session tags only travel in the text header
				frame.SessionID = ""
			}
			t.Run(fmt.Sprintf("%d/%s", format, name), func(t *testing.T) {
				got, err := c.Decode(c.Encode(frame))
				require.NoError(t, err)
				if diff := cmp.Diff(frame, got); diff != "" {
					t.Errorf("round trip mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestDecode_TolerantFormatting(t *testing.T) {
	want := landmark.ThumbsUp().Values()
	plain := joinValues(want, ", ")

	payloads := map[string]string{
		"python list":        "[" + plain + "]",
		"brackets stripped":  plain,
		"padded":             "  \n" + plain + " \t\r\n",
		"no spaces":          joinValues(want, ","),
		"whitespace only":    joinValues(want, " "),
		"bracketed + header": "n=21|[" + plain + "]",
		"trailing comma":     plain + ",",
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			got, err := Decode([]byte(payload))
			require.NoError(t, err)
			assert.InDeltaSlice(t, want, got.Values(), 1e-12)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	valid := landmark.OpenPalm().Values()

	withToken := func(tok string) string {
		parts := strings.Split(joinValues(valid, ","), ",")
		parts[30] = tok
		return strings.Join(parts, ",")
	}

	payloads := map[string]string{
		"empty":                "",
		"brackets only":        "[ ]",
		"not multiple of 3":    joinValues(valid[:62], ","),
		"20 landmarks":         joinValues(valid[:60], ","),
		"22 landmarks":         joinValues(append(append([]float64{}, valid...), 1, 2, 3), ","),
		"word token":           withToken("abc"),
		"partially numeric":    withToken("1.5x"),
		"empty token":          withToken(""),
		"NaN":                  withToken("NaN"),
		"Inf":                  withToken("+Inf"),
		"header count differs": "n=20|" + joinValues(valid, ","),
		"unknown header field": "q=1|" + joinValues(valid, ","),
		"bad side":             "h=X|" + joinValues(valid, ","),
		"bad timestamp":        "t=soon|" + joinValues(valid, ","),
		"binary truncated":     "HF\x01\x02\x15",
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			f, err := Decode([]byte(payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedFrame), "error %v should wrap ErrMalformedFrame", err)
			assert.Equal(t, landmark.HandFrame{}, f, "no partial frame on error")
		})
	}
}

func TestDecode_BinaryRejectsBadHeader(t *testing.T) {
	good := Codec{Format: FormatBinary}.Encode(landmark.ThumbsUp())

	t.Run("version", func(t *testing.T) {
		b := append([]byte{}, good...)
		b[2] = 9
		_, err := Decode(b)
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("count", func(t *testing.T) {
		b := append([]byte{}, good...)
		b[4] = 20
		_, err := Decode(b)
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("non finite value", func(t *testing.T) {
		b := Codec{Format: FormatBinary}.Encode(landmark.ThumbsUp())
		for i := binaryHeaderSize; i < binaryHeaderSize+8; i++ {
			b[i] = 0xff
		}
		_, err := Decode(b)
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})
}

func TestCodec_MilliUnitScale(t *testing.T) {
	// Trackers send int(coordinate*1000) joined by ", " with brackets removed.
	pose := landmark.OpenPalm()
	ints := make([]string, 0, landmark.NumValues)
	for _, v := range pose.Values() {
		ints = append(ints, fmt.Sprintf("%d", int(math.Round(v*1000))))
	}

	c := Codec{Scale: 1000}
	got, err := c.Decode([]byte(strings.Join(ints, ", ")))
	require.NoError(t, err)
	assert.InDeltaSlice(t, pose.Values(), got.Values(), 1e-9)

	encoded := string(c.Encode(landmark.HandFrame{Points: pose.Points}))
	assert.True(t, strings.HasPrefix(encoded, "500, 800, 0"), "encoded = %q", encoded[:20])
}
