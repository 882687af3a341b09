package protocol

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBytes(t *testing.T) {
	assert.Equal(t, []byte{0x41, 0x0D, 0x0A, 0x58}, RequestOnline.Bytes())
	assert.Equal(t, []byte{0x45, 0x0D, 0x0A, 0x5C}, DisconnectOnline.Bytes())
	assert.Equal(t, []byte{0x43, 0x0D, 0x0A, 0x5A}, ResetPeak.Bytes())
}

func TestParseCommand(t *testing.T) {
	for _, c := range Commands {
		got, err := ParseCommand(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := ParseCommand(" resetpeak ")
	require.NoError(t, err)
	assert.Equal(t, ResetPeak, got)

	_, err = ParseCommand("SELFDESTRUCT")
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

func TestDecodeFrame(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	frame := EncodeFrame(Reading{Value: 12.34, Unit: KN, Rate: 40, Battery: 87, Mode: Absolute})
	require.Len(t, frame, FrameLen)

	r, err := DecodeFrame(frame, at)
	require.NoError(t, err)
	assert.Equal(t, Reading{At: at, Value: 12.34, Unit: KN, Rate: 40, Battery: 87, Mode: Absolute}, r)
}

func TestDecodeFrameNegativeOverload(t *testing.T) {
	frame := EncodeFrame(Reading{Value: -1.5, Unit: LBF, Rate: 10, Battery: 5, Overload: true, Mode: Relative})
	r, err := DecodeFrame(frame, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, -1.5, r.Value, 1e-9)
	assert.True(t, r.Overload)
	assert.Equal(t, LBF, r.Unit)
	assert.Equal(t, Relative, r.Mode)
}

func TestEncodeFrameClampsValue(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{12345.678, MaxFrameValue},
		{9999.99, 9999.99},
		{-1234.5, MinFrameValue},
		{-999.99, -999.99},
	}
	for _, tt := range tests {
		frame := EncodeFrame(Reading{Value: tt.in, Unit: KN})
		require.Len(t, frame, FrameLen)
		r, err := DecodeFrame(frame, time.Time{})
		require.NoError(t, err, "value %v", tt.in)
		assert.InDelta(t, tt.want, r.Value, 1e-9, "value %v", tt.in)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	good := EncodeFrame(Reading{Value: 1, Unit: KN, Rate: 40, Battery: 50})

	badSum := append([]byte(nil), good...)
	badSum[3] = '9'

	badUnit := []byte("N0001.00xx40050A")
	badUnit = append(badUnit, []byte(hex2(checksum(badUnit))+"\r\n")...)

	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"short", []byte("N0001.00\r\n"), ErrFrameLength},
		{"checksum", badSum, ErrChecksum},
		{"unit", badUnit, ErrFrameField},
		{"checksum digits", []byte("N0001.00kN40050AZZ\r\n"), ErrFrameField},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeFrame(tc.frame, time.Time{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestDecoderSplitsChunks(t *testing.T) {
	d := NewDecoder()
	stream := append(EncodeFrame(Reading{Value: 1, Unit: KN}), EncodeFrame(Reading{Value: 2, Unit: KN})...)

	readings, errs := d.Feed(stream[:7])
	assert.Empty(t, readings)
	assert.Empty(t, errs)

	readings, errs = d.Feed(stream[7:25])
	assert.Empty(t, errs)
	require.Len(t, readings, 1)
	assert.InDelta(t, 1.0, readings[0].Value, 1e-9)

	readings, errs = d.Feed(stream[25:])
	assert.Empty(t, errs)
	require.Len(t, readings, 1)
	assert.InDelta(t, 2.0, readings[0].Value, 1e-9)
}

func TestDecoderResyncsAfterGarbage(t *testing.T) {
	d := NewDecoder()
	stream := append([]byte("garbage\r\n\r\n"), EncodeFrame(Reading{Value: 3, Unit: KN})...)

	readings, errs := d.Feed(stream)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrFrameLength))
	require.Len(t, readings, 1)
	assert.InDelta(t, 3.0, readings[0].Value, 1e-9)
}

func TestDecoderDropsRunawayPartial(t *testing.T) {
	d := NewDecoder()
	junk := make([]byte, maxPartial+1)
	for i := range junk {
		junk[i] = 'x'
	}
	_, errs := d.Feed(junk)
	require.Len(t, errs, 1)

	readings, errs := d.Feed(EncodeFrame(Reading{Value: 4, Unit: KN}))
	assert.Empty(t, errs)
	require.Len(t, readings, 1)
}

func hex2(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0x0F]})
}
