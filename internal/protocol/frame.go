package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// FrameLen is the length of a reading frame including the trailing CR LF.
const FrameLen = 20

var (
	ErrFrameLength = errors.New("bad frame length")
	ErrChecksum    = errors.New("frame checksum mismatch")
	ErrFrameField  = errors.New("bad frame field")
)

// Unit is the force unit the device reports in.
type Unit string

const (
	KN  Unit = "kN"
	KGF Unit = "kg"
	LBF Unit = "lb"
)

// Mode tells whether a value is measured from absolute or relative zero.
type Mode byte

const (
	Absolute Mode = 'A'
	Relative Mode = 'R'
)

// Reading is one force sample reported by the device. At is the host
// receive time since the device does not timestamp its frames.
type Reading struct {
	At       time.Time
	Value    float64
	Unit     Unit
	Rate     int // samples per second
	Battery  int // percent
	Overload bool
	Mode     Mode
}

// DecodeFrame parses a single frame. The trailing CR LF is optional.
func DecodeFrame(line []byte, at time.Time) (Reading, error) {
	s := strings.TrimSuffix(strings.TrimSuffix(string(line), "\n"), "\r")
	if len(s) != FrameLen-2 {
		return Reading{}, errors.Wrapf(ErrFrameLength, "got %d bytes", len(s))
	}

	want, err := strconv.ParseUint(s[16:18], 16, 8)
	if err != nil {
		return Reading{}, errors.Wrapf(ErrFrameField, "checksum %q", s[16:18])
	}
	if got := checksum([]byte(s[:16])); byte(want) != got {
		return Reading{}, errors.Wrapf(ErrChecksum, "want %02X got %02X", want, got)
	}

	r := Reading{At: at}
	switch s[0] {
	case 'N':
	case 'O':
		r.Overload = true
	default:
		return Reading{}, errors.Wrapf(ErrFrameField, "status %q", s[0])
	}

	r.Value, err = strconv.ParseFloat(strings.TrimSpace(s[1:8]), 64)
	if err != nil {
		return Reading{}, errors.Wrapf(ErrFrameField, "value %q", s[1:8])
	}

	switch u := Unit(s[8:10]); u {
	case KN, KGF, LBF:
		r.Unit = u
	default:
		return Reading{}, errors.Wrapf(ErrFrameField, "unit %q", s[8:10])
	}

	if r.Rate, err = strconv.Atoi(s[10:12]); err != nil {
		return Reading{}, errors.Wrapf(ErrFrameField, "rate %q", s[10:12])
	}
	if r.Battery, err = strconv.Atoi(s[12:15]); err != nil {
		return Reading{}, errors.Wrapf(ErrFrameField, "battery %q", s[12:15])
	}

	switch m := Mode(s[15]); m {
	case Absolute, Relative:
		r.Mode = m
	default:
		return Reading{}, errors.Wrapf(ErrFrameField, "mode %q", s[15])
	}
	return r, nil
}

// Value limits that fit the frame's seven character value field.
const (
	MaxFrameValue = 9999.99
	MinFrameValue = -999.99
)

// EncodeFrame renders r the way the device sends it. Values outside
// [MinFrameValue, MaxFrameValue] are clamped to the nearest limit.
func EncodeFrame(r Reading) []byte {
	status := byte('N')
	if r.Overload {
		status = 'O'
	}
	mode := r.Mode
	if mode == 0 {
		mode = Absolute
	}
	unit := r.Unit
	if unit == "" {
		unit = KN
	}
	value := fmt.Sprintf("%07.2f", min(max(r.Value, MinFrameValue), MaxFrameValue))
	body := fmt.Sprintf("%c%s%s%02d%03d%c", status, value, unit, r.Rate%100, r.Battery%1000, mode)
	return []byte(fmt.Sprintf("%s%02X\r\n", body, checksum([]byte(body))))
}
