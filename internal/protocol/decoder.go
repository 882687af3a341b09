package protocol

import (
	"bytes"
	"time"
)

// maxPartial bounds the bytes kept while waiting for a line feed, so a
// stream of garbage without LF cannot grow the buffer forever.
const maxPartial = 4 * FrameLen

// Decoder splits a byte stream into frames. It is not safe for concurrent use.
type Decoder struct {
	partial []byte
	now     func() time.Time
}

func NewDecoder() *Decoder {
	return &Decoder{now: time.Now}
}

// Feed consumes a chunk and returns the readings it completed together with
// the errors of any lines that failed to decode. Bad lines are dropped and
// decoding resumes after the next LF.
func (d *Decoder) Feed(chunk []byte) ([]Reading, []error) {
	d.partial = append(d.partial, chunk...)

	var readings []Reading
	var errs []error
	for {
		idx := bytes.IndexByte(d.partial, '\n')
		if idx < 0 {
			break
		}
		line := d.partial[:idx]
		d.partial = d.partial[idx+1:]
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		r, err := DecodeFrame(line, d.now())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		readings = append(readings, r)
	}

	if len(d.partial) > maxPartial {
		errs = append(errs, ErrFrameLength)
		d.partial = nil
	}
	return readings, errs
}

// Reset drops any buffered partial frame.
func (d *Decoder) Reset() {
	d.partial = nil
}
