// Package recording keeps the readings of the current measurement session
// for the plot and for export.
package recording

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"linescale-gui/internal/protocol"
)

const DefaultMaxReadings = 10000

// Buffer is a bounded, concurrency safe list of readings.
type Buffer struct {
	mu       sync.Mutex
	id       uuid.UUID
	started  time.Time
	readings []protocol.Reading
	max      int
}

func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = DefaultMaxReadings
	}
	return &Buffer{id: uuid.New(), started: time.Now(), max: max}
}

// Add appends r, dropping the oldest reading when full.
func (b *Buffer) Add(r protocol.Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readings = append(b.readings, r)
	if len(b.readings) > b.max {
		b.readings = b.readings[len(b.readings)-b.max:]
	}
}

// Reset drops all readings and starts a new session.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readings = nil
	b.id = uuid.New()
	b.started = time.Now()
}

// ID identifies the current session.
func (b *Buffer) ID() uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

func (b *Buffer) Started() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.readings)
}

// Snapshot returns a copy of all readings, oldest first.
func (b *Buffer) Snapshot() []protocol.Reading {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]protocol.Reading, len(b.readings))
	copy(out, b.readings)
	return out
}

// Since returns a copy of the readings received at or after t.
func (b *Buffer) Since(t time.Time) []protocol.Reading {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := len(b.readings)
	for i > 0 && !b.readings[i-1].At.Before(t) {
		i--
	}
	out := make([]protocol.Reading, len(b.readings)-i)
	copy(out, b.readings[i:])
	return out
}
