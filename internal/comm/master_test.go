package comm

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linescale-gui/internal/metrics"
	"linescale-gui/internal/protocol"
)

// fakeTransport feeds queued chunks to the reader and records writes.
type fakeTransport struct {
	in      chan []byte
	fail    chan error
	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan []byte, 16), fail: make(chan error, 1)}
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	select {
	case b := <-f.in:
		return copy(p, b), nil
	case err := <-f.fail:
		return 0, err
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	f.written = append(f.written, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type stateRecorder struct {
	mu     sync.Mutex
	states []bool
}

func (r *stateRecorder) record(connected bool) {
	r.mu.Lock()
	r.states = append(r.states, connected)
	r.mu.Unlock()
}

func (r *stateRecorder) get() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.states...)
}

func TestSendDataWithoutConnection(t *testing.T) {
	m := NewMaster(nil, nil)
	err := m.SendData(protocol.RequestOnline)
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestConnectSendRemove(t *testing.T) {
	col := metrics.New(nil)
	m := NewMaster(col, nil)
	rec := &stateRecorder{}
	m.OnStateChanged(rec.record)

	ft := newFakeTransport()
	require.NoError(t, m.Connect(ft))
	assert.True(t, m.IsConnected())
	assert.Equal(t, "fake", m.ConnectionName())
	assert.Equal(t, 1.0, testutil.ToFloat64(col.Connected))

	require.NoError(t, m.SendData(protocol.ResetPeak))
	ft.mu.Lock()
	assert.Equal(t, [][]byte{protocol.ResetPeak.Bytes()}, ft.written)
	ft.mu.Unlock()
	assert.Equal(t, 1.0, testutil.ToFloat64(col.Commands.WithLabelValues("RESETPEAK")))

	m.RemoveConnection()
	assert.False(t, m.IsConnected())
	assert.True(t, ft.isClosed())
	assert.Equal(t, []bool{true, false}, rec.get())
	assert.Equal(t, 0.0, testutil.ToFloat64(col.Connected))

	// a second remove is a no-op
	m.RemoveConnection()
	assert.Equal(t, []bool{true, false}, rec.get())
}

func TestReaderPublishesReadings(t *testing.T) {
	col := metrics.New(nil)
	m := NewMaster(col, nil)

	got := make(chan protocol.Reading, 4)
	m.OnForce(func(r protocol.Reading) { got <- r })
	var rawMu sync.Mutex
	var raw int
	m.OnRaw(func(chunk []byte) {
		rawMu.Lock()
		raw += len(chunk)
		rawMu.Unlock()
	})

	ft := newFakeTransport()
	require.NoError(t, m.Connect(ft))
	defer m.RemoveConnection()

	frame := protocol.EncodeFrame(protocol.Reading{Value: 1.25, Unit: protocol.KN, Rate: 40, Battery: 90})
	ft.in <- frame[:5]
	ft.in <- append(frame[5:], []byte("junk\r\n")...)

	select {
	case r := <-got:
		assert.InDelta(t, 1.25, r.Value, 1e-9)
		assert.Equal(t, 90, r.Battery)
	case <-time.After(time.Second):
		t.Fatal("no reading published")
	}

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(col.FrameErrors.WithLabelValues("length")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(col.Frames))
	assert.Equal(t, 1.25, testutil.ToFloat64(col.Force))

	rawMu.Lock()
	assert.Equal(t, len(frame)+6, raw)
	rawMu.Unlock()
}

func TestReadErrorDropsConnection(t *testing.T) {
	m := NewMaster(nil, nil)
	rec := &stateRecorder{}
	m.OnStateChanged(rec.record)

	ft := newFakeTransport()
	require.NoError(t, m.Connect(ft))
	ft.fail <- errors.New("cable pulled")

	assert.Eventually(t, func() bool { return !m.IsConnected() }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(rec.get()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, rec.get())
	assert.True(t, ft.isClosed())

	m.RemoveConnection()
	assert.Equal(t, []bool{true, false}, rec.get())
}

func TestConnectReplacesExisting(t *testing.T) {
	col := metrics.New(nil)
	m := NewMaster(col, nil)
	rec := &stateRecorder{}
	m.OnStateChanged(rec.record)
	first, second := newFakeTransport(), newFakeTransport()

	require.NoError(t, m.Connect(first))
	require.NoError(t, m.Connect(second))
	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
	// the old link is reported gone before the new one
	assert.Equal(t, []bool{true, false, true}, rec.get())
	assert.Equal(t, 1.0, testutil.ToFloat64(col.Connected))

	require.NoError(t, m.SendData(protocol.RequestOnline))
	second.mu.Lock()
	assert.Len(t, second.written, 1)
	second.mu.Unlock()
	m.RemoveConnection()
}

func TestFrameErrorReason(t *testing.T) {
	assert.Equal(t, "checksum", frameErrorReason(errors.Wrap(protocol.ErrChecksum, "x")))
	assert.Equal(t, "field", frameErrorReason(protocol.ErrFrameField))
	assert.Equal(t, "other", frameErrorReason(io.EOF))
}

func TestNotifyQueue(t *testing.T) {
	q := newNotifyQueue(2, 5*time.Millisecond)

	n, err := q.read(make([]byte, 4))
	assert.NoError(t, err)
	assert.Zero(t, n, "empty queue times out without data")

	q.push([]byte("abcdef"))
	buf := make([]byte, 4)
	n, err = q.read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))
	n, err = q.read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ef", string(buf[:n]))

	q.push([]byte("1"))
	q.push([]byte("2"))
	q.push([]byte("3")) // dropped, queue holds two

	q.close()
	q.close()
	for i := 0; i < 3; i++ {
		if _, err = q.read(buf); err == io.EOF {
			break
		}
	}
	assert.Equal(t, io.EOF, err)
}
