// Package comm owns the link to a LineScale and publishes what it reports.
package comm

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"linescale-gui/internal/metrics"
	"linescale-gui/internal/protocol"
)

var ErrNotConnected = errors.New("no device connected")

// Transport is a byte link to the device. Read may return 0, nil when its
// read timeout expires.
type Transport interface {
	io.ReadWriteCloser
	Name() string
}

type (
	ForceHandler func(protocol.Reading)
	StateHandler func(connected bool)
	RawHandler   func(chunk []byte)
)

// Master manages at most one device connection. Handlers are called from
// the reader goroutine and never with the Master's lock held.
type Master struct {
	mu        sync.Mutex
	transport Transport
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{} // signals when the reader goroutine has exited

	hmu           sync.Mutex
	forceHandlers []ForceHandler
	stateHandlers []StateHandler
	rawHandlers   []RawHandler

	metrics *metrics.Collectors
	logger  *log.Entry
}

// NewMaster returns a disconnected Master. m may be nil.
func NewMaster(m *metrics.Collectors, logger *log.Entry) *Master {
	if logger == nil {
		logger = log.WithField("component", "comm")
	}
	return &Master{metrics: m, logger: logger}
}

func (m *Master) OnForce(h ForceHandler) {
	m.hmu.Lock()
	m.forceHandlers = append(m.forceHandlers, h)
	m.hmu.Unlock()
}

func (m *Master) OnStateChanged(h StateHandler) {
	m.hmu.Lock()
	m.stateHandlers = append(m.stateHandlers, h)
	m.hmu.Unlock()
}

func (m *Master) OnRaw(h RawHandler) {
	m.hmu.Lock()
	m.rawHandlers = append(m.rawHandlers, h)
	m.hmu.Unlock()
}

// IsConnected returns true if a transport is currently attached.
func (m *Master) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport != nil
}

// ConnectionName returns the name of the attached transport, or "".
func (m *Master) ConnectionName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transport == nil {
		return ""
	}
	return m.transport.Name()
}

// stopReader signals the reader goroutine to stop and waits for it to exit.
// Must be called with m.mu held. Releases and re-acquires the lock while waiting.
func (m *Master) stopReader() {
	if !m.running {
		return
	}
	close(m.stopCh)
	doneCh := m.doneCh
	m.running = false
	m.mu.Unlock()
	// Wait for goroutine to finish outside the lock to avoid deadlock
	if doneCh != nil {
		<-doneCh
	}
	m.mu.Lock()
}

// Connect attaches t, replacing any existing connection, and starts reading.
func (m *Master) Connect(t Transport) error {
	if t == nil {
		return errors.New("nil transport")
	}

	m.mu.Lock()
	m.stopReader()
	prev := m.transport
	m.transport = nil
	m.mu.Unlock()

	// Observers see the old connection go away before the new one arrives.
	if prev != nil {
		if err := prev.Close(); err != nil {
			m.logger.WithError(err).Warn("closing previous connection")
		}
		m.logger.WithField("transport", prev.Name()).Info("replaced connection")
		m.setConnectedMetric(false)
		m.emitState(false)
	}

	m.mu.Lock()
	m.transport = t
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.running = true
	go m.readLoop(t, m.stopCh, m.doneCh)
	m.mu.Unlock()

	m.logger.WithField("transport", t.Name()).Info("connected")
	m.setConnectedMetric(true)
	m.emitState(true)
	return nil
}

// RemoveConnection stops reading and closes the transport.
func (m *Master) RemoveConnection() {
	m.mu.Lock()
	m.stopReader()
	t := m.transport
	m.transport = nil
	m.mu.Unlock()

	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		m.logger.WithError(err).Warn("closing connection")
	}
	m.logger.WithField("transport", t.Name()).Info("disconnected")
	m.setConnectedMetric(false)
	m.emitState(false)
}

// SendData writes cmd to the device.
func (m *Master) SendData(cmd protocol.Command) error {
	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()
	if t == nil {
		return ErrNotConnected
	}

	if _, err := t.Write(cmd.Bytes()); err != nil {
		return errors.Wrapf(err, "write %s to %s", cmd, t.Name())
	}
	if m.metrics != nil {
		m.metrics.Commands.WithLabelValues(cmd.String()).Inc()
	}
	m.logger.WithField("command", cmd.String()).Debug("sent")
	return nil
}

func (m *Master) readLoop(t Transport, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	dec := protocol.NewDecoder()
	buf := make([]byte, 256)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		n, err := t.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			m.emitRaw(chunk)

			readings, errs := dec.Feed(chunk)
			for _, ferr := range errs {
				m.logger.WithError(ferr).Debug("dropped frame")
				if m.metrics != nil {
					m.metrics.FrameErrors.WithLabelValues(frameErrorReason(ferr)).Inc()
				}
			}
			for _, r := range readings {
				if m.metrics != nil {
					m.metrics.Frames.Inc()
					m.metrics.Force.Set(r.Value)
				}
				m.emitForce(r)
			}
		}

		if err != nil {
			// Check if we were asked to stop (port closed by RemoveConnection)
			select {
			case <-stopCh:
				return
			default:
			}
			m.logger.WithError(err).WithField("transport", t.Name()).Error("read failed, dropping connection")
			m.dropConnection(t)
			return
		}
	}
}

// dropConnection detaches t after a read failure unless it was already
// replaced or removed.
func (m *Master) dropConnection(t Transport) {
	m.mu.Lock()
	if m.transport != t {
		m.mu.Unlock()
		return
	}
	m.transport = nil
	m.running = false
	m.mu.Unlock()

	t.Close()
	m.setConnectedMetric(false)
	m.emitState(false)
}

func (m *Master) setConnectedMetric(connected bool) {
	if m.metrics == nil {
		return
	}
	if connected {
		m.metrics.Connected.Set(1)
	} else {
		m.metrics.Connected.Set(0)
	}
}

func (m *Master) emitForce(r protocol.Reading) {
	m.hmu.Lock()
	hs := append([]ForceHandler(nil), m.forceHandlers...)
	m.hmu.Unlock()
	for _, h := range hs {
		h(r)
	}
}

func (m *Master) emitState(connected bool) {
	m.hmu.Lock()
	hs := append([]StateHandler(nil), m.stateHandlers...)
	m.hmu.Unlock()
	for _, h := range hs {
		h(connected)
	}
}

func (m *Master) emitRaw(chunk []byte) {
	m.hmu.Lock()
	hs := append([]RawHandler(nil), m.rawHandlers...)
	m.hmu.Unlock()
	for _, h := range hs {
		h(chunk)
	}
}

func frameErrorReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrChecksum):
		return "checksum"
	case errors.Is(err, protocol.ErrFrameLength):
		return "length"
	case errors.Is(err, protocol.ErrFrameField):
		return "field"
	default:
		return "other"
	}
}
