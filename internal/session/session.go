// Package session tracks whether the device is streaming, the session
// peak, and which window controls are usable for the connection state.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"linescale-gui/internal/protocol"
)

// DebounceInterval is how long the reading flag stays set after a stop
// command, so frames already buffered on the link do not flip it back.
const DebounceInterval = 10 * time.Millisecond

type Sender interface {
	SendData(cmd protocol.Command) error
}

type Notifier interface {
	Push(msg string)
	Warn(msg string)
}

// View receives rendered state. Calls are made with the controller's lock
// held and in model order, so implementations must not call back into the
// Controller synchronously.
type View interface {
	SetCurrent(text string)
	SetPeak(text string)
	SetControls(c Controls)
}

// Controls is the enabled state of the connection dependent actions.
type Controls struct {
	Connect         bool
	Disconnect      bool
	StartStop       bool
	ConnectionPanel bool
}

// ControlsFor returns the controls for a connection state.
func ControlsFor(connected bool) Controls {
	return Controls{
		Connect:         !connected,
		Disconnect:      connected,
		StartStop:       connected,
		ConnectionPanel: connected,
	}
}

type Timer interface {
	Stop() bool
}

type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Config struct {
	Sender    Sender
	Notifier  Notifier
	View      View
	Scheduler Scheduler     // defaults to time.AfterFunc
	Debounce  time.Duration // defaults to DebounceInterval
	Logger    *log.Entry
}

// Controller implements the start/stop handshake with the device.
//
// The reading flag is only ever set by an incoming reading. Stopping sends
// the stop command at once and clears the flag after the debounce interval.
// Each deferred clear carries the generation it was scheduled in; any later
// trigger or disconnect bumps the generation, so a stale clear is a no-op.
type Controller struct {
	mu           sync.Mutex
	sender       Sender
	notifier     Notifier
	view         View
	sched        Scheduler
	debounce     time.Duration
	logger       *log.Entry
	reading      bool
	startPending bool
	peak         float64
	unit         protocol.Unit
	gen          uint64
	pending      Timer
	onPeak       []func(float64)
}

func New(cfg Config) *Controller {
	c := &Controller{
		sender:   cfg.Sender,
		notifier: cfg.Notifier,
		view:     cfg.View,
		sched:    cfg.Scheduler,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
		unit:     protocol.KN,
	}
	if c.sched == nil {
		c.sched = realScheduler{}
	}
	if c.debounce <= 0 {
		c.debounce = DebounceInterval
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "session")
	}
	return c
}

// OnPeak registers fn to be called with every new peak value. Like the
// View, fn runs with the controller's lock held.
func (c *Controller) OnPeak(fn func(float64)) {
	c.mu.Lock()
	c.onPeak = append(c.onPeak, fn)
	c.mu.Unlock()
}

// Reading reports whether the device is considered to be streaming.
func (c *Controller) Reading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reading
}

func (c *Controller) Peak() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

// Trigger starts the stream when idle and stops it when reading.
func (c *Controller) Trigger() error {
	c.mu.Lock()
	if !c.reading {
		c.cancelPendingLocked()
		c.startPending = true
		c.mu.Unlock()

		c.notify("Start reading")
		return c.send(protocol.RequestOnline)
	}

	c.startPending = false
	c.cancelPendingLocked()
	gen := c.gen
	c.pending = c.sched.AfterFunc(c.debounce, func() { c.clearReading(gen) })
	c.mu.Unlock()

	c.notify("Stop reading")
	return c.send(protocol.DisconnectOnline)
}

func (c *Controller) clearReading(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.reading = false
	c.pending = nil
	c.logger.Debug("reading cleared")
}

// cancelPendingLocked invalidates any scheduled clear. Must be called with
// c.mu held.
func (c *Controller) cancelPendingLocked() {
	c.gen++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

// ReceiveForce handles one reading from the device.
func (c *Controller) ReceiveForce(r protocol.Reading) {
	c.mu.Lock()
	fresh := !c.reading && c.startPending
	c.reading = true
	if fresh {
		c.startPending = false
		c.peak = 0
	}
	if r.Unit != "" {
		c.unit = r.Unit
	}
	peakChanged := fresh
	if r.Value >= c.peak {
		c.peak = r.Value
		peakChanged = true
	}
	// Render under the lock so a concurrent ResetPeak cannot be overtaken
	// by the labels of an older reading.
	if peakChanged {
		c.renderPeakLocked()
	}
	if c.view != nil {
		c.view.SetCurrent(formatCurrent(r.Value, c.unit))
	}
	c.mu.Unlock()
}

// ResetPeak resets the device peak and refreshes the display with a zero
// reading right away. The local peak is reset even if sending fails.
func (c *Controller) ResetPeak() error {
	err := c.send(protocol.ResetPeak)

	c.mu.Lock()
	c.peak = 0
	c.renderPeakLocked()
	if c.view != nil {
		c.view.SetCurrent(formatCurrent(0, c.unit))
	}
	c.mu.Unlock()
	return err
}

// SetConnected updates the controls for a connection change. Losing the
// connection also ends any reading session.
func (c *Controller) SetConnected(connected bool) {
	c.mu.Lock()
	if !connected {
		c.cancelPendingLocked()
		c.reading = false
		c.startPending = false
	}
	if c.view != nil {
		c.view.SetControls(ControlsFor(connected))
	}
	c.mu.Unlock()
}

// renderPeakLocked pushes the peak to the view and the peak hooks. Must be
// called with c.mu held.
func (c *Controller) renderPeakLocked() {
	if c.view != nil {
		c.view.SetPeak(formatPeak(c.peak, c.unit))
	}
	for _, fn := range c.onPeak {
		fn(c.peak)
	}
}

func (c *Controller) send(cmd protocol.Command) error {
	if c.sender == nil {
		return errors.New("no sender")
	}
	if err := c.sender.SendData(cmd); err != nil {
		c.warn(fmt.Sprintf("Failed to send %s: %s", cmd, err))
		return errors.Wrapf(err, "send %s", cmd)
	}
	return nil
}

func (c *Controller) notify(msg string) {
	if c.notifier != nil {
		c.notifier.Push(msg)
	}
}

func (c *Controller) warn(msg string) {
	if c.notifier != nil {
		c.notifier.Warn(msg)
		return
	}
	c.logger.Warn(msg)
}

func formatPeak(v float64, unit protocol.Unit) string {
	return fmt.Sprintf("%3.2f %s", v, unit)
}

func formatCurrent(v float64, unit protocol.Unit) string {
	return fmt.Sprintf("%.2f %s", v, unit)
}
