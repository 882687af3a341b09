package comm

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// LineScale exposes a Nordic style UART over BLE: the host writes commands
// to rx and the device notifies frames on tx.
const (
	uartServiceUUID = "6e400001b5a3f393e0a9e50e24dcca9e"
	uartRxUUID      = "6e400002b5a3f393e0a9e50e24dcca9e"
	uartTxUUID      = "6e400003b5a3f393e0a9e50e24dcca9e"
)

const (
	bleReadTimeout = 100 * time.Millisecond
	bleQueueSize   = 256
)

var (
	serviceUUID = ble.MustParse(uartServiceUUID)
	rxUUID      = ble.MustParse(uartRxUUID)
	txUUID      = ble.MustParse(uartTxUUID)
)

// BLEDevice is an advertising LineScale found by ScanBLE.
type BLEDevice struct {
	Addr string
	Name string
	RSSI int
}

// ScanBLE lists LineScale devices advertising within d. The default BLE
// device must have been opened with OpenBLE.
func ScanBLE(ctx context.Context, d time.Duration) ([]BLEDevice, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	ads, err := ble.Find(ctx, false, lineScaleOnly)
	if err != nil {
		switch errors.Cause(err) {
		case context.DeadlineExceeded:
		case context.Canceled:
			return nil, errors.Wrap(err, "scan for devices cancelled")
		default:
			return nil, errors.Wrap(err, "failed to scan for devices")
		}
	}

	seen := map[string]bool{}
	var devices []BLEDevice
	for _, a := range ads {
		addr := a.Addr().String()
		if seen[addr] {
			continue
		}
		seen[addr] = true
		devices = append(devices, BLEDevice{Addr: addr, Name: a.LocalName(), RSSI: a.RSSI()})
	}
	return devices, nil
}

func lineScaleOnly(a ble.Advertisement) bool {
	if !a.Connectable() {
		return false
	}
	if strings.HasPrefix(strings.ToUpper(a.LocalName()), "LINESCALE") {
		return true
	}
	for _, u := range a.Services() {
		if u.Equal(serviceUUID) {
			return true
		}
	}
	return false
}

// BLETransport is a device link over the BLE UART service.
type BLETransport struct {
	addr  string
	cln   ble.Client
	rx    *ble.Characteristic
	queue *notifyQueue
}

// DialBLE connects to the device at addr and subscribes to its frames.
func DialBLE(ctx context.Context, addr string) (*BLETransport, error) {
	filter := func(a ble.Advertisement) bool {
		return strings.EqualFold(a.Addr().String(), addr)
	}

	cln, err := ble.Connect(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't connect to ble")
	}

	t, err := setupBLE(cln, addr)
	if err != nil {
		_ = cln.CancelConnection()
		return nil, err
	}

	// The peripheral can drop the link on its own; wake up readers when it does.
	go func() {
		<-cln.Disconnected()
		log.WithField("addr", addr).Debug("ble device disconnected")
		t.queue.close()
	}()
	return t, nil
}

func setupBLE(cln ble.Client, addr string) (*BLETransport, error) {
	services, err := cln.DiscoverServices([]ble.UUID{serviceUUID})
	if err != nil {
		return nil, errors.Wrap(err, "couldn't discover services")
	}
	if len(services) == 0 {
		return nil, errors.New("did not find uart service")
	}

	chars, err := cln.DiscoverCharacteristics([]ble.UUID{rxUUID, txUUID}, services[0])
	if err != nil {
		return nil, errors.Wrap(err, "couldn't discover characteristics")
	}

	var rx, tx *ble.Characteristic
	for _, c := range chars {
		switch {
		case c.UUID.Equal(rxUUID):
			rx = c
		case c.UUID.Equal(txUUID):
			tx = c
		}
	}
	if rx == nil || tx == nil {
		return nil, errors.New("did not find uart characteristics")
	}

	if _, err := cln.DiscoverDescriptors(nil, tx); err != nil {
		return nil, errors.Wrap(err, "couldn't discover descriptors")
	}

	t := &BLETransport{addr: addr, cln: cln, rx: rx, queue: newNotifyQueue(bleQueueSize, bleReadTimeout)}
	if err := cln.Subscribe(tx, false, t.queue.push); err != nil {
		return nil, errors.Wrap(err, "couldn't subscribe to frames")
	}
	return t, nil
}

func (t *BLETransport) Read(p []byte) (int, error) {
	return t.queue.read(p)
}

func (t *BLETransport) Write(p []byte) (int, error) {
	if err := t.cln.WriteCharacteristic(t.rx, p, true); err != nil {
		return 0, errors.Wrap(err, "failed to write characteristic")
	}
	return len(p), nil
}

func (t *BLETransport) Close() error {
	t.queue.close()
	return t.cln.CancelConnection()
}

func (t *BLETransport) Name() string {
	return "ble:" + t.addr
}

// notifyQueue turns BLE notifications into a Read-able stream with a read
// timeout, matching how the serial port behaves.
type notifyQueue struct {
	data      chan []byte
	pending   []byte
	closed    chan struct{}
	closeOnce sync.Once
	timeout   time.Duration
}

func newNotifyQueue(size int, timeout time.Duration) *notifyQueue {
	return &notifyQueue{
		data:    make(chan []byte, size),
		closed:  make(chan struct{}),
		timeout: timeout,
	}
}

// push is the notification handler. It must not block the BLE stack, so a
// full queue drops the notification.
func (q *notifyQueue) push(b []byte) {
	chunk := append([]byte(nil), b...)
	select {
	case <-q.closed:
	case q.data <- chunk:
	default:
		log.WithField("bytes", len(chunk)).Warn("ble queue full, dropping notification")
	}
}

func (q *notifyQueue) read(p []byte) (int, error) {
	if len(q.pending) == 0 {
		timer := time.NewTimer(q.timeout)
		defer timer.Stop()
		select {
		case chunk := <-q.data:
			q.pending = chunk
		case <-q.closed:
			return 0, io.EOF
		case <-timer.C:
			return 0, nil
		}
	}
	n := copy(p, q.pending)
	q.pending = q.pending[n:]
	return n, nil
}

func (q *notifyQueue) close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
