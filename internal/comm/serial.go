package comm

import (
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"linescale-gui/internal/protocol"
)

const serialReadTimeout = 100 * time.Millisecond

// BaudRates are the rates offered in the connect dialog.
var BaudRates = []int{9600, 19200, 38400, 57600, 115200, 230400}

// SerialTransport is a device link over a USB serial port.
type SerialTransport struct {
	port     serial.Port
	portName string
}

// AvailablePorts returns a list of detected serial port names.
func AvailablePorts() []string {
	ports, err := serial.GetPortsList()
	if err != nil || len(ports) == 0 {
		return []string{}
	}
	return ports
}

// OpenSerial opens portName with 8N1 framing. Reads time out after a short
// interval and return no data, so a reader can notice it was asked to stop.
func OpenSerial(portName string, baudRate int) (*SerialTransport, error) {
	if baudRate <= 0 {
		baudRate = protocol.DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(portName, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", portName)
	}
	if err := p.SetReadTimeout(serialReadTimeout); err != nil {
		p.Close()
		return nil, errors.Wrapf(err, "set read timeout on %s", portName)
	}
	return &SerialTransport{port: p, portName: portName}, nil
}

func (s *SerialTransport) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialTransport) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialTransport) Close() error {
	return s.port.Close()
}

func (s *SerialTransport) Name() string {
	return s.portName
}
