package protocol

import (
	"strings"

	"github.com/pkg/errors"
)

// DefaultBaudRate is the LineScale USB link speed.
const DefaultBaudRate = 230400

// ErrUnknownCommand is returned by ParseCommand for names it does not know.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a single host-to-device instruction.
type Command byte

const (
	RequestOnline    Command = 'A'
	DisconnectOnline Command = 'E'
	ResetPeak        Command = 'C'
	ZeroAbsolute     Command = 'Z'
	UnitKN           Command = 'N'
	UnitKgf          Command = 'G'
	UnitLbf          Command = 'B'
	SpeedSlow        Command = 'S' // 10 Hz
	SpeedFast        Command = 'F' // 40 Hz
	PowerOff         Command = 'O'
)

var commandNames = map[Command]string{
	RequestOnline:    "REQUESTONLINE",
	DisconnectOnline: "DISCONNECTONLINE",
	ResetPeak:        "RESETPEAK",
	ZeroAbsolute:     "ZEROABSOLUTE",
	UnitKN:           "UNITKN",
	UnitKgf:          "UNITKGF",
	UnitLbf:          "UNITLBF",
	SpeedSlow:        "SPEEDSLOW",
	SpeedFast:        "SPEEDFAST",
	PowerOff:         "POWEROFF",
}

// Commands lists every known command in a stable order.
var Commands = []Command{
	RequestOnline, DisconnectOnline, ResetPeak, ZeroAbsolute,
	UnitKN, UnitKgf, UnitLbf, SpeedSlow, SpeedFast, PowerOff,
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "UNKNOWN(" + string(rune(c)) + ")"
}

// Bytes encodes the command as letter, CR, LF and a one byte checksum over
// the first three bytes.
func (c Command) Bytes() []byte {
	b := []byte{byte(c), '\r', '\n', 0}
	b[3] = checksum(b[:3])
	return b
}

// ParseCommand resolves a command by its name, ignoring case.
func ParseCommand(name string) (Command, error) {
	want := strings.ToUpper(strings.TrimSpace(name))
	for _, c := range Commands {
		if commandNames[c] == want {
			return c, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownCommand, "%q", name)
}

func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}
