//go:build linux

package comm

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/pkg/errors"
)

// OpenBLE opens the host HCI device and makes it the default for ScanBLE
// and DialBLE.
func OpenBLE() error {
	d, err := linux.NewDevice()
	if err != nil {
		return errors.Wrap(err, "failed to open ble")
	}
	ble.SetDefaultDevice(d)
	return nil
}

// CloseBLE releases the device opened by OpenBLE.
func CloseBLE() error {
	return ble.Stop()
}
