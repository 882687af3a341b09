//go:build !linux

package comm

import "github.com/pkg/errors"

var errBLEUnsupported = errors.New("bluetooth is only supported on linux")

func OpenBLE() error { return errBLEUnsupported }

func CloseBLE() error { return nil }
