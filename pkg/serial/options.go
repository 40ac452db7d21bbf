// Package serial opens the programmer board's serial port.
package serial

import (
	"errors"
	"fmt"
	"time"
)

// Defaults
const (
	DefaultBaudRate    = 115200
	DefaultSettleDelay = 2 * time.Second
)

// ErrUnsupported indicates serial ports are not supported on this platform.
var ErrUnsupported = errors.New("serial port not supported on this platform")

// Options configures a serial port.
type Options struct {
	// BaudRate of the link, 8N1 without flow control.
	BaudRate int
	// SettleDelay is the wait after opening. Opening the port resets the
	// board and the bootloader swallows anything sent before it's done.
	SettleDelay time.Duration
}

// DefaultOptions returns the options matching the programmer firmware.
func DefaultOptions() Options {
	return Options{
		BaudRate:    DefaultBaudRate,
		SettleDelay: DefaultSettleDelay,
	}
}

// UnsupportedBaudRateError indicates the baud rate can't be configured.
type UnsupportedBaudRateError struct {
	BaudRate int
}

// Error implements error.
func (e *UnsupportedBaudRateError) Error() string {
	return fmt.Sprintf("unsupported baud rate %d", e.BaudRate)
}
