package eeprom

import (
	"errors"
	"fmt"
	"time"

	"github.com/robotalks/eeprom.go/pkg/transport"
)

var (
	// ErrTransportClosed indicates the transport was closed in the middle of
	// an operation. The device state is undefined afterwards: clear both
	// buffers before reusing the link.
	ErrTransportClosed = transport.ErrClosed
	// ErrEraseRejected indicates the device refused the erase confirmation.
	ErrEraseRejected = errors.New("erase rejected")
)

// DeviceSilenceError indicates the device didn't respond in time.
type DeviceSilenceError struct {
	Op     string
	Waited time.Duration
}

// Error implements error.
func (e *DeviceSilenceError) Error() string {
	return fmt.Sprintf("%s: device silent for %v", e.Op, e.Waited)
}

// Timeout makes the error recognizable by os.IsTimeout style checks.
func (e *DeviceSilenceError) Timeout() bool {
	return true
}

// AckOverrunError indicates the device acknowledged more bytes than were sent.
type AckOverrunError struct {
	Sent         int
	Acknowledged int
}

// Error implements error.
func (e *AckOverrunError) Error() string {
	return fmt.Sprintf("acknowledged %d bytes but only %d sent", e.Acknowledged, e.Sent)
}

// VerifyError reports the first cell which differs from the expected image.
type VerifyError struct {
	Addr     uint16
	Expected byte
	Actual   byte
}

// Error implements error.
func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify failed at %#04x: expected %#02x, got %#02x", e.Addr, e.Expected, e.Actual)
}

// IsTransportClosed returns true if err indicates the transport is
// unusable and must be reopened.
func IsTransportClosed(err error) bool {
	return errors.Is(err, ErrTransportClosed)
}
