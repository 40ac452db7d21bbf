//go:build !linux

package serial

import (
	"github.com/robotalks/eeprom.go/pkg/transport"
)

// Port is an open serial port.
type Port struct {
	*transport.Stream
	Path string
}

// Open always fails with ErrUnsupported.
func Open(path string, opts Options) (*Port, error) {
	return nil, ErrUnsupported
}
