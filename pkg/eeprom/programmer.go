package eeprom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/eeprom.go/pkg/eeprom/protocol"
	fx "github.com/robotalks/eeprom.go/pkg/framework"
	"github.com/robotalks/eeprom.go/pkg/transport"
)

// Transport is the duplex byte channel to the programmer device.
type Transport interface {
	io.Writer
	// ReadExact blocks until n bytes are read, the transport is closed or
	// timeout elapses (timeout <= 0 waits forever).
	ReadExact(n int, timeout time.Duration) ([]byte, error)
	// Available returns the number of bytes ready to read without blocking.
	Available() (int, error)
	// ClearInput discards received but unread bytes.
	ClearInput() error
	// ClearOutput discards written but unsent bytes.
	ClearOutput() error
	// Close closes the channel and fails blocked reads.
	Close() error
}

// ProgressFunc receives the number of bytes completed since the last call.
type ProgressFunc func(n int)

// Defaults
const (
	DefaultTargetFill   = 16
	DefaultReadTimeout  = 2 * time.Second
	DefaultDrainTimeout = 2 * time.Second
	DefaultEraseTimeout = 5 * time.Second
	DefaultPollInterval = 100 * time.Microsecond
)

// Programmer reads and writes the EEPROM behind a Transport.
// It's not safe for concurrent use: the device serves one command at a time.
type Programmer struct {
	Transport Transport

	// TargetFill is the number of unacknowledged bytes the loader keeps
	// in flight. It must stay below the device receive buffer size.
	TargetFill int
	// ReadTimeout bounds each blocking read of a response byte.
	ReadTimeout time.Duration
	// DrainTimeout bounds how long the loader waits without any new
	// acknowledgment before declaring the device silent.
	DrainTimeout time.Duration
	// EraseTimeout bounds the wait for the erase confirmation.
	EraseTimeout time.Duration
	// PollInterval is the pause between idle polls of Available.
	PollInterval time.Duration
	// Observer receives loader statistics after each round, optional.
	Observer RoundObserver
}

// New creates a Programmer with default settings.
func New(t Transport) *Programmer {
	return &Programmer{
		Transport:    t,
		TargetFill:   DefaultTargetFill,
		ReadTimeout:  DefaultReadTimeout,
		DrainTimeout: DefaultDrainTimeout,
		EraseTimeout: DefaultEraseTimeout,
		PollInterval: DefaultPollInterval,
	}
}

// WithTargetFill sets TargetFill.
func (p *Programmer) WithTargetFill(n int) *Programmer {
	p.TargetFill = n
	return p
}

// ReadByte reads a single cell.
func (p *Programmer) ReadByte(ctx context.Context, addr uint16) (value byte, err error) {
	err = p.run(ctx, func() error {
		if err := p.Transport.ClearInput(); err != nil {
			return transportError("read", err, 0)
		}
		if err := p.send(protocol.EncodeReadByte(addr)); err != nil {
			return err
		}
		b, err := p.readExact("read", 1, p.ReadTimeout)
		if err != nil {
			return err
		}
		value = b[0]
		return nil
	})
	return
}

// WriteByte writes a single cell and waits for the device to confirm.
func (p *Programmer) WriteByte(ctx context.Context, addr uint16, value byte) error {
	return p.run(ctx, func() error {
		if err := p.send(protocol.EncodeWriteByte(addr, value)); err != nil {
			return err
		}
		// the content of the confirmation byte is meaningless.
		_, err := p.readExact("write", 1, p.ReadTimeout)
		return err
	})
}

// Erase erases the whole chip.
func (p *Programmer) Erase(ctx context.Context) error {
	return p.run(ctx, func() error {
		if err := p.Transport.ClearInput(); err != nil {
			return transportError("erase", err, 0)
		}
		if err := p.send(protocol.EncodeErase(protocol.EraseConfirmation)); err != nil {
			return err
		}
		b, err := p.readExact("erase", 1, p.EraseTimeout)
		if err != nil {
			return err
		}
		if b[0] != protocol.EraseAccepted {
			return ErrEraseRejected
		}
		return nil
	})
}

func (p *Programmer) run(ctx context.Context, fn func() error) error {
	if ctx.Done() == nil {
		return fn()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fx.RunWithContextCancel(ctx, func() {
		glog.Warning("operation canceled, closing transport")
		p.Transport.Close()
	}, fn)
}

func (p *Programmer) send(f protocol.Frame) error {
	glog.V(2).Infof("SEND %s", f)
	if _, err := f.WriteTo(p.Transport); err != nil {
		return transportError(f.Op.String(), err, 0)
	}
	return nil
}

func (p *Programmer) readExact(op string, n int, timeout time.Duration) ([]byte, error) {
	b, err := p.Transport.ReadExact(n, timeout)
	if err != nil {
		return nil, transportError(op, err, timeout)
	}
	if len(b) < n {
		return nil, &DeviceSilenceError{Op: op, Waited: timeout}
	}
	return b, nil
}

func (p *Programmer) idle() {
	if p.PollInterval > 0 {
		time.Sleep(p.PollInterval)
	}
}

func transportError(op string, err error, waited time.Duration) error {
	switch {
	case errors.Is(err, transport.ErrTimeout):
		return &DeviceSilenceError{Op: op, Waited: waited}
	case errors.Is(err, ErrTransportClosed):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe):
		return fmt.Errorf("%s: %w: %v", op, ErrTransportClosed, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
