package serial

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"

	"github.com/robotalks/eeprom.go/pkg/transport"
)

var baudRates = map[int]uint32{
	1200:    unix.B1200,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
}

// Port is an open serial port. Received bytes are moved from the kernel
// into a transport.Buffer by the read loop of the embedded Stream.
type Port struct {
	*transport.Stream
	Path string

	file *os.File
}

// Open opens and configures the serial port at path.
func Open(path string, opts Options) (*Port, error) {
	speed, ok := baudRates[opts.BaudRate]
	if !ok {
		return nil, &UnsupportedBaudRateError{BaudRate: opts.BaudRate}
	}
	// O_NONBLOCK registers the tty with the runtime poller so Close
	// unblocks the read loop.
	f, err := os.OpenFile(path, os.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	if err := control(f, func(fd int) error { return makeRaw(fd, speed) }); err != nil {
		f.Close()
		return nil, fmt.Errorf("configure %s: %w", path, err)
	}
	glog.Infof("opened %s at %d baud", path, opts.BaudRate)
	if opts.SettleDelay > 0 {
		glog.V(1).Infof("waiting %s for the board to reset", opts.SettleDelay)
		time.Sleep(opts.SettleDelay)
	}
	if err := control(f, func(fd int) error { return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH) }); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush %s: %w", path, err)
	}
	return &Port{Stream: transport.NewStream(f), Path: path, file: f}, nil
}

func makeRaw(fd int, speed uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed, t.Ospeed = speed, speed
	t.Cc[unix.VMIN], t.Cc[unix.VTIME] = 1, 0
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

func control(f *os.File, fn func(fd int) error) error {
	conn, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	if err := conn.Control(func(fd uintptr) { opErr = fn(int(fd)) }); err != nil {
		return err
	}
	return opErr
}

// Available returns buffered bytes plus those still queued in the kernel.
// The buffer is counted first: bytes moved by the read loop in between
// are missed rather than counted twice.
func (p *Port) Available() (int, error) {
	n, err := p.Stream.Available()
	if err != nil {
		return 0, err
	}
	var queued int
	if err := control(p.file, func(fd int) (err error) {
		queued, err = unix.IoctlGetInt(fd, unix.TIOCINQ)
		return
	}); err != nil {
		return n, nil
	}
	return n + queued, nil
}

// ClearInput discards received bytes in the kernel and in the buffer.
func (p *Port) ClearInput() error {
	if err := p.Err(); err != nil {
		return err
	}
	return p.ClearInputFunc(func() error { return p.flush(unix.TCIFLUSH) })
}

// ClearOutput discards bytes not yet transmitted.
func (p *Port) ClearOutput() error {
	return p.flush(unix.TCOFLUSH)
}

func (p *Port) flush(queue int) error {
	if err := p.Err(); err != nil {
		return err
	}
	return control(p.file, func(fd int) error { return unix.IoctlSetInt(fd, unix.TCFLSH, queue) })
}
