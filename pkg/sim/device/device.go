// Package device simulates the EEPROM programmer firmware.
//
// The simulated device runs in the caller's goroutine: every interaction
// with the host (Write, Available, ReadExact) lets it execute a random
// number of steps, and the bytes it produces become readable in random
// bursts. This reproduces the opportunistic, bursty acknowledgments of
// the real board while staying deterministic for a given seed.
package device

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/eeprom.go/pkg/eeprom/protocol"
	"github.com/robotalks/eeprom.go/pkg/transport"
)

// Config defines the simulated hardware.
type Config struct {
	// Size is the number of cells; addresses wrap around it.
	Size int
	// RxBufferSize is the receive buffer of the board. Bytes arriving
	// when it's full are lost.
	RxBufferSize int
	// PageSize is the write page of the EEPROM.
	PageSize int
	// MaxSteps is the maximum number of bytes the firmware consumes
	// between two host interactions. The actual number is random in
	// [0, MaxSteps].
	MaxSteps int
	// MaxBurst is the maximum number of produced bytes released to the
	// host at once, 0 releases everything immediately.
	MaxBurst int
	// PageWriteSteps is the number of steps a page commit keeps the
	// firmware busy.
	PageWriteSteps int
	// Seed seeds the step and burst randomness.
	Seed int64
}

// Defaults
const (
	DefaultSize           = 0x8000
	DefaultRxBufferSize   = 64
	DefaultPageSize       = 64
	DefaultMaxSteps       = 8
	DefaultMaxBurst       = 24
	DefaultPageWriteSteps = 4
)

// DefaultConfig returns the configuration of the reference board: a 32K
// EEPROM behind an ATmega328 with a 64 byte serial buffer.
func DefaultConfig() Config {
	return Config{
		Size:           DefaultSize,
		RxBufferSize:   DefaultRxBufferSize,
		PageSize:       DefaultPageSize,
		MaxSteps:       DefaultMaxSteps,
		MaxBurst:       DefaultMaxBurst,
		PageWriteSteps: DefaultPageWriteSteps,
		Seed:           1,
	}
}

// Device is a simulated programmer board implementing eeprom.Transport.
type Device struct {
	config Config
	rnd    *rand.Rand

	lock    sync.Mutex
	cells   []byte
	rx      []byte // received, not consumed by firmware
	pending []byte // produced by firmware, not yet visible to host
	tx      []byte // visible to host
	parser  protocol.Parser
	page    map[uint16]byte
	busy    int
	closed  bool

	stats Stats
}

// Stats counts what happened on the simulated board.
type Stats struct {
	// Received is the number of bytes accepted into the receive buffer.
	Received int
	// Dropped is the number of bytes lost because the receive buffer was full.
	Dropped int
	// MaxRxFill is the highest receive buffer occupancy seen.
	MaxRxFill int
	// PageWrites is the number of page commits.
	PageWrites int
	// Invalid is the number of invalid opcodes received.
	Invalid int
}

// New creates a Device with erased (0xff) cells.
func New(config Config) *Device {
	def := DefaultConfig()
	if config.Size <= 0 {
		config.Size = def.Size
	}
	if config.RxBufferSize <= 0 {
		config.RxBufferSize = def.RxBufferSize
	}
	if config.PageSize <= 0 {
		config.PageSize = def.PageSize
	}
	if config.MaxSteps <= 0 {
		config.MaxSteps = def.MaxSteps
	}
	d := &Device{
		config: config,
		rnd:    rand.New(rand.NewSource(config.Seed)),
		cells:  make([]byte, config.Size),
		page:   make(map[uint16]byte),
	}
	for n := range d.cells {
		d.cells[n] = 0xff
	}
	return d
}

// Config returns the configuration in use.
func (d *Device) Config() Config {
	return d.config
}

// Stats returns a snapshot of the counters.
func (d *Device) Stats() Stats {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.stats
}

// Cells returns a copy of the memory content.
func (d *Device) Cells() []byte {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]byte(nil), d.cells...)
}

// SetCells overwrites memory starting at addr, bypassing the protocol.
func (d *Device) SetCells(addr uint16, data []byte) {
	d.lock.Lock()
	defer d.lock.Unlock()
	for n, b := range data {
		d.cells[d.index(addr+uint16(n))] = b
	}
}

// Write implements io.Writer. It never blocks: bytes exceeding the
// receive buffer are dropped like on the real board.
func (d *Device) Write(p []byte) (int, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.closed {
		return 0, transport.ErrClosed
	}
	for _, b := range p {
		if len(d.rx) >= d.config.RxBufferSize {
			d.stats.Dropped++
			continue
		}
		d.rx = append(d.rx, b)
		d.stats.Received++
	}
	if len(d.rx) > d.stats.MaxRxFill {
		d.stats.MaxRxFill = len(d.rx)
	}
	d.run()
	return len(p), nil
}

// Available implements eeprom.Transport.
func (d *Device) Available() (int, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.closed {
		return 0, transport.ErrClosed
	}
	d.run()
	return len(d.tx), nil
}

// ReadExact implements eeprom.Transport. The simulation has no notion
// of time: when the firmware has nothing left to do and fewer than n
// bytes were produced, it fails with transport.ErrTimeout immediately,
// whatever timeout is given.
func (d *Device) ReadExact(n int, timeout time.Duration) ([]byte, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	for {
		if d.closed {
			return nil, transport.ErrClosed
		}
		if len(d.tx) >= n {
			out := append([]byte(nil), d.tx[:n]...)
			d.tx = d.tx[n:]
			return out, nil
		}
		if d.idle() {
			d.release(len(d.pending))
			if len(d.tx) >= n {
				continue
			}
			return nil, transport.ErrTimeout
		}
		d.run()
	}
}

// ClearInput implements eeprom.Transport.
func (d *Device) ClearInput() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.closed {
		return transport.ErrClosed
	}
	if len(d.tx) > 0 {
		glog.V(3).Infof("sim: discard %d bytes", len(d.tx))
	}
	d.tx = nil
	return nil
}

// ClearOutput implements eeprom.Transport. Written bytes land in the
// receive buffer immediately so there is nothing to discard.
func (d *Device) ClearOutput() error {
	return nil
}

// Close implements io.Closer.
func (d *Device) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.closed = true
	return nil
}

// Reopen makes a closed device usable again, like replugging the board.
// The firmware restarts, memory is retained.
func (d *Device) Reopen() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.closed = false
	d.rx, d.pending, d.tx = nil, nil, nil
	d.parser.Reset()
	d.page = make(map[uint16]byte)
	d.busy = 0
}

func (d *Device) idle() bool {
	return len(d.rx) == 0 && d.busy == 0
}

// run executes a random number of firmware steps and releases a random
// burst of produced bytes.
func (d *Device) run() {
	for steps := d.rnd.Intn(d.config.MaxSteps + 1); steps > 0; steps-- {
		if !d.step() {
			break
		}
	}
	if d.config.MaxBurst <= 0 {
		d.release(len(d.pending))
	} else if len(d.pending) > 0 {
		max := d.config.MaxBurst
		if max > len(d.pending) {
			max = len(d.pending)
		}
		d.release(d.rnd.Intn(max + 1))
	}
}

func (d *Device) release(n int) {
	d.tx = append(d.tx, d.pending[:n]...)
	d.pending = d.pending[n:]
}

// step processes one received byte, returns false if nothing to do.
func (d *Device) step() bool {
	if d.busy > 0 {
		d.busy--
		return true
	}
	if len(d.rx) == 0 {
		return false
	}
	b := d.rx[0]
	d.rx = d.rx[1:]
	r := d.parser.Parse(b)
	switch r.Event {
	case protocol.EventInvalid:
		d.stats.Invalid++
		d.emit([]byte(fmt.Sprintf("Invalid command: %c\r\n", r.Byte))...)
	case protocol.EventCommand:
		d.execute(r.Frame)
	case protocol.EventPayload:
		d.loadByte(r)
	}
	return true
}

func (d *Device) execute(f protocol.Frame) {
	switch f.Op {
	case protocol.OpReadByte:
		d.emit(d.cells[d.index(f.Address)])
	case protocol.OpWriteByte:
		d.cells[d.index(f.Address)] = f.Value
		// the firmware confirms with its pending input count.
		d.emit(byte(len(d.rx)))
	case protocol.OpBulkDump:
		for n := 0; n < int(f.Length); n++ {
			d.emit(d.cells[d.index(f.Address+uint16(n))])
		}
	case protocol.OpErase:
		if f.Address != protocol.EraseConfirmation {
			d.emit(0)
			return
		}
		for n := range d.cells {
			d.cells[n] = 0xff
		}
		d.emit(protocol.EraseAccepted)
	}
}

func (d *Device) loadByte(r protocol.ParseResult) {
	addr := r.Frame.Address + uint16(r.Offset)
	d.page[addr] = r.Byte
	d.emit(byte(len(d.rx)))
	if int(addr)%d.config.PageSize == d.config.PageSize-1 || r.Last {
		for a, b := range d.page {
			d.cells[d.index(a)] = b
		}
		d.page = make(map[uint16]byte)
		d.busy = d.config.PageWriteSteps
		d.stats.PageWrites++
	}
}

func (d *Device) emit(b ...byte) {
	d.pending = append(d.pending, b...)
}

func (d *Device) index(addr uint16) int {
	return int(addr) % d.config.Size
}
