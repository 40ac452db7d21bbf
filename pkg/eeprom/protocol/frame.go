package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Opcode is the leading character of a command frame.
type Opcode byte

// Opcodes understood by the firmware.
const (
	OpReadByte  Opcode = 'r'
	OpWriteByte Opcode = 'w'
	OpBulkLoad  Opcode = 'l'
	OpBulkDump  Opcode = 'd'
	OpErase     Opcode = 'e'
)

const (
	// AddressSpace is the number of addressable cells.
	AddressSpace = 0x10000
	// MaxLength is the largest count a bulk frame can carry.
	MaxLength = 0xffff

	// EraseConfirmation must be sent as the parameter of an erase
	// frame, anything else is refused by the device.
	EraseConfirmation uint16 = 0xbeef
	// EraseAccepted is replied by the device after a chip erase.
	EraseAccepted byte = 1
)

// ErrLengthOverflow indicates a count doesn't fit in the 16-bit length field.
var ErrLengthOverflow = errors.New("length exceeds 16-bit field")

// String implements fmt.Stringer.
func (op Opcode) String() string {
	switch op {
	case OpReadByte:
		return "read"
	case OpWriteByte:
		return "write"
	case OpBulkLoad:
		return "load"
	case OpBulkDump:
		return "dump"
	case OpErase:
		return "erase"
	}
	return fmt.Sprintf("op(%#02x)", byte(op))
}

// IsValid checks if the opcode is known by the firmware.
func (op Opcode) IsValid() bool {
	switch op {
	case OpReadByte, OpWriteByte, OpBulkLoad, OpBulkDump, OpErase:
		return true
	}
	return false
}

// Frame is a single command sent to the device.
// Length is only meaningful for bulk frames and Value only for
// OpWriteByte. For OpErase, Address carries the confirmation word.
type Frame struct {
	Op      Opcode
	Address uint16
	Length  uint16
	Value   byte
}

// EncodeReadByte builds a frame reading the cell at addr.
func EncodeReadByte(addr uint16) Frame {
	return Frame{Op: OpReadByte, Address: addr}
}

// EncodeWriteByte builds a frame writing value to the cell at addr.
func EncodeWriteByte(addr uint16, value byte) Frame {
	return Frame{Op: OpWriteByte, Address: addr, Value: value}
}

// EncodeBulkLoad builds the header of a bulk load. The length payload
// bytes are streamed after the header and are not part of the frame.
// The device doesn't check addr+length against the address space.
func EncodeBulkLoad(addr, length uint16) Frame {
	return Frame{Op: OpBulkLoad, Address: addr, Length: length}
}

// EncodeBulkDump builds a frame requesting length cells from addr.
func EncodeBulkDump(addr, length uint16) Frame {
	return Frame{Op: OpBulkDump, Address: addr, Length: length}
}

// EncodeErase builds a chip erase frame.
func EncodeErase(confirm uint16) Frame {
	return Frame{Op: OpErase, Address: confirm}
}

// Length converts a byte count to the 16-bit length field.
func Length(n int) (uint16, error) {
	if n < 0 || n > MaxLength {
		return 0, fmt.Errorf("%w: %d", ErrLengthOverflow, n)
	}
	return uint16(n), nil
}

// Size returns the encoded size of the frame.
func (f Frame) Size() int {
	switch f.Op {
	case OpWriteByte:
		return 4
	case OpBulkLoad, OpBulkDump:
		return 5
	}
	return 3
}

// Bytes returns encoded bytes for sending.
func (f Frame) Bytes() []byte {
	b := make([]byte, f.Size())
	b[0] = byte(f.Op)
	binary.BigEndian.PutUint16(b[1:], f.Address)
	switch f.Op {
	case OpWriteByte:
		b[3] = f.Value
	case OpBulkLoad, OpBulkDump:
		binary.BigEndian.PutUint16(b[3:], f.Length)
	}
	return b
}

// WriteTo writes encoded bytes in a single Write.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Bytes())
	return int64(n), err
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	switch f.Op {
	case OpWriteByte:
		return fmt.Sprintf("%s %#04x=%#02x", f.Op, f.Address, f.Value)
	case OpBulkLoad, OpBulkDump:
		return fmt.Sprintf("%s %#04x+%d", f.Op, f.Address, f.Length)
	}
	return fmt.Sprintf("%s %#04x", f.Op, f.Address)
}
