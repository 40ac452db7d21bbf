package protocol

// Parser parses the bytes received by the device side.
// It's the reference state machine for simulated devices.
type Parser struct {
	state    parseState
	frame    Frame
	received int
}

// Event indicates what a parsed byte completed.
type Event int

const (
	// EventNone means more bytes are needed.
	EventNone Event = iota
	// EventCommand means a command frame is complete. For OpBulkLoad
	// this is the header; payload bytes follow as EventPayload. A load
	// with zero length still takes one payload byte, like the firmware.
	EventCommand
	// EventPayload means Byte is the payload byte at Offset of the
	// current bulk load.
	EventPayload
	// EventInvalid means Byte is not a known opcode. The parser stays idle.
	EventInvalid
)

// ParseResult is the result after one parsing step.
type ParseResult struct {
	Event  Event
	Frame  Frame
	Byte   byte
	Offset int
	// Last is set on the final payload byte of a bulk load.
	Last bool
}

type parseState int

const (
	stateIdle     parseState = iota // waiting for opcode
	stateAddress                    // waiting for address bytes
	stateParam                      // waiting for value or length bytes
	statePayload                    // receiving bulk load payload
)

// Reset drops any partially received frame.
func (p *Parser) Reset() {
	p.state, p.frame, p.received = stateIdle, Frame{}, 0
}

// Busy indicates a frame or a payload is partially received.
func (p *Parser) Busy() bool {
	return p.state != stateIdle
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (r ParseResult) {
	switch p.state {
	case stateIdle:
		op := Opcode(b)
		if !op.IsValid() {
			return ParseResult{Event: EventInvalid, Byte: b}
		}
		p.frame, p.received = Frame{Op: op}, 0
		p.state = stateAddress
	case stateAddress:
		p.frame.Address = p.frame.Address<<8 | uint16(b)
		if p.received++; p.received < 2 {
			return
		}
		switch p.frame.Op {
		case OpReadByte, OpErase:
			return p.complete()
		}
		p.state, p.received = stateParam, 0
	case stateParam:
		if p.frame.Op == OpWriteByte {
			p.frame.Value = b
			return p.complete()
		}
		p.frame.Length = p.frame.Length<<8 | uint16(b)
		if p.received++; p.received < 2 {
			return
		}
		r = ParseResult{Event: EventCommand, Frame: p.frame}
		if p.frame.Op == OpBulkLoad {
			p.state, p.received = statePayload, 0
			return
		}
		p.Reset()
	case statePayload:
		r = ParseResult{
			Event:  EventPayload,
			Frame:  p.frame,
			Byte:   b,
			Offset: p.received,
		}
		if p.received++; p.received >= int(p.frame.Length) {
			r.Last = true
			p.Reset()
		}
	}
	return
}

func (p *Parser) complete() ParseResult {
	r := ParseResult{Event: EventCommand, Frame: p.frame}
	p.Reset()
	return r
}
