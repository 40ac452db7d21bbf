// Package protocol encodes and parses the command frames of the EEPROM
// programmer firmware.
package protocol

// The programmer is driven over a plain serial line at 115200 baud.
// Every command is a single opcode character followed by big-endian
// parameters:
//
//	READ:  r[ADDRESS(2)]
//	WRITE: w[ADDRESS(2)][DATA(1)]
//	LOAD:  l[START_ADDRESS(2)][COUNT(2)][DATA(COUNT)]
//	DUMP:  d[START_ADDRESS(2)][COUNT(2)]
//	ERASE: e[CONFIRMATION(2)]
//
// There is no framing, checksum or sequence number. The only feedback
// the device gives while loading is one response byte per payload byte
// it has consumed, which the host uses as an acknowledgment count.
//
// Producer: host
// Consumer: programmer firmware
