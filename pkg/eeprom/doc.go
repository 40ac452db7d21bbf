// Package eeprom programs and reads back an EEPROM attached to a
// microcontroller running the programmer firmware.
//
// The Programmer owns no state between calls except the Transport. All
// operations are synchronous. An operation is aborted by canceling its
// context, which closes the transport, or by closing the transport
// directly; either way the link must be reopened before further use and
// cells already written are not rolled back.
package eeprom
