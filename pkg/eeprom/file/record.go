// Package file stores a single named file in the EEPROM.
//
// The record lives at address 0:
//
//	[NAME_LEN(1)][NAME(NAME_LEN)][CONTENT_LEN(2)][CONTENT(CONTENT_LEN)]
//
// The name is UTF-8 and lengths are big-endian. There is exactly one
// record; storing a file overwrites the previous one.
package file

import (
	"context"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/golang/glog"

	"github.com/robotalks/eeprom.go/pkg/eeprom"
)

// Limits of the record fields.
const (
	MaxNameLength    = 0xff
	MaxContentLength = 0xffff
)

// Record is a stored file.
type Record struct {
	Name    string
	Content []byte
}

// Size returns the number of cells the record occupies.
func (r Record) Size() int {
	return 1 + len(r.Name) + 2 + len(r.Content)
}

// EncodingError indicates a field is too long for its length prefix.
type EncodingError struct {
	Field  string
	Length int
	Max    int
}

// Error implements error.
func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s length %d exceeds %d", e.Field, e.Length, e.Max)
}

// DecodingError indicates a stored record can't be decoded.
type DecodingError struct {
	Reason string
}

// Error implements error.
func (e *DecodingError) Error() string {
	return "invalid record: " + e.Reason
}

// Device is the subset of eeprom.Programmer used by records.
type Device interface {
	Load(ctx context.Context, addr uint16, data []byte, onProgress eeprom.ProgressFunc) error
	ReadByte(ctx context.Context, addr uint16) (byte, error)
	Dump(ctx context.Context, addr uint16, count int, onProgress eeprom.ProgressFunc) ([]byte, error)
}

// Pack encodes a record.
func Pack(name string, content []byte) ([]byte, error) {
	if len(name) > MaxNameLength {
		return nil, &EncodingError{Field: "name", Length: len(name), Max: MaxNameLength}
	}
	if len(content) > MaxContentLength {
		return nil, &EncodingError{Field: "content", Length: len(content), Max: MaxContentLength}
	}
	b := make([]byte, 0, Record{Name: name, Content: content}.Size())
	b = append(b, byte(len(name)))
	b = append(b, name...)
	b = binary.BigEndian.AppendUint16(b, uint16(len(content)))
	return append(b, content...), nil
}

// Unpack decodes a record from an image starting at address 0.
// Bytes after the record are ignored.
func Unpack(image []byte) (Record, error) {
	if len(image) < 1 {
		return Record{}, &DecodingError{Reason: "missing name length"}
	}
	nameLen := int(image[0])
	if len(image) < 3+nameLen {
		return Record{}, &DecodingError{Reason: "truncated header"}
	}
	name, err := decodeName(image[1 : 1+nameLen])
	if err != nil {
		return Record{}, err
	}
	contentLen := int(binary.BigEndian.Uint16(image[1+nameLen:]))
	start := 3 + nameLen
	if len(image) < start+contentLen {
		return Record{}, &DecodingError{Reason: "truncated content"}
	}
	content := append([]byte{}, image[start:start+contentLen]...)
	return Record{Name: name, Content: content}, nil
}

func decodeName(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", &DecodingError{Reason: "name is not valid UTF-8"}
	}
	return string(b), nil
}

// Store writes the record of name and content at address 0.
// Nothing is sent if the record can't be encoded.
func Store(ctx context.Context, d Device, name string, content []byte, onProgress eeprom.ProgressFunc) error {
	data, err := Pack(name, content)
	if err != nil {
		return err
	}
	glog.V(1).Infof("store %q: %d bytes record", name, len(data))
	return d.Load(ctx, 0, data, onProgress)
}

// Fetch reads back the stored record.
// onProgress, if not nil, is called for each byte of name and content.
func Fetch(ctx context.Context, d Device, onProgress eeprom.ProgressFunc) (Record, error) {
	nameLen, err := d.ReadByte(ctx, 0)
	if err != nil {
		return Record{}, err
	}
	nameBytes, err := d.Dump(ctx, 1, int(nameLen), onProgress)
	if err != nil {
		return Record{}, err
	}
	name, err := decodeName(nameBytes)
	if err != nil {
		return Record{}, err
	}
	lenBytes, err := d.Dump(ctx, 1+uint16(nameLen), 2, nil)
	if err != nil {
		return Record{}, err
	}
	contentLen := int(binary.BigEndian.Uint16(lenBytes))
	glog.V(1).Infof("fetch %q: %d bytes", name, contentLen)
	content, err := d.Dump(ctx, 3+uint16(nameLen), contentLen, onProgress)
	if err != nil {
		return Record{}, err
	}
	return Record{Name: name, Content: content}, nil
}
