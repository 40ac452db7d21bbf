package eeprom

import (
	"context"

	"github.com/robotalks/eeprom.go/pkg/eeprom/protocol"
)

// Dump reads count cells starting at addr.
// Bytes are read one at a time so onProgress, if not nil, is called with
// 1 after each byte. A zero count completes immediately without touching
// the transport.
func (p *Programmer) Dump(ctx context.Context, addr uint16, count int, onProgress ProgressFunc) ([]byte, error) {
	length, err := protocol.Length(count)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, count)
	if count == 0 {
		return data, nil
	}
	err = p.run(ctx, func() error {
		if err := p.send(protocol.EncodeBulkDump(addr, length)); err != nil {
			return err
		}
		for len(data) < count {
			b, err := p.readExact("dump", 1, p.ReadTimeout)
			if err != nil {
				return err
			}
			data = append(data, b[0])
			if onProgress != nil {
				onProgress(1)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
