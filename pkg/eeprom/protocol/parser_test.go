package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func parseAll(p *Parser, data []byte) []ParseResult {
	var results []ParseResult
	for _, b := range data {
		if r := p.Parse(b); r.Event != EventNone {
			results = append(results, r)
		}
	}
	return results
}

func TestParseCommands(t *testing.T) {
	testCases := []struct {
		name  string
		frame Frame
	}{
		{"read", EncodeReadByte(0x0102)},
		{"write", EncodeWriteByte(0x7fff, 0xaa)},
		{"dump", EncodeBulkDump(0x0010, 300)},
		{"erase", EncodeErase(EraseConfirmation)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var p Parser
			results := parseAll(&p, tc.frame.Bytes())
			require.Len(t, results, 1)
			require.Equal(t, EventCommand, results[0].Event)
			require.Equal(t, tc.frame, results[0].Frame)
			require.False(t, p.Busy())
		})
	}
}

func TestParseBulkLoad(t *testing.T) {
	var p Parser
	frame := EncodeBulkLoad(0x0100, 3)
	results := parseAll(&p, append(frame.Bytes(), 0x0a, 0x0b, 0x0c, 'r', 0, 0))
	require.Len(t, results, 5)

	require.Equal(t, EventCommand, results[0].Event)
	require.Equal(t, frame, results[0].Frame)
	for n, b := range []byte{0x0a, 0x0b, 0x0c} {
		r := results[n+1]
		require.Equal(t, EventPayload, r.Event)
		require.Equal(t, b, r.Byte)
		require.Equal(t, n, r.Offset)
		require.Equal(t, n == 2, r.Last)
	}
	// The payload length is honored: 'r' starts a new command.
	require.Equal(t, EventCommand, results[4].Event)
	require.Equal(t, EncodeReadByte(0), results[4].Frame)
}

func TestParseEmptyBulkLoad(t *testing.T) {
	var p Parser
	frame := EncodeBulkLoad(0x0020, 0)
	results := parseAll(&p, frame.Bytes())
	require.Len(t, results, 1)
	require.Equal(t, EventCommand, results[0].Event)
	require.True(t, p.Busy())

	// the next byte is taken as payload.
	results = parseAll(&p, []byte{'r', 0, 0})
	require.Len(t, results, 1)
	require.Equal(t, EventPayload, results[0].Event)
	require.Equal(t, byte('r'), results[0].Byte)
	require.Zero(t, results[0].Offset)
	require.True(t, results[0].Last)
	require.False(t, p.Busy())
}

func TestParseInvalid(t *testing.T) {
	var p Parser
	r := p.Parse('x')
	require.Equal(t, EventInvalid, r.Event)
	require.Equal(t, byte('x'), r.Byte)
	require.False(t, p.Busy())

	p.Parse('w')
	require.True(t, p.Busy())
	p.Reset()
	require.False(t, p.Busy())
}
