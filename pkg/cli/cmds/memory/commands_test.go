package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/eeprom.go/pkg/cli/sh"
	"github.com/robotalks/eeprom.go/pkg/eeprom/env"
	"github.com/robotalks/eeprom.go/pkg/eeprom/protocol"
)

func TestParse(t *testing.T) {
	addr, err := ParseAddr("0x7fff")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x7fff), addr)
	addr, err = ParseAddr("256")
	require.NoError(t, err)
	assert.Equal(t, uint16(256), addr)
	_, err = ParseAddr("0x10000")
	assert.Error(t, err)

	v, err := ParseByte("0xff")
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), v)
	_, err = ParseByte("256")
	assert.Error(t, err)

	n, err := ParseCount("65535")
	require.NoError(t, err)
	assert.Equal(t, protocol.MaxLength, n)
	_, err = ParseCount("65536")
	assert.ErrorIs(t, err, protocol.ErrLengthOverflow)
	_, err = ParseCount("-1")
	assert.Error(t, err)
}

func TestLocalName(t *testing.T) {
	name, err := LocalName("cat.jpg")
	require.NoError(t, err)
	assert.Equal(t, "cat.jpg", name)
	name, err = LocalName("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "passwd", name)
	for _, bad := range []string{"", ".", "..", "/"} {
		_, err := LocalName(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatHex(t *testing.T) {
	out := FormatHex(0x0ff8, []byte("0123456789abcdefXY\x00"))
	assert.Equal(t,
		"0ff8  30 31 32 33 34 35 36 37 38 39 61 62 63 64 65 66  |0123456789abcdef|\n"+
			"1008  58 59 00                                         |XY.|\n",
		out)
}

func TestStoreFetchCommands(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cat.jpg")
	require.NoError(t, os.WriteFile(src, []byte{1, 2, 3, 4, 5}, 0644))
	out := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(out, 0755))

	conf := env.NewConfig()
	conf.Port = "sim://"
	s := sh.New(conf)
	s.Interactive = false
	defer s.Close()

	require.NoError(t, s.Shell.Process("store", src))
	require.NotNil(t, s.Conn)
	require.NoError(t, s.Shell.Process("fetch", out))
	content, err := os.ReadFile(filepath.Join(out, "cat.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, content)

	dump := filepath.Join(dir, "dump.bin")
	require.NoError(t, s.Shell.Process("dump", "0", "15", dump))
	image, err := os.ReadFile(dump)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x07, 0x63, 0x61, 0x74, 0x2e, 0x6a, 0x70, 0x67,
		0x00, 0x05,
		0x01, 0x02, 0x03, 0x04, 0x05,
	}, image)
	require.NoError(t, s.Shell.Process("verify", dump))
}
