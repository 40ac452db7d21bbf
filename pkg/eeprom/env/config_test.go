package env

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/eeprom.go/pkg/eeprom"
	"github.com/robotalks/eeprom.go/pkg/sim/device"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = "sim://?size=65536"
target_fill = 8
drain_timeout = "500ms"
`), 0644))

	conf := NewConfig()
	conf.BaudRate = 9600
	require.NoError(t, conf.LoadFile(path))
	assert.Equal(t, "sim://?size=65536", conf.Port)
	assert.Equal(t, 8, conf.TargetFill)
	assert.Equal(t, 500*time.Millisecond, conf.DrainTimeout)
	assert.Equal(t, 9600, conf.BaudRate, "undefined keys keep their value")
	assert.Equal(t, eeprom.DefaultReadTimeout, conf.ReadTimeout)
}

func TestLoadFileInvalid(t *testing.T) {
	dir := t.TempDir()
	testCases := map[string]string{
		"duration":    `read_timeout = "soon"`,
		"target fill": `target_fill = 0`,
		"syntax":      `port = `,
	}
	for name, content := range testCases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))
			require.Error(t, NewConfig().LoadFile(path))
		})
	}
	require.Error(t, NewConfig().LoadFile(filepath.Join(dir, "missing.toml")))
}

func TestLoadEnv(t *testing.T) {
	vars := map[string]string{
		"EEPROM_PORT":        "ws://bench:8080/eeprom",
		"EEPROM_BAUD":        "57600",
		"EEPROM_TARGET_FILL": "12",
	}
	conf := NewConfig()
	require.NoError(t, conf.LoadEnv(func(key string) string { return vars[key] }))
	assert.Equal(t, "ws://bench:8080/eeprom", conf.Port)
	assert.Equal(t, 57600, conf.BaudRate)
	assert.Equal(t, 12, conf.TargetFill)

	vars["EEPROM_BAUD"] = "fast"
	require.Error(t, conf.LoadEnv(func(key string) string { return vars[key] }))
}

func TestOpenSim(t *testing.T) {
	conf := NewConfig()
	conf.Port = "sim://?size=65536&seed=7&burst=0"
	conf.TargetFill = 10
	p, err := conf.OpenProgrammer()
	require.NoError(t, err)
	sim, ok := p.Transport.(*device.Device)
	require.True(t, ok)
	assert.Equal(t, 65536, sim.Config().Size)
	assert.Equal(t, int64(7), sim.Config().Seed)
	assert.Zero(t, sim.Config().MaxBurst)
	assert.Equal(t, 10, p.TargetFill)

	p.DrainTimeout = 200 * time.Millisecond
	p.PollInterval = 0
	data := []byte("hello")
	require.NoError(t, p.Load(context.Background(), 0xfffe, data, nil))
	out, err := p.Dump(context.Background(), 0xfffe, len(data), nil)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestOpenErrors(t *testing.T) {
	for _, port := range []string{
		"",
		"ftp://host/x",
		"sim://?size=big",
		"serial:///dev/null?baud=x",
		"mqtt://localhost:1883",
	} {
		conf := NewConfig()
		conf.Port = port
		conf.DialTimeout = 100 * time.Millisecond
		_, err := conf.Open()
		assert.Error(t, err, port)
	}
}

func TestMachineID(t *testing.T) {
	id := ShortMachineID()
	assert.NotEmpty(t, id)
	assert.True(t, len(id) <= 8)
	assert.Equal(t, id, ShortMachineID())
}
