package file

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/eeprom.go/pkg/eeprom"
	"github.com/robotalks/eeprom.go/pkg/sim/device"
)

func newTestProgrammer() (*eeprom.Programmer, *device.Device) {
	sim := device.New(device.DefaultConfig())
	p := eeprom.New(sim)
	p.PollInterval = 0
	p.DrainTimeout = 200 * time.Millisecond
	return p, sim
}

func TestPack(t *testing.T) {
	data, err := Pack("cat.jpg", []byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.Equal(t, []byte{
		0x07, 0x63, 0x61, 0x74, 0x2e, 0x6a, 0x70, 0x67,
		0x00, 0x05,
		0x01, 0x02, 0x03, 0x04, 0x05,
	}, data)

	data, err = Pack("", nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0}, data)
}

func TestPackLimits(t *testing.T) {
	testCases := []struct {
		name    string
		file    string
		content int
		field   string
	}{
		{"name too long", strings.Repeat("a", MaxNameLength+1), 0, "name"},
		{"content too long", "big.bin", MaxContentLength + 1, "content"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Pack(tc.file, make([]byte, tc.content))
			var encErr *EncodingError
			require.ErrorAs(t, err, &encErr)
			require.Equal(t, tc.field, encErr.Field)
		})
	}

	_, err := Pack(strings.Repeat("a", MaxNameLength), make([]byte, MaxContentLength))
	require.NoError(t, err)
}

func TestPackUnpack(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	names := []string{"", "a", "cat.jpg", "日本語.txt", strings.Repeat("n", MaxNameLength)}
	for _, name := range names {
		for _, size := range []int{0, 1, 300, MaxContentLength} {
			content := make([]byte, size)
			rnd.Read(content)
			data, err := Pack(name, content)
			require.NoError(t, err)
			rec, err := Unpack(append(data, 0xff, 0xff))
			require.NoError(t, err)
			require.Equal(t, name, rec.Name)
			require.Equal(t, content, rec.Content)
			require.Equal(t, len(data), rec.Size())
		}
	}
}

func TestUnpackInvalid(t *testing.T) {
	for _, image := range [][]byte{
		nil,
		{3, 'a'},
		{1, 'a', 0, 5, 1},
		{2, 0xc3, 0x28, 0, 0},
	} {
		_, err := Unpack(image)
		var decErr *DecodingError
		require.ErrorAs(t, err, &decErr)
	}
}

func TestStoreFetch(t *testing.T) {
	p, sim := newTestProgrammer()
	ctx := context.Background()
	require.NoError(t, Store(ctx, p, "cat.jpg", []byte{1, 2, 3, 4, 5}, nil))
	require.Equal(t, []byte{
		0x07, 0x63, 0x61, 0x74, 0x2e, 0x6a, 0x70, 0x67,
		0x00, 0x05,
		0x01, 0x02, 0x03, 0x04, 0x05,
	}, sim.Cells()[:15])

	var progress int
	rec, err := Fetch(ctx, p, func(n int) { progress += n })
	require.NoError(t, err)
	require.Equal(t, "cat.jpg", rec.Name)
	require.Equal(t, []byte{1, 2, 3, 4, 5}, rec.Content)
	require.Equal(t, 12, progress)
}

func TestStoreFetchLarge(t *testing.T) {
	p, _ := newTestProgrammer()
	ctx := context.Background()
	content := make([]byte, 20000)
	rand.New(rand.NewSource(2)).Read(content)
	require.NoError(t, Store(ctx, p, "image.bin", content, nil))
	rec, err := Fetch(ctx, p, nil)
	require.NoError(t, err)
	require.Equal(t, "image.bin", rec.Name)
	require.Equal(t, content, rec.Content)
}

func TestStoreRejectedWithoutWriting(t *testing.T) {
	p, sim := newTestProgrammer()
	err := Store(context.Background(), p, strings.Repeat("x", 256), []byte{1}, nil)
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	require.Zero(t, sim.Stats().Received)
}

func TestFetchInvalidName(t *testing.T) {
	p, sim := newTestProgrammer()
	sim.SetCells(0, []byte{2, 0xff, 0xfe, 0, 0})
	_, err := Fetch(context.Background(), p, nil)
	var decErr *DecodingError
	require.ErrorAs(t, err, &decErr)
}
