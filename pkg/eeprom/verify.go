package eeprom

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/zeebo/blake3"
)

// Digest computes the BLAKE3 digest of an image.
func Digest(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// Mismatch is a cell which doesn't hold the expected value.
type Mismatch struct {
	Addr     uint16
	Expected byte
	Actual   byte
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%04x: expected %02x, got %02x", m.Addr, m.Expected, m.Actual)
}

// Compare lists cells which differ between expected and actual, with
// addresses relative to base. Missing actual bytes are not reported.
func Compare(base uint16, expected, actual []byte) []Mismatch {
	var mismatches []Mismatch
	for n := 0; n < len(expected) && n < len(actual); n++ {
		if expected[n] != actual[n] {
			mismatches = append(mismatches, Mismatch{
				Addr:     base + uint16(n),
				Expected: expected[n],
				Actual:   actual[n],
			})
		}
	}
	return mismatches
}

// Verify dumps len(data) cells from addr and checks they match data.
func (p *Programmer) Verify(ctx context.Context, addr uint16, data []byte, onProgress ProgressFunc) error {
	actual, err := p.Dump(ctx, addr, len(data), onProgress)
	if err != nil {
		return err
	}
	if Digest(actual) == Digest(data) {
		return nil
	}
	m := Compare(addr, data, actual)[0]
	return &VerifyError{Addr: m.Addr, Expected: m.Expected, Actual: m.Actual}
}

// SelfTestReport is the result of a self test.
type SelfTestReport struct {
	Size       int
	LoadTime   time.Duration
	DumpTime   time.Duration
	Mismatches []Mismatch
}

// OK indicates every cell read back as written.
func (r *SelfTestReport) OK() bool {
	return len(r.Mismatches) == 0
}

// SelfTest loads size random bytes at address 0 and dumps them back.
// rnd may be nil to use a time seeded source.
func (p *Programmer) SelfTest(ctx context.Context, size int, rnd *rand.Rand, onLoad, onDump ProgressFunc) (*SelfTestReport, error) {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	data := make([]byte, size)
	rnd.Read(data)

	report := &SelfTestReport{Size: size}
	start := time.Now()
	if err := p.Load(ctx, 0, data, onLoad); err != nil {
		return nil, err
	}
	report.LoadTime = time.Since(start)

	start = time.Now()
	actual, err := p.Dump(ctx, 0, size, onDump)
	if err != nil {
		return nil, err
	}
	report.DumpTime = time.Since(start)
	report.Mismatches = Compare(0, data, actual)
	return report, nil
}
