// Package memory provides the shell commands reading and writing the
// EEPROM.
package memory

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	humanize "github.com/dustin/go-humanize"

	"github.com/robotalks/eeprom.go/pkg/cli/sh"
	"github.com/robotalks/eeprom.go/pkg/eeprom"
	"github.com/robotalks/eeprom.go/pkg/eeprom/file"
	"github.com/robotalks/eeprom.go/pkg/eeprom/protocol"
)

// DefaultSelfTestSize is the size of the reference 32K EEPROM.
const DefaultSelfTestSize = 0x8000

var (
	// ReadCmd reads a byte.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "ADDR",
		Func: sh.MustBeOpen(func(c *ishell.Context, p *eeprom.Programmer) {
			s := sh.ShellFrom(c)
			addr, err := argAddr(c, 0)
			if err != nil {
				s.Err(c, err)
				return
			}
			s.Do(c, func(ctx context.Context) error {
				v, err := p.ReadByte(ctx, addr)
				if err == nil {
					c.Printf("%04x: %02x\n", addr, v)
				}
				return err
			})
		}),
	}

	// WriteCmd writes a byte.
	WriteCmd = ishell.Cmd{
		Name:    "write",
		Aliases: []string{"w"},
		Help:    "ADDR VALUE",
		Func: sh.MustBeOpen(func(c *ishell.Context, p *eeprom.Programmer) {
			s := sh.ShellFrom(c)
			addr, err := argAddr(c, 0)
			if err != nil {
				s.Err(c, err)
				return
			}
			if len(c.Args) < 2 {
				s.Err(c, fmt.Errorf("VALUE expected"))
				return
			}
			v, err := ParseByte(c.Args[1])
			if err != nil {
				s.Err(c, err)
				return
			}
			s.Do(c, func(ctx context.Context) error {
				return p.WriteByte(ctx, addr, v)
			})
		}),
	}

	// EraseCmd erases the chip.
	EraseCmd = ishell.Cmd{
		Name: "erase",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context, p *eeprom.Programmer) {
			s := sh.ShellFrom(c)
			if s.Interactive {
				c.Print("Erase the whole chip? [y/N] ")
				if answer := strings.TrimSpace(c.ReadLine()); answer != "y" && answer != "Y" {
					return
				}
			}
			s.Do(c, func(ctx context.Context) error {
				if err := p.Erase(ctx); err != nil {
					return err
				}
				c.Println("Erased")
				return nil
			})
		}),
	}

	// LoadCmd writes a file to memory.
	LoadCmd = ishell.Cmd{
		Name:    "load",
		Aliases: []string{"l"},
		Help:    "FILE [ADDR]",
		Func: sh.MustBeOpen(func(c *ishell.Context, p *eeprom.Programmer) {
			s := sh.ShellFrom(c)
			data, addr, err := fileAndAddr(c)
			if err != nil {
				s.Err(c, err)
				return
			}
			s.Do(c, func(ctx context.Context) error {
				start := time.Now()
				if err := p.Load(ctx, addr, data, s.Progress(c, "Loaded", len(data))); err != nil {
					return err
				}
				c.Printf("Loaded %s at %04x in %s\n", humanize.IBytes(uint64(len(data))), addr, time.Since(start).Round(time.Millisecond))
				return nil
			})
		}),
	}

	// DumpCmd reads memory into a file or prints it.
	DumpCmd = ishell.Cmd{
		Name:    "dump",
		Aliases: []string{"d"},
		Help:    "ADDR COUNT [FILE]",
		Func: sh.MustBeOpen(func(c *ishell.Context, p *eeprom.Programmer) {
			s := sh.ShellFrom(c)
			addr, err := argAddr(c, 0)
			if err != nil {
				s.Err(c, err)
				return
			}
			if len(c.Args) < 2 {
				s.Err(c, fmt.Errorf("COUNT expected"))
				return
			}
			count, err := ParseCount(c.Args[1])
			if err != nil {
				s.Err(c, err)
				return
			}
			s.Do(c, func(ctx context.Context) error {
				data, err := p.Dump(ctx, addr, count, s.Progress(c, "Dumped", count))
				if err != nil {
					return err
				}
				if len(c.Args) > 2 {
					return os.WriteFile(c.Args[2], data, 0644)
				}
				c.Print(FormatHex(addr, data))
				return nil
			})
		}),
	}

	// StoreCmd stores a file as the named record.
	StoreCmd = ishell.Cmd{
		Name: "store",
		Help: "FILE",
		Func: sh.MustBeOpen(func(c *ishell.Context, p *eeprom.Programmer) {
			s := sh.ShellFrom(c)
			if len(c.Args) < 1 {
				s.Err(c, fmt.Errorf("FILE expected"))
				return
			}
			content, err := os.ReadFile(c.Args[0])
			if err != nil {
				s.Err(c, err)
				return
			}
			name := filepath.Base(c.Args[0])
			s.Do(c, func(ctx context.Context) error {
				total := file.Record{Name: name, Content: content}.Size()
				if err := file.Store(ctx, p, name, content, s.Progress(c, "Stored", total)); err != nil {
					return err
				}
				c.Printf("Stored %s (%s)\n", name, humanize.IBytes(uint64(len(content))))
				return nil
			})
		}),
	}

	// FetchCmd fetches the stored record into a directory.
	FetchCmd = ishell.Cmd{
		Name: "fetch",
		Help: "[DIR]",
		Func: sh.MustBeOpen(func(c *ishell.Context, p *eeprom.Programmer) {
			s := sh.ShellFrom(c)
			dir := "."
			if len(c.Args) > 0 {
				dir = c.Args[0]
			}
			s.Do(c, func(ctx context.Context) error {
				rec, err := file.Fetch(ctx, p, nil)
				if err != nil {
					return err
				}
				name, err := LocalName(rec.Name)
				if err != nil {
					return err
				}
				if err := os.WriteFile(filepath.Join(dir, name), rec.Content, 0644); err != nil {
					return err
				}
				c.Printf("Fetched %s (%s)\n", name, humanize.IBytes(uint64(len(rec.Content))))
				return nil
			})
		}),
	}

	// VerifyCmd compares memory with a file.
	VerifyCmd = ishell.Cmd{
		Name: "verify",
		Help: "FILE [ADDR]",
		Func: sh.MustBeOpen(func(c *ishell.Context, p *eeprom.Programmer) {
			s := sh.ShellFrom(c)
			data, addr, err := fileAndAddr(c)
			if err != nil {
				s.Err(c, err)
				return
			}
			s.Do(c, func(ctx context.Context) error {
				if err := p.Verify(ctx, addr, data, s.Progress(c, "Verified", len(data))); err != nil {
					return err
				}
				c.Printf("OK %x\n", eeprom.Digest(data))
				return nil
			})
		}),
	}

	// SelfTestCmd writes and reads back random data.
	SelfTestCmd = ishell.Cmd{
		Name: "selftest",
		Help: "[SIZE]",
		Func: sh.MustBeOpen(func(c *ishell.Context, p *eeprom.Programmer) {
			s := sh.ShellFrom(c)
			size := DefaultSelfTestSize
			if len(c.Args) > 0 {
				var err error
				if size, err = ParseCount(c.Args[0]); err != nil {
					s.Err(c, err)
					return
				}
			}
			s.Do(c, func(ctx context.Context) error {
				report, err := p.SelfTest(ctx, size, nil, s.Progress(c, "Loaded", size), s.Progress(c, "Dumped", size))
				if err != nil {
					return err
				}
				c.Printf("Load %s, dump %s\n", report.LoadTime.Round(time.Millisecond), report.DumpTime.Round(time.Millisecond))
				if report.OK() {
					c.Println("PASS")
					return nil
				}
				for _, m := range report.Mismatches {
					c.Println(m)
				}
				return fmt.Errorf("%d mismatches", len(report.Mismatches))
			})
		}),
	}
)

// ParseAddr parses an address, in decimal or 0x prefixed hex.
func ParseAddr(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(v), nil
}

// ParseByte parses a byte value.
func ParseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q", s)
	}
	return byte(v), nil
}

// ParseCount parses a byte count, at most protocol.MaxLength.
func ParseCount(s string) (int, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	if v > protocol.MaxLength {
		return 0, protocol.ErrLengthOverflow
	}
	return int(v), nil
}

// LocalName returns the name of a fetched file safe to create in a
// directory.
func LocalName(name string) (string, error) {
	base := filepath.Base(filepath.FromSlash(name))
	switch base {
	case "", ".", "..", string(filepath.Separator):
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return base, nil
}

// FormatHex formats data as hex dump lines of 16 bytes prefixed by the
// address of the first byte.
func FormatHex(addr uint16, data []byte) string {
	var sb strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		line := data[off:end]
		fmt.Fprintf(&sb, "%04x  %-47s  |", addr+uint16(off), spaced(hex.EncodeToString(line)))
		for _, b := range line {
			if b < 0x20 || b > 0x7e {
				b = '.'
			}
			sb.WriteByte(b)
		}
		sb.WriteString("|\n")
	}
	return sb.String()
}

func spaced(h string) string {
	parts := make([]string, 0, len(h)/2)
	for n := 0; n+1 < len(h); n += 2 {
		parts = append(parts, h[n:n+2])
	}
	return strings.Join(parts, " ")
}

func argAddr(c *ishell.Context, index int) (uint16, error) {
	if len(c.Args) <= index {
		return 0, fmt.Errorf("ADDR expected")
	}
	return ParseAddr(c.Args[index])
}

func fileAndAddr(c *ishell.Context) ([]byte, uint16, error) {
	if len(c.Args) < 1 {
		return nil, 0, fmt.Errorf("FILE expected")
	}
	data, err := os.ReadFile(c.Args[0])
	if err != nil {
		return nil, 0, err
	}
	var addr uint16
	if len(c.Args) > 1 {
		if addr, err = ParseAddr(c.Args[1]); err != nil {
			return nil, 0, err
		}
	}
	return data, addr, nil
}

func init() {
	sh.AddCmds(
		&ReadCmd,
		&WriteCmd,
		&EraseCmd,
		&LoadCmd,
		&DumpCmd,
		&StoreCmd,
		&FetchCmd,
		&VerifyCmd,
		&SelfTestCmd,
	)
}
