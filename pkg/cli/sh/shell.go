package sh

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/abiosoft/ishell"
	humanize "github.com/dustin/go-humanize"
	"github.com/golang/glog"

	"github.com/robotalks/eeprom.go/pkg/eeprom"
	"github.com/robotalks/eeprom.go/pkg/eeprom/env"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool

	Shell  *ishell.Shell
	Config *env.Config
	Conn   *Conn

	failed bool
}

// Conn is an open programmer.
type Conn struct {
	Port       string
	Programmer *eeprom.Programmer
}

const (
	shellKey       = "$shell"
	closedPrompt   = "[closed] > "
	progressPeriod = 200 * time.Millisecond
)

var (
	// flags

	evalOnly bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		Shell:       ishell.New(),
		Config:      conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requiring a programmer. The configured
// port is opened on demand.
func MustBeOpen(fn func(c *ishell.Context, p *eeprom.Programmer)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := ShellFrom(c)
		if s.Conn == nil {
			if err := s.Open(s.Config.Port); err != nil {
				s.Err(c, err)
				return
			}
		}
		fn(c, s.Conn.Programmer)
	}
}

// Open opens the programmer at port, replacing the current one.
func (s *Shell) Open(port string) error {
	conf := *s.Config
	conf.Port = port
	if s.Interactive {
		s.Shell.Printf("Opening %s ...\n", port)
	}
	p, err := conf.OpenProgrammer()
	if err != nil {
		return fmt.Errorf("open %s: %w", port, err)
	}
	s.Close()
	s.Conn = &Conn{Port: port, Programmer: p}
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", port))
	return nil
}

// Close closes the current programmer.
func (s *Shell) Close() {
	if s.Conn != nil {
		if err := s.Conn.Programmer.Transport.Close(); err != nil {
			glog.Warningf("close %s: %v", s.Conn.Port, err)
		}
		s.Conn = nil
		s.Shell.SetPrompt(closedPrompt)
	}
}

// Do runs an operation which is canceled by Ctrl-C. Canceling closes
// the transport so the programmer is closed as well.
func (s *Shell) Do(c *ishell.Context, fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := fn(ctx)
	if err != nil {
		s.Err(c, err)
		if ctx.Err() != nil || eeprom.IsTransportClosed(err) {
			s.Close()
		}
	}
	return err
}

// Err reports a failed command. The process exits with an error status
// at the end of evaluation mode.
func (s *Shell) Err(c *ishell.Context, err error) {
	s.failed = true
	c.Err(err)
}

// Progress returns a ProgressFunc printing the progress of an operation
// of total bytes.
func (s *Shell) Progress(c *ishell.Context, verb string, total int) eeprom.ProgressFunc {
	if !s.Interactive || total == 0 {
		return nil
	}
	var done int
	var last time.Time
	return func(n int) {
		done += n
		if now := time.Now(); done == total || now.Sub(last) >= progressPeriod {
			last = now
			c.Printf("\r%s %s / %s", verb, humanize.IBytes(uint64(done)), humanize.IBytes(uint64(total)))
			if done == total {
				c.Println()
			}
		}
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer s.Close()
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		if s.failed {
			s.Close()
			os.Exit(1)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// OpenCmd opens a programmer.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[PORT]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			port := s.Config.Port
			if len(c.Args) > 0 {
				port = c.Args[0]
			}
			if err := s.Open(port); err != nil {
				s.Err(c, err)
			}
		},
	}

	// CloseCmd closes current programmer.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).Run(flag.Args()...)
}
