// Package sh is an interactive harness driving a backbone on a simulated
// UART. Console output is printed as it is transmitted.
package sh

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"

	"github.com/robotalks/ttyio/pkg/backbone"
	"github.com/robotalks/ttyio/pkg/config"
	"github.com/robotalks/ttyio/pkg/hw"
	"github.com/robotalks/ttyio/pkg/logger"
	"github.com/robotalks/ttyio/pkg/rtc"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell  *ishell.Shell
	Port   *hw.SimPort
	System *backbone.System

	cancel func()
	done   chan error
}

const (
	shellKey = "$shell"
	prompt   = "sim > "
)

// ErrSimFault is the error injected by the fail command.
var ErrSimFault = errors.New("simulated transmit fault")

var (
	// flags

	evalOnly   bool
	outputJSON bool

	consoleColor = color.New(color.FgCyan)

	// commands
	commands = []*ishell.Cmd{
		&TypeCmd,
		&RawCmd,
		&LogCmd,
		&StallCmd,
		&ResumeCmd,
		&CompleteCmd,
		&FailCmd,
		&StatsCmd,
		&CensusCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell with a backbone on a simulated port.
func New(conf *config.Config) (*Shell, error) {
	port := hw.NewSimPort(true)
	sys, err := backbone.New(conf, port, rtc.NewSoftClock())
	if err != nil {
		return nil, err
	}
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Port:   port,
		System: sys,
		done:   make(chan error, 1),
	}
	port.Tap = s.printConsole
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s, nil
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

func (s *Shell) printConsole(data []byte) {
	if s.OutputJSON {
		return
	}
	consoleColor.Print(strings.Replace(string(data), "\r\n", "\n", -1))
}

// Start runs the backbone in background.
func (s *Shell) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() { s.done <- s.System.Run(ctx) }()
}

// Stop stops the backbone.
func (s *Shell) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	err := <-s.done
	s.cancel = nil
	s.System.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Print prints v as JSON in JSON mode, or using format otherwise.
func (s *Shell) Print(c *ishell.Context, v interface{}, format string, args ...interface{}) {
	if s.OutputJSON {
		out, err := jsoniter.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Printf(format, args...)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	s.Start()
	defer func() {
		if err := s.Stop(); err != nil {
			log.Println(err)
		}
	}()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
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
	// TypeCmd types a command line into the console.
	TypeCmd = ishell.Cmd{
		Name:    "type",
		Aliases: []string{"t"},
		Help:    "TEXT... types a line followed by CR",
		Func: func(c *ishell.Context) {
			line := strings.Join(c.Args, " ") + "\r"
			ShellFrom(c).Port.Inject([]byte(line)...)
		},
	}

	// RawCmd injects raw bytes, Go escapes allowed.
	RawCmd = ishell.Cmd{
		Name: "raw",
		Help: `TEXT injects bytes with escapes, e.g. raw "abc\x08\r"`,
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("exactly one argument expected"))
				return
			}
			data, err := strconv.Unquote(`"` + strings.Trim(c.Args[0], `"`) + `"`)
			if err != nil {
				c.Err(err)
				return
			}
			ShellFrom(c).Port.Inject([]byte(data)...)
		},
	}

	// LogCmd writes a log line.
	LogCmd = ishell.Cmd{
		Name: "log",
		Help: "LEVEL MESSAGE... writes a log line, LEVEL is info, warning or error",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("level and message expected"))
				return
			}
			level, err := logger.ParseLevel(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			s := ShellFrom(c)
			n := s.System.Logger.Log(level, "%s", strings.Join(c.Args[1:], " "))
			s.Print(c, n, "%d bytes logged\n", n)
		},
	}

	// StallCmd stops completing transmissions.
	StallCmd = ishell.Cmd{
		Name: "stall",
		Help: "stops completing transmissions",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Port.SetAutoComplete(false)
		},
	}

	// ResumeCmd resumes completing transmissions.
	ResumeCmd = ishell.Cmd{
		Name: "resume",
		Help: "completes transmissions automatically",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Port.SetAutoComplete(true)
		},
	}

	// CompleteCmd completes the pending transmission while stalled.
	CompleteCmd = ishell.Cmd{
		Name:    "complete",
		Aliases: []string{"c"},
		Help:    "completes the pending transmission",
		Func: func(c *ishell.Context) {
			if !ShellFrom(c).Port.Complete() {
				c.Println("nothing in flight")
			}
		},
	}

	// FailCmd fails the next transmissions.
	FailCmd = ishell.Cmd{
		Name: "fail",
		Help: "[N] fails the next N transmissions, default 1",
		Func: func(c *ishell.Context) {
			n := 1
			if len(c.Args) > 0 {
				var err error
				if n, err = strconv.Atoi(c.Args[0]); err != nil || n < 0 {
					c.Err(fmt.Errorf("invalid count %q", c.Args[0]))
					return
				}
			}
			ShellFrom(c).Port.FailNext(n, ErrSimFault)
		},
	}

	// StatsCmd prints I/O counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "prints I/O counters",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			st := s.System.IOStats()
			s.Print(c, st, "pool: %s\ntransmitter: %s\ntx: %+v\nrx: %+v\n",
				st.Pool, st.Transmitter, st.Transmit, st.Receive)
		},
	}

	// CensusCmd prints the pool census.
	CensusCmd = ishell.Cmd{
		Name: "census",
		Help: "prints buffer states",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			census := s.System.Pool.Census()
			s.Print(c, census, "%s (total %d)\n", census, census.Total())
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	s, err := New(config.MustNewConfig())
	if err != nil {
		log.Fatalln(err)
	}
	s.Run(flag.Args()...)
}
