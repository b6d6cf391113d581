// Package cmds is the command interpreter behind the CLI session.
//
// Commands are registered by name with a fixed parameter count (or -1 for
// any). A command may produce its output over several calls using the
// cli.Cursor; the session keeps calling while the command reports more.
package cmds

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/robotalks/ttyio/pkg/cli"
)

// Messages written by the interpreter itself.
const (
	MsgNotRecognised   = "Command not recognised.  Enter 'help' to view a list of available commands.\r\n"
	MsgIncorrectParams = "Incorrect command parameter(s).  Enter \"help\" to view a list of available commands.\r\n"
	MsgInvalidParam    = "Invalid parameter.\r\n"
)

// AnyParams marks a command accepting any number of parameters.
const AnyParams = -1

// Context is passed to a command for one Process call.
type Context struct {
	Line   string
	Args   []string
	Out    io.Writer
	Cursor *cli.Cursor
}

// Printf writes formatted output.
func (c *Context) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.Out, format, args...)
}

// Step is the index of the current call for this line.
func (c *Context) Step() int {
	return c.Cursor.Step
}

// Func executes a command. It returns true if more output follows.
type Func func(*Context) bool

// Command is a registered command.
type Command struct {
	Name string
	// Usage shows parameters, e.g. "<dd/mm/yy>".
	Usage string
	Help  string
	// Params is the exact number of parameters, or AnyParams.
	Params int
	Func   Func
}

// HelpText is the text listed by help.
func (c *Command) HelpText() string {
	name := c.Name
	if c.Usage != "" {
		name += " " + c.Usage
	}
	return "\r\n" + name + ":\r\n " + c.Help + "\r\n"
}

// Registry holds commands and implements cli.Interpreter.
type Registry struct {
	lock     sync.RWMutex
	commands []*Command
	index    map[string]*Command
}

// NewRegistry creates a Registry with the help command.
func NewRegistry() *Registry {
	r := &Registry{index: make(map[string]*Command)}
	r.MustRegister(&Command{
		Name:   "help",
		Help:   "Lists all the registered commands",
		Params: 0,
		Func:   r.help,
	})
	return r
}

// Register adds commands. Names must be unique and contain no spaces.
func (r *Registry) Register(cmds ...*Command) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, cmd := range cmds {
		if cmd.Name == "" || strings.ContainsAny(cmd.Name, " \t") {
			return fmt.Errorf("invalid command name %q", cmd.Name)
		}
		if cmd.Func == nil {
			return fmt.Errorf("command %q has no func", cmd.Name)
		}
		if _, exist := r.index[cmd.Name]; exist {
			return fmt.Errorf("command %q already registered", cmd.Name)
		}
		r.index[cmd.Name] = cmd
		r.commands = append(r.commands, cmd)
	}
	return nil
}

// MustRegister registers commands and panics on error.
func (r *Registry) MustRegister(cmds ...*Command) *Registry {
	if err := r.Register(cmds...); err != nil {
		panic(err)
	}
	return r
}

// Commands lists the registered commands in order.
func (r *Registry) Commands() []*Command {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]*Command(nil), r.commands...)
}

// Lookup finds a command by name.
func (r *Registry) Lookup(name string) *Command {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.index[name]
}

// Process implements cli.Interpreter.
func (r *Registry) Process(line string, w io.Writer, cur *cli.Cursor) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		io.WriteString(w, MsgNotRecognised)
		return false
	}
	cmd := r.Lookup(fields[0])
	if cmd == nil {
		io.WriteString(w, MsgNotRecognised)
		return false
	}
	args := fields[1:]
	if cmd.Params != AnyParams && len(args) != cmd.Params {
		io.WriteString(w, MsgIncorrectParams)
		return false
	}
	return cmd.Func(&Context{Line: line, Args: args, Out: w, Cursor: cur})
}

func (r *Registry) help(c *Context) bool {
	cmds := r.Commands()
	n := c.Step()
	if n >= len(cmds) {
		return false
	}
	io.WriteString(c.Out, cmds[n].HelpText())
	return n+1 < len(cmds)
}
