package cmds

import (
	"fmt"
	"runtime"
	"text/tabwriter"
	"time"

	fx "github.com/robotalks/ttyio/pkg/framework"
	"github.com/robotalks/ttyio/pkg/gatekeeper"
	"github.com/robotalks/ttyio/pkg/pool"
	"github.com/robotalks/ttyio/pkg/rx"
)

// TaskLister lists running tasks.
type TaskLister interface {
	Started() time.Time
	Tasks() []fx.TaskInfo
}

// IOStats is a snapshot of the serial I/O counters.
type IOStats struct {
	Pool        pool.Census      `json:"pool"`
	Transmitter string           `json:"transmitter"`
	Transmit    gatekeeper.Stats `json:"transmit"`
	Receive     rx.Stats         `json:"receive"`
}

// VersionCommand prints version.
func VersionCommand(version string) *Command {
	return &Command{
		Name: "version",
		Help: "Displays the firmware version",
		Func: func(c *Context) bool {
			c.Printf("\r\n%s (%s %s/%s)\r\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return false
		},
	}
}

// TaskCommands are task-stats and run-time-stats.
func TaskCommands(tasks TaskLister) []*Command {
	return []*Command{
		{
			Name: "task-stats",
			Help: "Displays a table showing the state of each task",
			Func: func(c *Context) bool {
				w := tabwriter.NewWriter(c.Out, 0, 8, 2, ' ', 0)
				fmt.Fprint(w, "\r\nTask\tState\tStarted\r\n")
				for _, t := range tasks.Tasks() {
					fmt.Fprintf(w, "%s\t%s\t%s\r\n", t.Name, t.State, t.Started.Format("15:04:05"))
				}
				w.Flush()
				return false
			},
		},
		{
			Name: "run-time-stats",
			Help: "Displays a table showing how long each task has been running",
			Func: func(c *Context) bool {
				now := time.Now()
				uptime := now.Sub(tasks.Started())
				w := tabwriter.NewWriter(c.Out, 0, 8, 2, ' ', 0)
				fmt.Fprint(w, "\r\nTask\tAbs Time\t% Time\r\n")
				for _, t := range tasks.Tasks() {
					rt := t.RunTime(now)
					pct := 0
					if uptime > 0 {
						pct = int(rt * 100 / uptime)
					}
					if pct > 0 {
						fmt.Fprintf(w, "%s\t%s\t%d%%\r\n", t.Name, rt.Truncate(time.Millisecond), pct)
					} else {
						fmt.Fprintf(w, "%s\t%s\t<1%%\r\n", t.Name, rt.Truncate(time.Millisecond))
					}
				}
				w.Flush()
				return false
			},
		},
	}
}

// IOStatsCommand prints buffer pool and serial counters.
func IOStatsCommand(stats func() IOStats) *Command {
	return &Command{
		Name: "io-stats",
		Help: "Displays buffer pool and serial channel counters",
		Func: func(c *Context) bool {
			s := stats()
			c.Printf("\r\nbuffers: %s\r\n", s.Pool)
			c.Printf("transmitter: %s sent=%d bytes=%d retries=%d errors=%d dropped=%d\r\n",
				s.Transmitter, s.Transmit.Sent, s.Transmit.Bytes, s.Transmit.Retries, s.Transmit.Errors, s.Transmit.Dropped)
			c.Printf("receiver: received=%d overruns=%d injected=%d\r\n",
				s.Receive.Received, s.Receive.Overruns, s.Receive.Injected)
			return false
		},
	}
}

// EchoCommands echo their parameters back one per output chunk.
func EchoCommands() []*Command {
	return []*Command{
		{
			Name:   "echo-3-parameters",
			Usage:  "<param1> <param2> <param3>",
			Help:   "Expects three parameters, echos each in turn",
			Params: 3,
			Func:   echoParams,
		},
		{
			Name:   "echo-parameters",
			Usage:  "<...>",
			Help:   "Take variable number of parameters, echos each in turn",
			Params: AnyParams,
			Func:   echoParams,
		},
	}
}

func echoParams(c *Context) bool {
	n := c.Step()
	if n == 0 {
		c.Printf("The parameters were:\r\n")
		return len(c.Args) > 0
	}
	c.Printf("%d: %s\r\n", n, c.Args[n-1])
	return n < len(c.Args)
}
