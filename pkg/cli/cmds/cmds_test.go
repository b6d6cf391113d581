package cmds

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ttyio/pkg/cli"
	fx "github.com/robotalks/ttyio/pkg/framework"
	"github.com/robotalks/ttyio/pkg/rtc"
)

func run(r *Registry, line string) []string {
	var chunks []string
	var cur cli.Cursor
	for more := true; more; cur.Step++ {
		var buf bytes.Buffer
		more = r.Process(line, &buf, &cur)
		chunks = append(chunks, buf.String())
	}
	return chunks
}

func newTestRegistry(clock rtc.Clock) *Registry {
	r := NewRegistry()
	r.MustRegister(ClockCommands(clock)...)
	r.MustRegister(EchoCommands()...)
	return r
}

func TestHelpListsOnePerChunk(t *testing.T) {
	r := newTestRegistry(rtc.NewSoftClock())
	chunks := run(r, "help")
	require.Len(t, chunks, len(r.Commands()))
	require.Equal(t, "\r\nhelp:\r\n Lists all the registered commands\r\n", chunks[0])
	require.Equal(t, "\r\nset-date <dd/mm/yy>:\r\n Sets the date\r\n", chunks[3])
}

func TestUnknownAndParamCount(t *testing.T) {
	r := newTestRegistry(rtc.NewSoftClock())
	require.Equal(t, []string{MsgNotRecognised}, run(r, "reboot"))
	require.Equal(t, []string{MsgNotRecognised}, run(r, ""))
	require.Equal(t, []string{MsgNotRecognised}, run(r, "   "))
	require.Equal(t, []string{MsgIncorrectParams}, run(r, "date now"))
	require.Equal(t, []string{MsgIncorrectParams}, run(r, "set-time"))
	require.Equal(t, []string{MsgIncorrectParams}, run(r, "echo-3-parameters a b"))
}

func TestRegisterErrors(t *testing.T) {
	r := NewRegistry()
	noop := func(*Context) bool { return false }
	require.Error(t, r.Register(&Command{Name: "help", Func: noop}))
	require.Error(t, r.Register(&Command{Name: "two words", Func: noop}))
	require.Error(t, r.Register(&Command{Name: "nofunc"}))
	require.NoError(t, r.Register(&Command{Name: "x", Func: noop}))
	require.NotNil(t, r.Lookup("x"))
	require.Nil(t, r.Lookup("y"))
}

func TestDateTime(t *testing.T) {
	clock := rtc.NewSoftClock()
	r := newTestRegistry(clock)
	require.Equal(t, []string{"\r\n01/01/22\r\n"}, run(r, "date"))

	require.Equal(t, []string{"\r\nDate set to 05/03/24\r\n"}, run(r, "set-date 05/03/24"))
	require.Equal(t, []string{"\r\n05/03/24\r\n"}, run(r, "date"))

	require.Equal(t, []string{"\r\nTime set to 13:45:09\r\n"}, run(r, "set-time 13:45:09"))
	out := run(r, "time")
	require.Len(t, out, 1)
	require.True(t, strings.HasPrefix(out[0], "\r\n13:45:"), out[0])
}

func TestInvalidParamLeavesClock(t *testing.T) {
	clock := rtc.NewSoftClock()
	r := newTestRegistry(clock)
	for _, line := range []string{
		"set-time 1:45:09",
		"set-time 13-45-09",
		"set-time 25:00:00",
		"set-date 5/3/24",
		"set-date 31/02/24",
		"set-date 05/03/2024",
	} {
		require.Equal(t, []string{MsgInvalidParam}, run(r, line), line)
	}
	require.Equal(t, rtc.DefaultDate, clock.Date())
}

func TestEchoParameters(t *testing.T) {
	r := newTestRegistry(rtc.NewSoftClock())
	require.Equal(t, []string{
		"The parameters were:\r\n",
		"1: a\r\n",
		"2: bb\r\n",
		"3: ccc\r\n",
	}, run(r, "echo-3-parameters a bb ccc"))
	require.Equal(t, []string{"The parameters were:\r\n"}, run(r, "echo-parameters"))
	require.Equal(t, []string{
		"The parameters were:\r\n",
		"1: x\r\n",
	}, run(r, "echo-parameters x"))
}

type fakeTasks struct {
	started time.Time
	tasks   []fx.TaskInfo
}

func (f *fakeTasks) Started() time.Time { return f.started }
func (f *fakeTasks) Tasks() []fx.TaskInfo { return f.tasks }

func TestTaskCommands(t *testing.T) {
	now := time.Now()
	tasks := &fakeTasks{
		started: now.Add(-10 * time.Second),
		tasks: []fx.TaskInfo{
			{Name: "gatekeeper", State: fx.TaskRunning, Started: now.Add(-10 * time.Second)},
			{Name: "uplink", State: fx.TaskFailed, Started: now.Add(-10 * time.Second),
				Stopped: now.Add(-10*time.Second + time.Millisecond), Err: errors.New("x")},
		},
	}
	r := NewRegistry().MustRegister(TaskCommands(tasks)...)
	out := run(r, "task-stats")
	require.Len(t, out, 1)
	require.Contains(t, out[0], "gatekeeper")
	require.Contains(t, out[0], "running")
	require.Contains(t, out[0], "failed")

	out = run(r, "run-time-stats")
	require.Len(t, out, 1)
	require.Regexp(t, `gatekeeper\s+10(\.\d+)?s\s+100%`, out[0])
	require.Regexp(t, `uplink\s+1ms\s+<1%`, out[0])
}

func TestVersionAndIOStats(t *testing.T) {
	r := NewRegistry().MustRegister(VersionCommand("ttyio 1.0"))
	r.MustRegister(IOStatsCommand(func() IOStats {
		var s IOStats
		s.Pool.Available = 8
		s.Transmitter = "idle"
		s.Transmit.Dropped = 2
		s.Receive.Overruns = 3
		return s
	}))
	out := run(r, "version")
	require.True(t, strings.HasPrefix(out[0], "\r\nttyio 1.0 (go"))
	out = run(r, "io-stats")
	require.Contains(t, out[0], "available=8")
	require.Contains(t, out[0], "dropped=2")
	require.Contains(t, out[0], "overruns=3")
}
