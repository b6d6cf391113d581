package sh

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ttyio/pkg/config"
)

func newTestShell(t *testing.T) *Shell {
	conf := *config.Default()
	conf.RxDepth = 64
	s, err := New(&conf)
	require.NoError(t, err)
	s.OutputJSON = true
	return s
}

func TestShellDrivesBackbone(t *testing.T) {
	s := newTestShell(t)
	s.Start()
	s.Port.Inject([]byte("version\r")...)
	require.Eventually(t, func() bool {
		return strings.Contains(s.Port.Output(), "ttyio")
	}, time.Second, time.Millisecond)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestShellStallAndFail(t *testing.T) {
	s := newTestShell(t)
	s.Port.FailNext(1, ErrSimFault)
	s.Start()
	defer s.Stop()
	require.Eventually(t, func() bool {
		return s.System.Gatekeeper.Stats().Errors == 1
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return s.System.Pool.Census().Available == s.System.Pool.Count()
	}, time.Second, time.Millisecond)
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range commands {
		names[cmd.Name] = true
	}
	for _, name := range []string{"type", "raw", "log", "stall", "resume", "complete", "fail", "stats", "census"} {
		require.True(t, names[name], name)
	}
}
