// Package backbone assembles the serial I/O backbone: buffer pool, transmit
// gatekeeper, receive path, logger and command line on one UART.
package backbone

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/robotalks/ttyio/pkg/cli"
	"github.com/robotalks/ttyio/pkg/cli/cmds"
	"github.com/robotalks/ttyio/pkg/config"
	fx "github.com/robotalks/ttyio/pkg/framework"
	"github.com/robotalks/ttyio/pkg/gatekeeper"
	"github.com/robotalks/ttyio/pkg/hw"
	"github.com/robotalks/ttyio/pkg/logger"
	"github.com/robotalks/ttyio/pkg/pool"
	"github.com/robotalks/ttyio/pkg/rtc"
	"github.com/robotalks/ttyio/pkg/rx"
	"github.com/robotalks/ttyio/pkg/uplink"
)

// Version is reported by the version command.
var Version = "ttyio 0.1.0"

// System is one serial channel with everything riding on it.
type System struct {
	Config     *config.Config
	Port       hw.UART
	Clock      rtc.Clock
	Pool       *pool.Pool
	Gatekeeper *gatekeeper.Gatekeeper
	Receiver   *rx.Receiver
	Logger     *logger.Logger
	Commands   *cmds.Registry
	Session    *cli.Session
	Uplink     *uplink.Uplink

	started time.Time
	lock    sync.Mutex
	runner  *fx.Runner
	cancel  func()
	rxErr   error
}

// New builds a System on port. Nothing runs until Run.
func New(conf *config.Config, port hw.UART, clock rtc.Clock) (*System, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	p, err := pool.New(conf.Pool.Buffers, conf.Pool.BufferSize)
	if err != nil {
		return nil, err
	}
	s := &System{
		Config:  conf,
		Port:    port,
		Clock:   clock,
		Pool:    p,
		started: time.Now(),
	}

	s.Gatekeeper = gatekeeper.New(p, port)
	s.Gatekeeper.Retries = conf.Transmit.Retries
	s.Gatekeeper.Policy = conf.TxPolicy()
	s.Receiver = rx.New(port, conf.RxDepth)
	port.SetHandlers(hw.Handlers{
		TxComplete: s.Gatekeeper.TxComplete,
		RxComplete: s.Receiver.RxComplete,
		RxError:    s.rxError,
	})

	s.Logger = logger.New(p, clock)

	s.Commands = cmds.NewRegistry()
	s.Commands.MustRegister(cmds.ClockCommands(clock)...)
	s.Commands.MustRegister(
		cmds.VersionCommand(Version),
		cmds.IOStatsCommand(s.IOStats),
	)
	s.Commands.MustRegister(cmds.TaskCommands(s)...)
	s.Commands.MustRegister(cmds.EchoCommands()...)

	s.Session = cli.NewSession(p, s.Receiver, s.Commands, conf.CLI.MaxLine)
	s.Session.Echo = conf.CLI.Echo
	if conf.CLI.Banner != "" {
		s.Session.Banner = conf.CLI.Banner
	}
	return s, nil
}

// AttachUplink mirrors the log to u, and accepts console input from it if
// remote input is enabled.
func (s *System) AttachUplink(u *uplink.Uplink) {
	s.Uplink = u
	s.Logger.Tap = u.Tap
	if s.Config.Uplink.Remote {
		u.Injector = s.Receiver
	}
}

// Name implements framework.Named.
func (s *System) Name() string {
	return "backbone"
}

// Started implements cmds.TaskLister.
func (s *System) Started() time.Time {
	return s.started
}

// Tasks implements cmds.TaskLister.
func (s *System) Tasks() []fx.TaskInfo {
	s.lock.Lock()
	runner := s.runner
	s.lock.Unlock()
	if runner == nil {
		return nil
	}
	return runner.Tasks()
}

// IOStats collects the I/O counters.
func (s *System) IOStats() cmds.IOStats {
	return cmds.IOStats{
		Pool:        s.Pool.Census(),
		Transmitter: s.Gatekeeper.State().String(),
		Transmit:    s.Gatekeeper.Stats(),
		Receive:     s.Receiver.Stats(),
	}
}

// Run implements framework.Runnable. It returns when ctx is done or a task
// fails, e.g. the receiver stops or the gatekeeper halts.
func (s *System) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runner := fx.NewRunnerWith(ctx)
	s.lock.Lock()
	s.runner, s.cancel = runner, cancel
	s.lock.Unlock()

	runner.Go(
		fx.CancelOnExit(cancel, s.Gatekeeper),
		fx.CancelOnExit(cancel, s.Session),
	)
	if s.Uplink != nil {
		runner.Go(s.Uplink)
	}
	if err := s.Receiver.Start(); err != nil {
		glog.Errorf("start receiver: %v", err)
		cancel()
	}
	err := runner.Wait()
	s.lock.Lock()
	rxErr := s.rxErr
	s.lock.Unlock()
	if rxErr != nil {
		return (&fx.AggregatedError{}).Add(rxErr, err).Aggregate()
	}
	return err
}

// Close tears down the pool and the port.
func (s *System) Close() error {
	s.Pool.Close()
	return s.Port.Close()
}

func (s *System) rxError(err error) {
	s.lock.Lock()
	if errors.Cause(err) == io.EOF {
		glog.Info("console input closed")
	} else {
		glog.Warningf("receiver stopped: %v", err)
		s.rxErr = err
	}
	cancel := s.cancel
	s.lock.Unlock()
	if cancel != nil {
		cancel()
	}
}
