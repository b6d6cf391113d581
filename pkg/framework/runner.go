package framework

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"
)

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// TaskState is the state of a task spawned by Runner.
type TaskState int

// Task states.
const (
	TaskRunning TaskState = iota
	TaskStopped
	TaskFailed
)

// String implements fmt.Stringer.
func (s TaskState) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskStopped:
		return "stopped"
	}
	return "failed"
}

// TaskInfo describes a task spawned by Runner.
type TaskInfo struct {
	Name    string
	State   TaskState
	Started time.Time
	Stopped time.Time
	Err     error
}

// RunTime is how long the task has been running.
func (t TaskInfo) RunTime(now time.Time) time.Duration {
	if t.State != TaskRunning {
		return t.Stopped.Sub(t.Started)
	}
	return now.Sub(t.Started)
}

type cancelOnExit struct {
	Runnable
	cancel func()
}

func (r *cancelOnExit) Run(ctx context.Context) error {
	defer r.cancel()
	return r.Runnable.Run(ctx)
}

func (r *cancelOnExit) Name() string {
	if named, ok := r.Runnable.(Named); ok {
		return named.Name()
	}
	return ""
}

// CancelOnExit wraps a Runnable so cancel is called when it returns.
// Use it for tasks that others can't live without.
func CancelOnExit(cancel func(), runnable Runnable) Runnable {
	return &cancelOnExit{Runnable: runnable, cancel: cancel}
}

// Runner runs multiple Runnables and collect errors.
type Runner struct {
	Context context.Context
	Runners []Runnable

	started   time.Time
	tasksLock sync.RWMutex
	tasks     []*TaskInfo

	errCh  chan error
	exitCh chan struct{}
}

// NewRunner creates a runner with a default background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner with a specified context.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{
		Context: ctx,
		started: time.Now(),
		errCh:   make(chan error, 1),
		exitCh:  make(chan struct{}),
	}
}

// Started returns the time the runner was created.
func (r *Runner) Started() time.Time {
	return r.started
}

// Tasks returns a snapshot of all spawned tasks.
func (r *Runner) Tasks() []TaskInfo {
	r.tasksLock.RLock()
	defer r.tasksLock.RUnlock()
	tasks := make([]TaskInfo, len(r.tasks))
	for n, t := range r.tasks {
		tasks[n] = *t
	}
	return tasks
}

// HandleSignals handles CtrlC and SIGTERM from the system.
func (r *Runner) HandleSignals() *Runner {
	ctx, cancel := context.WithCancel(r.Context)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	r.Context = ctx
	go func() {
		<-sigCh
		glog.Info("stop requested")
		cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		close(r.exitCh)
	}()
	return r
}

// Go spawns a Runnable with default context.
func (r *Runner) Go(runners ...Runnable) *Runner {
	return r.GoWith(r.Context, runners...)
}

// GoWith spawns a Runnable with a specified context.
func (r *Runner) GoWith(ctx context.Context, runners ...Runnable) *Runner {
	for _, runner := range runners {
		var name string
		if named, ok := runner.(Named); ok {
			name = named.Name()
		}
		if name == "" {
			name = strconv.Itoa(len(r.Runners))
		}
		r.Runners = append(r.Runners, runner)
		task := &TaskInfo{Name: name, State: TaskRunning, Started: time.Now()}
		r.tasksLock.Lock()
		r.tasks = append(r.tasks, task)
		r.tasksLock.Unlock()
		glog.V(4).Infof("start Runner[%s]", name)
		go func(runner Runnable, task *TaskInfo) {
			glog.V(4).Infof("Runner[%s] started", task.Name)
			err := runner.Run(ctx)
			r.tasksLock.Lock()
			task.Stopped, task.Err = time.Now(), err
			if err != nil && !errors.Is(err, context.Canceled) {
				task.State = TaskFailed
			} else {
				task.State = TaskStopped
			}
			r.tasksLock.Unlock()
			glog.V(4).Infof("Runner[%s] stopped: %v", task.Name, err)
			r.errCh <- err
		}(runner, task)
	}
	return r
}

// Wait waits until all Runnables stops and aggregate errors.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for range r.Runners {
		select {
		case <-r.exitCh:
			return errors.New("forced exit")
		case err := <-r.errCh:
			if !errors.Is(err, context.Canceled) {
				errs.Add(err)
			}
		}
	}
	return errs.Aggregate()
}

// RunWithContextCancel runs a func with doesn't accept a context.
// cancel is called only when the context is canceled.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		if onCancel != nil {
			onCancel()
		}
		<-errCh
		return context.Canceled
	case err := <-errCh:
		return err
	}
}

// RunWithContext is simplified form with no cancel callback.
func RunWithContext(ctx context.Context, fn func() error) error {
	return RunWithContextCancel(ctx, nil, fn)
}

// RunWithContextCloser is a convinient wrapper for RunWithContextCancel and
// ensures closer.Close is either called on cancel or exit of fn.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var closed bool
	err := RunWithContextCancel(ctx, func() {
		closer.Close()
		closed = true
	}, fn)
	if !closed {
		closer.Close()
	}
	return err
}
