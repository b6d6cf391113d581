// Package logger formats timestamped device log lines into pool buffers and
// queues them for transmission.
//
// A line looks like
//
//	[13:45:09] WARNING: temperature high
//
// and is truncated at the buffer capacity.
package logger

import (
	"context"
	"fmt"

	"github.com/robotalks/ttyio/pkg/pool"
	"github.com/robotalks/ttyio/pkg/rtc"
)

// Level is the log severity.
type Level int

// Levels.
const (
	Info Level = iota
	Warning
	Error
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL%d", int(l))
}

// ParseLevel parses a level name, case-sensitive as printed.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "INFO", "info":
		return Info, nil
	case "WARNING", "warning", "warn":
		return Warning, nil
	case "ERROR", "error":
		return Error, nil
	}
	return Info, fmt.Errorf("unknown log level %q", s)
}

// Record describes a submitted log line.
type Record struct {
	Level   Level
	Time    rtc.TimeOfDay
	Message string
	// Text is the exact bytes queued for transmission.
	Text string
}

// Tap observes submitted records. It runs on the logging goroutine and must
// not block.
type Tap func(Record)

// Logger writes log lines through the buffer pool.
type Logger struct {
	Pool  *pool.Pool
	Clock rtc.TimeSource
	Tap   Tap
}

// New creates a Logger.
func New(p *pool.Pool, clock rtc.TimeSource) *Logger {
	return &Logger{Pool: p, Clock: clock}
}

// Log formats and queues a line, blocking while no buffer is available.
// It returns the number of bytes queued, 0 if the pool is closed.
func (l *Logger) Log(level Level, format string, args ...interface{}) int {
	b, err := l.Pool.Acquire(context.Background())
	if err != nil {
		return 0
	}
	now := l.Clock.TimeOfDay()
	fmt.Fprintf(b, "[%02d:%02d:%02d] %s: ", now.Hour, now.Minute, now.Second, level)
	prefix := b.Len()
	fmt.Fprintf(b, format, args...)
	var rec Record
	if l.Tap != nil {
		rec = Record{
			Level:   level,
			Time:    now,
			Message: string(b.Bytes()[prefix:]),
			Text:    string(b.Bytes()),
		}
	}
	n := b.Len()
	if err = l.Pool.Submit(b); err != nil {
		return 0
	}
	if l.Tap != nil {
		l.Tap(rec)
	}
	return n
}

// Infof logs at Info level.
func (l *Logger) Infof(format string, args ...interface{}) int {
	return l.Log(Info, format, args...)
}

// Warningf logs at Warning level.
func (l *Logger) Warningf(format string, args ...interface{}) int {
	return l.Log(Warning, format, args...)
}

// Errorf logs at Error level.
func (l *Logger) Errorf(format string, args ...interface{}) int {
	return l.Log(Error, format, args...)
}
