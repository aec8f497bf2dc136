// Package logging defines the small structured-logging seam the rest of
// this module depends on, so that none of the protocol packages import
// a concrete logging library directly.
//
// It is adapted from awmorgan-OpenCSD's common.Logger (a Severity enum
// plus a minimal interface with a no-op default), rebound to
// github.com/charmbracelet/log instead of the standard library's log
// package.
package logging

import (
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Logger is the minimal structured-logging surface the decoder and
// orchestrator packages use. A nil Logger is never passed
// around internally; callers that have none should use NoOp().
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// charmLogger adapts *charmlog.Logger to Logger.
type charmLogger struct {
	l *charmlog.Logger
}

// New builds a Logger writing to w at the given level, using
// charmbracelet/log's key-value structured format.
func New(w io.Writer, level charmlog.Level) Logger {
	l := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           level,
		ReportTimestamp: true,
	})
	return &charmLogger{l: l}
}

// NewDefault builds a Logger writing to stderr at info level.
func NewDefault() Logger {
	return New(os.Stderr, charmlog.InfoLevel)
}

func (c *charmLogger) Debug(msg string, kv ...any) { c.l.Debug(msg, kv...) }
func (c *charmLogger) Info(msg string, kv ...any)  { c.l.Info(msg, kv...) }
func (c *charmLogger) Warn(msg string, kv ...any)  { c.l.Warn(msg, kv...) }
func (c *charmLogger) Error(msg string, kv ...any) { c.l.Error(msg, kv...) }

// noOpLogger discards everything. Used as the default when a component
// is built without an explicit Logger, matching the teacher's
// NoOpLogger.
type noOpLogger struct{}

func (noOpLogger) Debug(string, ...any) {}
func (noOpLogger) Info(string, ...any)  {}
func (noOpLogger) Warn(string, ...any)  {}
func (noOpLogger) Error(string, ...any) {}

var noOp Logger = noOpLogger{}

// NoOp returns a Logger that discards everything it is given.
func NoOp() Logger { return noOp }
