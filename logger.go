package particlelife

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/particlelife/backend/native"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for particlelife and its GPU backend.
// By default, particlelife produces no log output.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by particlelife:
//   - [slog.LevelDebug]: buffer (re)creation, node state transitions, dispatch sizes
//   - [slog.LevelInfo]: lifecycle events (device opened, pipelines ready, recreate)
//   - [slog.LevelWarn]: skipped dispatches, config reload failures
//   - [slog.LevelError]: pipeline compile failures
//
// Example:
//
//	particlelife.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	native.SetLogger(l)
}

// Logger returns the current logger. Internal packages receive it through
// their constructors.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// NopLogger returns a logger that discards everything. Constructors use it
// when handed a nil logger.
func NopLogger() *slog.Logger {
	return newNopLogger()
}
