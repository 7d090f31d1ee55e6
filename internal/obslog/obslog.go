// Package obslog provides the structured logger every ambient component
// (coordinator, cmd/cachectl) takes as a constructor dependency.
//
// There is no package-level logger: every caller that wants logging passes
// one in explicitly, and [Nop] is always a valid substitute in tests.
package obslog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a [zerolog.Logger] with the small set of levels this
// codebase uses. Constructed once per process (or per test) and threaded
// through explicitly; never accessed as a global.
type Logger struct {
	zl zerolog.Logger
}

// New returns a Logger writing human-readable output to w, at the given
// minimum level ("debug", "info", "error", ... — see [zerolog.ParseLevel]).
// An unrecognized level falls back to info.
func New(w io.Writer, level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zl := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(lvl).
		With().Timestamp().Logger()

	return &Logger{zl: zl}
}

// NewJSON returns a Logger writing structured JSON lines to w, suitable
// for production log aggregation.
func NewJSON(w io.Writer, level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zl := zerolog.New(w).Level(lvl).With().Timestamp().Logger()

	return &Logger{zl: zl}
}

// Nop returns a Logger that discards everything. Used by components and
// tests that don't care about log output but still need a non-nil Logger.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child Logger with the given key/value fields attached to
// every subsequent entry.
func (l *Logger) With(fields map[string]any) *Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}

	return &Logger{zl: ctx.Logger()}
}

// Debug logs msg at debug level with optional fields.
func (l *Logger) Debug(msg string, fields map[string]any) { l.log(l.zl.Debug(), msg, fields) }

// Info logs msg at info level with optional fields.
func (l *Logger) Info(msg string, fields map[string]any) { l.log(l.zl.Info(), msg, fields) }

// Error logs msg at error level with optional fields. err, if non-nil, is
// attached under the "error" field.
func (l *Logger) Error(msg string, err error, fields map[string]any) {
	ev := l.zl.Error()
	if err != nil {
		ev = ev.Err(err)
	}

	l.log(ev, msg, fields)
}

func (l *Logger) log(ev *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}

	ev.Msg(msg)
}

// Default returns a Logger writing console-formatted output to stderr at
// info level, the usual choice for cmd/cachectl's foreground use.
func Default() *Logger {
	return New(os.Stderr, "info")
}
