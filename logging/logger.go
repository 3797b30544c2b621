// Package logging provides structured logging for the Bento container runtime.
//
// Every Bento invocation is a short-lived process with no daemon to
// aggregate logs later, so the default logger writes one line per event
// straight to stderr via github.com/rs/zerolog, with an optional JSON
// format for callers (Docker, containerd-style shims) that parse runtime
// output.
package logging

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

var (
	defaultLogger zerolog.Logger
	loggerMu      sync.RWMutex
)

func init() {
	defaultLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level that will be emitted.
	Level zerolog.Level
	// Format is "text" (console-formatted) or "json".
	Format string
	// Output is the destination; defaults to os.Stderr.
	Output io.Writer
}

// NewLogger builds a logger from cfg.
func NewLogger(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var writer io.Writer = out
	if cfg.Format != "json" {
		writer = zerolog.ConsoleWriter{Out: out, NoColor: true}
	}

	return zerolog.New(writer).With().Timestamp().Logger().Level(cfg.Level)
}

// SetDefault installs logger as the package default.
func SetDefault(logger zerolog.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = logger
}

// Default returns the package's default logger.
func Default() zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// WithContainer returns a child logger annotated with a container id.
func WithContainer(logger zerolog.Logger, id string) zerolog.Logger {
	return logger.With().Str("container_id", id).Logger()
}

// WithOperation returns a child logger annotated with an operation name.
func WithOperation(logger zerolog.Logger, op string) zerolog.Logger {
	return logger.With().Str("operation", op).Logger()
}

// WithPID returns a child logger annotated with a process id.
func WithPID(logger zerolog.Logger, pid int) zerolog.Logger {
	return logger.With().Int("pid", pid).Logger()
}

// ContextWithLogger attaches logger to ctx.
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext retrieves the logger attached to ctx, or the package default.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return logger
	}
	return Default()
}

// ParseLevel parses a level string ("debug", "info", "warn", "error").
// Unrecognized or empty values fall back to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Info logs an info message on the default logger.
func Info(msg string) { Default().Info().Msg(msg) }

// Warn logs a warning message on the default logger.
func Warn(msg string) { Default().Warn().Msg(msg) }

// Error logs an error on the default logger.
func Error(err error, msg string) { Default().Error().Err(err).Msg(msg) }

// Debug logs a debug message on the default logger.
func Debug(msg string) { Default().Debug().Msg(msg) }

// WarnContext logs a warning using the logger attached to ctx.
func WarnContext(ctx context.Context, msg string, kv ...any) {
	ev := FromContext(ctx).Warn()
	logFields(ev, kv)
	ev.Msg(msg)
}

// InfoContext logs an info message using the logger attached to ctx.
func InfoContext(ctx context.Context, msg string, kv ...any) {
	ev := FromContext(ctx).Info()
	logFields(ev, kv)
	ev.Msg(msg)
}

// logFields folds alternating key/value pairs into a zerolog event.
func logFields(ev *zerolog.Event, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev.Interface(key, kv[i+1])
	}
}
