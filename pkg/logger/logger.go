// Package logger is a thin zerolog wrapper that carries request-scoped fields
// on the context.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	Format      string
	NoColor     bool
	WarnStack   bool
	Output      io.Writer
}

type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(opts.Format, FormatConsole) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly, NoColor: opts.NoColor}
	}
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(out).Level(level).With().Timestamp().Str("service", opts.ServiceName).Logger()
	return &Logger{base: base, warnStack: opts.WarnStack}
}

// ForApp builds the logger a binary uses once config has loaded.
func ForApp(service string, app config.AppConfig) *Logger {
	return New(Options{
		ServiceName: service,
		Level:       ParseLevel(app.LogLevel),
		Format:      app.LogFormat,
		NoColor:     app.LogNoColor,
		WarnStack:   app.LogWarnStack,
	})
}

// ParseLevel maps a config string onto a zerolog level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// from returns the logger stored on ctx, or the base logger.
func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if scoped := zerolog.Ctx(ctx); scoped.GetLevel() != zerolog.Disabled {
			return scoped
		}
	}
	return &l.base
}

func (l *Logger) with(ctx context.Context, fn func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	scoped := fn(l.from(ctx).With()).Logger()
	return scoped.WithContext(ctx)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

func (l *Logger) WithRequestID(ctx context.Context, id string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("request_id", id) })
}

func (l *Logger) WithUserID(ctx context.Context, id string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("user_id", id) })
}

func (l *Logger) WithActorRole(ctx context.Context, role string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("actor_role", role) })
}

func (l *Logger) WithOrderID(ctx context.Context, id string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("order_id", id) })
}

func (l *Logger) Debug(ctx context.Context, msg string) { l.from(ctx).Debug().Msg(msg) }

func (l *Logger) Info(ctx context.Context, msg string) { l.from(ctx).Info().Msg(msg) }

// Warn attaches a stack trace only when the logger was built with WarnStack.
func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.from(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", stack())
	}
	event.Msg(msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error) {
	l.from(ctx).Error().Err(err).Str("stack", stack()).Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
