// Package logging configures structured JSON logging for lendboard binaries.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// Options controls the handler built by New.
type Options struct {
	Service string
	Env     string
	Level   slog.Level
}

// ParseLevel maps a configured level name onto slog. Unknown names fall back
// to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return attr
			}
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})
}

func baseAttrs(opts Options) []slog.Attr {
	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(opts.Service))}
	if env := strings.TrimSpace(opts.Env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	return attrs
}

// New builds a JSON logger writing to w without touching global state.
func New(w io.Writer, opts Options) *slog.Logger {
	return slog.New(newHandler(w, opts.Level).WithAttrs(baseAttrs(opts)))
}

// Setup configures the default slog logger and the standard library logger to
// emit structured JSON on stdout. All lines carry the service name and, when
// provided, the environment.
func Setup(service, env string) *slog.Logger {
	return SetupLevel(service, env, slog.LevelInfo)
}

// SetupLevel is Setup with an explicit minimum level.
func SetupLevel(service, env string, level slog.Level) *slog.Logger {
	handler := newHandler(os.Stdout, level).WithAttrs(baseAttrs(Options{Service: service, Env: env}))
	base := slog.New(handler)
	slog.SetDefault(base)

	stdBridge := slog.NewLogLogger(handler, slog.LevelInfo)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
