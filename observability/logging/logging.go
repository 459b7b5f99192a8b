package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// Identity stamped on log lines when the caller passes no service name.
const defaultService = "campledger"

// Setup configures the standard library logger to emit structured JSON and
// returns the underlying slog.Logger for the ledger daemon. Every line carries
// the service name and, when provided, the deployment environment; local
// environments log at debug so engine traces show up during development.
func Setup(service, env string) *slog.Logger {
	handler := newHandler(os.Stdout, env)

	name := strings.TrimSpace(service)
	if name == "" {
		name = defaultService
	}
	attrs := []slog.Attr{
		slog.String("service", name),
	}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	// Bridge the standard library logger so existing packages continue to work.
	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

func newHandler(w io.Writer, env string) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     levelFor(env),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			}
			if attr.Key == slog.LevelKey {
				level := strings.ToUpper(attr.Value.String())
				return slog.String("severity", level)
			}
			if attr.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})
}

func levelFor(env string) slog.Level {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
