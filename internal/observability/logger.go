package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the process logger: JSON to stdout, debug level in dev.
func NewLogger(env string) *slog.Logger {
	return newLogger(env, os.Stdout)
}

func newLogger(env string, out io.Writer) *slog.Logger {
	level := slog.LevelInfo

	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactSecrets,
	})

	return slog.New(NewTraceHandler(handler)).With("service", "centinel", "env", env)
}

// redactSecrets blanks attributes that could carry credentials, whatever
// component logged them.
func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	switch strings.ToLower(a.Key) {
	case "password", "password_hash", "authorization":
		return slog.String(a.Key, "[redacted]")
	}
	return a
}
