// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// ParseLevel maps a config string to a level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Setup installs a tint handler writing to stderr as the default logger.
// Colors are enabled only on a terminal.
func Setup(level slog.Level) *slog.Logger {
	ll := &slog.LevelVar{}
	ll.Set(level)
	logger := New(colorable.NewColorable(os.Stderr), ll, !isatty.IsTerminal(os.Stderr.Fd()))
	slog.SetDefault(logger)
	return logger
}

// New builds a tint logger on w.
func New(w io.Writer, level slog.Leveler, noColor bool) *slog.Logger {
	// systemd adds its own timestamps
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			if isEmpty(a.Value) {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func isEmpty(v slog.Value) bool {
	switch t := v.Any().(type) {
	case string:
		return t == ""
	case time.Time:
		return t.IsZero()
	case nil:
		return true
	}
	return false
}
