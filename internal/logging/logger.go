package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel accepts debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// New builds the process logger. Text output is colourised for terminals;
// JSON output is meant for log shippers.
func New(w io.Writer, level slog.Level, format, version string) (*slog.Logger, error) {
	switch format {
	case FormatText, "":
		h := tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  level <= slog.LevelDebug,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h), nil
	case FormatJSON:
		h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
		return slog.New(h).With("app", "stationgroups", "version", version), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (allowed: text, json)", format)
	}
}
