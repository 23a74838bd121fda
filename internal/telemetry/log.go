package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// SetupLogger installs the default slog logger.
func SetupLogger(w io.Writer, level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case LogFormatJSON, "":
		h = slog.NewJSONHandler(w, opts)
	case LogFormatText:
		h = slog.NewTextHandler(w, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	slog.SetDefault(slog.New(h))
	return nil
}
