package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds the JSON logger every service entrypoint uses. Level comes from
// LOG_LEVEL (debug, info, warn, error); anything else means info.
func New(service string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", service)
}
