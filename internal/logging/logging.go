package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Options struct {
	Level  string
	Pretty bool
	// DevLogFile, when set, also receives every record at debug level.
	DevLogFile string
}

// Setup installs the process-wide slog handler and returns a function that
// releases any file it opened.
func Setup(w io.Writer, opts Options) (func(), error) {
	level := ParseLevel(opts.Level)
	var console slog.Handler
	if opts.Pretty {
		console = newPrettyHandler(w, level)
	} else {
		console = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	if strings.TrimSpace(opts.DevLogFile) == "" {
		slog.SetDefault(slog.New(console))
		return func() {}, nil
	}
	file, err := os.Create(opts.DevLogFile)
	if err != nil {
		slog.SetDefault(slog.New(console))
		return func() {}, fmt.Errorf("open log file %s: %w", opts.DevLogFile, err)
	}
	_, _ = fmt.Fprintf(file, "=== notefade dev log start %s ===\n", time.Now().Format(time.RFC3339))
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(&teeHandler{handlers: []slog.Handler{console, fileHandler}}))
	return func() { _ = file.Close() }, nil
}

func ParseLevel(raw string) slog.Leveler {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}
	return level
}

// TestHandler is the handler package tests install in TestMain. It logs at
// debug unless NOTEFADE_LOG_LEVEL says otherwise.
func TestHandler(w io.Writer) slog.Handler {
	var level slog.Leveler = slog.LevelDebug
	if raw := os.Getenv("NOTEFADE_LOG_LEVEL"); strings.TrimSpace(raw) != "" {
		level = ParseLevel(raw)
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}
