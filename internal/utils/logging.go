package utils

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	// File is the rotated log file. Empty disables the file sink.
	File  string
	Level slog.Level
	// Stdout overrides the console writer, mostly for tests.
	Stdout io.Writer
}

// NewLogger builds the logger used by both binaries: coloured tint output on
// the console and plain text in a size rotated log file.
func NewLogger(cfg LogConfig) (*slog.Logger, io.Closer, error) {
	stdout := cfg.Stdout
	noColor := true
	if stdout == nil {
		stdout = os.Stdout
		noColor = !isatty.IsTerminal(os.Stdout.Fd())
	}

	handlers := []slog.Handler{
		tint.NewHandler(stdout, &tint.Options{
			Level:      cfg.Level,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    noColor,
		}),
	}

	var closer io.Closer = io.NopCloser(nil)
	if cfg.File != "" {
		if err := EnsureParent(cfg.File); err != nil {
			return nil, nil, err
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
		}
		closer = rotator
		handlers = append(handlers, slog.NewTextHandler(rotator, &slog.HandlerOptions{Level: cfg.Level}))
	}

	return slog.New(NewMultiLogHandler(handlers...)), closer, nil
}
