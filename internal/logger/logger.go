// Package logger configures the control plane's own slog output. Child
// process logs are plain truncated files owned by the supervisor; this
// package only covers what cliproxyctl itself prints.
package logger

import (
	"io"
	"log/slog"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for --logfile output.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Setup installs the default slog logger. When logFile is empty, output goes
// to stderr through the colorized text handler; otherwise it is written to a
// lumberjack-rotated file without colors.
func Setup(level slog.Level, logFile string) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if logFile != "" {
		h = slog.NewTextHandler(fileWriter(logFile), opts)
	} else {
		h = NewColorTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func fileWriter(path string) io.Writer {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAge:     DefaultMaxAgeDays,
	}
}
