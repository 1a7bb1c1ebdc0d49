// Package logging builds the logrus loggers used by the daemon and the CLI.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"lectern/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const stampFormat = "2006-01-02 15:04:05.000"

// Configure returns the daemon logger: rotated file output, optionally
// mirrored to stdout.
func Configure(cfg *config.Config) (*logrus.Logger, error) {
	if err := config.MustStatePaths(cfg); err != nil {
		return nil, err
	}
	var out io.Writer = rotator(cfg.Paths.LogPath)
	if cfg.Logging.Stdout {
		out = io.MultiWriter(os.Stdout, out)
	}
	return build(out, cfg.Logging.Format, cfg.Logging.Level), nil
}

// Console returns a text logger on stderr for one-shot CLI commands.
func Console(level string) *logrus.Logger {
	return build(os.Stderr, "text", level)
}

// NewTestLogger returns a logger that discards output.
func NewTestLogger() *logrus.Logger {
	return build(io.Discard, "text", "debug")
}

func rotator(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     30,
		LocalTime:  true,
	}
}

func build(out io.Writer, format, level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: stampFormat})
	}
	if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}
