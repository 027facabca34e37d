// Package logging builds the logrus logger shared by ctf components.
//
// Diagnostics go to stderr so that stdout carries only command output
// (reports, exports). Components receive a *logrus.Entry tagged with a "cmp"
// field naming the component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"cycletrack/internal/config"
)

// New creates a logger from cfg writing to stderr.
func New(cfg config.LogConfig) (*logrus.Entry, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter creates a logger from cfg writing to w.
func NewWithWriter(cfg config.LogConfig, w io.Writer) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetOutput(w)

	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "warn"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	return logrus.NewEntry(logger), nil
}

// Discard returns an entry that drops everything. Useful in tests.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
