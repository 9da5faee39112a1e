// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging wraps charmbracelet/log with the LOG_LEVEL environment
// variable contract described in the Oryx external interfaces.
package logging

import (
	"io"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Logger is the handle every Oryx component logs through.
type Logger struct {
	l *charmlog.Logger
}

// Config controls logger construction.
type Config struct {
	Level  string
	Output io.Writer
}

// DefaultConfig reads LOG_LEVEL from the environment, defaulting to "off".
func DefaultConfig() Config {
	level := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if level == "" {
		level = "off"
	}
	return Config{Level: level, Output: os.Stderr}
}

// New builds a Logger from Config.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.Level == "off" {
		out = io.Discard
	}

	l := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	l.SetLevel(parseLevel(cfg.Level))

	return &Logger{l: l}
}

func parseLevel(level string) charmlog.Level {
	switch level {
	case "trace", "debug":
		return charmlog.DebugLevel
	case "info":
		return charmlog.InfoLevel
	case "warn":
		return charmlog.WarnLevel
	case "error":
		return charmlog.ErrorLevel
	default:
		return charmlog.ErrorLevel
	}
}

func (lg *Logger) Debug(msg string, kv ...any) { lg.l.Debug(msg, kv...) }
func (lg *Logger) Info(msg string, kv ...any)  { lg.l.Info(msg, kv...) }
func (lg *Logger) Warn(msg string, kv ...any)  { lg.l.Warn(msg, kv...) }
func (lg *Logger) Error(msg string, kv ...any) { lg.l.Error(msg, kv...) }

// With returns a derived logger carrying the given key/value pairs on every
// subsequent call.
func (lg *Logger) With(kv ...any) *Logger {
	return &Logger{l: lg.l.With(kv...)}
}
