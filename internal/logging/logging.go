// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	Level     string    // debug, info, warn, error; default warn
	Output    io.Writer // default os.Stderr
	Pretty    bool      // console writer instead of JSON
	File      string    // when set, logs go to a rotated file instead of Output
	MaxSizeMB int
	Backups   int
	MaxAgeDay int
}

// New creates a logger from cfg.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer
	switch {
	case cfg.File != "":
		out = FileWriter(cfg)
	case cfg.Output != nil:
		out = cfg.Output
	default:
		out = os.Stderr
	}
	if cfg.Pretty && cfg.File == "" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("app", "w3carbon").
		Logger()
}

// FileWriter returns a size-rotated log file writer.
func FileWriter(cfg Config) io.Writer {
	_ = os.MkdirAll(filepath.Dir(cfg.File), 0700)
	size, backups, age := cfg.MaxSizeMB, cfg.Backups, cfg.MaxAgeDay
	if size <= 0 {
		size = 10
	}
	if backups <= 0 {
		backups = 3
	}
	if age <= 0 {
		age = 28
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    size, // megabytes
		MaxBackups: backups,
		MaxAge:     age, // days
		Compress:   true,
	}
}

// ParseLevel maps a level name to zerolog, defaulting to warn so normal CLI
// output stays clean.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	}
	return zerolog.WarnLevel
}
