// Package logging wraps charmbracelet/log behind a small key/value interface
// so that engine packages never depend on a concrete logger.
package logging

import (
	"io"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Level represents logging level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Logger is a structured key/value logger
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// Config represents logger configuration
type Config struct {
	Level      Level     `json:"level,omitempty" yaml:"level,omitempty"`
	JSON       bool      `json:"json,omitempty" yaml:"json,omitempty"`
	TimeFormat string    `json:"timeFormat,omitempty" yaml:"timeFormat,omitempty"`
	Output     io.Writer `json:"-" yaml:"-"`
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:      InfoLevel,
		TimeFormat: "15:04:05",
		Output:     os.Stderr,
	}
}

func (l Level) charm() charmlog.Level {
	switch Level(strings.ToLower(string(l))) {
	case DebugLevel:
		return charmlog.DebugLevel
	case WarnLevel:
		return charmlog.WarnLevel
	case ErrorLevel:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// New creates a charm backed logger
func New(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = DefaultConfig().TimeFormat
	}
	logger := charmlog.NewWithOptions(output, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
		Level:           cfg.Level.charm(),
		Prefix:          "construct",
	})
	if cfg.JSON {
		logger.SetFormatter(charmlog.JSONFormatter)
	}
	return &charmLogger{logger: logger}
}

// charmLogger adapts *charmlog.Logger, whose methods take msg as interface{}
type charmLogger struct {
	logger *charmlog.Logger
}

func (c *charmLogger) Debug(msg string, keyvals ...interface{}) { c.logger.Debug(msg, keyvals...) }
func (c *charmLogger) Info(msg string, keyvals ...interface{})  { c.logger.Info(msg, keyvals...) }
func (c *charmLogger) Warn(msg string, keyvals ...interface{})  { c.logger.Warn(msg, keyvals...) }
func (c *charmLogger) Error(msg string, keyvals ...interface{}) { c.logger.Error(msg, keyvals...) }

type nop struct{}

func (nop) Debug(string, ...interface{}) {}
func (nop) Info(string, ...interface{})  {}
func (nop) Warn(string, ...interface{})  {}
func (nop) Error(string, ...interface{}) {}

// Nop returns a logger discarding everything
func Nop() Logger {
	return nop{}
}
