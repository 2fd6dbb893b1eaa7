// Package observability provides the CLI logger and the job event log.
package observability

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// CLILogger is the process-wide logger for command output and diagnostics.
// It is a no-op logger until InitCLILogger is called.
var CLILogger = zap.NewNop()

// InitCLILogger configures CLILogger to write human readable lines to stderr.
// verbose enables debug output.
func InitCLILogger(name string, verbose bool) {
	CLILogger = NewCLILogger(name, os.Stderr, verbose)
}

// NewCLILogger builds a console logger writing to w.
func NewCLILogger(name string, w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "logger",
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if verbose {
		enc.TimeKey = "ts"
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	logger := zap.New(core)
	if name = strings.TrimSpace(name); name != "" {
		logger = logger.Named(name)
	}
	return logger
}

// EventLogConfig configures the job event log.
type EventLogConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// NewEventLogger returns a JSON lines logger appending to cfg.Path, rotated
// by size. The returned closer releases the file.
func NewEventLogger(cfg EventLogConfig) (*zap.Logger, io.Closer) {
	w := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), zapcore.InfoLevel)
	return zap.New(core), w
}
