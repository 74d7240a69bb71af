package logging

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the default logger
type Options struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	File   string `yaml:"file"`   // optional rotating log file, in addition to stderr

	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`
}

// DefaultLogger is a logrus-backed implementation of Logger.
// Debug/Info/Warn/Error go through a shared logrus.Logger; Fatal exits.
type DefaultLogger struct {
	base   *logrus.Logger
	fields Fields
}

// NewDefaultLogger creates a text logger on stderr at info level
func NewDefaultLogger() *DefaultLogger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &DefaultLogger{base: base, fields: make(Fields)}
}

// NewDefaultLoggerWithOptions builds a logger from configuration. When
// opts.File is set, output is teed into a lumberjack rotating file.
func NewDefaultLoggerWithOptions(opts Options) (*DefaultLogger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	l := NewDefaultLogger()
	l.SetLevel(level)

	if opts.Format == "json" {
		l.base.SetFormatter(&logrus.JSONFormatter{})
	}

	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 30),
			Compress:   true,
		}
		l.base.SetOutput(io.MultiWriter(os.Stderr, rotating))
	}

	return l, nil
}

// NewDefaultLoggerTo creates a logger writing to w, mostly for tests
func NewDefaultLoggerTo(w io.Writer, level Level) *DefaultLogger {
	l := NewDefaultLogger()
	l.base.SetOutput(w)
	l.base.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(level)
	return l
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (d *DefaultLogger) entry(fields ...Fields) *logrus.Entry {
	merged := make(logrus.Fields, len(d.fields))
	for k, v := range d.fields {
		merged[k] = v
	}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	return d.base.WithFields(merged)
}

func (d *DefaultLogger) Debug(msg string, fields ...Fields) {
	d.entry(fields...).Debug(msg)
}

func (d *DefaultLogger) Info(msg string, fields ...Fields) {
	d.entry(fields...).Info(msg)
}

func (d *DefaultLogger) Warn(msg string, fields ...Fields) {
	d.entry(fields...).Warn(msg)
}

func (d *DefaultLogger) Error(err error, msg string, fields ...Fields) {
	d.entry(fields...).WithError(err).Error(msg)
}

func (d *DefaultLogger) Fatal(err error, msg string, fields ...Fields) {
	d.entry(fields...).WithError(err).Fatal(msg)
}

func (d *DefaultLogger) WithFields(fields Fields) Logger {
	newFields := make(Fields, len(d.fields)+len(fields))
	for k, v := range d.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &DefaultLogger{base: d.base, fields: newFields}
}

func (d *DefaultLogger) WithContext(ctx context.Context) Logger {
	if fields, ok := FieldsFromContext(ctx); ok {
		return d.WithFields(fields)
	}
	return d
}

// SetLevel changes the level of the shared logrus logger, so it applies to
// every logger derived from this one.
func (d *DefaultLogger) SetLevel(level Level) {
	switch level {
	case DebugLevel:
		d.base.SetLevel(logrus.DebugLevel)
	case InfoLevel:
		d.base.SetLevel(logrus.InfoLevel)
	case WarnLevel:
		d.base.SetLevel(logrus.WarnLevel)
	case ErrorLevel:
		d.base.SetLevel(logrus.ErrorLevel)
	case FatalLevel:
		d.base.SetLevel(logrus.FatalLevel)
	}
}

// NoOpLogger discards everything; used in tests and when logging is disabled
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, fields ...Fields)            {}
func (n *NoOpLogger) Info(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Warn(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Error(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) Fatal(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) WithFields(fields Fields) Logger               { return n }
func (n *NoOpLogger) WithContext(ctx context.Context) Logger        { return n }
func (n *NoOpLogger) SetLevel(level Level)                          {}
