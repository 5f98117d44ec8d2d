package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// Options configures the process logger. Empty fields take environment defaults:
// debug text logs in development, info JSON logs otherwise.
type Options struct {
	Level       string
	Format      string // "json" or "text"
	Development bool
	Output      io.Writer
}

// InitLogger builds the process logger and points the logrus standard logger at the
// same level, formatter and output, so packages logging through logrus directly
// (gorm's SQL logger among them) match.
func InitLogger(opts Options) *logrus.Logger {
	log := logrus.New()

	level := opts.Level
	if level == "" {
		level = "info"
		if opts.Development {
			level = "debug"
		}
	}
	if parsed, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		log.SetLevel(parsed)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", level).Warn("Invalid LOG_LEVEL, using INFO")
	}

	log.SetFormatter(formatter(opts))

	// stdout carries CLI tables and JSON results
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	log.SetOutput(out)

	std := logrus.StandardLogger()
	std.SetLevel(log.GetLevel())
	std.SetFormatter(log.Formatter)
	std.SetOutput(out)

	Logger = log
	return log
}

func formatter(opts Options) logrus.Formatter {
	format := strings.ToLower(opts.Format)
	if format == "json" || (format == "" && !opts.Development) {
		return &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return InitLogger(Options{})
	}
	return Logger
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func WithService(serviceName string) *logrus.Entry {
	return GetLogger().WithField("service", serviceName)
}

// WithRunContext scopes a logger to one projection run, using the same field names
// the forecaster logs with.
func WithRunContext(runID string, splitYear int) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"model_output_id": runID,
		"split_year":      splitYear,
	})
}
