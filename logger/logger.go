package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Info(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	With(args ...interface{}) Logger
}

type LogrusLogger struct {
	entry *logrus.Entry
}

var base = logrus.New()

func init() {
	base.SetOutput(os.Stderr)
	base.SetLevel(logrus.InfoLevel)
}

// Configure sets level (debug, info, warn, error), format (text, json) and
// output of the logger shared by all components. A nil out keeps the current output.
func Configure(level, format string, out io.Writer) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	switch strings.ToLower(format) {
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	base.SetLevel(lvl)
	if out != nil {
		base.SetOutput(out)
	}
	return nil
}

// Base exposes the underlying logrus logger, mainly for tests and hooks.
func Base() *logrus.Logger {
	return base
}

// For returns a Logger tagged with the given component name.
func For(component string) Logger {
	return &LogrusLogger{entry: base.WithField("component", component)}
}

func (l *LogrusLogger) Info(msg string, args ...interface{}) {
	l.entry.WithFields(fields(args)).Info(msg)
}

func (l *LogrusLogger) Debug(msg string, args ...interface{}) {
	l.entry.WithFields(fields(args)).Debug(msg)
}

func (l *LogrusLogger) Warn(msg string, args ...interface{}) {
	l.entry.WithFields(fields(args)).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, args ...interface{}) {
	l.entry.WithFields(fields(args)).Error(msg)
}

// With returns a Logger that adds the given key/value pairs to every entry.
func (l *LogrusLogger) With(args ...interface{}) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(fields(args))}
}

// fields turns alternating key/value pairs into logrus fields. A non-string
// key or a dangling value is kept under "!BADKEY" and parsing resumes at the
// next argument, like log/slog does.
func fields(args []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); {
		key, ok := args[i].(string)
		if !ok || i+1 >= len(args) {
			f["!BADKEY"] = args[i]
			i++
			continue
		}
		f[key] = args[i+1]
		i += 2
	}
	return f
}
