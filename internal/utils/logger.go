package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger provides leveled logging with verbose mode support on top of zerolog.
type Logger struct {
	mu      sync.RWMutex
	zl      zerolog.Logger
	verbose bool
	closer  func()
}

var (
	loggerInstance *Logger
	once           sync.Once
)

// GetLogger returns the singleton logger instance.
// Until SetupLogger is called it writes warnings and above to stderr.
func GetLogger() *Logger {
	once.Do(func() {
		loggerInstance = &Logger{
			zl:     newConsoleLogger(os.Stderr).Level(zerolog.WarnLevel),
			closer: func() {},
		}
	})
	return loggerInstance
}

func newConsoleLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		With().
		Timestamp().
		Logger()
}

// SetupLogger configures the global logger. level is one of debug, info, warn,
// error. When file is set, JSON lines are appended to it; otherwise a console
// writer on console (stderr when nil) is used. The returned func closes the file.
func SetupLogger(console io.Writer, level, file string) (func(), error) {
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return func() {}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var zl zerolog.Logger
	closer := func() {}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return closer, fmt.Errorf("create logs dir: %w", err)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return closer, err
		}
		closer = func() { _ = f.Close() }
		zl = zerolog.New(f).With().Timestamp().Logger()
	} else {
		if console == nil {
			console = os.Stderr
		}
		zl = newConsoleLogger(console)
	}

	l := GetLogger()
	l.mu.Lock()
	l.closer()
	l.zl = zl.Level(lvl)
	l.closer = closer
	if l.verbose {
		l.zl = l.zl.Level(zerolog.DebugLevel)
	}
	l.mu.Unlock()
	return closer, nil
}

// SetOutput redirects the logger to w at the given level. Intended for tests.
func SetOutput(w io.Writer, level zerolog.Level) {
	l := GetLogger()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zl = zerolog.New(w).With().Timestamp().Logger().Level(level)
}

// SetVerboseMode sets the verbose mode globally.
func SetVerboseMode(verbose bool) {
	GetLogger().SetVerbose(verbose)
}

// SetVerbose switches between debug level and the configured level.
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
	if verbose {
		l.zl = l.zl.Level(zerolog.DebugLevel)
	} else if l.zl.GetLevel() == zerolog.DebugLevel {
		l.zl = l.zl.Level(zerolog.InfoLevel)
	}
}

// IsVerbose returns whether verbose mode is enabled.
func (l *Logger) IsVerbose() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// Zerolog returns the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.zl
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	zl := GetLogger().Zerolog()
	return zl.With().Str("cmp", name).Logger()
}

// Debug logs a debug message (only shown when verbose or level=debug).
func (l *Logger) Debug(msgOrFormat string, args ...interface{}) {
	zl := l.Zerolog()
	zl.Debug().Msg(formatMessage(msgOrFormat, args...))
}

func (l *Logger) Info(msgOrFormat string, args ...interface{}) {
	zl := l.Zerolog()
	zl.Info().Msg(formatMessage(msgOrFormat, args...))
}

func (l *Logger) Warn(msgOrFormat string, args ...interface{}) {
	zl := l.Zerolog()
	zl.Warn().Msg(formatMessage(msgOrFormat, args...))
}

func (l *Logger) Error(msgOrFormat string, args ...interface{}) {
	zl := l.Zerolog()
	zl.Error().Msg(formatMessage(msgOrFormat, args...))
}

// formatMessage formats a message with optional printf-style arguments.
func formatMessage(msgOrFormat string, args ...interface{}) string {
	if len(args) > 0 {
		return fmt.Sprintf(msgOrFormat, args...)
	}
	return msgOrFormat
}

// Debugf is a convenience function that logs a debug message using the global logger.
func Debugf(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// Infof is a convenience function that logs an info message using the global logger.
func Infof(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// Warnf is a convenience function that logs a warning message using the global logger.
func Warnf(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// Errorf is a convenience function that logs an error message using the global logger.
func Errorf(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

// Elapsed logs how long an operation took at debug level. Use with defer:
//
//	defer utils.Elapsed("load tasks")()
func Elapsed(what string) func() {
	start := time.Now()
	return func() {
		Debugf("%s took %s", what, time.Since(start).Round(time.Millisecond))
	}
}
