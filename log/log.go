// Package log is a thin wrapper around zerolog, shared by every package of
// the module. It is initialized with the LOG_LEVEL environment variable
// (error by default) and can be reconfigured with Init.
package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	logTestWriterName = "log_test_writer"
	logTestTimeFormat = "2006-01-02T15:04:05.000Z07:00"
)

var (
	log   zerolog.Logger
	level string

	// logTestWriter is only used by tests to capture or discard the output.
	logTestWriter io.Writer

	// panicOnInvalidChars makes the logger panic when a message contains
	// the unicode replacement char, which usually means a []byte was
	// formatted with %s.
	panicOnInvalidChars = os.Getenv("LOG_PANIC_ON_INVALIDCHARS") == "true"
)

func init() {
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		lvl = LogLevelError
	}
	Init(lvl, "stderr", nil)
}

// invalidCharChecker inspects every formatted entry.
type invalidCharChecker struct{}

func (invalidCharChecker) Write(p []byte) (int, error) {
	if bytes.ContainsRune(p, '\uFFFD') || bytes.Contains(p, []byte(`\ufffd`)) {
		if panicOnInvalidChars {
			panic(fmt.Sprintf("log line contains invalid chars: %q", p))
		}
	}
	return len(p), nil
}

// errorLevelWriter only forwards entries of level error or above.
type errorLevelWriter struct {
	io.Writer
}

func (w *errorLevelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < zerolog.ErrorLevel {
		return len(p), nil
	}
	return w.Write(p)
}

// Init (re)configures the package logger. Output can be stdout, stderr or
// a file path. If errorOutput is not nil, entries of level error and above
// are written there too.
func Init(logLevel, output string, errorOutput io.Writer) {
	var out io.Writer
	switch output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	case logTestWriterName:
		out = logTestWriter
	default:
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			panic(fmt.Sprintf("cannot create log output: %v", err))
		}
		out = f
	}
	outputs := []io.Writer{
		zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: logTestTimeFormat,
			FormatCaller: func(i any) string {
				if s, ok := i.(string); ok {
					return path.Base(s)
				}
				return ""
			},
		},
		invalidCharChecker{},
	}
	if errorOutput != nil {
		outputs = append(outputs, &errorLevelWriter{zerolog.ConsoleWriter{
			Out:        errorOutput,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}})
	}
	log = zerolog.New(zerolog.MultiLevelWriter(outputs...)).With().Timestamp().Logger()

	switch logLevel {
	case LogLevelDebug:
		log = log.Level(zerolog.DebugLevel).With().Caller().Logger()
	case LogLevelInfo:
		log = log.Level(zerolog.InfoLevel)
	case LogLevelWarn:
		log = log.Level(zerolog.WarnLevel)
	case LogLevelError:
		log = log.Level(zerolog.ErrorLevel)
	default:
		panic(fmt.Sprintf("invalid log level: %q", logLevel))
	}
	level = logLevel
	log.Info().Msgf("logger construction succeeded at level %s with output %s", logLevel, output)
}

// Logger returns the underlying zerolog logger.
func Logger() *zerolog.Logger {
	return &log
}

// Level returns the current log level.
func Level() string {
	return level
}

func Debug(args ...any) {
	log.Debug().CallerSkipFrame(1).Msg(fmt.Sprint(args...))
}

func Info(args ...any) {
	log.Info().Msg(fmt.Sprint(args...))
}

func Warn(args ...any) {
	log.Warn().Msg(fmt.Sprint(args...))
}

func Error(args ...any) {
	log.Error().Msg(fmt.Sprint(args...))
}

// Fatal logs the message and exits printing the stack.
func Fatal(args ...any) {
	log.Fatal().Msg(fmt.Sprint(args...) + "\n" + string(debug.Stack()))
}

func Debugf(template string, args ...any) {
	log.Debug().CallerSkipFrame(1).Msgf(template, args...)
}

func Infof(template string, args ...any) {
	log.Info().Msgf(template, args...)
}

func Warnf(template string, args ...any) {
	log.Warn().Msgf(template, args...)
}

func Errorf(template string, args ...any) {
	log.Error().Msgf(template, args...)
}

func Fatalf(template string, args ...any) {
	Fatal(fmt.Sprintf(template, args...))
}

// Debugw logs a message with key-value pairs.
func Debugw(msg string, keyvalues ...any) {
	log.Debug().CallerSkipFrame(1).Fields(keyvalues).Msg(msg)
}

func Infow(msg string, keyvalues ...any) {
	log.Info().Fields(keyvalues).Msg(msg)
}

func Warnw(msg string, keyvalues ...any) {
	log.Warn().Fields(keyvalues).Msg(msg)
}

func Errorw(err error, msg string) {
	log.Error().Err(err).Msg(msg)
}
