// Package logger provides structured logging for the scanner.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log levels.
type Level = zerolog.Level

// Log levels.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	zl zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      Level
	Pretty     bool // Use console writer (colored output)
	Output     io.Writer
	TimeFormat string
	Component  string // Component name (e.g., "crawl", "fuzz", "browser")
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:      InfoLevel,
		Pretty:     true,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// New creates a new logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat

	var output io.Writer = cfg.Output

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: "15:04:05",
		}
	}

	zl := zerolog.New(output).
		With().
		Timestamp().
		Logger().
		Level(cfg.Level)

	if cfg.Component != "" {
		zl = zl.With().Str("component", cfg.Component).Logger()
	}

	return &Logger{zl: zl}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// WithComponent returns a new logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		zl: l.zl.With().Str("component", component).Logger(),
	}
}

// WithField returns a new logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		zl: l.zl.With().Interface(key, value).Logger(),
	}
}

// WithURL returns a new logger with URL field.
func (l *Logger) WithURL(url string) *Logger {
	return &Logger{
		zl: l.zl.With().Str("url", url).Logger(),
	}
}

// WithEndpoint returns a new logger tagged with an endpoint's method and URL.
func (l *Logger) WithEndpoint(method, url string) *Logger {
	return &Logger{
		zl: l.zl.With().Str("method", method).Str("url", url).Logger(),
	}
}

// WithError returns a new logger with error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		zl: l.zl.With().Err(err).Logger(),
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.zl.Debug().Msg(msg)
}

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.zl.Info().Msg(msg)
}

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.zl.Warn().Msg(msg)
}

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string) {
	l.zl.Error().Msg(msg)
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

// RenderEvent logs a rendered page.
func (l *Logger) RenderEvent(url string, depth, requests, links int, duration time.Duration) {
	l.zl.Info().
		Str("url", url).
		Int("depth", depth).
		Int("requests", requests).
		Int("links", links).
		Dur("duration", duration).
		Msg("Rendered page")
}

// DiscoveryEvent logs a newly recorded endpoint.
func (l *Logger) DiscoveryEvent(method, url string, fields int, source string) {
	l.zl.Info().
		Str("method", method).
		Str("url", url).
		Int("fields", fields).
		Str("source", source).
		Msg("Discovered endpoint")
}

// ProbeEvent logs a single fuzz probe.
func (l *Logger) ProbeEvent(method, url, field string, statusCode int, elapsed time.Duration, err error) {
	event := l.zl.Debug()
	if err != nil {
		event = event.Err(err)
	}
	event.
		Str("method", method).
		Str("url", url).
		Str("field", field).
		Int("status_code", statusCode).
		Dur("elapsed", elapsed).
		Msg("Probe")
}

// SlowPayloadEvent logs one of the slowest payloads of an endpoint.
func (l *Logger) SlowPayloadEvent(method, url string, rank int, elapsed time.Duration, payload interface{}) {
	l.zl.Info().
		Str("method", method).
		Str("url", url).
		Int("rank", rank).
		Dur("elapsed", elapsed).
		Interface("payload", payload).
		Msg("Slow payload")
}

// ErrorEvent logs a recovered error with context.
func (l *Logger) ErrorEvent(err error, url string, operation string) {
	l.zl.Warn().
		Err(err).
		Str("url", url).
		Str("operation", operation).
		Msg("Operation failed")
}

// StatsEvent logs statistics.
func (l *Logger) StatsEvent(stats map[string]interface{}) {
	event := l.zl.Info()
	for k, v := range stats {
		event = event.Interface(k, v)
	}
	event.Msg("Scan statistics")
}

// ParseLevel parses a level string.
func ParseLevel(levelStr string) (Level, error) {
	return zerolog.ParseLevel(levelStr)
}
