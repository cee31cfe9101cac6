package logger

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/openblog/backend/internal/errors"
)

// Level represents the log level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel maps a configuration string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Entry mirrors one JSON log line.
type Entry struct {
	Time      string         `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Component string         `json:"component,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
	Caller    string         `json:"caller,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Config configures a Logger.
type Config struct {
	Output io.Writer
	Level  Level
	// Format is "json" (default) or "console".
	Format    string
	Component string
	Redactor  *Redactor
}

// Logger provides structured logging on top of zerolog.
type Logger struct {
	zl        zerolog.Logger
	level     Level
	component string
	redactor  *Redactor
}

var defaultLogger = New(&Config{Output: os.Stdout, Level: LevelInfo})

// New creates a new logger
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = &Config{}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	redactor := cfg.Redactor
	if redactor == nil {
		redactor = DefaultRedactor()
	}

	zl := zerolog.New(out).Level(cfg.Level.zerolog()).With().Timestamp().Logger()
	return &Logger{
		zl:        zl,
		level:     cfg.Level,
		component: cfg.Component,
		redactor:  redactor,
	}
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Default returns the default logger
func Default() *Logger {
	return defaultLogger
}

// WithComponent creates a new logger with the specified component name
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		zl:        l.zl,
		level:     l.level,
		component: component,
		redactor:  l.redactor,
	}
}

// WithRequestID attaches a request ID that subsequent log calls pick up.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return apperrors.WithRequestID(ctx, requestID)
}

// callerSkip places the reported caller at the code that invoked
// Debug/Info/Warn/Error.
const callerSkip = 2

func (l *Logger) log(ctx context.Context, level Level, msg string, fields map[string]any, err error) {
	if level < l.level {
		return
	}

	var event *zerolog.Event
	switch level {
	case LevelDebug:
		event = l.zl.Debug()
	case LevelWarn:
		event = l.zl.Warn()
	case LevelError:
		event = l.zl.Error().Caller(callerSkip)
	default:
		event = l.zl.Info()
	}

	if requestID := apperrors.GetRequestID(ctx); requestID != "" {
		event = event.Str("request_id", requestID)
	}
	if l.component != "" {
		event = event.Str("component", l.component)
	}
	if err != nil {
		event = event.Str("error", l.redactor.Redact(err.Error()))
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			event = event.Str("error_code", appErr.Code)
		}
	}
	if len(fields) > 0 {
		event = event.Interface("fields", l.redactor.RedactFields(fields))
	}

	event.Msg(l.redactor.Redact(msg))
}

func firstFields(fields []map[string]any) map[string]any {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug(ctx context.Context, msg string, fields ...map[string]any) {
	l.log(ctx, LevelDebug, msg, firstFields(fields), nil)
}

// Info logs an info message
func (l *Logger) Info(ctx context.Context, msg string, fields ...map[string]any) {
	l.log(ctx, LevelInfo, msg, firstFields(fields), nil)
}

// Warn logs a warning message
func (l *Logger) Warn(ctx context.Context, msg string, fields ...map[string]any) {
	l.log(ctx, LevelWarn, msg, firstFields(fields), nil)
}

// Error logs an error message
func (l *Logger) Error(ctx context.Context, msg string, err error, fields ...map[string]any) {
	l.log(ctx, LevelError, msg, firstFields(fields), err)
}

// Package-level convenience functions

func Debug(ctx context.Context, msg string, fields ...map[string]any) {
	defaultLogger.log(ctx, LevelDebug, msg, firstFields(fields), nil)
}

func Info(ctx context.Context, msg string, fields ...map[string]any) {
	defaultLogger.log(ctx, LevelInfo, msg, firstFields(fields), nil)
}

func Warn(ctx context.Context, msg string, fields ...map[string]any) {
	defaultLogger.log(ctx, LevelWarn, msg, firstFields(fields), nil)
}

func Error(ctx context.Context, msg string, err error, fields ...map[string]any) {
	defaultLogger.log(ctx, LevelError, msg, firstFields(fields), err)
}
