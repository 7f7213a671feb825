// Package logging wraps zap with the session and context conventions used
// across the matching engine and its tooling.
package logging

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with context support.
type Logger struct {
	logger *zap.Logger
}

// LogLevel defines the logging level
type LogLevel zapcore.Level

const (
	DEBUG LogLevel = LogLevel(zapcore.DebugLevel)
	INFO  LogLevel = LogLevel(zapcore.InfoLevel)
	WARN  LogLevel = LogLevel(zapcore.WarnLevel)
	ERROR LogLevel = LogLevel(zapcore.ErrorLevel)
	FATAL LogLevel = LogLevel(zapcore.FatalLevel)
)

// contextKey defines a type for context keys
type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	loggerKey    contextKey = "logger"
)

func newZapLogger(level LogLevel) *zap.Logger {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.Level(level))
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

// NewLogger creates a new Logger instance
func NewLogger(level LogLevel) *Logger {
	return &Logger{logger: newZapLogger(level)}
}

// ParseLevel maps a config string to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return INFO
	}
	return LogLevel(lvl)
}

// Sugar exposes the underlying sugared logger for components that take one
// directly (the order book, the replay engine).
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.logger.Sugar()
}

// NewSessionID returns a fresh id for tagging one simulation or replay run.
func NewSessionID() string {
	return uuid.New().String()
}

// WithSessionID adds session_id to context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// getSessionID retrieves session_id from context
func getSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return "no-session-id"
}

// GetLogger retrieves or creates a logger for the given context
func GetLogger(ctx context.Context) (*Logger, context.Context) {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		if _, ok := ctx.Value(sessionIDKey).(string); ok {
			return logger, ctx
		}
	}

	logger := &Logger{
		logger: newZapLogger(INFO).With(zap.String("session_id", getSessionID(ctx))),
	}
	ctx = context.WithValue(ctx, loggerKey, logger)
	return logger, ctx
}

// logMessage logs a message with the specified level
func (l *Logger) logMessage(level LogLevel, msg string, fields ...zap.Field) {
	switch level {
	case DEBUG:
		l.logger.Debug(msg, fields...)
	case INFO:
		l.logger.Info(msg, fields...)
	case WARN:
		l.logger.Warn(msg, fields...)
	case ERROR:
		l.logger.Error(msg, fields...)
	case FATAL:
		l.logger.Fatal(msg, fields...)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.logMessage(DEBUG, msg, fields...)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.logMessage(INFO, msg, fields...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.logMessage(WARN, msg, fields...)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.logMessage(ERROR, msg, fields...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.logMessage(FATAL, msg, fields...)
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.logger.Sync()
}
