// Package logger provides levelled logging for the clicker server.
// Economy changes made by the engine are traceable through Event.
package logger

import (
	"io"
	"log"
	"os"
)

const flags = log.Ldate | log.Ltime | log.Lshortfile

// Logger provides structured logging with context.
type Logger struct {
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
}

// NewLogger creates a logger writing info/warn to stdout and errors to stderr.
func NewLogger() *Logger {
	return NewWithWriters(os.Stdout, os.Stderr)
}

// NewWithWriters creates a logger with explicit destinations.
func NewWithWriters(out, errOut io.Writer) *Logger {
	return &Logger{
		infoLogger:  log.New(out, "[CLICKER-INFO] ", flags),
		warnLogger:  log.New(out, "[CLICKER-WARN] ", flags),
		errorLogger: log.New(errOut, "[CLICKER-ERROR] ", flags),
	}
}

// NewDiscard returns a logger that drops everything. Used by tests and tools.
func NewDiscard() *Logger {
	return NewWithWriters(io.Discard, io.Discard)
}

// Info logs informational messages.
func (l *Logger) Info(msg string) {
	l.infoLogger.Output(2, msg)
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string) {
	l.warnLogger.Output(2, msg)
}

// Error logs error messages.
func (l *Logger) Error(msg string) {
	l.errorLogger.Output(2, msg)
}

// Event logs a specific economy event.
func (l *Logger) Event(eventType string, actorID string, details string) {
	l.infoLogger.Printf("[EVENT:%s] Actor:%s | %s", eventType, actorID, details)
}
