package helpers

import (
	"fmt"
	"io"
	"time"

	"sjsage522/teetimeworker/logger"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerInterface defines the interface for logger implementations
type LoggerInterface interface {
	LogError(component string, err error)
	LogInfo(format string, args ...interface{})
}

// Logger logs through the structured logger and mirrors errors into a rotating file
type Logger struct {
	errorFile io.WriteCloser
}

// NewLogger creates a new logger instance. An empty errorFile disables the error file.
func NewLogger(errorFile string) *Logger {
	l := &Logger{}
	if errorFile != "" {
		l.errorFile = &lumberjack.Logger{
			Filename:   errorFile,
			MaxSize:    5, // megabytes
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		}
	}
	return l
}

// LogError logs an error with component name and timestamp
func (l *Logger) LogError(component string, err error) {
	logger.LogError(component, err, "%s failed", component)

	if l.errorFile == nil {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	if _, writeErr := fmt.Fprintf(l.errorFile, "[%s] [%s] %s\n", timestamp, component, err.Error()); writeErr != nil {
		logger.Warn("error file write failed: %v", writeErr)
	}
}

// LogInfo logs an informational message
func (l *Logger) LogInfo(format string, args ...interface{}) {
	logger.Info(format, args...)
}

// Close closes the error file
func (l *Logger) Close() error {
	if l.errorFile == nil {
		return nil
	}
	return l.errorFile.Close()
}
