package logger

import "os"

func defaultLogger() *Logger {
	if Default == nil {
		Initialize(false, false)
	}
	return Default
}

// Debug logs a debug message on the default logger
func Debug(message string, data any) {
	defaultLogger().log(1, LevelDebug, message, data, nil)
}

// Info logs an informational message on the default logger
func Info(message string, data any) {
	defaultLogger().log(1, LevelInfo, message, data, nil)
}

// Warn logs a warning on the default logger
func Warn(message string, data any) {
	defaultLogger().log(1, LevelWarn, message, data, nil)
}

// Error logs an error on the default logger
func Error(message string, data any, err error) {
	defaultLogger().log(1, LevelError, message, data, err)
}

// Debugf logs a formatted debug message on the default logger
func Debugf(format string, args ...any) {
	l := defaultLogger()
	l.log(1, LevelDebug, l.format(format, args), nil, nil)
}

// Infof logs a formatted informational message on the default logger
func Infof(format string, args ...any) {
	l := defaultLogger()
	l.log(1, LevelInfo, l.format(format, args), nil, nil)
}

// Warnf logs a formatted warning on the default logger
func Warnf(format string, args ...any) {
	l := defaultLogger()
	l.log(1, LevelWarn, l.format(format, args), nil, nil)
}

// Errorf logs a formatted error on the default logger
func Errorf(format string, args ...any) {
	l := defaultLogger()
	l.log(1, LevelError, l.format(format, args), nil, nil)
}

// Fatal logs an error and exits
func Fatal(message string, err error) {
	l := defaultLogger()
	l.log(1, LevelError, message, nil, err)
	// production builds do not print, so make sure the reason reaches stderr
	if !l.development {
		reason := ""
		if err != nil {
			reason = l.redactor.SanitizeString(err.Error())
		}
		l.stderr.Printf("[%s] [FATAL] %s: %s", l.prefix, message, reason)
	}
	os.Exit(1)
}

// GetLogs returns the default logger's buffered entries
func GetLogs() []LogEntry {
	return defaultLogger().GetLogs()
}

// ClearLogs empties the default logger's buffer
func ClearLogs() {
	defaultLogger().ClearLogs()
}

// ExportLogs serializes the default logger's buffer as JSON
func ExportLogs() ([]byte, error) {
	return defaultLogger().ExportLogs()
}
