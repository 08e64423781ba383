package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var zerologLevels = map[Level]zerolog.Level{
	DEBUG: zerolog.DebugLevel,
	INFO:  zerolog.InfoLevel,
	WARN:  zerolog.WarnLevel,
	ERROR: zerolog.ErrorLevel,
}

// Logger writes structured JSON entries with secret masking.
type Logger struct {
	mu         sync.RWMutex
	base       zerolog.Logger
	level      Level
	maskSecret bool
}

var defaultLogger = New(os.Stderr, "marketer-attribution")

// New creates a logger writing JSON lines to w.
func New(w io.Writer, service string) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	base := zerolog.New(w).With().Timestamp().Str("service", service).Logger()
	return &Logger{base: base, level: INFO, maskSecret: true}
}

// NewForFormat is New with a human-readable console writer when format is
// "console".
func NewForFormat(w io.Writer, service, format string) *Logger {
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: true}
	}
	return New(w, service)
}

// SetDefault replaces the package-level logger.
func SetDefault(l *Logger) { defaultLogger = l }

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) {
	defaultLogger.mu.Lock()
	defaultLogger.level = l
	defaultLogger.mu.Unlock()
}

// SetMaskSecrets enables or disables masking of credential-like fields.
func SetMaskSecrets(m bool) {
	defaultLogger.mu.Lock()
	defaultLogger.maskSecret = m
	defaultLogger.mu.Unlock()
}

// ParseLevel maps "debug", "info", "warn" and "error" to a Level. Unknown
// values fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	}
	return INFO
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

// Fatal logs at ERROR and exits. Only for startup failures.
func Fatal(msg string, fields ...interface{}) {
	defaultLogger.log(ERROR, msg, fields...)
	os.Exit(1)
}

// Debug emits a DEBUG-level entry on l.
func (l *Logger) Debug(msg string, fields ...interface{}) { l.log(DEBUG, msg, fields...) }

// Info emits an INFO-level entry on l.
func (l *Logger) Info(msg string, fields ...interface{}) { l.log(INFO, msg, fields...) }

// Warn emits a WARN-level entry on l.
func (l *Logger) Warn(msg string, fields ...interface{}) { l.log(WARN, msg, fields...) }

// Error emits an ERROR-level entry on l.
func (l *Logger) Error(msg string, fields ...interface{}) { l.log(ERROR, msg, fields...) }

// SetLevel sets the minimum level on l.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	l.mu.RLock()
	min, mask := l.level, l.maskSecret
	l.mu.RUnlock()
	if level < min {
		return
	}

	event := l.base.WithLevel(zerologLevels[level])
	// Parse key-value pairs from fields
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		if err, ok := fields[i+1].(error); ok && key == "error" {
			event = event.Str(key, err.Error())
			continue
		}
		val := fmt.Sprintf("%v", fields[i+1])
		if mask {
			val = maskValue(key, val)
		}
		event = event.Str(key, val)
	}
	event.Msg(msg)
}
