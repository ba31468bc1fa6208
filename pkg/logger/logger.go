package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Level represents log level
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Config holds logger configuration
type Config struct {
	Level  string
	Format string // "text" or "json"
	Output io.Writer
}

// Logger writes leveled messages with key/value fields
type Logger struct {
	level     Level
	json      bool
	component string
	out       io.Writer
	logger    *log.Logger
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// New creates a new logger
func New(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	l := &Logger{
		level: parseLevel(cfg.Level),
		json:  strings.EqualFold(cfg.Format, "json"),
		out:   output,
	}
	l.logger = l.newStdLogger("")
	return l
}

// WithComponent creates a child logger with a component prefix
func (l *Logger) WithComponent(component string) *Logger {
	child := &Logger{
		level:     l.level,
		json:      l.json,
		component: component,
		out:       l.out,
	}
	child.logger = child.newStdLogger(fmt.Sprintf("[%s] ", component))
	return child
}

func (l *Logger) newStdLogger(prefix string) *log.Logger {
	if l.json {
		// JSON lines carry their own timestamp and component
		return log.New(l.out, "", 0)
	}
	return log.New(l.out, prefix, log.LstdFlags)
}

// Enabled reports whether messages at lvl are written
func (l *Logger) Enabled(lvl Level) bool { return l.level <= lvl }

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Field) {
	if l.level <= DebugLevel {
		l.log(DebugLevel, msg, fields...)
	}
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Field) {
	if l.level <= InfoLevel {
		l.log(InfoLevel, msg, fields...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Field) {
	if l.level <= WarnLevel {
		l.log(WarnLevel, msg, fields...)
	}
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...Field) {
	if l.level <= ErrorLevel {
		l.log(ErrorLevel, msg, fields...)
	}
}

func (l *Logger) log(level Level, msg string, fields ...Field) {
	if l.json {
		l.logJSON(level, msg, fields)
		return
	}

	if len(fields) == 0 {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}

	fieldStrs := make([]string, 0, len(fields))
	for _, f := range fields {
		fieldStrs = append(fieldStrs, fmt.Sprintf("%s=%v", f.Key, f.Value))
	}

	l.logger.Printf("[%s] %s %s", level, msg, strings.Join(fieldStrs, " "))
}

func (l *Logger) logJSON(level Level, msg string, fields []Field) {
	entry := make(map[string]interface{}, len(fields)+4)
	for _, f := range fields {
		entry[f.Key] = f.Value
	}
	entry["time"] = time.Now().Format(time.RFC3339Nano)
	entry["level"] = strings.ToLower(level.String())
	entry["msg"] = msg
	if l.component != "" {
		entry["component"] = l.component
	}

	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf(`{"level":"error","msg":"log marshal failed","error":%q}`, err.Error())
		return
	}
	l.logger.Print(string(data))
}

func parseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Field constructors

// String creates a string field
func String(key, val string) Field {
	return Field{Key: key, Value: val}
}

// Int creates an int field
func Int(key string, val int) Field {
	return Field{Key: key, Value: val}
}

// Bool creates a bool field
func Bool(key string, val bool) Field {
	return Field{Key: key, Value: val}
}

// Hex creates a field rendered as 0x-prefixed hex, zero padded to width digits
func Hex(key string, val uint64, width int) Field {
	return Field{Key: key, Value: fmt.Sprintf("0x%0*X", width, val)}
}

// Duration creates a field rendered in microseconds, the resolution IR timings use
func Duration(key string, d time.Duration) Field {
	return Field{Key: key, Value: fmt.Sprintf("%dus", d.Microseconds())}
}

// Error creates an error field
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "nil"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with any value
func Any(key string, val interface{}) Field {
	return Field{Key: key, Value: val}
}
