// Structured logging for the gcode splitter.
//
// Provides a leveled logger with support for:
// - Log levels (DEBUG, INFO, WARN, ERROR)
// - Structured fields (key-value pairs)
// - Text or JSON output
// - ANSI colors for terminal output
// - Per-component loggers with prefixes
//
// Progress printing is deliberately outside the core transform contract:
// parsing and synthesis never consult the logger.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	// DEBUG level for detailed per-line and per-layer information
	DEBUG Level = iota

	// INFO level for per-part progress
	INFO

	// WARN level for recoverable oddities
	WARN

	// ERROR level for fatal conditions
	ERROR
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Format specifies the output format for log messages.
type Format int

const (
	// FormatText outputs human-readable text
	FormatText Format = iota
	// FormatJSON outputs machine-readable JSON
	FormatJSON
)

// Fields is a map of structured logging fields.
type Fields map[string]interface{}

// Logger is the main logging type.
type Logger struct {
	mu         sync.Mutex
	prefix     string
	writer     io.Writer
	level      Level
	timeFormat string
	colorize   bool
	format     Format
}

var (
	defaultLogger *Logger

	ansiColors = map[Level]string{
		DEBUG: "\x1b[36m", // Cyan
		INFO:  "\x1b[32m", // Green
		WARN:  "\x1b[33m", // Yellow
		ERROR: "\x1b[31m", // Red
	}
	ansiReset = "\x1b[0m"
)

// New creates a new logger with the given prefix.
func New(prefix string) *Logger {
	return &Logger{
		prefix:     prefix,
		writer:     os.Stderr,
		level:      INFO,
		timeFormat: "2006-01-02 15:04:05.000",
		colorize:   os.Getenv("NO_COLOR") == "",
		format:     FormatText,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetWriter sets the output writer (e.g., for testing).
func (l *Logger) SetWriter(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// SetColorize enables or disables colorized output.
func (l *Logger) SetColorize(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.colorize = enable
}

// SetFormat sets the output format (FormatText or FormatJSON).
func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
}

// WithPrefix returns a new logger with a modified prefix sharing the
// same destination and level.
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		prefix:     prefix,
		writer:     l.writer,
		level:      l.level,
		timeFormat: l.timeFormat,
		colorize:   l.colorize,
		format:     l.format,
	}
}

func (l *Logger) formatText(level Level, msg string, fields Fields) string {
	var sb strings.Builder

	sb.WriteString(time.Now().Format(l.timeFormat))
	sb.WriteString(" [")
	sb.WriteString(fmt.Sprintf("%-5s", level.String()))
	sb.WriteString("] ")

	if l.colorize {
		sb.WriteString(ansiColors[level])
	}
	sb.WriteString(l.prefix)
	if l.colorize {
		sb.WriteString(ansiReset)
	}
	sb.WriteString(": ")
	sb.WriteString(msg)

	if len(fields) > 0 {
		sb.WriteString(" {")
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(fmt.Sprintf("%v", fields[k]))
		}
		sb.WriteString("}")
	}

	sb.WriteString("\n")
	return sb.String()
}

type jsonEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Logger    string                 `json:"logger"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) formatJSON(level Level, msg string, fields Fields) string {
	entry := jsonEntry{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Level:     level.String(),
		Logger:    l.prefix,
		Message:   msg,
		Fields:    fields,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal log entry: %v"}`+"\n", err)
	}
	return string(data) + "\n"
}

func (l *Logger) log(level Level, msg string, fields Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	var output string
	if l.format == FormatJSON {
		output = l.formatJSON(level, msg, fields)
	} else {
		output = l.formatText(level, msg, fields)
	}
	fmt.Fprint(l.writer, output)
}

// Debug logs a formatted message at DEBUG level.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(DEBUG, sprintf(msg, args), nil)
}

// Info logs a formatted message at INFO level.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(INFO, sprintf(msg, args), nil)
}

// Warn logs a formatted message at WARN level.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(WARN, sprintf(msg, args), nil)
}

// Error logs a formatted message at ERROR level.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(ERROR, sprintf(msg, args), nil)
}

// WithFields logs a message with structured fields at the given level.
func (l *Logger) WithFields(level Level, msg string, fields Fields) {
	l.log(level, msg, fields)
}

func sprintf(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// SetDefaultLogger sets the global default logger.
func SetDefaultLogger(logger *Logger) {
	defaultLogger = logger
}

// GetLogger returns a logger derived from the default one.
func GetLogger(prefix string) *Logger {
	if defaultLogger == nil {
		defaultLogger = New("gsplit")
	}
	if prefix == "" {
		return defaultLogger
	}
	return defaultLogger.WithPrefix(prefix)
}

// ConfigureFromEnv applies environment-based configuration to the logger.
// Environment variables:
//   - GSPLIT_LOG_LEVEL: DEBUG, INFO, WARN, ERROR
//   - GSPLIT_LOG_FORMAT: text, json
//   - NO_COLOR: any non-empty value disables colors
func ConfigureFromEnv(l *Logger) {
	if levelStr := os.Getenv("GSPLIT_LOG_LEVEL"); levelStr != "" {
		l.SetLevel(ParseLevel(levelStr))
	}
	if formatStr := os.Getenv("GSPLIT_LOG_FORMAT"); formatStr != "" {
		switch strings.ToLower(formatStr) {
		case "json":
			l.SetFormat(FormatJSON)
		case "text":
			l.SetFormat(FormatText)
		}
	}
	if os.Getenv("NO_COLOR") != "" {
		l.SetColorize(false)
	}
}

func init() {
	defaultLogger = New("gsplit")
	ConfigureFromEnv(defaultLogger)
}
