package server

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log entry.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
}

// LogOptions configures the process logger.
type LogOptions struct {
	Level  string // debug|info|warn|error, default info
	Format string // "json" or plain key=value text
	File   string // optional rotating log file, stdout when empty

	// Rotation settings, only used when File is set.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger writes leveled, structured log lines as JSON or key=value text.
type Logger struct {
	output   io.Writer
	minLevel LogLevel
	json     bool
}

type logEntry struct {
	Level   LogLevel       `json:"level"`
	Time    string         `json:"time"`
	Message string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// NewLogger builds a Logger from opts. When opts.File is set the output is
// duplicated to a size-rotated file.
func NewLogger(opts LogOptions) *Logger {
	level := LogLevel(opts.Level)
	if _, ok := levelRank[level]; !ok {
		level = LogLevelInfo
	}

	var out io.Writer = os.Stdout
	if opts.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		out = io.MultiWriter(os.Stdout, fileWriter)
	}

	return &Logger{
		output:   out,
		minLevel: level,
		json:     opts.Format == "json",
	}
}

// NewTestLogger returns a logger that discards everything.
func NewTestLogger() *Logger {
	return &Logger{output: io.Discard, minLevel: LogLevelError}
}

func (l *Logger) log(level LogLevel, msg string, fields map[string]any, err error) {
	if l == nil || levelRank[level] < levelRank[l.minLevel] {
		return
	}

	entry := logEntry{
		Level:   level,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Message: msg,
		Fields:  fields,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	if l.json {
		data, _ := json.Marshal(entry)
		fmt.Fprintln(l.output, string(data))
		return
	}

	fmt.Fprintf(l.output, "level=%s time=%s msg=%q", entry.Level, entry.Time, entry.Message)
	for k, v := range entry.Fields {
		fmt.Fprintf(l.output, " %s=%v", k, v)
	}
	if entry.Error != "" {
		fmt.Fprintf(l.output, " error=%q", entry.Error)
	}
	fmt.Fprintln(l.output)
}

func (l *Logger) Debug(msg string, fields map[string]any) {
	l.log(LogLevelDebug, msg, fields, nil)
}

func (l *Logger) Info(msg string, fields map[string]any) {
	l.log(LogLevelInfo, msg, fields, nil)
}

func (l *Logger) Warn(msg string, fields map[string]any) {
	l.log(LogLevelWarn, msg, fields, nil)
}

func (l *Logger) Error(msg string, fields map[string]any, err error) {
	l.log(LogLevelError, msg, fields, err)
}
