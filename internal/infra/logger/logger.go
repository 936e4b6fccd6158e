package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

type Logger struct {
	out           *log.Logger
	stdout        io.Writer
	level         Level
	includeStdout bool
	component     string
}

// New opens (or creates) the log file at filePath and returns a Logger
// that appends to it.
func New(filePath string, level Level, includeStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return NewWithWriter(f, level, includeStdout), nil
}

// NewWithWriter builds a Logger on top of an arbitrary writer.
func NewWithWriter(w io.Writer, level Level, includeStdout bool) *Logger {
	return &Logger{
		out:           log.New(w, "", 0),
		stdout:        os.Stdout,
		level:         level,
		includeStdout: includeStdout,
	}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard, LevelFatal+1, false)
}

// Named returns a copy of the logger that tags every line with component.
func (l *Logger) Named(component string) *Logger {
	c := *l
	if c.component != "" {
		component = c.component + "." + component
	}
	c.component = component
	return &c
}

// Enabled reports whether messages at lvl would be written.
func (l *Logger) Enabled(lvl Level) bool { return lvl >= l.level }

func (l *Logger) log(lvl Level, format string, v ...interface{}) {
	if lvl < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, v...)

	var fullMsg string
	if l.component != "" {
		fullMsg = fmt.Sprintf("%s [%s] (%s) %s", timestamp, lvl, l.component, msg)
	} else {
		fullMsg = fmt.Sprintf("%s [%s] %s", timestamp, lvl, msg)
	}

	l.out.Println(fullMsg)

	// Debug stays in the file so per-line protocol traces don't flood the console
	if l.includeStdout && lvl >= LevelInfo {
		fmt.Fprintln(l.stdout, fullMsg)
	}
}

func ParseLevel(lvl string) Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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

func (l *Logger) Debug(f string, v ...any) { l.log(LevelDebug, f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.log(LevelInfo, f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.log(LevelWarn, f, v...) }
func (l *Logger) Error(f string, v ...any) { l.log(LevelError, f, v...) }
func (l *Logger) Fatal(f string, v ...any) { l.log(LevelFatal, f, v...); os.Exit(1) }

func (l *Logger) Write(p []byte) (n int, err error) {
	// Echo and net/http include a trailing newline
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.Info("%s", msg)
	}
	return len(p), nil
}
