package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, LevelWarn, false)

	l.Debug("hidden %d", 1)
	l.Info("hidden %d", 2)
	l.Warn("shown %d", 3)
	l.Error("shown %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 3")
	assert.Contains(t, out, "[ERROR] shown 4")
}

func TestLoggerNamed(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, LevelDebug, false).Named("nntp").Named("poster")

	l.Info("greeting %s", "200 ok")
	assert.Contains(t, buf.String(), "(nntp.poster) greeting 200 ok")
}

func TestLoggerStdoutSkipsDebug(t *testing.T) {
	var file, console bytes.Buffer
	l := NewWithWriter(&file, LevelDebug, true)
	l.stdout = &console

	l.Debug("trace")
	l.Info("started")

	assert.Contains(t, file.String(), "trace")
	assert.NotContains(t, console.String(), "trace")
	assert.Contains(t, console.String(), "started")
}

func TestLoggerWrite(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, LevelInfo, false)

	n, err := l.Write([]byte("http: listening\n"))
	assert.NoError(t, err)
	assert.Equal(t, len("http: listening\n"), n)
	assert.Equal(t, 1, strings.Count(buf.String(), "http: listening"))
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(LevelFatal))
	l.Error("nothing")
}
