package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"Error":   LevelError,
		"info":    LevelInfo,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: "json"}).
		With(KeyComponent, "path_listeners")

	log.Debug("hidden")
	log.Info("course completed", KeyEnrollmentID, "enr-1", KeyCourseID, "course-1")
	require.NoError(t, log.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1, "debug entries are below the configured level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "course completed", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "path_listeners", entry[KeyComponent])
	assert.Equal(t, "enr-1", entry[KeyEnrollmentID])
	assert.Equal(t, "course-1", entry[KeyCourseID])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn, Format: "console"})

	log.Info("skipped")
	log.Warn("transport degraded", KeyEvent, "enrollment.completed")

	out := buf.String()
	assert.NotContains(t, out, "skipped")
	assert.Contains(t, out, "transport degraded")
	assert.Contains(t, out, "enrollment.completed")
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error("nothing", KeyError, "boom")
	assert.NoError(t, log.Sync())
}
