package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]string {
	t.Helper()
	var out []map[string]string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]string
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf)

	l.Info("skipped")
	l.Warn("kept", "row", 7)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "kept", lines[0]["msg"])
	assert.Equal(t, "7", lines[0]["row"])
}

func TestLogger_RedactsEmails(t *testing.T) {
	var buf bytes.Buffer
	l := New(DEBUG, &buf)

	l.Info("mapped", "identifier", "john.doe@example.com", "note", "contact ab@example.com now")
	l.Info("mapped", "identifier", "synthetic-1-1-abcd")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "jo***@example.com", lines[0]["identifier"])
	assert.Equal(t, "contact ***@example.com now", lines[0]["note"])
	assert.Equal(t, "synthetic-1-1-abcd", lines[1]["identifier"])
}

func TestLogger_WithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(INFO, &buf).With("component", "mapper")

	l.Info("done", "rows", 3)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "mapper", lines[0]["component"])
	assert.Equal(t, "3", lines[0]["rows"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("Warning"))
	assert.Equal(t, ERROR, ParseLevel(" error "))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
	assert.Equal(t, "***@***", RedactEmail("a@b@c.com"))
	assert.Equal(t, "jö***@example.com", RedactEmail("jörg@example.com"))
}
