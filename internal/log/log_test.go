package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContextJSON(t *testing.T) {
	var buf bytes.Buffer
	ctx := NewContext(context.Background(), LevelInfo, OutputJSON, &buf)
	ctx = With(ctx, "credential", "abc")

	Debug(ctx, "hidden")
	Info(ctx, "visible", "attempt", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "abc", entry["credential"])
	assert.EqualValues(t, 3, entry["attempt"])
}

func TestLogEscalation(t *testing.T) {
	var buf bytes.Buffer
	ctx := NewContext(context.Background(), LevelWarn, OutputText, &buf)

	Log(ctx, LevelInfo, "skipped")
	assert.Empty(t, buf.String())

	Log(ctx, LevelErr, "escalated")
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "escalated")
}

func TestCopyFromContext(t *testing.T) {
	var buf bytes.Buffer
	orig := NewContext(context.Background(), LevelDebug, OutputText, &buf)
	dest := CopyFromContext(orig, context.Background())
	Info(dest, "copied")
	assert.Contains(t, buf.String(), "copied")
}
