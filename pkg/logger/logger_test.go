package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for _, l := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal} {
		assert.Equal(t, l, ParseLevel(l.String()))
	}
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: FormatJSON})

	log.Debug("hidden")
	assert.Zero(t, buf.Len())

	log.WithRequestID("req-1").Info("reward granted",
		ProfileID("p-1"),
		CategoryID(3),
		Performance(1.5),
		Err(nil),
	)
	entry := decodeLine(t, &buf)
	assert.Equal(t, "reward granted", entry["message"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "req-1", entry[RequestIDKey])
	assert.Equal(t, "p-1", entry["profile_id"])
	assert.Equal(t, 3.0, entry["category_id"])
	assert.Equal(t, 1.5, entry["performance"])
	assert.NotContains(t, entry, "error")
	assert.Contains(t, entry, "timestamp")
}

func TestLogger_ErrField(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Output: &buf, Level: LevelWarn}).Error("scoring failed", Err(errors.New("boom")))
	assert.Equal(t, "boom", decodeLine(t, &buf)["error"])
}

func TestContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo}).With(Component("engine"))

	ctx := WithContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))

	FromContext(ctx).Info("ok")
	assert.Equal(t, "engine", decodeLine(t, &buf)["component"])
}
