package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"":        InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestDefaultLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLoggerTo(&buf, DebugLevel).WithFields(Fields{"component": "test"})

	logger.Info("hello", Fields{"frames": 3})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "test", line["component"])
	assert.EqualValues(t, 3, line["frames"])
}

func TestDefaultLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLoggerTo(&buf, WarnLevel)

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Error(errors.New("boom"), "kept")
	assert.True(t, strings.Contains(buf.String(), "boom"))
}

func TestWithContextPicksUpRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLoggerTo(&buf, InfoLevel)

	ctx := ContextWithFields(context.Background(), Fields{"request_id": "abc"})
	ctx = ContextWithFields(ctx, Fields{"filename": "a.wav"})

	logger.WithContext(ctx).Info("scoped")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "abc", line["request_id"])
	assert.Equal(t, "a.wav", line["filename"])
}

func TestSetGlobalLoggerNil(t *testing.T) {
	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	SetGlobalLogger(nil)
	_, ok := GetGlobalLogger().(*NoOpLogger)
	assert.True(t, ok)
}
