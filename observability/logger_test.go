package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

func TestLogrusLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(logrus.DebugLevel)

	logger := NewLogrusLogger(base).
		WithFields(map[string]interface{}{"tool": "get_event_schedule"}).
		WithErr(errors.New("upstream down"))

	logger.Error("fetch failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "get_event_schedule", entry["tool"])
	assert.Equal(t, "upstream down", entry[ErrorLogField])
	assert.Equal(t, "fetch failed", entry["msg"])
}

func TestZapLoggerFields(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core)).
		WithFields(map[string]interface{}{"cache": "memory"})

	logger.Info("server started")

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "server started", entries[0].Message)
	assert.Equal(t, "memory", entries[0].ContextMap()["cache"])
}

func TestNullLoggerIsSafe(t *testing.T) {
	logger := NewNullLogger()

	logger.WithFields(map[string]interface{}{"k": "v"}).
		WithErr(errors.New("ignored")).
		WithContext(context.Background()).
		Info("dropped")
}
