package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/auditforge/auditforge/internal/config"
)

// syncBuffer adapts a bytes.Buffer into a zapcore.WriteSyncer.
type syncBuffer struct {
	bytes.Buffer
}

func (b *syncBuffer) Sync() error { return nil }

func TestInitializeWritesJSON(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf syncBuffer
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "auditforge-test",
	}, zapcore.Lock(&buf))

	logger := GetLogger()
	require.NotNil(t, logger)
	logger.Info("pipeline started", zap.String("run_id", "abc"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, `"msg":"pipeline started"`)
	assert.Contains(t, out, `"run_id":"abc"`)
	assert.Contains(t, out, "auditforge-test")
}

func TestInitializeRunsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var first, second syncBuffer
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "one"}, zapcore.Lock(&first))
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "two"}, zapcore.Lock(&second))

	GetLogger().Info("hello")
	_ = GetLogger().Sync()

	assert.True(t, strings.Contains(first.String(), "hello"))
	assert.Empty(t, second.String(), "second Initialize must be a no-op")
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger, "fallback logger must be usable before Initialize")
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf syncBuffer
	Initialize(config.LoggerConfig{Level: "nonsense", Format: "json", ServiceName: "t"}, zapcore.Lock(&buf))

	GetLogger().Debug("should be filtered")
	GetLogger().Info("should appear")
	_ = GetLogger().Sync()

	out := buf.String()
	assert.NotContains(t, out, "should be filtered")
	assert.Contains(t, out, "should appear")
}
