package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	logger, err := New(false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New(true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestEvent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := Component(zap.New(core), "install")

	Event(logger, EventInstallRegistered, zap.String("instance_id", "orch-a"))
	EventAt(logger, zapcore.WarnLevel, EventLedgerSyncFailed)

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, zapcore.InfoLevel, first.Level)
	assert.Equal(t, EventInstallRegistered, first.Message)
	assert.Equal(t, map[string]interface{}{
		"component":   "install",
		"event_type":  EventInstallRegistered,
		"instance_id": "orch-a",
	}, first.ContextMap())

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestEvent_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		Event(nil, EventInstallRegistered)
		Component(nil, "x").Info("dropped")
	})
}
