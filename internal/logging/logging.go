// Package logging builds the zap loggers used across orchledger and ledgerd
// and the helper that emits one structured event per ledger outcome.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event types emitted by the install and sync paths.
const (
	EventInstallRegistered     = "install_registered"
	EventReferrerCredited      = "referrer_credited"
	EventReferrerNotFound      = "referrer_not_found"
	EventLedgerConflictRetry   = "ledger_conflict_retry"
	EventLedgerSyncFailed      = "ledger_sync_failed"
	EventFallbackRecordWritten = "fallback_record_written"
	EventDuplicateInstance     = "duplicate_instance"
	EventToolUnlocked          = "tool_unlocked"
	EventRecordRepaired        = "record_repaired"
	EventLedgerUnavailable     = "ledger_unavailable"
)

// New returns a production JSON logger writing to stderr.
// verbose lowers the level to debug.
func New(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	config.DisableStacktrace = true
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// Component returns a child logger tagged with the component name.
func Component(logger *zap.Logger, name string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(zap.String("component", name))
}

// Event logs eventType at info level.
func Event(logger *zap.Logger, eventType string, fields ...zap.Field) {
	EventAt(logger, zapcore.InfoLevel, eventType, fields...)
}

// EventAt logs eventType at the given level. The message is the event type
// so log lines stay greppable.
func EventAt(logger *zap.Logger, level zapcore.Level, eventType string, fields ...zap.Field) {
	if logger == nil {
		return
	}
	if ce := logger.Check(level, eventType); ce != nil {
		ce.Write(append([]zap.Field{zap.String("event_type", eventType)}, fields...)...)
	}
}
