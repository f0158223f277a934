package authsync

import (
	"io"

	internalaudit "github.com/eventdash/authsync/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded events to an io.Writer, one per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// LoggerSink writes events through a zap logger.
type LoggerSink = internalaudit.LoggerSink

// Audit event types.
const (
	AuditSignedOut      = internalaudit.TypeSignedOut
	AuditForceClear     = internalaudit.TypeForceClear
	AuditRoleFailClosed = internalaudit.TypeRoleFailClose
	AuditNavigated      = internalaudit.TypeNavigated
	AuditBreakerTripped = internalaudit.TypeBreakerTrip
	AuditGateRedirect   = internalaudit.TypeGateRedirect
)

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewLoggerSink(log *zap.Logger) *LoggerSink {
	return internalaudit.NewLoggerSink(log)
}
