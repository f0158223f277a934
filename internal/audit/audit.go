package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types emitted by the engine.
const (
	TypeSignedOut     = "session.signed_out"
	TypeForceClear    = "session.force_clear"
	TypeRoleFailClose = "roles.fail_closed"
	TypeNavigated     = "redirect.navigated"
	TypeBreakerTrip   = "redirect.breaker_tripped"
	TypeGateRedirect  = "gate.redirect"
)

// Event is one audit record.
type Event struct {
	// Seq is assigned by the Dispatcher in acceptance order. A gap marks
	// events dropped on a full buffer.
	Seq       uint64            `json:"seq,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	MountID   string            `json:"mount_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Location  string            `json:"location,omitempty"`
	Target    string            `json:"target,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
}

// LoggerSink writes events as structured log entries at Info level.
type LoggerSink struct {
	log *zap.Logger
}

func NewLoggerSink(log *zap.Logger) *LoggerSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggerSink{log: log}
}

func (s *LoggerSink) Emit(_ context.Context, event Event) {
	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.Bool("success", event.Success),
	}
	if event.Seq != 0 {
		fields = append(fields, zap.Uint64("seq", event.Seq))
	}
	if event.MountID != "" {
		fields = append(fields, zap.String("mount_id", event.MountID))
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.Location != "" {
		fields = append(fields, zap.String("location", event.Location))
	}
	if event.Target != "" {
		fields = append(fields, zap.String("target", event.Target))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.String("meta."+k, v))
	}
	s.log.Info(event.EventType, fields...)
}
