package authsync

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eventdash/authsync/identity/memory"
	"github.com/eventdash/authsync/internal/schedule"
	"github.com/eventdash/authsync/roles"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func buildAuditEngine(t *testing.T, enabled bool, sink AuditSink) (*Engine, *memory.Provider) {
	t.Helper()
	provider := memory.New()
	provider.SetSession(memory.NewSession("u1", "u1@example.com", epoch, time.Hour))
	cfg := DefaultConfig()
	cfg.Audit.Enabled = enabled

	engine, err := New().
		WithConfig(cfg).
		WithProvider(provider).
		WithRoleSource(roles.SourceFunc(func(context.Context, string) ([]string, error) {
			return []string{roles.Host}, nil
		})).
		WithAuditSink(sink).
		WithScheduler(schedule.NewManual(epoch)).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return engine, provider
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	engine, _ := buildAuditEngine(t, false, sink)

	v, err := engine.Mount(context.Background(), &hostNav{}, "/host")
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	waitReady(t, v)
	v.ForceClear()
	engine.Close()

	if got := sink.count.Load(); got != 0 {
		t.Fatalf("expected no audit events when disabled, got %d", got)
	}
	if engine.AuditDropped() != 0 {
		t.Fatalf("expected no drops, got %d", engine.AuditDropped())
	}
}

func TestAuditJSONWriterSinkFromEngine(t *testing.T) {
	var buf lockedBuffer
	engine, _ := buildAuditEngine(t, true, NewJSONWriterSink(&buf))

	v, err := engine.Mount(context.Background(), &hostNav{}, "/host")
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	waitReady(t, v)
	v.ForceClear()
	// Close drains the dispatcher.
	engine.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one JSON line, got %q", buf.String())
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("decode audit line: %v", err)
	}
	if ev.EventType != AuditForceClear || ev.MountID != v.ID() || ev.Location != "/host" {
		t.Fatalf("unexpected audit event %+v", ev)
	}
	if !ev.Timestamp.Equal(epoch) {
		t.Fatalf("expected scheduler timestamp, got %v", ev.Timestamp)
	}
	if strings.Contains(lines[0], "eyJ") {
		t.Fatal("audit event leaked an access token")
	}
}
