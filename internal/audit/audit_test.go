package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSink) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatalf("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatalf("nil dispatcher should report zero counters")
	}
}

func TestDispatcherStampsAndDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success", UserID: "u1", Success: true})
	}
	d.Close()

	got := sink.all()
	if len(got) != 20 {
		t.Fatalf("expected 20 delivered events, got %d", len(got))
	}
	seen := map[string]bool{}
	for i, e := range got {
		if e.ID == "" || e.Timestamp.IsZero() {
			t.Fatalf("event %d not stamped: %+v", i, e)
		}
		if seen[e.ID] {
			t.Fatalf("duplicate event id %s", e.ID)
		}
		seen[e.ID] = true
		if i > 0 && got[i-1].ID >= e.ID {
			t.Fatalf("ids not ordered: %s then %s", got[i-1].ID, e.ID)
		}
	}
	if d.Delivered() != 20 {
		t.Fatalf("expected delivered=20, got %d", d.Delivered())
	}

	d.Emit(context.Background(), Event{EventType: "after_close"})
	if len(sink.all()) != 20 {
		t.Fatalf("emit after close must be ignored")
	}
}

type blockingSink struct {
	release chan struct{}
}

func (b *blockingSink) Emit(context.Context, Event) { <-b.release }

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "login_failure"})
	}
	if d.Dropped() == 0 {
		t.Fatalf("expected drops with a blocked sink and tiny buffer")
	}
	close(sink.release)
	d.Close()
}

func TestDispatcherContextCancelCountsDrop(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	d.Emit(context.Background(), Event{EventType: "a"})
	d.Emit(context.Background(), Event{EventType: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "c"})
	if d.Dropped() != 1 {
		t.Fatalf("expected one drop from cancelled context, got %d", d.Dropped())
	}
	close(sink.release)
	d.Close()
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{ID: "01", EventType: "logout", UserID: "u1", CompanyID: "c1", Success: true})

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("invalid json line %q: %v", line, err)
	}
	if decoded["company_id"] != "c1" || decoded["event_type"] != "logout" {
		t.Fatalf("unexpected payload: %v", decoded)
	}
	if _, ok := decoded["session_id"]; ok {
		t.Fatalf("empty session id should be omitted")
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), Event{EventType: "login_success", Success: true, UserID: "u1"})
	sink.Emit(context.Background(), Event{EventType: "login_failure", Error: "invalid_credentials", Metadata: map[string]string{"email": "a@b.c"}})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[1].Level != zap.WarnLevel {
		t.Fatalf("unexpected levels: %v %v", entries[0].Level, entries[1].Level)
	}
	if entries[1].ContextMap()["meta.email"] != "a@b.c" {
		t.Fatalf("metadata not logged: %v", entries[1].ContextMap())
	}
}

type failingSink struct{ calls int }

func (f *failingSink) Write(context.Context, Event) error {
	f.calls++
	return errors.New("db down")
}

func TestTolerantSinkSwallowsErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	inner := &failingSink{}
	sink := MultiSink{Tolerant(inner, zap.New(core)), NoOpSink{}}

	sink.Emit(context.Background(), Event{EventType: "login_failure"})
	if inner.calls != 1 {
		t.Fatalf("expected inner write, got %d", inner.calls)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected failure to be logged")
	}
}
