package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one append-only audit record.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	CompanyID string            `json:"company_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events. Implementations must not block for long
// and must swallow their own failures.
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
	writer io.Writer
	mu     sync.Mutex
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

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(append(data, '\n'))
}

// ZapSink logs events through a structured logger. Failures are logged at
// warn level, successes at info.
type ZapSink struct {
	log *zap.Logger
}

func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{log: log.Named("audit")}
}

func (s *ZapSink) Emit(_ context.Context, e Event) {
	fields := make([]zap.Field, 0, 10+len(e.Metadata))
	fields = append(fields,
		zap.String("audit_id", e.ID),
		zap.Time("at", e.Timestamp),
		zap.Bool("success", e.Success),
	)
	if e.UserID != "" {
		fields = append(fields, zap.String("user_id", e.UserID))
	}
	if e.CompanyID != "" {
		fields = append(fields, zap.String("company_id", e.CompanyID))
	}
	if e.SessionID != "" {
		fields = append(fields, zap.String("session_id", e.SessionID))
	}
	if e.IP != "" {
		fields = append(fields, zap.String("ip", e.IP))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error_code", e.Error))
	}
	for k, v := range e.Metadata {
		fields = append(fields, zap.String("meta."+k, v))
	}

	if e.Success {
		s.log.Info(e.EventType, fields...)
		return
	}
	s.log.Warn(e.EventType, fields...)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, e)
		}
	}
}

// ErrorSink is a Sink whose writes can fail; Tolerant adapts it to Sink.
type ErrorSink interface {
	Write(ctx context.Context, event Event) error
}

// Tolerant wraps an ErrorSink, logging and counting failures instead of
// propagating them to the caller.
func Tolerant(s ErrorSink, log *zap.Logger) Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &tolerantSink{inner: s, log: log}
}

type tolerantSink struct {
	inner ErrorSink
	log   *zap.Logger
}

func (t *tolerantSink) Emit(ctx context.Context, e Event) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := t.inner.Write(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
		t.log.Warn("audit sink write failed", zap.String("event_type", e.EventType), zap.Error(err))
	}
}
