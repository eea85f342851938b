package sessionkit

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/sessionkit/sessionkit/internal/audit"
)

// AuditEvent is a single security-relevant occurrence. Events are
// recorded in the engine's queryable in-memory log and forwarded to
// the configured AuditSink.
type AuditEvent = audit.Event

// AuditFilter selects events out of the in-memory log.
type AuditFilter = audit.Filter

// AuditSink receives every audit event asynchronously. Emit must not
// panic; slow sinks cause events to be dropped when
// AuditConfig.DropIfFull is set, never to block engine operations.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit discards the event.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a channel, typically for tests or for
// bridging into an app's own event loop.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink returns a sink backed by a buffered channel.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit delivers the event or gives up when ctx is done.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to w.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink returns a sink that serializes events to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit serializes the event. Marshal failures are dropped silently;
// the audit path must never take the engine down.
func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
