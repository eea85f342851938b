// Package audit implements the append-only in-memory trail of
// security-relevant events.
//
// # Ordering
//
// Timestamps are assigned by the log at record time, never by the caller,
// and are strictly monotonic: two events recorded back-to-back within the
// same clock tick still order correctly.
//
// # Failure policy
//
// Record never fails and never blocks the security path it observes. Events
// that cannot be kept (history bound reached) are dropped oldest-first and
// counted; the counter is the only signal of loss.
package audit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event is a single recorded security event.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"type"`
	Subject   string            `json:"subject,omitempty"`
	Endpoint  string            `json:"endpoint,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Filter selects events in Query. Zero fields match everything.
type Filter struct {
	Types   []string
	Subject string
	From    time.Time
	To      time.Time
}

func (f Filter) matches(ev Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if ev.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Subject != "" && ev.Subject != f.Subject {
		return false
	}
	if !f.From.IsZero() && ev.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ev.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Log is the append-only event recorder.
type Log struct {
	mu      sync.Mutex
	events  []Event
	last    time.Time
	limit   int
	dropped atomic.Uint64
	now     func() time.Time
}

// NewLog creates a log bounded to limit events; limit <= 0 means unbounded.
func NewLog(limit int) *Log {
	return &Log{
		limit: limit,
		now:   time.Now,
	}
}

// NewLogAt is NewLog with an injected clock for tests.
func NewLogAt(limit int, now func() time.Time) *Log {
	l := NewLog(limit)
	l.now = now
	return l
}

// Record appends ev, assigning its ID and a monotonic timestamp, and returns
// the stored event. It never returns an error.
func (l *Log) Record(ev Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now().UTC()
	if !ts.After(l.last) {
		ts = l.last.Add(time.Nanosecond)
	}
	l.last = ts

	ev.ID = uuid.NewString()
	ev.Timestamp = ts

	if l.limit > 0 && len(l.events) >= l.limit {
		shift := len(l.events) - l.limit + 1
		l.events = append(l.events[:0], l.events[shift:]...)
		l.dropped.Add(uint64(shift))
	}
	l.events = append(l.events, ev)

	return ev
}

// Query returns events matching f in record order.
func (l *Log) Query(f Filter) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Event
	for _, ev := range l.events {
		if f.matches(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Dropped returns how many events were discarded to honor the bound.
func (l *Log) Dropped() uint64 {
	return l.dropped.Load()
}
