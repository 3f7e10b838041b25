package testutil

import "sync"

// Event is one stamped entry in an EventLog.
type Event struct {
	Seq   int64
	Label string
}

// EventLog records labelled events with a monotonic sequence number, so
// tests can assert happens-before relations between goroutines.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type EventLog struct {
	mu     sync.Mutex
	seq    int64
	events []Event
}

// Record stamps label with the next sequence number (starting at 1).
func (l *EventLog) Record(label string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.events = append(l.events, Event{Seq: l.seq, Label: label})
	return l.seq
}

// Events returns a copy of everything recorded so far, in stamp order.
func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// Seq returns the stamp of the first event with label, or 0.
func (l *EventLog) Seq(label string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Label == label {
			return e.Seq
		}
	}
	return 0
}

// Reset clears the log. The next Record returns 1.
func (l *EventLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq = 0
	l.events = nil
}

// FixedRunID labels every plan and run with the same id.
//
// Thread-safety: FixedRunID is stateless and safe for concurrent use.
type FixedRunID string

// Generate returns the id, or "test-run" when empty.
func (id FixedRunID) Generate() string {
	if id == "" {
		return "test-run"
	}
	return string(id)
}
