package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of state change an event records.
type EventType string

const (
	EventPatientRegistered  EventType = "patient.registered"
	EventPatientDeactivated EventType = "patient.deactivated"
	EventDoctorAuthorized   EventType = "doctor.authorized"
	EventDoctorRevoked      EventType = "doctor.revoked"
	EventRecordAdded        EventType = "record.added"
	EventRoleGranted        EventType = "role.granted"
	EventRoleRevoked        EventType = "role.revoked"
	EventSystemPaused       EventType = "system.paused"
	EventSystemUnpaused     EventType = "system.unpaused"
)

// Event is one entry of the registry's audit trail. Every mutating
// operation emits exactly one event on success, including idempotent
// no-ops, so the trail records operator intent rather than effect.
type Event struct {
	Seq          uint64    `json:"seq"`
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	Actor        Principal `json:"actor"`
	PatientID    string    `json:"patient_id,omitempty"`
	Doctor       Principal `json:"doctor,omitempty"`
	Role         Role      `json:"role,omitempty"`
	Target       Principal `json:"target,omitempty"`
	RecordHash   string    `json:"record_hash,omitempty"`
	RecordType   string    `json:"record_type,omitempty"`
	IdentityHash string    `json:"identity_hash,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// EventLog is an append-only, totally ordered log of registry events.
// Sequence numbers start at 1 and never repeat; entries are never removed.
// External consumers (webhook dispatcher, projection) subscribe via
// channels and catch up with Since after a dropped delivery.
type EventLog struct {
	mu     sync.RWMutex
	events []Event
	subs   map[int]chan Event
	nextID int
}

// NewEventLog creates an empty event log.
func NewEventLog() *EventLog {
	return &EventLog{subs: make(map[int]chan Event)}
}

// Append assigns the next sequence number and an event ID, stores the
// event, and fans it out to subscribers. A subscriber whose buffer is full
// misses the delivery; it is expected to resynchronize with Since.
//
// The fan-out happens under the lock so that a concurrent cancel cannot
// close a channel mid-send. Sends are non-blocking, so the lock is never
// held waiting on a consumer.
func (l *EventLog) Append(ev Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev.Seq = uint64(len(l.events) + 1)
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	l.events = append(l.events, ev)

	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Len returns the number of events appended so far.
func (l *EventLog) Len() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events))
}

// Since returns up to limit events with sequence numbers strictly greater
// than after, in order. limit <= 0 means no limit.
func (l *EventLog) Since(after uint64, limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if after >= uint64(len(l.events)) {
		return nil
	}
	tail := l.events[after:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]Event, len(tail))
	copy(out, tail)
	return out
}

// Subscribe registers a buffered channel receiving future events. The
// returned cancel function removes the subscription and closes the channel.
func (l *EventLog) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}
