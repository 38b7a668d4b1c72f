// Package events provides the notification log for the economy.
// Every externally visible change made by the engine is recorded here and
// picked up by the presentation layer, the ledger and the archive.
package events

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of an economy event.
type EventType string

const (
	EventTypeBalanceChanged    EventType = "BALANCE_CHANGED"
	EventTypePassiveCollected  EventType = "PASSIVE_COLLECTED"
	EventTypeTapCollected      EventType = "TAP_COLLECTED"
	EventTypeBuyabilityChanged EventType = "BUYABILITY_CHANGED"
	EventTypeResourceUnlocked  EventType = "RESOURCE_UNLOCKED"
	EventTypeResourceUpgraded  EventType = "RESOURCE_UPGRADED"
	EventTypeResourceRevealed  EventType = "RESOURCE_REVEALED"
	EventTypePurchaseRejected  EventType = "PURCHASE_REJECTED"
	EventTypeGateClosed        EventType = "GATE_CLOSED"
)

// DefaultRetention is how many events the in-memory log keeps.
const DefaultRetention = 4096

// GameEvent represents an immutable record of an economy change.
type GameEvent struct {
	Seq       uint64      `json:"seq"`
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"`            // Who caused the change
	TargetID  string      `json:"target_id,omitempty"` // Resource or gate affected
	Payload   interface{} `json:"payload"`
}

// Sink is the narrow outbound interface the engine talks to.
type Sink interface {
	Append(event GameEvent)
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

// MultiPersister fans one event out to several persisters.
type MultiPersister []EventPersister

// Append writes to every persister and joins their errors.
func (m MultiPersister) Append(event GameEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Append(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EventLog is the in-memory, bounded, append-only log of economy events.
// Events live in a ring; once retention is reached the oldest is
// overwritten. Sequence numbers keep increasing so readers can resume with
// Since.
type EventLog struct {
	mu      sync.RWMutex
	ring    []GameEvent
	head    int // index of the oldest retained event
	count   int
	nextSeq uint64

	persistQ  chan GameEvent
	persistWG sync.WaitGroup
	closeOnce sync.Once
}

// NewEventLog creates a new event log with an optional persister.
// Persisted writes happen on a single background goroutine, in order.
func NewEventLog(retention int, persister EventPersister) *EventLog {
	if retention <= 0 {
		retention = DefaultRetention
	}
	el := &EventLog{
		ring:    make([]GameEvent, retention),
		nextSeq: 1,
	}

	if persister != nil {
		el.persistQ = make(chan GameEvent, retention)
		el.persistWG.Add(1)
		go func() {
			defer el.persistWG.Done()
			for e := range el.persistQ {
				_ = persister.Append(e)
			}
		}()
	}
	return el
}

// Append adds a new event to the log. Missing ID and Timestamp are filled in.
func (el *EventLog) Append(event GameEvent) {
	if event.ID == "" {
		event.ID = GenerateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	el.mu.Lock()
	event.Seq = el.nextSeq
	el.nextSeq++
	if el.count < len(el.ring) {
		el.ring[(el.head+el.count)%len(el.ring)] = event
		el.count++
	} else {
		el.ring[el.head] = event
		el.head = (el.head + 1) % len(el.ring)
	}
	el.mu.Unlock()

	if el.persistQ != nil {
		el.persistQ <- event
	}
}

// Close flushes pending persisted writes. Append must not be called after Close.
func (el *EventLog) Close() {
	el.closeOnce.Do(func() {
		if el.persistQ != nil {
			close(el.persistQ)
			el.persistWG.Wait()
		}
	})
}

// Since returns retained events with a sequence number greater than seq.
func (el *EventLog) Since(seq uint64) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	// Retained events hold consecutive sequence numbers ending at nextSeq-1.
	oldest := el.nextSeq - uint64(el.count)
	skip := 0
	if seq >= oldest {
		skip = int(seq - oldest + 1)
	}
	if skip >= el.count {
		return nil
	}
	result := make([]GameEvent, 0, el.count-skip)
	for i := skip; i < el.count; i++ {
		result = append(result, el.at(i))
	}
	return result
}

// at returns the i-th oldest retained event. Callers hold mu.
func (el *EventLog) at(i int) GameEvent {
	return el.ring[(el.head+i)%len(el.ring)]
}

// GetByType returns retained events of one type.
func (el *EventLog) GetByType(t EventType) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for i := 0; i < el.count; i++ {
		if e := el.at(i); e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of every retained event.
func (el *EventLog) Replay() []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	out := make([]GameEvent, el.count)
	for i := range out {
		out[i] = el.at(i)
	}
	return out
}

// LastSeq returns the sequence number of the newest event, or 0.
func (el *EventLog) LastSeq() uint64 {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.nextSeq - 1
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return time.Now().Format("20060102150405") + "-" + uuid.NewString()[:8]
}
