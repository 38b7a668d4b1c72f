// Package storage provides the economy ledger: an append-only SQLite record
// of every notification the engine emits, grouped by server session.
// It is an audit trail; the engine never reads its state back from here.
package storage

import (
	"context"
	"time"
)

// LedgerEvent mirrors the notification structure for persistence.
type LedgerEvent struct {
	Seq       uint64                 `json:"seq" db:"seq"`
	ID        string                 `json:"id" db:"id"`
	SessionID string                 `json:"session_id" db:"session_id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	EventType string                 `json:"event_type" db:"event_type"`
	ActorID   string                 `json:"actor_id" db:"actor_id"`
	TargetID  string                 `json:"target_id" db:"target_id"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
}

// EventRepository defines the interface for ledger persistence.
// All reads are scoped to the repository's session.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event LedgerEvent) error

	// GetSince retrieves up to limit events with a sequence number above seq.
	// A limit of 0 means no limit.
	GetSince(ctx context.Context, seq uint64, limit int) ([]LedgerEvent, error)

	// GetByEventType retrieves the most recent events of one type, oldest first.
	GetByEventType(ctx context.Context, eventType string, limit int) ([]LedgerEvent, error)

	// CountByType returns how many events of each type were recorded.
	CountByType(ctx context.Context) (map[string]int64, error)
}
