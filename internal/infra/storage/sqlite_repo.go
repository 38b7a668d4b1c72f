package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const eventColumns = `seq, id, session_id, timestamp, event_type, actor_id, target_id, payload`

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db        *sql.DB
	sessionID string
}

// NewSQLiteEventRepository registers sessionID and returns a repository
// scoped to it.
func NewSQLiteEventRepository(ctx context.Context, db *sql.DB, sessionID string) (*SQLiteEventRepository, error) {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, started_at) VALUES (?, ?)`,
		sessionID, time.Now().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register session: %w", err)
	}
	return &SQLiteEventRepository{db: db, sessionID: sessionID}, nil
}

// SessionID is the session every read and write is scoped to.
func (r *SQLiteEventRepository) SessionID() string {
	return r.sessionID
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event LedgerEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO economy_events (seq, id, session_id, timestamp, event_type, actor_id, target_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		int64(event.Seq), event.ID, r.sessionID, event.Timestamp.UnixNano(), event.EventType,
		event.ActorID, event.TargetID, string(payloadBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]LedgerEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []LedgerEvent
	for rows.Next() {
		var e LedgerEvent
		var seq, ts int64
		var payloadStr string
		err := rows.Scan(
			&seq, &e.ID, &e.SessionID, &ts, &e.EventType,
			&e.ActorID, &e.TargetID, &payloadStr,
		)
		if err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		e.Timestamp = time.Unix(0, ts)
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteEventRepository) GetSince(ctx context.Context, seq uint64, limit int) ([]LedgerEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM economy_events WHERE session_id = ? AND seq > ? ORDER BY seq ASC LIMIT ?`
	return r.getMany(ctx, query, r.sessionID, int64(seq), sqlLimit(limit))
}

func (r *SQLiteEventRepository) GetByEventType(ctx context.Context, eventType string, limit int) ([]LedgerEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM (
		SELECT ` + eventColumns + ` FROM economy_events
		WHERE session_id = ? AND event_type = ?
		ORDER BY seq DESC LIMIT ?
	) ORDER BY seq ASC`
	return r.getMany(ctx, query, r.sessionID, eventType, sqlLimit(limit))
}

func (r *SQLiteEventRepository) CountByType(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT event_type, COUNT(*) FROM economy_events WHERE session_id = ? GROUP BY event_type`,
		r.sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
