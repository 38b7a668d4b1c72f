package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pawclicker/server/internal/events"
	"github.com/pawclicker/server/internal/platform/metrics"
)

// LedgerPersister translates notifications to ledger rows.
// It satisfies events.EventPersister.
type LedgerPersister struct {
	repo    EventRepository
	metrics *metrics.Collector
	timeout time.Duration
}

// NewLedgerPersister wraps repo. m may be nil.
func NewLedgerPersister(repo EventRepository, m *metrics.Collector) *LedgerPersister {
	return &LedgerPersister{repo: repo, metrics: m, timeout: 5 * time.Second}
}

func (p *LedgerPersister) Append(event events.GameEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		p.record(err)
		return err
	}
	var payloadMap map[string]interface{}
	if err := json.Unmarshal(payloadBytes, &payloadMap); err != nil {
		// Non-object payloads are kept under a single key.
		payloadMap = map[string]interface{}{"value": json.RawMessage(payloadBytes)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err = p.repo.Append(ctx, LedgerEvent{
		Seq:       event.Seq,
		ID:        event.ID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		ActorID:   event.ActorID,
		TargetID:  event.TargetID,
		Payload:   payloadMap,
	})
	p.record(err)
	return err
}

func (p *LedgerPersister) record(err error) {
	if p.metrics != nil {
		p.metrics.RecordEventWrite(err)
	}
}
