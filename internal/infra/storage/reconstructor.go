package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pawclicker/server/internal/events"
)

// Reconstructor folds the ledger of one session into a summary.
// This is a read-only recap: nothing it computes is fed back to the engine.
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a new ledger reconstructor.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// LedgerSummary is what a session's ledger adds up to.
type LedgerSummary struct {
	Events       int64            `json:"events"`
	CountByType  map[string]int64 `json:"count_by_type"`
	FinalBalance float64          `json:"final_balance"`
	PeakBalance  float64          `json:"peak_balance"`
	PassiveGold  float64          `json:"passive_gold"`
	TapGold      float64          `json:"tap_gold"`
	Spent        float64          `json:"spent"`
	Levels       map[string]int   `json:"levels"` // Highest level reached, by resource name
	FirstEvent   *time.Time       `json:"first_event,omitempty"`
	LastEvent    *time.Time       `json:"last_event,omitempty"`
}

// RecapEvent is a simplified ledger line for display.
type RecapEvent struct {
	Seq       uint64 `json:"seq"`
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	Summary   string `json:"summary"` // Human-readable description
	Impact    string `json:"impact"`  // "POSITIVE", "NEGATIVE", "NEUTRAL"
}

// Summarize replays the whole session ledger.
func (r *Reconstructor) Summarize(ctx context.Context) (*LedgerSummary, error) {
	all, err := r.eventRepo.GetSince(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	s := &LedgerSummary{
		CountByType: make(map[string]int64),
		Levels:      make(map[string]int),
	}
	for i := range all {
		r.applyEvent(s, all[i])
	}
	if len(all) > 0 {
		first, last := all[0].Timestamp, all[len(all)-1].Timestamp
		s.FirstEvent, s.LastEvent = &first, &last
	}
	return s, nil
}

// GenerateRecap describes up to limit events recorded after seq.
// Buyability flips are left out.
func (r *Reconstructor) GenerateRecap(ctx context.Context, sinceSeq uint64, limit int) ([]RecapEvent, error) {
	all, err := r.eventRepo.GetSince(ctx, sinceSeq, 0)
	if err != nil {
		return nil, err
	}

	var recap []RecapEvent
	for _, e := range all {
		if e.EventType == string(events.EventTypeBuyabilityChanged) {
			continue
		}
		recap = append(recap, RecapEvent{
			Seq:       e.Seq,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			EventType: e.EventType,
			Summary:   summarizeEvent(e),
			Impact:    determineImpact(e),
		})
		if limit > 0 && len(recap) == limit {
			break
		}
	}
	return recap, nil
}

func (r *Reconstructor) applyEvent(s *LedgerSummary, e LedgerEvent) {
	s.Events++
	s.CountByType[e.EventType]++

	switch events.EventType(e.EventType) {
	case events.EventTypeBalanceChanged:
		s.FinalBalance = number(e.Payload, "balance")
		if s.FinalBalance > s.PeakBalance {
			s.PeakBalance = s.FinalBalance
		}
	case events.EventTypePassiveCollected:
		s.PassiveGold += number(e.Payload, "amount")
	case events.EventTypeTapCollected:
		s.TapGold += number(e.Payload, "amount")
	case events.EventTypeResourceUnlocked, events.EventTypeResourceUpgraded:
		s.Spent += number(e.Payload, "cost")
		name, _ := e.Payload["name"].(string)
		if level := int(number(e.Payload, "level")); level > s.Levels[name] {
			s.Levels[name] = level
		}
	}
}

func number(payload map[string]interface{}, key string) float64 {
	if v, ok := payload[key].(float64); ok {
		return v
	}
	return 0
}

// summarizeEvent creates a human-readable summary.
func summarizeEvent(e LedgerEvent) string {
	switch events.EventType(e.EventType) {
	case events.EventTypeBalanceChanged:
		return fmt.Sprintf("Balance is now %.2f", number(e.Payload, "balance"))
	case events.EventTypePassiveCollected:
		return fmt.Sprintf("Collected %.2f passively", number(e.Payload, "amount"))
	case events.EventTypeTapCollected:
		return fmt.Sprintf("Tapped for %.2f", number(e.Payload, "amount"))
	case events.EventTypeResourceUnlocked:
		return fmt.Sprintf("Unlocked %v for %.2f", e.Payload["name"], number(e.Payload, "cost"))
	case events.EventTypeResourceUpgraded:
		return fmt.Sprintf("Upgraded %v to level %d for %.2f", e.Payload["name"], int(number(e.Payload, "level")), number(e.Payload, "cost"))
	case events.EventTypeResourceRevealed:
		return fmt.Sprintf("%v is now available", e.Payload["name"])
	case events.EventTypePurchaseRejected:
		return fmt.Sprintf("Purchase rejected: %v", e.Payload["reason"])
	case events.EventTypeGateClosed:
		return fmt.Sprintf("Gate %v closed", e.Payload["gate_id"])
	default:
		return e.EventType
	}
}

// determineImpact classifies the event impact.
func determineImpact(e LedgerEvent) string {
	switch events.EventType(e.EventType) {
	case events.EventTypePassiveCollected, events.EventTypeTapCollected, events.EventTypeResourceRevealed:
		return "POSITIVE"
	case events.EventTypeResourceUnlocked, events.EventTypeResourceUpgraded, events.EventTypePurchaseRejected:
		return "NEGATIVE"
	default:
		return "NEUTRAL"
	}
}
