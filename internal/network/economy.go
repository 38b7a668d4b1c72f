package network

import (
	"context"
	"time"

	"github.com/pawclicker/server/internal/domain/resource"
	"github.com/pawclicker/server/internal/engine"
)

// Economy is the host-side facade over the engine. Every call is funnelled
// through the ticker, so REST handlers and websocket clients never touch
// the engine concurrently.
type Economy struct {
	ticker        *engine.Ticker
	tokenLifetime time.Duration
}

// NewEconomy wraps ticker. Feedback tokens handed out by Tap are released
// after tokenLifetime.
func NewEconomy(ticker *engine.Ticker, tokenLifetime time.Duration) *Economy {
	if tokenLifetime <= 0 {
		tokenLifetime = time.Second
	}
	return &Economy{ticker: ticker, tokenLifetime: tokenLifetime}
}

// TapOutcome is the result of one tap as seen by a client.
type TapOutcome struct {
	Amount  float64                `json:"amount"`
	Token   resource.FeedbackToken `json:"token"`
	Balance float64                `json:"balance"`
}

// PurchaseOutcome is the result of a successful unlock or upgrade.
type PurchaseOutcome struct {
	ResourceID resource.ID `json:"resource_id"`
	Level      int         `json:"level"`
	Balance    float64     `json:"balance"`
}

// State returns the current snapshot.
func (s *Economy) State(ctx context.Context) (engine.Snapshot, error) {
	var snap engine.Snapshot
	err := s.ticker.Do(ctx, func(e *engine.Engine) error {
		snap = e.Snapshot()
		return nil
	})
	return snap, err
}

// Tap collects at pos and schedules the token's release.
func (s *Economy) Tap(ctx context.Context, pos resource.Vec3) (TapOutcome, error) {
	var out TapOutcome
	err := s.ticker.Do(ctx, func(e *engine.Engine) error {
		res := e.CollectByTap(pos)
		out = TapOutcome{Amount: res.Amount, Token: *res.Token, Balance: e.Balance()}

		tok := res.Token
		s.ticker.After(s.tokenLifetime, func(e *engine.Engine) { e.ReleaseToken(tok) })
		return nil
	})
	return out, err
}

// Unlock buys resource id.
func (s *Economy) Unlock(ctx context.Context, id resource.ID) (PurchaseOutcome, error) {
	return s.purchase(ctx, id, (*engine.Engine).TryUnlock)
}

// Upgrade levels resource id.
func (s *Economy) Upgrade(ctx context.Context, id resource.ID) (PurchaseOutcome, error) {
	return s.purchase(ctx, id, (*engine.Engine).TryUpgrade)
}

func (s *Economy) purchase(ctx context.Context, id resource.ID, op func(*engine.Engine, resource.ID) error) (PurchaseOutcome, error) {
	out := PurchaseOutcome{ResourceID: id}
	err := s.ticker.Do(ctx, func(e *engine.Engine) error {
		err := op(e, id)
		out.Balance = e.Balance()
		if err != nil {
			return err
		}
		res, err := e.Registry().Get(id)
		if err != nil {
			return err
		}
		out.Level = res.Level
		return nil
	})
	return out, err
}

// CloseGate closes a host gate.
func (s *Economy) CloseGate(ctx context.Context, id string) error {
	return s.ticker.Do(ctx, func(e *engine.Engine) error {
		return e.CloseGate(id)
	})
}
