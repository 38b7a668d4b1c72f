package engine

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/pawclicker/server/internal/domain/resource"
	"github.com/pawclicker/server/internal/domain/rules"
	"github.com/pawclicker/server/internal/events"
	"github.com/pawclicker/server/internal/platform/logger"
	"github.com/pawclicker/server/internal/platform/metrics"
)

// CollectInterval is how much wall time must accumulate before a passive
// collection fires. Any surplus beyond it is discarded.
const CollectInterval = time.Second

// ActorEngine is the actor recorded on every event the engine emits.
const ActorEngine = "ECONOMY"

// Settings is the static input the engine is built from.
type Settings struct {
	AutoCollectFraction float64
	Curve               rules.Curve
	Resources           []resource.Config
	Gates               []resource.GateConfig
}

// State is the session-wide currency pool.
type State struct {
	Balance             float64 `json:"balance"`
	AutoCollectFraction float64 `json:"auto_collect_fraction"`
}

// BuyableKind distinguishes resources from host gates in buyability reports.
type BuyableKind string

const (
	KindResource BuyableKind = "resource"
	KindGate     BuyableKind = "gate"
)

// Buyability is one entry of the per-tick affordability projection.
type Buyability struct {
	Kind    BuyableKind `json:"kind"`
	ID      string      `json:"id"`
	Buyable bool        `json:"buyable"`
}

// BalancePayload is attached to BALANCE_CHANGED.
type BalancePayload struct {
	Balance float64 `json:"balance"`
}

// PassivePayload is attached to PASSIVE_COLLECTED.
type PassivePayload struct {
	Amount float64 `json:"amount"`
	Rate   float64 `json:"rate"` // Aggregate output the amount was taken from
}

// TapPayload is attached to TAP_COLLECTED.
type TapPayload struct {
	Amount   float64       `json:"amount"`
	TokenID  int           `json:"token_id"`
	Position resource.Vec3 `json:"position"`
	Balance  float64       `json:"balance"`
}

// PurchasePayload is attached to RESOURCE_UNLOCKED and RESOURCE_UPGRADED.
type PurchasePayload struct {
	ResourceID resource.ID `json:"resource_id"`
	Name       string      `json:"name"`
	Level      int         `json:"level"`
	Cost       float64     `json:"cost"`
}

// RevealPayload is attached to RESOURCE_REVEALED.
type RevealPayload struct {
	ResourceID resource.ID `json:"resource_id"`
	Name       string      `json:"name"`
}

// RejectPayload is attached to PURCHASE_REJECTED.
type RejectPayload struct {
	ResourceID resource.ID `json:"resource_id"`
	Op         Op          `json:"op"`
	Reason     string      `json:"reason"`
	Cost       float64     `json:"cost"`
	Balance    float64     `json:"balance"`
}

// GatePayload is attached to GATE_CLOSED.
type GatePayload struct {
	GateID string `json:"gate_id"`
}

// TapResult is what a tap hands back to the host for rendering.
// The token stays active until the host releases it.
type TapResult struct {
	Amount float64
	Token  *resource.FeedbackToken
}

type gate struct {
	id     string
	price  float64
	closed bool
}

// Engine is the economy orchestrator and the only writer of the balance.
// It is not safe for concurrent use; hosts serialize calls through a Ticker.
type Engine struct {
	registry *Registry
	pool     *TapTextPool
	sink     events.Sink
	logger   *logger.Logger
	metrics  *metrics.Collector

	balance     float64
	fraction    float64
	accumulator time.Duration

	gates       []*gate
	lastBuyable map[string]bool
}

// NewEngine builds the registry from settings and emits the initial
// buyability of every purchasable.
func NewEngine(settings Settings, sink events.Sink, log *logger.Logger, m *metrics.Collector) *Engine {
	if sink == nil {
		sink = discardSink{}
	}
	if log == nil {
		log = logger.NewDiscard()
	}
	if m == nil {
		m = metrics.NewCollector()
	}

	fraction := settings.AutoCollectFraction
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}

	e := &Engine{
		registry:    NewRegistry(settings.Curve),
		pool:        NewTapTextPool(),
		sink:        sink,
		logger:      log,
		metrics:     m,
		fraction:    fraction,
		lastBuyable: make(map[string]bool),
	}
	e.registry.Initialize(settings.Resources)
	for _, g := range settings.Gates {
		e.gates = append(e.gates, &gate{id: g.ID, price: g.Price})
	}

	e.RecomputeBuyability()
	return e
}

// Tick advances the passive-income clock by elapsed wall time. When a full
// CollectInterval has accumulated the passive share of aggregate output is
// added and the accumulator is reset to zero. Buyability is refreshed on
// every call.
func (e *Engine) Tick(elapsed time.Duration) (collected float64, fired bool) {
	if elapsed > 0 {
		e.accumulator += elapsed
	}

	if e.accumulator >= CollectInterval {
		e.accumulator = 0

		rate := e.registry.AggregateOutput()
		collected = rate * e.fraction
		e.addGold(collected)
		e.emit(events.EventTypePassiveCollected, "", PassivePayload{Amount: collected, Rate: rate})
		e.metrics.RecordPassive(collected)
		fired = true
	}

	e.RecomputeBuyability()
	return collected, fired
}

// CollectByTap adds the full aggregate output and hands out one feedback
// token carrying the amount and position.
func (e *Engine) CollectByTap(pos resource.Vec3) TapResult {
	amount := e.registry.AggregateOutput()
	e.addGold(amount)

	tok := e.pool.Acquire()
	tok.DisplayValue = amount
	tok.Position = pos

	e.emit(events.EventTypeTapCollected, "", TapPayload{
		Amount:   amount,
		TokenID:  tok.ID,
		Position: pos,
		Balance:  e.balance,
	})
	e.metrics.RecordTap(amount)
	e.RecomputeBuyability()

	return TapResult{Amount: amount, Token: tok}
}

// ReleaseToken returns a feedback token to the pool once its display ends.
func (e *Engine) ReleaseToken(tok *resource.FeedbackToken) {
	if tok == nil {
		return
	}
	e.pool.Release(tok)
}

// AddGold credits the balance. Negative, NaN and infinite values are
// rejected and change nothing.
func (e *Engine) AddGold(value float64) error {
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return ErrNegativeAmount
	}
	e.addGold(value)
	e.RecomputeBuyability()
	return nil
}

func (e *Engine) addGold(value float64) {
	e.balance += value
	e.emit(events.EventTypeBalanceChanged, "", BalancePayload{Balance: e.balance})
}

// TryUnlock pays the unlock cost and moves the resource to level 1.
// On failure neither the balance nor any level changes.
func (e *Engine) TryUnlock(id resource.ID) error {
	if err := e.registry.CheckUnlock(id); err != nil {
		return e.reject(id, OpUnlock, 0, err)
	}

	res, _ := e.registry.Get(id)
	cost := e.registry.Curve().UnlockCost(&res)
	if e.balance < cost {
		return e.reject(id, OpUnlock, cost, &InsufficientFundsError{ResourceID: id, Op: OpUnlock, Cost: cost, Balance: e.balance})
	}

	if err := e.registry.Unlock(id); err != nil {
		return e.reject(id, OpUnlock, cost, err)
	}
	e.balance -= cost
	e.emit(events.EventTypeBalanceChanged, "", BalancePayload{Balance: e.balance})
	e.emit(events.EventTypeResourceUnlocked, resourceTarget(id), PurchasePayload{
		ResourceID: id,
		Name:       res.Name,
		Level:      1,
		Cost:       cost,
	})
	e.metrics.RecordUnlock()
	e.logger.Event(string(events.EventTypeResourceUnlocked), ActorEngine,
		fmt.Sprintf("%s unlocked for %.2f (balance %.2f)", res.Name, cost, e.balance))

	e.revealFollowing()
	e.RecomputeBuyability()
	return nil
}

// TryUpgrade pays the upgrade cost and adds one level.
// On failure neither the balance nor any level changes.
func (e *Engine) TryUpgrade(id resource.ID) error {
	if err := e.registry.CheckUpgrade(id); err != nil {
		return e.reject(id, OpUpgrade, 0, err)
	}

	res, _ := e.registry.Get(id)
	cost := e.registry.Curve().UpgradeCost(&res)
	if e.balance < cost {
		return e.reject(id, OpUpgrade, cost, &InsufficientFundsError{ResourceID: id, Op: OpUpgrade, Cost: cost, Balance: e.balance})
	}

	if err := e.registry.Upgrade(id); err != nil {
		return e.reject(id, OpUpgrade, cost, err)
	}
	e.balance -= cost
	e.emit(events.EventTypeBalanceChanged, "", BalancePayload{Balance: e.balance})
	e.emit(events.EventTypeResourceUpgraded, resourceTarget(id), PurchasePayload{
		ResourceID: id,
		Name:       res.Name,
		Level:      res.Level + 1,
		Cost:       cost,
	})
	e.metrics.RecordUpgrade()
	e.logger.Event(string(events.EventTypeResourceUpgraded), ActorEngine,
		fmt.Sprintf("%s -> level %d for %.2f (balance %.2f)", res.Name, res.Level+1, cost, e.balance))

	e.RecomputeBuyability()
	return nil
}

// revealFollowing reveals the next hidden resource. Resources that are
// already unlocked do not stop the reveal, so it continues until a locked
// one is shown.
func (e *Engine) revealFollowing() {
	for {
		id, ok := e.registry.RevealNext()
		if !ok {
			return
		}
		res, _ := e.registry.Get(id)
		e.emit(events.EventTypeResourceRevealed, resourceTarget(id), RevealPayload{ResourceID: id, Name: res.Name})
		if !res.IsUnlocked() {
			return
		}
	}
}

func (e *Engine) reject(id resource.ID, op Op, cost float64, err error) error {
	e.emit(events.EventTypePurchaseRejected, resourceTarget(id), RejectPayload{
		ResourceID: id,
		Op:         op,
		Reason:     Code(err),
		Cost:       cost,
		Balance:    e.balance,
	})
	e.metrics.RecordRejected()
	e.logger.Event(string(events.EventTypePurchaseRejected), ActorEngine, err.Error())
	return err
}

// CloseGate permanently marks a host gate as not buyable.
func (e *Engine) CloseGate(id string) error {
	for _, g := range e.gates {
		if g.id != id {
			continue
		}
		if !g.closed {
			g.closed = true
			e.emit(events.EventTypeGateClosed, "gate:"+id, GatePayload{GateID: id})
			e.RecomputeBuyability()
		}
		return nil
	}
	return fmt.Errorf("close gate %q: %w", id, ErrUnknownGate)
}

// RecomputeBuyability evaluates every resource and gate against the current
// balance. A BUYABILITY_CHANGED event is emitted only for entries whose value
// differs from the last one reported.
func (e *Engine) RecomputeBuyability() []Buyability {
	out := make([]Buyability, 0, e.registry.Len()+len(e.gates))
	for i := 0; i < e.registry.Len(); i++ {
		id := resource.ID(i)
		out = append(out, Buyability{
			Kind:    KindResource,
			ID:      strconv.Itoa(i),
			Buyable: e.registry.IsBuyable(id, e.balance),
		})
	}
	for _, g := range e.gates {
		out = append(out, Buyability{
			Kind:    KindGate,
			ID:      g.id,
			Buyable: !g.closed && e.balance >= g.price,
		})
	}

	for _, b := range out {
		key := string(b.Kind) + ":" + b.ID
		if prev, seen := e.lastBuyable[key]; seen && prev == b.Buyable {
			continue
		}
		e.lastBuyable[key] = b.Buyable
		e.emit(events.EventTypeBuyabilityChanged, key, b)
	}
	return out
}

// IsBuyable reports whether the next purchase of id is affordable now.
func (e *Engine) IsBuyable(id resource.ID) bool {
	return e.registry.IsBuyable(id, e.balance)
}

// Balance is the current currency pool.
func (e *Engine) Balance() float64 {
	return e.balance
}

// State returns the balance and passive fraction.
func (e *Engine) State() State {
	return State{Balance: e.balance, AutoCollectFraction: e.fraction}
}

// AggregateOutput is the summed output of every unlocked, revealed resource.
func (e *Engine) AggregateOutput() float64 {
	return e.registry.AggregateOutput()
}

// Registry exposes read access to the resource list.
func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) emit(t events.EventType, target string, payload interface{}) {
	e.sink.Append(events.GameEvent{
		Type:     t,
		ActorID:  ActorEngine,
		TargetID: target,
		Payload:  payload,
	})
}

func resourceTarget(id resource.ID) string {
	return "resource:" + strconv.Itoa(int(id))
}

type discardSink struct{}

func (discardSink) Append(events.GameEvent) {}
