package engine

import "github.com/pawclicker/server/internal/domain/resource"

// ResourceView is the read-only projection of one resource.
type ResourceView struct {
	ID          resource.ID `json:"id"`
	Name        string      `json:"name"`
	Level       int         `json:"level"`
	Unlocked    bool        `json:"unlocked"`
	Revealed    bool        `json:"revealed"`
	UnlockCost  float64     `json:"unlock_cost"`
	UpgradeCost float64     `json:"upgrade_cost"`
	NextCost    float64     `json:"next_cost"`
	Output      float64     `json:"output"`
	Buyable     bool        `json:"buyable"`
}

// GateView is the read-only projection of one host gate.
type GateView struct {
	ID      string  `json:"id"`
	Price   float64 `json:"price"`
	Closed  bool    `json:"closed"`
	Buyable bool    `json:"buyable"`
}

// Snapshot is the serializable economy state: balance and levels in order,
// plus the display fields a client needs to draw the store.
type Snapshot struct {
	Balance             float64        `json:"balance"`
	Levels              []int          `json:"levels"`
	AutoCollectFraction float64        `json:"auto_collect_fraction"`
	AggregateOutput     float64        `json:"aggregate_output"`
	PassiveRate         float64        `json:"passive_rate"`
	Resources           []ResourceView `json:"resources"`
	Gates               []GateView     `json:"gates"`
	PoolSize            int            `json:"pool_size"`
	ActiveTokens        int            `json:"active_tokens"`
}

// Snapshot copies the current state. It does not emit anything.
func (e *Engine) Snapshot() Snapshot {
	curve := e.registry.Curve()
	aggregate := e.registry.AggregateOutput()

	s := Snapshot{
		Balance:             e.balance,
		Levels:              e.registry.Levels(),
		AutoCollectFraction: e.fraction,
		AggregateOutput:     aggregate,
		PassiveRate:         aggregate * e.fraction,
		Resources:           make([]ResourceView, 0, e.registry.Len()),
		Gates:               make([]GateView, 0, len(e.gates)),
		PoolSize:            e.pool.Size(),
		ActiveTokens:        e.pool.ActiveCount(),
	}

	for _, r := range e.registry.All() {
		r := r
		s.Resources = append(s.Resources, ResourceView{
			ID:          r.ID,
			Name:        r.Name,
			Level:       r.Level,
			Unlocked:    r.IsUnlocked(),
			Revealed:    r.Revealed,
			UnlockCost:  curve.UnlockCost(&r),
			UpgradeCost: curve.UpgradeCost(&r),
			NextCost:    curve.NextCost(&r),
			Output:      curve.Output(&r),
			Buyable:     e.registry.IsBuyable(r.ID, e.balance),
		})
	}
	for _, g := range e.gates {
		s.Gates = append(s.Gates, GateView{
			ID:      g.id,
			Price:   g.price,
			Closed:  g.closed,
			Buyable: !g.closed && e.balance >= g.price,
		})
	}
	return s
}
