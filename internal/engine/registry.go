package engine

import (
	"github.com/pawclicker/server/internal/domain/resource"
	"github.com/pawclicker/server/internal/domain/rules"
)

// Registry owns the ordered resource list. Order is the unlock order.
// It validates and applies level changes but never touches the balance.
type Registry struct {
	resources []*resource.Resource
	curve     rules.Curve
}

// NewRegistry creates an empty registry priced by curve.
func NewRegistry(curve rules.Curve) *Registry {
	return &Registry{curve: curve}
}

// Initialize builds one resource per config, preserving order.
// Resources are revealed in order up to and including the first locked one.
func (r *Registry) Initialize(configs []resource.Config) {
	r.resources = make([]*resource.Resource, 0, len(configs))

	show := true
	for i, cfg := range configs {
		res := resource.New(resource.ID(i), cfg)
		res.Revealed = show
		if show && !res.IsUnlocked() {
			show = false
		}
		r.resources = append(r.resources, res)
	}
}

// Curve returns the pricing curve.
func (r *Registry) Curve() rules.Curve {
	return r.curve
}

// Len is the number of resources.
func (r *Registry) Len() int {
	return len(r.resources)
}

// Get returns a copy of one resource.
func (r *Registry) Get(id resource.ID) (resource.Resource, error) {
	res, err := r.lookup(id)
	if err != nil {
		return resource.Resource{}, err
	}
	return *res, nil
}

// All returns copies of every resource in order.
func (r *Registry) All() []resource.Resource {
	out := make([]resource.Resource, len(r.resources))
	for i, res := range r.resources {
		out[i] = *res
	}
	return out
}

// Levels is the per-resource level list, in order.
func (r *Registry) Levels() []int {
	out := make([]int, len(r.resources))
	for i, res := range r.resources {
		out[i] = res.Level
	}
	return out
}

// AggregateOutput sums the output of every unlocked, revealed resource.
func (r *Registry) AggregateOutput() float64 {
	var total float64
	for _, res := range r.resources {
		if res.Revealed && res.IsUnlocked() {
			total += r.curve.Output(res)
		}
	}
	return total
}

// NextCost is what the next purchase of id costs: unlock while locked,
// upgrade afterwards.
func (r *Registry) NextCost(id resource.ID) (float64, error) {
	res, err := r.lookup(id)
	if err != nil {
		return 0, err
	}
	return r.curve.NextCost(res), nil
}

// IsBuyable reports whether balance covers the next purchase of id.
// Hidden and unknown resources are never buyable.
func (r *Registry) IsBuyable(id resource.ID, balance float64) bool {
	res, err := r.lookup(id)
	if err != nil || !res.Revealed {
		return false
	}
	return balance >= r.curve.NextCost(res)
}

// CheckUnlock validates an unlock without applying it.
func (r *Registry) CheckUnlock(id resource.ID) error {
	res, err := r.lookup(id)
	if err != nil {
		return err
	}
	if !res.Revealed {
		return &InvalidStateError{ResourceID: id, Op: OpUnlock, Level: res.Level, Reason: "resource is hidden"}
	}
	if res.IsUnlocked() {
		return &InvalidStateError{ResourceID: id, Op: OpUnlock, Level: res.Level, Reason: "already unlocked"}
	}
	return nil
}

// CheckUpgrade validates an upgrade without applying it.
func (r *Registry) CheckUpgrade(id resource.ID) error {
	res, err := r.lookup(id)
	if err != nil {
		return err
	}
	if !res.Revealed {
		return &InvalidStateError{ResourceID: id, Op: OpUpgrade, Level: res.Level, Reason: "resource is hidden"}
	}
	if !res.IsUnlocked() {
		return &InvalidStateError{ResourceID: id, Op: OpUpgrade, Level: res.Level, Reason: "still locked"}
	}
	return nil
}

// Unlock moves a locked resource to level 1.
func (r *Registry) Unlock(id resource.ID) error {
	if err := r.CheckUnlock(id); err != nil {
		return err
	}
	r.resources[id].Level = 1
	return nil
}

// Upgrade adds one level to an unlocked resource.
func (r *Registry) Upgrade(id resource.ID) error {
	if err := r.CheckUpgrade(id); err != nil {
		return err
	}
	r.resources[id].Level++
	return nil
}

// RevealNext shows the next hidden resource. ok is false when nothing was hidden.
func (r *Registry) RevealNext() (id resource.ID, ok bool) {
	for _, res := range r.resources {
		if !res.Revealed {
			res.Revealed = true
			return res.ID, true
		}
	}
	return 0, false
}

func (r *Registry) lookup(id resource.ID) (*resource.Resource, error) {
	if id < 0 || int(id) >= len(r.resources) {
		return nil, ErrUnknownResource
	}
	return r.resources[id], nil
}
