// Package resource defines the core domain entities for income sources.
// This package is PURE and must NOT import any infrastructure packages.
package resource

import "encoding/json"

// ID identifies a resource by its position in the configuration list.
// Position is also the unlock order.
type ID int

// Config is the static definition of one resource, loaded once at startup.
type Config struct {
	Name        string  `json:"name" yaml:"name"`
	UnlockCost  float64 `json:"unlock_cost" yaml:"unlock_cost"`
	UpgradeCost float64 `json:"upgrade_cost" yaml:"upgrade_cost"`
	Output      float64 `json:"output" yaml:"output"`
}

// Resource is one unlockable, levelable income source.
// Level 0 means locked.
type Resource struct {
	ID              ID      `json:"id"`
	Name            string  `json:"name"`
	Level           int     `json:"level"`
	BaseUnlockCost  float64 `json:"base_unlock_cost"`
	BaseUpgradeCost float64 `json:"base_upgrade_cost"`
	BaseOutput      float64 `json:"base_output"`
	Revealed        bool    `json:"revealed"`
}

// New builds a resource from its config. Resources that cost nothing to
// unlock start at level 1.
func New(id ID, cfg Config) *Resource {
	r := &Resource{
		ID:              id,
		Name:            cfg.Name,
		BaseUnlockCost:  cfg.UnlockCost,
		BaseUpgradeCost: cfg.UpgradeCost,
		BaseOutput:      cfg.Output,
	}
	if cfg.UnlockCost == 0 {
		r.Level = 1
	}
	return r
}

// IsUnlocked reports whether the resource has left the locked state.
func (r *Resource) IsUnlocked() bool {
	return r.Level > 0
}

// Vec3 is a screen or world coordinate handed in by the host.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FeedbackToken is one floating "+N" indicator. Tokens are owned by a pool
// and are recycled by flipping Active rather than being freed.
type FeedbackToken struct {
	ID           int
	DisplayValue float64
	Position     Vec3

	active bool
}

// Active reports whether the token is currently on screen.
func (t *FeedbackToken) Active() bool {
	return t.active
}

// Activate marks the token as in use.
func (t *FeedbackToken) Activate() {
	t.active = true
}

// Deactivate hands the token back for reuse.
func (t *FeedbackToken) Deactivate() {
	t.active = false
}

type feedbackTokenJSON struct {
	ID           int     `json:"id"`
	DisplayValue float64 `json:"display_value"`
	Position     Vec3    `json:"position"`
	Active       bool    `json:"active"`
}

// MarshalJSON includes the active flag alongside the exported fields.
func (t FeedbackToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(feedbackTokenJSON{
		ID:           t.ID,
		DisplayValue: t.DisplayValue,
		Position:     t.Position,
		Active:       t.active,
	})
}

func (t *FeedbackToken) UnmarshalJSON(b []byte) error {
	var v feedbackTokenJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = FeedbackToken{ID: v.ID, DisplayValue: v.DisplayValue, Position: v.Position, active: v.Active}
	return nil
}

// GateConfig is a host-side purchasable (a decorative store button) whose
// buyability the engine reports alongside resources.
type GateConfig struct {
	ID    string  `json:"id" yaml:"id"`
	Price float64 `json:"price" yaml:"price"`
}
