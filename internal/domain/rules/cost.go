// Package rules contains the pure calculation logic for the economy.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import (
	"math"

	"github.com/pawclicker/server/internal/domain/resource"
)

// CurveKind selects how upgrade cost grows with level.
type CurveKind string

const (
	CurveLinear    CurveKind = "linear"
	CurveGeometric CurveKind = "geometric"
)

// Curve maps a resource's level to its costs and output.
// The zero value is a linear curve.
type Curve struct {
	Kind CurveKind `json:"kind" yaml:"kind"`
	Rate float64   `json:"rate" yaml:"rate"` // Growth per level for geometric curves, >= 1
}

// LinearCurve is the default progression: cost and output both scale with level.
func LinearCurve() Curve {
	return Curve{Kind: CurveLinear, Rate: 1}
}

// UnlockCost is flat and does not depend on level.
func (c Curve) UnlockCost(r *resource.Resource) float64 {
	return r.BaseUnlockCost
}

// UpgradeCost never decreases with level. A locked resource is priced as
// level 1 so the cost stays positive.
func (c Curve) UpgradeCost(r *resource.Resource) float64 {
	level := r.Level
	if level < 1 {
		level = 1
	}

	switch c.Kind {
	case CurveGeometric:
		rate := c.Rate
		if rate < 1 {
			rate = 1
		}
		return r.BaseUpgradeCost * math.Pow(rate, float64(level-1))
	default:
		return r.BaseUpgradeCost * float64(level)
	}
}

// Output is zero while locked and grows linearly afterwards.
func (c Curve) Output(r *resource.Resource) float64 {
	if r.Level <= 0 {
		return 0
	}
	return r.BaseOutput * float64(r.Level)
}

// NextCost returns what the next purchase of r costs: unlock while locked,
// upgrade afterwards.
func (c Curve) NextCost(r *resource.Resource) float64 {
	if !r.IsUnlocked() {
		return c.UnlockCost(r)
	}
	return c.UpgradeCost(r)
}
