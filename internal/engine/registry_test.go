package engine

import (
	"errors"
	"testing"

	"github.com/pawclicker/server/internal/domain/resource"
	"github.com/pawclicker/server/internal/domain/rules"
)

func catalog() []resource.Config {
	return []resource.Config{
		{Name: "Paw", UnlockCost: 0, UpgradeCost: 10, Output: 1},
		{Name: "Whisker", UnlockCost: 100, UpgradeCost: 60, Output: 5},
		{Name: "Yarn Ball", UnlockCost: 1500, UpgradeCost: 500, Output: 30},
	}
}

func TestInitializeRevealsUpToFirstLocked(t *testing.T) {
	r := NewRegistry(rules.LinearCurve())
	r.Initialize(catalog())

	want := []bool{true, true, false}
	for i, res := range r.All() {
		if res.Revealed != want[i] {
			t.Errorf("Expected %s revealed=%v, got %v", res.Name, want[i], res.Revealed)
		}
	}
	if levels := r.Levels(); levels[0] != 1 || levels[1] != 0 || levels[2] != 0 {
		t.Errorf("Expected levels [1 0 0], got %v", levels)
	}
}

func TestFirstResourceAlwaysRevealed(t *testing.T) {
	r := NewRegistry(rules.LinearCurve())
	r.Initialize([]resource.Config{
		{Name: "Expensive", UnlockCost: 50, UpgradeCost: 10, Output: 1},
		{Name: "Next", UnlockCost: 500, UpgradeCost: 10, Output: 1},
	})

	all := r.All()
	if !all[0].Revealed || all[1].Revealed {
		t.Errorf("Expected only the first resource revealed, got %v / %v", all[0].Revealed, all[1].Revealed)
	}
}

func TestAggregateOutputSkipsLockedAndHidden(t *testing.T) {
	r := NewRegistry(rules.LinearCurve())
	r.Initialize([]resource.Config{
		{Name: "Paw", UnlockCost: 0, UpgradeCost: 10, Output: 1},
		{Name: "Whisker", UnlockCost: 100, UpgradeCost: 60, Output: 5},
		{Name: "Freebie", UnlockCost: 0, UpgradeCost: 10, Output: 100}, // unlocked but hidden
	})

	if got := r.AggregateOutput(); got != 1 {
		t.Errorf("Expected aggregate 1, got %v", got)
	}

	if err := r.Unlock(1); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if got := r.AggregateOutput(); got != 6 {
		t.Errorf("Expected aggregate 6, got %v", got)
	}

	if _, ok := r.RevealNext(); !ok {
		t.Fatal("Expected the hidden resource to be revealed")
	}
	if got := r.AggregateOutput(); got != 106 {
		t.Errorf("Expected aggregate 106, got %v", got)
	}
}

func TestIsBuyable(t *testing.T) {
	r := NewRegistry(rules.LinearCurve())
	r.Initialize(catalog())

	tests := []struct {
		name    string
		id      resource.ID
		balance float64
		want    bool
	}{
		{"upgrade exact", 0, 10, true},
		{"upgrade short", 0, 9.99, false},
		{"unlock exact", 1, 100, true},
		{"unlock short", 1, 99, false},
		{"hidden", 2, 1e9, false},
		{"unknown", 7, 1e9, false},
		{"negative id", -1, 1e9, false},
	}
	for _, tt := range tests {
		if got := r.IsBuyable(tt.id, tt.balance); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestUnlockAndUpgradeTransitions(t *testing.T) {
	r := NewRegistry(rules.LinearCurve())
	r.Initialize(catalog())

	if err := r.Upgrade(1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected InvalidState upgrading a locked resource, got %v", err)
	}
	if err := r.Unlock(1); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := r.Unlock(1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected InvalidState on second unlock, got %v", err)
	}
	if err := r.Upgrade(1); err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}

	res, _ := r.Get(1)
	if res.Level != 2 {
		t.Errorf("Expected level 2, got %d", res.Level)
	}

	if err := r.Unlock(2); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected InvalidState unlocking a hidden resource, got %v", err)
	}
	if err := r.Unlock(3); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("Expected ErrUnknownResource, got %v", err)
	}
}

func TestRevealNextIsNoOpWhenAllRevealed(t *testing.T) {
	r := NewRegistry(rules.LinearCurve())
	r.Initialize(catalog())

	id, ok := r.RevealNext()
	if !ok || id != 2 {
		t.Fatalf("Expected to reveal resource 2, got %d (%v)", id, ok)
	}
	if _, ok := r.RevealNext(); ok {
		t.Error("Expected RevealNext to report nothing left to reveal")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry(rules.LinearCurve())
	r.Initialize(catalog())

	res, _ := r.Get(0)
	res.Level = 99

	again, _ := r.Get(0)
	if again.Level != 1 {
		t.Errorf("Expected registry level untouched, got %d", again.Level)
	}
}
