package resource

import (
	"encoding/json"
	"testing"
)

func TestNewStartsFreeResourcesUnlocked(t *testing.T) {
	free := New(0, Config{Name: "Paw", UnlockCost: 0, UpgradeCost: 10, Output: 1})
	paid := New(1, Config{Name: "Whisker", UnlockCost: 100, UpgradeCost: 60, Output: 5})

	if !free.IsUnlocked() || free.Level != 1 {
		t.Errorf("Expected Paw unlocked at level 1, got level %d", free.Level)
	}
	if paid.IsUnlocked() {
		t.Errorf("Expected Whisker locked, got level %d", paid.Level)
	}
}

func TestFeedbackTokenJSONCarriesActive(t *testing.T) {
	tok := FeedbackToken{ID: 3, DisplayValue: 1.5, Position: Vec3{X: 1, Y: 2}}
	tok.Activate()

	raw, err := json.Marshal(tok)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if fields["active"] != true || fields["id"] != 3.0 || fields["display_value"] != 1.5 {
		t.Errorf("Unexpected token JSON: %s", raw)
	}

	var back FeedbackToken
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !back.Active() || back.Position.Y != 2 {
		t.Errorf("Expected an active token at y=2, got %+v", back)
	}

	tok.Deactivate()
	raw, _ = json.Marshal(&tok)
	json.Unmarshal(raw, &fields)
	if fields["active"] != false {
		t.Errorf("Expected active false after Deactivate, got %s", raw)
	}
}
