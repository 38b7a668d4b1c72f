package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pawclicker/server/internal/domain/resource"
	"github.com/pawclicker/server/internal/domain/rules"
	"github.com/pawclicker/server/internal/engine"
	"github.com/pawclicker/server/internal/events"
	"github.com/pawclicker/server/internal/platform/logger"
	"github.com/pawclicker/server/internal/platform/metrics"
)

// newTestEconomy runs an engine whose frames never fire during a test, so
// balances only move through explicit actions.
func newTestEconomy(t *testing.T) (*Economy, *events.EventLog) {
	t.Helper()
	el := events.NewEventLog(0, nil)
	m := metrics.NewCollector()
	e := engine.NewEngine(engine.Settings{
		AutoCollectFraction: 0.1,
		Curve:               rules.LinearCurve(),
		Resources: []resource.Config{
			{Name: "Paw", UnlockCost: 0, UpgradeCost: 10, Output: 1},
			{Name: "Whisker", UnlockCost: 100, UpgradeCost: 60, Output: 5},
			{Name: "Yarn Ball", UnlockCost: 1500, UpgradeCost: 500, Output: 30},
		},
		Gates: []resource.GateConfig{{ID: "ribbon", Price: 100}},
	}, el, logger.NewDiscard(), m)

	tk := engine.NewTicker(e, time.Hour, 16, logger.NewDiscard(), m)
	ctx, cancel := context.WithCancel(context.Background())
	go tk.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-tk.Done()
	})
	return NewEconomy(tk, 20*time.Millisecond), el
}

func newTestAPI(t *testing.T) (*httptest.Server, *Economy) {
	t.Helper()
	eco, _ := newTestEconomy(t)
	mux := http.NewServeMux()
	NewEconomyAPI(eco, logger.NewDiscard()).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, eco
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response from %s: %v", url, err)
	}
	return resp, out
}

func TestStateEndpoint(t *testing.T) {
	srv, _ := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/api/economy/state")
	if err != nil {
		t.Fatalf("GET state failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var snap engine.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if snap.Balance != 0 {
		t.Errorf("Expected balance 0, got %v", snap.Balance)
	}
	if len(snap.Levels) != 3 || snap.Levels[0] != 1 || snap.Levels[1] != 0 {
		t.Errorf("Expected levels [1 0 0], got %v", snap.Levels)
	}
	if len(snap.Gates) != 1 || snap.Gates[0].ID != "ribbon" {
		t.Errorf("Expected the ribbon gate in the snapshot, got %+v", snap.Gates)
	}
}

func TestTapEndpoint(t *testing.T) {
	srv, _ := newTestAPI(t)

	// Empty body taps at the origin.
	resp, out := postJSON(t, srv.URL+"/api/economy/tap", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", resp.StatusCode, out)
	}
	if out["amount"] != 1.0 || out["balance"] != 1.0 {
		t.Errorf("Expected amount and balance 1, got %v", out)
	}

	resp, out = postJSON(t, srv.URL+"/api/economy/tap", `{"position":{"x":1,"y":2,"z":3}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	token, _ := out["token"].(map[string]interface{})
	pos, _ := token["position"].(map[string]interface{})
	if pos["y"] != 2.0 {
		t.Errorf("Expected token at the tap position, got %v", token)
	}
	if token["active"] != true {
		t.Errorf("Expected the handed-out token to be active, got %v", token)
	}
	if out["balance"] != 2.0 {
		t.Errorf("Expected balance 2, got %v", out["balance"])
	}
}

func TestPurchaseErrorsMapToStatus(t *testing.T) {
	srv, _ := newTestAPI(t)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"insufficient funds", "/api/economy/unlock", `{"resource_id":1}`, http.StatusPaymentRequired, engine.CodeInsufficientFunds},
		{"already unlocked", "/api/economy/unlock", `{"resource_id":0}`, http.StatusConflict, engine.CodeInvalidState},
		{"hidden resource", "/api/economy/upgrade", `{"resource_id":2}`, http.StatusConflict, engine.CodeInvalidState},
		{"upgrade locked", "/api/economy/upgrade", `{"resource_id":1}`, http.StatusConflict, engine.CodeInvalidState},
		{"unknown resource", "/api/economy/unlock", `{"resource_id":9}`, http.StatusNotFound, engine.CodeUnknownResource},
		{"missing id", "/api/economy/upgrade", `{}`, http.StatusBadRequest, engine.CodeBadRequest},
		{"malformed body", "/api/economy/unlock", `{"resource_id":`, http.StatusBadRequest, engine.CodeBadRequest},
		{"bad tap body", "/api/economy/tap", `[1,2`, http.StatusBadRequest, engine.CodeBadRequest},
		{"unknown gate", "/api/economy/gates/close", `{"gate_id":"nope"}`, http.StatusNotFound, engine.CodeUnknownGate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, out := postJSON(t, srv.URL+tc.path, tc.body)
			if resp.StatusCode != tc.status {
				t.Errorf("Expected status %d, got %d (%v)", tc.status, resp.StatusCode, out)
			}
			if out["code"] != tc.code {
				t.Errorf("Expected code %s, got %v", tc.code, out["code"])
			}
		})
	}
}

func TestUpgradeAfterTaps(t *testing.T) {
	srv, eco := newTestAPI(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if _, err := eco.Tap(ctx, resource.Vec3{}); err != nil {
			t.Fatalf("Tap failed: %v", err)
		}
	}

	resp, out := postJSON(t, srv.URL+"/api/economy/upgrade", `{"resource_id":0}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", resp.StatusCode, out)
	}
	if out["level"] != 2.0 || out["balance"] != 0.0 {
		t.Errorf("Expected level 2 and balance 0, got %v", out)
	}
}

func TestCloseGateEndpoint(t *testing.T) {
	srv, eco := newTestAPI(t)

	resp, out := postJSON(t, srv.URL+"/api/economy/gates/close", `{"gate_id":"ribbon"}`)
	if resp.StatusCode != http.StatusOK || out["closed"] != true {
		t.Fatalf("Expected gate closed, got %d %v", resp.StatusCode, out)
	}

	snap, err := eco.State(context.Background())
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if !snap.Gates[0].Closed {
		t.Error("Expected snapshot to report the gate closed")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/api/economy/tap")
	if err != nil {
		t.Fatalf("GET tap failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}

func TestEconomyTapReleasesToken(t *testing.T) {
	eco, _ := newTestEconomy(t)
	ctx := context.Background()

	if _, err := eco.Tap(ctx, resource.Vec3{}); err != nil {
		t.Fatalf("Tap failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := eco.State(ctx)
		if err != nil {
			t.Fatalf("State failed: %v", err)
		}
		if snap.ActiveTokens == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected the tap token to be released, still %d active", snap.ActiveTokens)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
