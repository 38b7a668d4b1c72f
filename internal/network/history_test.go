package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/pawclicker/server/internal/engine"
	"github.com/pawclicker/server/internal/events"
	"github.com/pawclicker/server/internal/infra/storage"
	"github.com/pawclicker/server/internal/platform/logger"
	"github.com/pawclicker/server/internal/platform/metrics"
)

// newHistoryServer records a short session into a log backed by a SQLite
// ledger and serves it.
func newHistoryServer(t *testing.T, withLedger bool) *httptest.Server {
	t.Helper()

	var persister events.EventPersister
	var rc *storage.Reconstructor
	if withLedger {
		db, err := storage.InitSQLite(filepath.Join(t.TempDir(), "ledger.db"), storage.PoolSettings{MaxOpenConns: 1, MaxIdleConns: 1})
		if err != nil {
			t.Fatalf("InitSQLite failed: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		repo, err := storage.NewSQLiteEventRepository(context.Background(), db, "history-test")
		if err != nil {
			t.Fatalf("NewSQLiteEventRepository failed: %v", err)
		}
		persister = storage.NewLedgerPersister(repo, metrics.NewCollector())
		rc = storage.NewReconstructor(repo)
	}

	el := events.NewEventLog(0, persister)
	for _, e := range []events.GameEvent{
		{Type: events.EventTypeBalanceChanged, Payload: engine.BalancePayload{Balance: 1}},
		{Type: events.EventTypeTapCollected, Payload: engine.TapPayload{Amount: 1, Balance: 1}},
		{Type: events.EventTypeBuyabilityChanged, TargetID: "resource:0", Payload: engine.Buyability{Kind: engine.KindResource, ID: "0", Buyable: true}},
		{Type: events.EventTypePassiveCollected, Payload: engine.PassivePayload{Amount: 0.5, Rate: 5}},
		{Type: events.EventTypeResourceUnlocked, TargetID: "resource:1", Payload: engine.PurchasePayload{ResourceID: 1, Name: "Whisker", Level: 1, Cost: 100}},
	} {
		e.ActorID = engine.ActorEngine
		el.Append(e)
	}
	// Flush the ledger before serving.
	el.Close()

	mux := http.NewServeMux()
	NewHistoryHandler(el, rc, logger.NewDiscard()).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("Failed to decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHistoryQueries(t *testing.T) {
	srv := newHistoryServer(t, false)

	cases := []struct {
		name  string
		query string
		seqs  []uint64
	}{
		{"all", "", []uint64{1, 2, 3, 4, 5}},
		{"by type", "?type=TAP_COLLECTED", []uint64{2}},
		{"since", "?since=3", []uint64{4, 5}},
		{"limit keeps newest", "?limit=2", []uint64{4, 5}},
		{"type and since", "?type=BALANCE_CHANGED&since=1", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var resp HistoryResponse
			if status := getJSON(t, srv.URL+"/api/history"+tc.query, &resp); status != http.StatusOK {
				t.Fatalf("Expected 200, got %d", status)
			}
			if resp.TotalEvents != len(tc.seqs) {
				t.Fatalf("Expected %d events, got %d", len(tc.seqs), resp.TotalEvents)
			}
			for i, e := range resp.Events {
				if e.Seq != tc.seqs[i] {
					t.Errorf("Expected seq %d at %d, got %d", tc.seqs[i], i, e.Seq)
				}
			}
			if resp.LastSeq != 5 {
				t.Errorf("Expected last_seq 5, got %d", resp.LastSeq)
			}
		})
	}
}

func TestHistorySummaries(t *testing.T) {
	srv := newHistoryServer(t, false)

	var resp HistoryResponse
	getJSON(t, srv.URL+"/api/history", &resp)
	if got := resp.Events[4].Summary; got != "Unlocked Whisker for 100.00" {
		t.Errorf("Unexpected unlock summary: %q", got)
	}
	if resp.Events[4].Impact != "NEGATIVE" || resp.Events[1].Impact != "POSITIVE" {
		t.Errorf("Unexpected impacts: %s / %s", resp.Events[4].Impact, resp.Events[1].Impact)
	}
	if got := resp.Events[2].Summary; got != "resource 0 is affordable" {
		t.Errorf("Unexpected buyability summary: %q", got)
	}
}

func TestHistoryBadQuery(t *testing.T) {
	srv := newHistoryServer(t, false)
	if status := getJSON(t, srv.URL+"/api/history?since=abc", nil); status != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", status)
	}
}

func TestHistoryStats(t *testing.T) {
	srv := newHistoryServer(t, false)

	var stats struct {
		Retained int                `json:"retained_events"`
		LastSeq  uint64             `json:"last_seq"`
		ByType   map[string]int     `json:"by_type"`
		Totals   map[string]float64 `json:"totals"`
	}
	if status := getJSON(t, srv.URL+"/api/history/stats", &stats); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if stats.Retained != 5 || stats.LastSeq != 5 {
		t.Errorf("Expected 5 retained events up to seq 5, got %d / %d", stats.Retained, stats.LastSeq)
	}
	if stats.ByType["BALANCE_CHANGED"] != 1 || stats.ByType["RESOURCE_UNLOCKED"] != 1 {
		t.Errorf("Unexpected counts: %v", stats.ByType)
	}
	if stats.Totals["tap_gold"] != 1 || stats.Totals["passive_gold"] != 0.5 || stats.Totals["spent"] != 100 {
		t.Errorf("Unexpected totals: %v", stats.Totals)
	}
}

func TestLedgerEndpoints(t *testing.T) {
	srv := newHistoryServer(t, true)

	var summary storage.LedgerSummary
	if status := getJSON(t, srv.URL+"/api/ledger/summary", &summary); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if summary.Events != 5 || summary.TapGold != 1 || summary.Spent != 100 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if summary.Levels["Whisker"] != 1 {
		t.Errorf("Expected Whisker at level 1, got %v", summary.Levels)
	}

	var recap struct {
		Events []storage.RecapEvent `json:"events"`
	}
	if status := getJSON(t, srv.URL+"/api/ledger/recap", &recap); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if len(recap.Events) != 4 {
		t.Errorf("Expected 4 recap lines without buyability flips, got %d", len(recap.Events))
	}

	getJSON(t, srv.URL+"/api/ledger/recap?since=4", &recap)
	if len(recap.Events) != 1 || recap.Events[0].EventType != "RESOURCE_UNLOCKED" {
		t.Errorf("Expected only the unlock after seq 4, got %+v", recap.Events)
	}
}

func TestLedgerDisabled(t *testing.T) {
	srv := newHistoryServer(t, false)
	for _, path := range []string{"/api/ledger/summary", "/api/ledger/recap"} {
		if status := getJSON(t, srv.URL+path, nil); status != http.StatusServiceUnavailable {
			t.Errorf("Expected 503 for %s, got %d", path, status)
		}
	}
}
