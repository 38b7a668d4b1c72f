package network

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pawclicker/server/internal/engine"
	"github.com/pawclicker/server/internal/events"
	"github.com/pawclicker/server/internal/infra/storage"
	"github.com/pawclicker/server/internal/platform/logger"
)

// HistoryHandler serves the recent notification history from the in-memory
// log and, when a ledger is configured, the session recap from SQLite.
type HistoryHandler struct {
	eventLog      *events.EventLog
	reconstructor *storage.Reconstructor
	logger        *logger.Logger
}

// NewHistoryHandler creates a new history handler. rc may be nil when the
// ledger is disabled.
func NewHistoryHandler(el *events.EventLog, rc *storage.Reconstructor, log *logger.Logger) *HistoryHandler {
	return &HistoryHandler{
		eventLog:      el,
		reconstructor: rc,
		logger:        log,
	}
}

// HistoryEvent is a display-friendly event.
type HistoryEvent struct {
	Seq       uint64      `json:"seq"`
	ID        string      `json:"id"`
	Timestamp string      `json:"timestamp"`
	Type      string      `json:"type"`
	Target    string      `json:"target,omitempty"`
	Summary   string      `json:"summary"`
	Impact    string      `json:"impact"`
	Details   interface{} `json:"details,omitempty"`
}

// HistoryResponse is the API response for the history endpoint.
type HistoryResponse struct {
	TotalEvents int            `json:"total_events"`
	FilteredBy  string         `json:"filtered_by,omitempty"`
	LastSeq     uint64         `json:"last_seq"`
	GeneratedAt string         `json:"generated_at"`
	Events      []HistoryEvent `json:"events"`
}

// HandleHistory returns retained events.
// GET /api/history?type=TAP_COLLECTED&since=120&limit=50
func (hh *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", engine.CodeBadRequest, http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	since, err := parseUint(q.Get("since"))
	if err != nil {
		jsonError(w, "Invalid since", engine.CodeBadRequest, http.StatusBadRequest)
		return
	}
	limit, err := parseUint(q.Get("limit"))
	if err != nil {
		jsonError(w, "Invalid limit", engine.CodeBadRequest, http.StatusBadRequest)
		return
	}
	eventType := q.Get("type")

	var out []HistoryEvent
	for _, e := range hh.eventLog.Since(since) {
		if eventType != "" && string(e.Type) != eventType {
			continue
		}
		out = append(out, toHistoryEvent(e))
	}
	// Keep the newest when limited.
	if limit > 0 && uint64(len(out)) > limit {
		out = out[uint64(len(out))-limit:]
	}

	filterDesc := ""
	if eventType != "" {
		filterDesc = "type=" + eventType
	}

	jsonSuccess(w, HistoryResponse{
		TotalEvents: len(out),
		FilteredBy:  filterDesc,
		LastSeq:     hh.eventLog.LastSeq(),
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      out,
	})
}

// HandleStats returns per-type counts over the retained window.
// GET /api/history/stats
func (hh *HistoryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", engine.CodeBadRequest, http.StatusMethodNotAllowed)
		return
	}

	all := hh.eventLog.Replay()
	byType := make(map[string]int)
	stats := map[string]float64{
		"passive_gold": 0,
		"tap_gold":     0,
		"spent":        0,
	}
	for _, e := range all {
		byType[string(e.Type)]++
		switch p := e.Payload.(type) {
		case engine.PassivePayload:
			stats["passive_gold"] += p.Amount
		case engine.TapPayload:
			stats["tap_gold"] += p.Amount
		case engine.PurchasePayload:
			stats["spent"] += p.Cost
		}
	}

	var oldest uint64
	if len(all) > 0 {
		oldest = all[0].Seq
	}

	jsonSuccess(w, map[string]interface{}{
		"generated_at":    time.Now().Format(time.RFC3339),
		"retained_events": len(all),
		"oldest_seq":      oldest,
		"last_seq":        hh.eventLog.LastSeq(),
		"by_type":         byType,
		"totals":          stats,
	})
}

// HandleLedgerSummary folds the session ledger.
// GET /api/ledger/summary
func (hh *HistoryHandler) HandleLedgerSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", engine.CodeBadRequest, http.StatusMethodNotAllowed)
		return
	}
	if hh.reconstructor == nil {
		jsonError(w, "Ledger is disabled", engine.CodeUnavailable, http.StatusServiceUnavailable)
		return
	}

	summary, err := hh.reconstructor.Summarize(r.Context())
	if err != nil {
		hh.logger.Error("Ledger summary failed: " + err.Error())
		jsonError(w, "Ledger unavailable", engine.CodeUnavailable, http.StatusInternalServerError)
		return
	}
	jsonSuccess(w, summary)
}

// HandleLedgerRecap lists ledger lines after a sequence number.
// GET /api/ledger/recap?since=0&limit=100
func (hh *HistoryHandler) HandleLedgerRecap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", engine.CodeBadRequest, http.StatusMethodNotAllowed)
		return
	}
	if hh.reconstructor == nil {
		jsonError(w, "Ledger is disabled", engine.CodeUnavailable, http.StatusServiceUnavailable)
		return
	}

	since, err1 := parseUint(r.URL.Query().Get("since"))
	limit, err2 := parseUint(r.URL.Query().Get("limit"))
	if err1 != nil || err2 != nil {
		jsonError(w, "Invalid since or limit", engine.CodeBadRequest, http.StatusBadRequest)
		return
	}
	if limit == 0 {
		limit = 100
	}

	recap, err := hh.reconstructor.GenerateRecap(r.Context(), since, int(limit))
	if err != nil {
		hh.logger.Error("Ledger recap failed: " + err.Error())
		jsonError(w, "Ledger unavailable", engine.CodeUnavailable, http.StatusInternalServerError)
		return
	}
	jsonSuccess(w, map[string]interface{}{"events": recap})
}

// RegisterRoutes sets up the history API routes.
func (hh *HistoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/history", hh.HandleHistory)
	mux.HandleFunc("/api/history/stats", hh.HandleStats)
	mux.HandleFunc("/api/ledger/summary", hh.HandleLedgerSummary)
	mux.HandleFunc("/api/ledger/recap", hh.HandleLedgerRecap)
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func toHistoryEvent(e events.GameEvent) HistoryEvent {
	return HistoryEvent{
		Seq:       e.Seq,
		ID:        e.ID,
		Timestamp: e.Timestamp.Format("15:04:05.000"),
		Type:      string(e.Type),
		Target:    e.TargetID,
		Summary:   summarizeEvent(e),
		Impact:    determineImpact(e),
		Details:   e.Payload,
	}
}

// summarizeEvent creates a human-readable summary.
func summarizeEvent(e events.GameEvent) string {
	switch p := e.Payload.(type) {
	case engine.BalancePayload:
		return fmt.Sprintf("Balance is now %.2f", p.Balance)
	case engine.PassivePayload:
		return fmt.Sprintf("Collected %.2f passively (output %.2f)", p.Amount, p.Rate)
	case engine.TapPayload:
		return fmt.Sprintf("Tapped for %.2f", p.Amount)
	case engine.PurchasePayload:
		if e.Type == events.EventTypeResourceUnlocked {
			return fmt.Sprintf("Unlocked %s for %.2f", p.Name, p.Cost)
		}
		return fmt.Sprintf("Upgraded %s to level %d for %.2f", p.Name, p.Level, p.Cost)
	case engine.RevealPayload:
		return p.Name + " is now available"
	case engine.RejectPayload:
		return fmt.Sprintf("%s of resource %d rejected: %s", p.Op, p.ResourceID, p.Reason)
	case engine.Buyability:
		if p.Buyable {
			return fmt.Sprintf("%s %s is affordable", p.Kind, p.ID)
		}
		return fmt.Sprintf("%s %s is out of reach", p.Kind, p.ID)
	case engine.GatePayload:
		return "Gate " + p.GateID + " closed"
	default:
		return string(e.Type)
	}
}

// determineImpact classifies the event impact.
func determineImpact(e events.GameEvent) string {
	switch e.Type {
	case events.EventTypePassiveCollected, events.EventTypeTapCollected, events.EventTypeResourceRevealed:
		return "POSITIVE"
	case events.EventTypeResourceUnlocked, events.EventTypeResourceUpgraded, events.EventTypePurchaseRejected:
		return "NEGATIVE"
	default:
		return "NEUTRAL"
	}
}
