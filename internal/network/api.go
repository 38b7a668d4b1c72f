package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/pawclicker/server/internal/domain/resource"
	"github.com/pawclicker/server/internal/engine"
	"github.com/pawclicker/server/internal/platform/logger"
)

// EconomyAPI exposes the engine over plain HTTP for clients that do not
// hold a websocket open.
type EconomyAPI struct {
	economy *Economy
	logger  *logger.Logger
}

// NewEconomyAPI creates a new REST handler set.
func NewEconomyAPI(economy *Economy, log *logger.Logger) *EconomyAPI {
	return &EconomyAPI{economy: economy, logger: log}
}

// TapRequest is the body of POST /api/economy/tap. An empty body taps at the origin.
type TapRequest struct {
	Position resource.Vec3 `json:"position"`
}

// PurchaseRequest is the body of the unlock and upgrade endpoints.
type PurchaseRequest struct {
	ResourceID *resource.ID `json:"resource_id"`
}

// GateRequest is the body of POST /api/economy/gates/close.
type GateRequest struct {
	GateID string `json:"gate_id"`
}

// HandleState returns the current snapshot.
// GET /api/economy/state
func (api *EconomyAPI) HandleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", engine.CodeBadRequest, http.StatusMethodNotAllowed)
		return
	}

	snap, err := api.economy.State(r.Context())
	if err != nil {
		api.fail(w, err)
		return
	}
	jsonSuccess(w, snap)
}

// HandleTap collects by tap.
// POST /api/economy/tap
func (api *EconomyAPI) HandleTap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", engine.CodeBadRequest, http.StatusMethodNotAllowed)
		return
	}

	var req TapRequest
	if err := decodeOptional(r, &req); err != nil {
		jsonError(w, "Invalid request body", engine.CodeBadRequest, http.StatusBadRequest)
		return
	}

	out, err := api.economy.Tap(r.Context(), req.Position)
	if err != nil {
		api.fail(w, err)
		return
	}
	jsonSuccess(w, out)
}

// HandleUnlock buys a resource.
// POST /api/economy/unlock
func (api *EconomyAPI) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	api.handlePurchase(w, r, api.economy.Unlock)
}

// HandleUpgrade levels a resource.
// POST /api/economy/upgrade
func (api *EconomyAPI) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	api.handlePurchase(w, r, api.economy.Upgrade)
}

func (api *EconomyAPI) handlePurchase(w http.ResponseWriter, r *http.Request, buy func(ctx context.Context, id resource.ID) (PurchaseOutcome, error)) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", engine.CodeBadRequest, http.StatusMethodNotAllowed)
		return
	}

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ResourceID == nil {
		jsonError(w, "Missing resource_id", engine.CodeBadRequest, http.StatusBadRequest)
		return
	}

	out, err := buy(r.Context(), *req.ResourceID)
	if err != nil {
		api.fail(w, err)
		return
	}
	jsonSuccess(w, out)
}

// HandleCloseGate closes a host gate.
// POST /api/economy/gates/close
func (api *EconomyAPI) HandleCloseGate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", engine.CodeBadRequest, http.StatusMethodNotAllowed)
		return
	}

	var req GateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GateID == "" {
		jsonError(w, "Missing gate_id", engine.CodeBadRequest, http.StatusBadRequest)
		return
	}

	if err := api.economy.CloseGate(r.Context(), req.GateID); err != nil {
		api.fail(w, err)
		return
	}
	api.logger.Event("GATE_CLOSED", "API", "Gate:"+req.GateID)
	jsonSuccess(w, map[string]interface{}{"closed": true, "gate_id": req.GateID})
}

// RegisterRoutes sets up the economy API routes.
func (api *EconomyAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/economy/state", api.HandleState)
	mux.HandleFunc("/api/economy/tap", api.HandleTap)
	mux.HandleFunc("/api/economy/unlock", api.HandleUnlock)
	mux.HandleFunc("/api/economy/upgrade", api.HandleUpgrade)
	mux.HandleFunc("/api/economy/gates/close", api.HandleCloseGate)
}

func (api *EconomyAPI) fail(w http.ResponseWriter, err error) {
	code := engine.Code(err)
	jsonError(w, err.Error(), code, statusFor(code))
}

// statusFor maps an engine error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case engine.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case engine.CodeInvalidState:
		return http.StatusConflict
	case engine.CodeUnknownResource, engine.CodeUnknownGate:
		return http.StatusNotFound
	case engine.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// decodeOptional decodes a JSON body, treating an empty body as the zero value.
func decodeOptional(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// jsonError sends an error response.
func jsonError(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

// jsonSuccess sends a success response.
func jsonSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}
