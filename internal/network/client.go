package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pawclicker/server/internal/domain/resource"
	"github.com/pawclicker/server/internal/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1024
	// Upper bound on how long one action may wait for the engine.
	actionTimeout = 5 * time.Second
)

// Inbound action types.
const (
	ActionTap     = "TAP"
	ActionUnlock  = "UNLOCK"
	ActionUpgrade = "UPGRADE"
	ActionState   = "STATE"
)

// CodeRateLimited is reported when a client sends faster than allowed.
const CodeRateLimited = "RATE_LIMITED"

var errBadRequest = errors.New("bad request")

// ClientAction represents an incoming command from a client.
type ClientAction struct {
	Type       string        `json:"type"`
	RequestID  string        `json:"request_id,omitempty"`
	Position   resource.Vec3 `json:"position"`
	ResourceID *resource.ID  `json:"resource_id,omitempty"`
}

// ActionResult answers one ClientAction.
type ActionResult struct {
	Action     string       `json:"action"`
	RequestID  string       `json:"request_id,omitempty"`
	OK         bool         `json:"ok"`
	ErrorCode  string       `json:"error_code,omitempty"`
	Error      string       `json:"error,omitempty"`
	Balance    float64      `json:"balance"`
	Tap        *TapOutcome  `json:"tap,omitempty"`
	ResourceID *resource.ID `json:"resource_id,omitempty"`
	Level      int          `json:"level,omitempty"`
}

// Client is one WebSocket connection.
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *windowLimiter
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:      uuid.NewString()[:8],
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, hub.opts.ClientSendBuffer),
		limiter: newWindowLimiter(hub.opts.MaxMessagesPerSecond, time.Second),
	}
}

// ServeWS upgrades the request and starts the client's pumps.
// GET /ws
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.opts.MaxClients > 0 && h.ClientCount() >= h.opts.MaxClients {
		http.Error(w, "Too many clients", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed: " + err.Error())
		h.metrics.RecordWSError()
		return
	}

	client := NewClient(h, conn)
	client.primeState()
	if !h.registerClient(client) {
		conn.Close()
		return
	}
	go client.WritePump()
	go client.ReadPump()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ReadPump pumps messages from the websocket connection to the engine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read error from " + c.id + ": " + err.Error())
				c.hub.metrics.RecordWSError()
			}
			break
		}
		c.hub.metrics.RecordWSMessage(true)

		if ok, retry := c.limiter.allow(time.Now()); !ok {
			c.hub.sendTo(c, MsgTypeActionResult, ActionResult{
				OK:        false,
				ErrorCode: CodeRateLimited,
				Error:     "rate limit exceeded, retry in " + retry.Round(time.Millisecond).String(),
			})
			continue
		}

		var action ClientAction
		if err := json.Unmarshal(message, &action); err != nil {
			c.hub.logger.Warn("Failed to parse ClientAction from " + c.id + ": " + err.Error())
			c.hub.sendTo(c, MsgTypeActionResult, ActionResult{
				OK:        false,
				ErrorCode: engine.CodeBadRequest,
				Error:     "malformed message",
			})
			continue
		}

		c.handleAction(action)
	}
}

// primeState queues the STATE snapshot before the client is visible to the
// hub, so it is always the first message the client receives.
func (c *Client) primeState() {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	snap, err := c.hub.economy.State(ctx)
	if err != nil {
		c.hub.logger.Warn("Failed to load state for " + c.id + ": " + err.Error())
		return
	}
	b, err := encode(MsgTypeState, snap)
	if err != nil {
		c.hub.logger.Error("Failed to serialize STATE message: " + err.Error())
		return
	}
	c.send <- b
}

func (c *Client) sendState() {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	snap, err := c.hub.economy.State(ctx)
	if err != nil {
		c.hub.logger.Warn("Failed to load state for " + c.id + ": " + err.Error())
		return
	}
	c.hub.sendTo(c, MsgTypeState, snap)
}

func (c *Client) handleAction(action ClientAction) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	result := ActionResult{Action: action.Type, RequestID: action.RequestID}
	var err error

	switch action.Type {
	case ActionTap:
		var out TapOutcome
		out, err = c.hub.economy.Tap(ctx, action.Position)
		if err == nil {
			result.Tap = &out
			result.Balance = out.Balance
		}
	case ActionUnlock, ActionUpgrade:
		if action.ResourceID == nil {
			err = fmt.Errorf("%w: resource_id is required", errBadRequest)
			break
		}
		var out PurchaseOutcome
		if action.Type == ActionUnlock {
			out, err = c.hub.economy.Unlock(ctx, *action.ResourceID)
		} else {
			out, err = c.hub.economy.Upgrade(ctx, *action.ResourceID)
		}
		result.ResourceID = action.ResourceID
		result.Balance = out.Balance
		result.Level = out.Level
	case ActionState:
		c.sendState()
		return
	default:
		err = fmt.Errorf("%w: unknown action type %q", errBadRequest, action.Type)
	}

	if err != nil {
		result.ErrorCode = engine.Code(err)
		result.Error = err.Error()
	} else {
		result.OK = true
	}
	c.hub.sendTo(c, MsgTypeActionResult, result)
}

// WritePump pumps messages from the hub to the websocket connection.
// Each message goes out as its own text frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.metrics.RecordWSError()
				return
			}
			c.hub.metrics.RecordWSMessage(false)
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
