package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pawclicker/server/internal/events"
	"github.com/pawclicker/server/internal/platform/logger"
	"github.com/pawclicker/server/internal/platform/metrics"
)

// MessageType tags every frame sent to a client.
type MessageType string

const (
	MsgTypeState        MessageType = "STATE"
	MsgTypeEvent        MessageType = "EVENT"
	MsgTypeActionResult MessageType = "ACTION_RESULT"
)

// Message is the envelope for every server-to-client frame.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Options sizes the hub and its clients.
type Options struct {
	BroadcastBuffer      int
	ClientSendBuffer     int
	MaxClients           int
	MaxMessagesPerSecond int
	AllowedOrigins       []string
	PollInterval         time.Duration
}

type directMessage struct {
	client  *Client
	message []byte
}

// Hub maintains the set of active clients and broadcasts messages to them.
// Only the Run goroutine closes a client's send channel.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	direct     chan directMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex

	economy *Economy
	opts    Options
	logger  *logger.Logger
	metrics *metrics.Collector
}

// NewHub initializes a new WebSocket Hub.
func NewHub(economy *Economy, opts Options, log *logger.Logger, m *metrics.Collector) *Hub {
	if opts.ClientSendBuffer <= 0 {
		opts.ClientSendBuffer = 64
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	if m == nil {
		m = metrics.NewCollector()
	}
	return &Hub{
		broadcast:  make(chan []byte, opts.BroadcastBuffer),
		direct:     make(chan directMessage, opts.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		economy:    economy,
		opts:       opts,
		logger:     log,
		metrics:    m,
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.dropLocked(client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub shutting down.")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.RecordWSConnection(1)
			h.logger.Info("New WebSocket client connected: " + client.id)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.dropLocked(client)
				h.logger.Info("WebSocket client disconnected: " + client.id)
			}
			h.mu.Unlock()
		case msg := <-h.direct:
			h.mu.Lock()
			if _, ok := h.clients[msg.client]; ok {
				h.deliverLocked(msg.client, msg.message)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				h.deliverLocked(client, message)
			}
			h.mu.Unlock()
		}
	}
}

// deliverLocked queues message for client, dropping clients that cannot keep up.
func (h *Hub) deliverLocked(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		h.logger.Warn("Dropping slow WebSocket client: " + client.id)
		h.metrics.RecordWSError()
		h.dropLocked(client)
	}
}

func (h *Hub) dropLocked(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.metrics.RecordWSConnection(-1)
}

// ClientCount is the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastEvent wraps a GameEvent in an EVENT message and sends it to all connected clients.
func (h *Hub) BroadcastEvent(event events.GameEvent) {
	payload, err := encode(MsgTypeEvent, event)
	if err != nil {
		h.logger.Error("Failed to serialize GameEvent for WebSocket broadcast: " + err.Error())
		return
	}
	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
}

// sendTo queues a message for one client.
func (h *Hub) sendTo(client *Client, t MessageType, payload interface{}) {
	b, err := encode(t, payload)
	if err != nil {
		h.logger.Error("Failed to serialize " + string(t) + " message: " + err.Error())
		return
	}
	select {
	case h.direct <- directMessage{client: client, message: b}:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// StartEventPoller spawns a goroutine that polls the EventLog and pushes new
// events to the Hub. Sequence numbers make it immune to retention trimming.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog) {
	go func() {
		pollInterval := time.NewTicker(h.opts.PollInterval)
		defer pollInterval.Stop()

		var lastSeq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-pollInterval.C:
				for _, event := range eventLog.Since(lastSeq) {
					h.BroadcastEvent(event)
					lastSeq = event.Seq
				}
			}
		}
	}()
}

func encode(t MessageType, payload interface{}) ([]byte, error) {
	return json.Marshal(Message{Type: t, Timestamp: time.Now().Unix(), Payload: payload})
}
