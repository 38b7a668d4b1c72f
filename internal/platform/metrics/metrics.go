// Package metrics provides observability for the clicker server.
package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers economy and transport counters.
type Collector struct {
	// Frame metrics
	FrameCount      int64
	FrameLatencySum int64 // nanoseconds
	FrameLatencyMax int64

	// Economy metrics
	PassiveCollections int64
	Taps               int64
	Unlocks            int64
	Upgrades           int64
	RejectedPurchases  int64
	passiveGoldBits    uint64 // float64 bits
	tapGoldBits        uint64

	// Event metrics
	EventsWritten    int64
	EventWriteErrors int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// System
	StartTime    time.Time
	lastFrame    time.Time
	lastFrameMux sync.RWMutex
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{StartTime: time.Now()}
}

// RecordFrame records one engine frame.
func (c *Collector) RecordFrame(latency time.Duration) {
	atomic.AddInt64(&c.FrameCount, 1)
	atomic.AddInt64(&c.FrameLatencySum, int64(latency))

	for {
		cur := atomic.LoadInt64(&c.FrameLatencyMax)
		if int64(latency) <= cur || atomic.CompareAndSwapInt64(&c.FrameLatencyMax, cur, int64(latency)) {
			break
		}
	}

	c.lastFrameMux.Lock()
	c.lastFrame = time.Now()
	c.lastFrameMux.Unlock()
}

// RecordPassive records one passive collection.
func (c *Collector) RecordPassive(amount float64) {
	atomic.AddInt64(&c.PassiveCollections, 1)
	addFloat(&c.passiveGoldBits, amount)
}

// RecordTap records one tap collection.
func (c *Collector) RecordTap(amount float64) {
	atomic.AddInt64(&c.Taps, 1)
	addFloat(&c.tapGoldBits, amount)
}

// RecordUnlock records a successful unlock.
func (c *Collector) RecordUnlock() {
	atomic.AddInt64(&c.Unlocks, 1)
}

// RecordUpgrade records a successful upgrade.
func (c *Collector) RecordUpgrade() {
	atomic.AddInt64(&c.Upgrades, 1)
}

// RecordRejected records an unlock or upgrade that failed.
func (c *Collector) RecordRejected() {
	atomic.AddInt64(&c.RejectedPurchases, 1)
}

// RecordEventWrite records an event write to the ledger.
func (c *Collector) RecordEventWrite(err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// PassiveGold is the total gold added by passive collection.
func (c *Collector) PassiveGold() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.passiveGoldBits))
}

// TapGold is the total gold added by taps.
func (c *Collector) TapGold() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.tapGoldBits))
}

func addFloat(bits *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(bits)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(bits, old, next) {
			return
		}
	}
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	frameCount := atomic.LoadInt64(&c.FrameCount)

	var frameAvg float64
	if frameCount > 0 {
		frameAvg = float64(atomic.LoadInt64(&c.FrameLatencySum)) / float64(frameCount) / 1e6 // ms
	}

	c.lastFrameMux.RLock()
	lastFrame := c.lastFrame
	c.lastFrameMux.RUnlock()

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"frame": map[string]interface{}{
			"count":          frameCount,
			"avg_latency_ms": frameAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.FrameLatencyMax)) / 1e6,
			"last_frame":     lastFrame.Format(time.RFC3339),
		},

		"economy": map[string]interface{}{
			"passive_collections": atomic.LoadInt64(&c.PassiveCollections),
			"passive_gold":        c.PassiveGold(),
			"taps":                atomic.LoadInt64(&c.Taps),
			"tap_gold":            c.TapGold(),
			"unlocks":             atomic.LoadInt64(&c.Unlocks),
			"upgrades":            atomic.LoadInt64(&c.Upgrades),
			"rejected_purchases":  atomic.LoadInt64(&c.RejectedPurchases),
		},

		"events": map[string]interface{}{
			"written": atomic.LoadInt64(&c.EventsWritten),
			"errors":  atomic.LoadInt64(&c.EventWriteErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		json.NewEncoder(w).Encode(c.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus text format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		fmt.Fprintf(w, "# HELP clicker_frame_count Total engine frames\n")
		fmt.Fprintf(w, "# TYPE clicker_frame_count counter\n")
		fmt.Fprintf(w, "clicker_frame_count %d\n\n", atomic.LoadInt64(&c.FrameCount))

		fmt.Fprintf(w, "# HELP clicker_frame_latency_max_ms Maximum frame latency\n")
		fmt.Fprintf(w, "# TYPE clicker_frame_latency_max_ms gauge\n")
		fmt.Fprintf(w, "clicker_frame_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.FrameLatencyMax))/1e6)

		fmt.Fprintf(w, "# HELP clicker_gold_total Gold added to the balance\n")
		fmt.Fprintf(w, "# TYPE clicker_gold_total counter\n")
		fmt.Fprintf(w, "clicker_gold_total{source=\"passive\"} %.4f\n", c.PassiveGold())
		fmt.Fprintf(w, "clicker_gold_total{source=\"tap\"} %.4f\n\n", c.TapGold())

		fmt.Fprintf(w, "# HELP clicker_taps_total Total taps collected\n")
		fmt.Fprintf(w, "# TYPE clicker_taps_total counter\n")
		fmt.Fprintf(w, "clicker_taps_total %d\n\n", atomic.LoadInt64(&c.Taps))

		fmt.Fprintf(w, "# HELP clicker_purchases_total Unlock and upgrade attempts\n")
		fmt.Fprintf(w, "# TYPE clicker_purchases_total counter\n")
		fmt.Fprintf(w, "clicker_purchases_total{result=\"unlock\"} %d\n", atomic.LoadInt64(&c.Unlocks))
		fmt.Fprintf(w, "clicker_purchases_total{result=\"upgrade\"} %d\n", atomic.LoadInt64(&c.Upgrades))
		fmt.Fprintf(w, "clicker_purchases_total{result=\"rejected\"} %d\n\n", atomic.LoadInt64(&c.RejectedPurchases))

		fmt.Fprintf(w, "# HELP clicker_events_written Total events written to the ledger\n")
		fmt.Fprintf(w, "# TYPE clicker_events_written counter\n")
		fmt.Fprintf(w, "clicker_events_written %d\n\n", atomic.LoadInt64(&c.EventsWritten))

		fmt.Fprintf(w, "# HELP clicker_event_write_errors Total ledger write errors\n")
		fmt.Fprintf(w, "# TYPE clicker_event_write_errors counter\n")
		fmt.Fprintf(w, "clicker_event_write_errors %d\n\n", atomic.LoadInt64(&c.EventWriteErrors))

		fmt.Fprintf(w, "# HELP clicker_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE clicker_ws_connections gauge\n")
		fmt.Fprintf(w, "clicker_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP clicker_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE clicker_ws_messages_total counter\n")
		fmt.Fprintf(w, "clicker_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "clicker_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
	}
}
