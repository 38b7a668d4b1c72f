// Package main - tapper
// Load generator: many WebSocket clients tapping and buying against a
// running clicker server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Config for the tapper
type Config struct {
	ServerURL      string
	NumClients     int
	ActionInterval time.Duration
	TestDuration   time.Duration
	Resources      int
	BuyRatio       float64
}

// Stats tracks performance metrics
type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	Events           int64
	Rejected         int64
	RateLimited      int64
	Errors           int64
	Latencies        []time.Duration
	mu               sync.Mutex
}

type serverMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type actionResult struct {
	RequestID string  `json:"request_id"`
	OK        bool    `json:"ok"`
	ErrorCode string  `json:"error_code"`
	Balance   float64 `json:"balance"`
}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	numClients := flag.Int("clients", 20, "Number of concurrent clients")
	interval := flag.Duration("interval", 100*time.Millisecond, "Action interval per client")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	resources := flag.Int("resources", 6, "Number of resources to try buying")
	buyRatio := flag.Float64("buy-ratio", 0.1, "Fraction of actions that are purchases")
	flag.Parse()

	config := Config{
		ServerURL:      *serverURL,
		NumClients:     *numClients,
		ActionInterval: *interval,
		TestDuration:   *duration,
		Resources:      *resources,
		BuyRatio:       *buyRatio,
	}

	fmt.Println("=========================================")
	fmt.Println("TAPPER - Economy load generator")
	fmt.Println("=========================================")
	fmt.Printf("Server: %s\n", config.ServerURL)
	fmt.Printf("Clients: %d\n", config.NumClients)
	fmt.Printf("Interval: %v\n", config.ActionInterval)
	fmt.Printf("Duration: %v\n", config.TestDuration)
	fmt.Println("=========================================")

	ctx, cancel := context.WithTimeout(context.Background(), config.TestDuration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupt received, stopping...")
		cancel()
	}()

	stats := runLoad(ctx, config)
	printResults(stats, config)
}

func runLoad(ctx context.Context, config Config) *Stats {
	stats := &Stats{
		Latencies: make([]time.Duration, 0, 10000),
	}

	var wg sync.WaitGroup
	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			runClient(ctx, clientID, config, stats)
		}(i)

		// Stagger client starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}
	fmt.Printf("All %d clients started\n\n", config.NumClients)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Printf("Progress: Sent=%d Recv=%d Events=%d Errors=%d\n",
					atomic.LoadInt64(&stats.MessagesSent),
					atomic.LoadInt64(&stats.MessagesReceived),
					atomic.LoadInt64(&stats.Events),
					atomic.LoadInt64(&stats.Errors))
			}
		}
	}()

	wg.Wait()
	return stats
}

func runClient(ctx context.Context, clientID int, config Config, stats *Stats) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		log.Printf("Client %d: Connection failed: %v", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	// Round-trip latency is measured from send to the matching ACTION_RESULT.
	var pending sync.Map

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			atomic.AddInt64(&stats.MessagesReceived, 1)
			recordMessage(raw, &pending, stats)
		}
	}()

	ticker := time.NewTicker(config.ActionInterval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(clientID)))
	seq := 0
	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			seq++
			requestID := fmt.Sprintf("c%d-%d", clientID, seq)
			action := generateAction(rng, requestID, config)

			pending.Store(requestID, time.Now())
			if err := conn.WriteJSON(action); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}
			atomic.AddInt64(&stats.MessagesSent, 1)
		}
	}
}

func recordMessage(raw []byte, pending *sync.Map, stats *Stats) {
	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	switch msg.Type {
	case "EVENT":
		atomic.AddInt64(&stats.Events, 1)
	case "ACTION_RESULT":
		var res actionResult
		if err := json.Unmarshal(msg.Payload, &res); err != nil {
			atomic.AddInt64(&stats.Errors, 1)
			return
		}
		if sent, ok := pending.LoadAndDelete(res.RequestID); ok {
			stats.mu.Lock()
			stats.Latencies = append(stats.Latencies, time.Since(sent.(time.Time)))
			stats.mu.Unlock()
		}
		switch {
		case res.ErrorCode == "RATE_LIMITED":
			atomic.AddInt64(&stats.RateLimited, 1)
		case !res.OK:
			atomic.AddInt64(&stats.Rejected, 1)
		}
	}
}

func generateAction(rng *rand.Rand, requestID string, config Config) map[string]interface{} {
	if rng.Float64() >= config.BuyRatio || config.Resources <= 0 {
		return map[string]interface{}{
			"type":       "TAP",
			"request_id": requestID,
			"position": map[string]float64{
				"x": rng.Float64() * 10,
				"y": rng.Float64() * 10,
			},
		}
	}

	actionType := "UPGRADE"
	if rng.Intn(2) == 0 {
		actionType = "UNLOCK"
	}
	return map[string]interface{}{
		"type":        actionType,
		"request_id":  requestID,
		"resource_id": rng.Intn(config.Resources),
	}
}

func printResults(stats *Stats, config Config) {
	fmt.Println("\n=========================================")
	fmt.Println("LOAD TEST RESULTS")
	fmt.Println("=========================================")

	sent := atomic.LoadInt64(&stats.MessagesSent)
	recv := atomic.LoadInt64(&stats.MessagesReceived)
	errs := atomic.LoadInt64(&stats.Errors)

	fmt.Printf("Messages Sent:     %d\n", sent)
	fmt.Printf("Messages Received: %d\n", recv)
	fmt.Printf("Events Received:   %d\n", atomic.LoadInt64(&stats.Events))
	fmt.Printf("Rejected Buys:     %d\n", atomic.LoadInt64(&stats.Rejected))
	fmt.Printf("Rate Limited:      %d\n", atomic.LoadInt64(&stats.RateLimited))
	fmt.Printf("Errors:            %d\n", errs)

	throughput := float64(sent) / config.TestDuration.Seconds()
	fmt.Printf("Throughput:        %.2f msg/sec\n", throughput)

	stats.mu.Lock()
	latencies := stats.Latencies
	stats.mu.Unlock()
	if len(latencies) > 0 {
		var total time.Duration
		min, max := latencies[0], latencies[0]
		for _, l := range latencies {
			total += l
			if l < min {
				min = l
			}
			if l > max {
				max = l
			}
		}
		fmt.Printf("\nRound-trip latency:\n")
		fmt.Printf("  Min: %v\n", min)
		fmt.Printf("  Avg: %v\n", total/time.Duration(len(latencies)))
		fmt.Printf("  Max: %v\n", max)
	}

	fmt.Println("\n-----------------------------------------")
	if errs == 0 {
		fmt.Println("PASSED: no transport errors")
	} else if float64(errs)/float64(sent+1) < 0.05 {
		fmt.Println("WARNING: some errors detected")
	} else {
		fmt.Println("FAILED: high error rate")
	}

	results := map[string]interface{}{
		"messages_sent":      sent,
		"messages_received":  recv,
		"errors":             errs,
		"throughput_per_sec": throughput,
		"config": map[string]interface{}{
			"clients":  config.NumClients,
			"interval": config.ActionInterval.String(),
			"duration": config.TestDuration.String(),
		},
	}
	jsonData, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile("tapper_results.json", jsonData, 0644); err == nil {
		fmt.Println("Results saved to tapper_results.json")
	}
}
