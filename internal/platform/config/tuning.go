package config

import (
	"runtime"

	"github.com/pawclicker/server/internal/events"
)

// Tuning profile names.
const (
	ProfileDefault = "default"
	ProfileStress  = "stress"
	ProfileLow     = "low"
)

// Tuning holds buffer and pool sizes for the host.
type Tuning struct {
	// Channel buffer sizes
	CommandQueue           int // Pending engine commands
	BroadcastChannelBuffer int // Hub fan-out
	ClientSendBuffer       int // Per WebSocket

	// Event log
	EventRetention int

	// Ledger connections
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Rate limiting
	MaxMessagesPerSecond int // Per client
	MaxClients           int
}

// DefaultTuning returns sensible defaults for production.
func DefaultTuning() Tuning {
	numCPU := runtime.NumCPU()

	return Tuning{
		CommandQueue:           1024,
		BroadcastChannelBuffer: 256,
		ClientSendBuffer:       64,

		EventRetention: events.DefaultRetention,

		// SQLite serialises writers; readers can fan out.
		DBMaxOpenConns: numCPU,
		DBMaxIdleConns: 2,

		MaxMessagesPerSecond: 30,
		MaxClients:           200,
	}
}

// StressTuning returns aggressive settings for load testing with cmd/tapper.
func StressTuning() Tuning {
	numCPU := runtime.NumCPU()

	return Tuning{
		CommandQueue:           4096,
		BroadcastChannelBuffer: 1024,
		ClientSendBuffer:       256,

		EventRetention: 4 * events.DefaultRetention,

		DBMaxOpenConns: numCPU * 2,
		DBMaxIdleConns: 4,

		MaxMessagesPerSecond: 500,
		MaxClients:           1000,
	}
}

// LowResourceTuning returns minimal settings for development.
func LowResourceTuning() Tuning {
	return Tuning{
		CommandQueue:           64,
		BroadcastChannelBuffer: 16,
		ClientSendBuffer:       8,

		EventRetention: 256,

		DBMaxOpenConns: 1,
		DBMaxIdleConns: 1,

		MaxMessagesPerSecond: 10,
		MaxClients:           20,
	}
}

// Resolve picks the named profile and applies explicit overrides.
func (t TuningConfig) Resolve() Tuning {
	var tuning Tuning
	switch t.Profile {
	case ProfileStress:
		tuning = StressTuning()
	case ProfileLow:
		tuning = LowResourceTuning()
	default:
		tuning = DefaultTuning()
	}

	if t.EventRetention > 0 {
		tuning.EventRetention = t.EventRetention
	}
	return tuning
}
