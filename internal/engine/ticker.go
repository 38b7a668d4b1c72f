package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pawclicker/server/internal/platform/logger"
	"github.com/pawclicker/server/internal/platform/metrics"
)

// DefaultFrameRate is used when no frame interval is configured.
const DefaultFrameRate = 30

// Command is a unit of work run on the ticker goroutine with exclusive
// access to the engine.
type Command func(e *Engine)

// Ticker is the engine's clock and its serializing queue. Frames and
// commands run on one goroutine, so the engine never sees concurrent calls.
type Ticker struct {
	engine   *Engine
	interval time.Duration
	commands chan Command
	logger   *logger.Logger
	metrics  *metrics.Collector

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewTicker creates a ticker that calls engine.Tick every interval.
// queue bounds how many commands can wait before Submit blocks.
func NewTicker(e *Engine, interval time.Duration, queue int, log *logger.Logger, m *metrics.Collector) *Ticker {
	if interval <= 0 {
		interval = time.Second / DefaultFrameRate
	}
	if queue < 0 {
		queue = 0
	}
	if log == nil {
		log = logger.NewDiscard()
	}
	if m == nil {
		m = metrics.NewCollector()
	}
	return &Ticker{
		engine:   e,
		interval: interval,
		commands: make(chan Command, queue),
		logger:   log,
		metrics:  m,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the frame loop until ctx is cancelled or Stop is called.
// Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	defer close(t.done)
	t.logger.Info("Economy ticker started (frame " + t.interval.String() + ")")

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Economy ticker stopped by context.")
			return
		case <-t.stopChan:
			t.logger.Info("Economy ticker stopped manually.")
			return
		case cmd := <-t.commands:
			cmd(t.engine)
		case <-ticker.C:
			now := time.Now()
			t.engine.Tick(now.Sub(last))
			last = now
			t.metrics.RecordFrame(time.Since(now))
		}
	}
}

// Stop ends the frame loop. It is safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

// Done is closed once the frame loop has exited.
func (t *Ticker) Done() <-chan struct{} {
	return t.done
}

// Submit queues cmd for the ticker goroutine.
func (t *Ticker) Submit(ctx context.Context, cmd Command) error {
	select {
	case <-t.done:
		return ErrTickerStopped
	default:
	}

	select {
	case t.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrTickerStopped
	}
}

// Do runs fn on the ticker goroutine and waits for its result.
// ctx bounds only the enqueue: once fn is queued it will run, so Do waits
// for its result and never reports a cancellation for a command that took
// effect.
func (t *Ticker) Do(ctx context.Context, fn func(e *Engine) error) error {
	result := make(chan error, 1)
	if err := t.Submit(ctx, func(e *Engine) { result <- fn(e) }); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-t.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrTickerStopped
		}
	}
}

// After queues cmd once d has elapsed. Commands due after the ticker has
// stopped are dropped.
func (t *Ticker) After(d time.Duration, cmd Command) {
	time.AfterFunc(d, func() {
		if err := t.Submit(context.Background(), cmd); err != nil && err != ErrTickerStopped {
			t.logger.Warn("Delayed command dropped: " + err.Error())
		}
	})
}
