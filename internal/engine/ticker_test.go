package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pawclicker/server/internal/domain/resource"
	"github.com/pawclicker/server/internal/domain/rules"
	"github.com/pawclicker/server/internal/events"
	"github.com/pawclicker/server/internal/platform/logger"
	"github.com/pawclicker/server/internal/platform/metrics"
)

func startTicker(t *testing.T, interval time.Duration) (*Ticker, *metrics.Collector) {
	t.Helper()
	m := metrics.NewCollector()
	log := events.NewEventLog(0, nil)
	e := NewEngine(Settings{
		AutoCollectFraction: 0.1,
		Curve:               rules.LinearCurve(),
		Resources:           catalog(),
	}, log, logger.NewDiscard(), m)

	tk := NewTicker(e, interval, 16, logger.NewDiscard(), m)
	ctx, cancel := context.WithCancel(context.Background())
	go tk.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-tk.Done()
	})
	return tk, m
}

func TestTickerSerializesConcurrentCommands(t *testing.T) {
	tk, _ := startTicker(t, 5*time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tk.Do(ctx, func(e *Engine) error {
				e.CollectByTap(resource.Vec3{})
				return nil
			})
			if err != nil {
				t.Errorf("Do failed: %v", err)
			}
		}()
	}
	wg.Wait()

	var taps int
	tk.Do(ctx, func(e *Engine) error {
		taps = e.pool.ActiveCount()
		return nil
	})
	if taps != 50 {
		t.Errorf("Expected 50 active tokens, got %d", taps)
	}
}

func TestTickerDoReturnsCommandError(t *testing.T) {
	tk, _ := startTicker(t, 5*time.Millisecond)

	err := tk.Do(context.Background(), func(e *Engine) error {
		return e.TryUnlock(1)
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("Expected ErrInsufficientFunds, got %v", err)
	}
}

func TestTickerRunsFrames(t *testing.T) {
	_, m := startTicker(t, 2*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&m.FrameCount) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected frames to run, got %d", atomic.LoadInt64(&m.FrameCount))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTickerAfterReleasesToken(t *testing.T) {
	tk, _ := startTicker(t, 5*time.Millisecond)
	ctx := context.Background()

	tk.Do(ctx, func(e *Engine) error {
		res := e.CollectByTap(resource.Vec3{})
		tok := res.Token
		tk.After(10*time.Millisecond, func(e *Engine) { e.ReleaseToken(tok) })
		return nil
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		var active int
		tk.Do(ctx, func(e *Engine) error {
			active = e.pool.ActiveCount()
			return nil
		})
		if active == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected token to be released")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	tk, _ := startTicker(t, 5*time.Millisecond)
	tk.Stop()
	tk.Stop()
	<-tk.Done()

	err := tk.Submit(context.Background(), func(*Engine) {})
	if !errors.Is(err, ErrTickerStopped) {
		t.Errorf("Expected ErrTickerStopped, got %v", err)
	}
}

func TestSubmitHonoursContext(t *testing.T) {
	e := NewEngine(Settings{Resources: catalog()}, nil, nil, nil)
	tk := NewTicker(e, time.Millisecond, 0, nil, nil) // never started, unbuffered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := tk.Submit(ctx, func(*Engine) {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestDoWaitsForQueuedCommandAfterCancel(t *testing.T) {
	tk, _ := startTicker(t, time.Hour)
	ctx := context.Background()

	if err := tk.Do(ctx, func(e *Engine) error { return e.AddGold(10) }); err != nil {
		t.Fatalf("AddGold failed: %v", err)
	}

	release := make(chan struct{})
	if err := tk.Submit(ctx, func(*Engine) { <-release }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- tk.Do(short, func(e *Engine) error { return e.TryUpgrade(0) })
	}()

	<-short.Done()
	time.Sleep(10 * time.Millisecond)
	close(release)

	if err := <-errCh; err != nil {
		t.Fatalf("Expected the queued upgrade to report its own result, got %v", err)
	}

	var balance float64
	var level int
	tk.Do(ctx, func(e *Engine) error {
		balance = e.Balance()
		level = e.Registry().Levels()[0]
		return nil
	})
	if balance != 0 || level != 2 {
		t.Errorf("Expected balance 0 and level 2, got %v and %d", balance, level)
	}
}
