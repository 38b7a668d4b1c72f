// Package test holds scripted economy scenarios that run against a real
// engine. They are exercised by go test and by cmd/scenario-runner.
package test

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pawclicker/server/internal/domain/resource"
	"github.com/pawclicker/server/internal/domain/rules"
	"github.com/pawclicker/server/internal/engine"
	"github.com/pawclicker/server/internal/events"
	"github.com/pawclicker/server/internal/platform/logger"
	"github.com/pawclicker/server/internal/platform/metrics"
)

// ScenarioResult captures the outcome of one scenario.
type ScenarioResult struct {
	ScenarioName string
	Expected     string
	Actual       string
	Passed       bool
	Reason       string
}

// Scenario drives a fresh engine and reports what happened.
type Scenario struct {
	Name string
	Run  func(s *Suite) ScenarioResult
}

// Suite runs scenarios, each against its own engine and event log.
type Suite struct {
	logger   *logger.Logger
	verbose  bool
	eventLog *events.EventLog
	results  []ScenarioResult
}

// NewSuite creates the scenario harness. Pass a discard logger to keep the
// engine quiet.
func NewSuite(log *logger.Logger, verbose bool) *Suite {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Suite{logger: log, verbose: verbose}
}

// Scenarios lists the built-in economy scenarios in run order.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: "Paw tick then tap", Run: pawTickThenTap},
		{Name: "Upgrade with insufficient funds", Run: insufficientFunds},
		{Name: "Double unlock", Run: doubleUnlock},
		{Name: "Coarse passive clock", Run: coarseClock},
		{Name: "Unlock reveals the next resource", Run: unlockReveals},
		{Name: "Tap feedback pool grows", Run: poolGrows},
	}
}

// RunAll executes every scenario and returns the results.
func (s *Suite) RunAll() []ScenarioResult {
	for _, sc := range Scenarios() {
		res := sc.Run(s)
		res.ScenarioName = sc.Name
		s.results = append(s.results, res)
		if s.verbose {
			s.print(res)
		}
	}
	return s.results
}

// Results returns what has run so far.
func (s *Suite) Results() []ScenarioResult {
	return s.results
}

func (s *Suite) print(r ScenarioResult) {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("[%s] %s\n", status, r.ScenarioName)
	fmt.Printf("   expected: %s\n", r.Expected)
	fmt.Printf("   actual:   %s\n", r.Actual)
	if r.Reason != "" {
		fmt.Printf("   reason:   %s\n", r.Reason)
	}
}

func (s *Suite) newEngine(fraction float64, configs []resource.Config) *engine.Engine {
	s.eventLog = events.NewEventLog(0, nil)
	return engine.NewEngine(engine.Settings{
		AutoCollectFraction: fraction,
		Curve:               rules.LinearCurve(),
		Resources:           configs,
	}, s.eventLog, s.logger, metrics.NewCollector())
}

func paw() resource.Config {
	return resource.Config{Name: "Paw", UnlockCost: 0, UpgradeCost: 10, Output: 1}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func pawTickThenTap(s *Suite) ScenarioResult {
	e := s.newEngine(0.1, []resource.Config{paw()})
	res := ScenarioResult{Expected: "balance 0.1 after one second, 1.1 after a tap, one token showing 1.0"}

	e.Tick(time.Second)
	afterTick := e.Balance()
	tap := e.CollectByTap(resource.Vec3{})

	res.Actual = fmt.Sprintf("balance %.2f after tick, %.2f after tap, token %.2f", afterTick, e.Balance(), tap.Token.DisplayValue)
	res.Passed = near(afterTick, 0.1) && near(e.Balance(), 1.1) && near(tap.Token.DisplayValue, 1.0)
	return res
}

func insufficientFunds(s *Suite) ScenarioResult {
	e := s.newEngine(0.1, []resource.Config{paw()})
	res := ScenarioResult{Expected: "InsufficientFundsError, balance stays 5"}

	if err := e.AddGold(5); err != nil {
		res.Reason = err.Error()
		return res
	}
	err := e.TryUpgrade(0)

	var ife *engine.InsufficientFundsError
	res.Actual = fmt.Sprintf("err=%v balance=%.2f", err, e.Balance())
	res.Passed = errors.As(err, &ife) && near(e.Balance(), 5) && e.Registry().Levels()[0] == 1
	if !res.Passed && err == nil {
		res.Reason = "upgrade succeeded without funds"
	}
	return res
}

func doubleUnlock(s *Suite) ScenarioResult {
	e := s.newEngine(0.1, []resource.Config{
		paw(),
		{Name: "Whisker", UnlockCost: 100, UpgradeCost: 60, Output: 5},
	})
	res := ScenarioResult{Expected: "second unlock fails with InvalidStateError, level stays 1"}

	e.AddGold(250)
	if err := e.TryUnlock(1); err != nil {
		res.Reason = "first unlock failed: " + err.Error()
		return res
	}
	err := e.TryUnlock(1)

	level := e.Registry().Levels()[1]
	res.Actual = fmt.Sprintf("err=%v level=%d balance=%.2f", err, level, e.Balance())
	res.Passed = errors.Is(err, engine.ErrInvalidState) && level == 1 && near(e.Balance(), 150)
	return res
}

func coarseClock(s *Suite) ScenarioResult {
	e := s.newEngine(0.5, []resource.Config{{Name: "Paw", UnlockCost: 0, UpgradeCost: 10, Output: 2}})
	res := ScenarioResult{Expected: "a 2.5s frame collects once and keeps no surplus"}

	_, first := e.Tick(2500 * time.Millisecond)
	_, second := e.Tick(900 * time.Millisecond)

	res.Actual = fmt.Sprintf("fired=%v then %v, balance %.2f", first, second, e.Balance())
	res.Passed = first && !second && near(e.Balance(), 1)
	return res
}

func unlockReveals(s *Suite) ScenarioResult {
	e := s.newEngine(0.1, []resource.Config{
		paw(),
		{Name: "Whisker", UnlockCost: 100, UpgradeCost: 60, Output: 5},
		{Name: "Yarn Ball", UnlockCost: 1500, UpgradeCost: 500, Output: 30},
	})
	res := ScenarioResult{Expected: "Yarn Ball hidden until Whisker is unlocked"}

	before, _ := e.Registry().Get(2)
	e.AddGold(100)
	err := e.TryUnlock(1)
	after, _ := e.Registry().Get(2)

	revealed := len(s.eventLog.GetByType(events.EventTypeResourceRevealed))
	res.Actual = fmt.Sprintf("revealed before=%v after=%v events=%d err=%v", before.Revealed, after.Revealed, revealed, err)
	res.Passed = err == nil && !before.Revealed && after.Revealed && revealed == 1
	return res
}

func poolGrows(s *Suite) ScenarioResult {
	e := s.newEngine(0.1, []resource.Config{paw()})
	res := ScenarioResult{Expected: "five taps hold five distinct tokens"}

	seen := make(map[*resource.FeedbackToken]bool)
	for i := 0; i < 5; i++ {
		seen[e.CollectByTap(resource.Vec3{X: float64(i)}).Token] = true
	}
	snap := e.Snapshot()

	res.Actual = fmt.Sprintf("distinct=%d pool=%d active=%d", len(seen), snap.PoolSize, snap.ActiveTokens)
	res.Passed = len(seen) == 5 && snap.ActiveTokens == 5 && snap.PoolSize >= 5
	return res
}
