package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/domain"
)

// Runner is the per-strategy cycle pipeline.
type Runner interface {
	Run(ctx context.Context, def domain.StrategyDefinition, mctx domain.MarketContext) domain.RunResult
}

// Executor consumes one cycle's merged results.
type Executor interface {
	Execute(ctx context.Context, cycleID string, defs []domain.StrategyDefinition, results map[string]domain.RunResult, now time.Time)
}

// Scheduler triggers strategy cycles on UTC wall-clock boundaries. Each
// cadence N fires when the UTC minute is divisible by N, at most once per
// minute regardless of how often Tick is polled. The watermark is the
// absolute unix minute, not the minute of the hour, so a 60-minute cadence
// still fires on the next hour's boundary.
type Scheduler struct {
	defs          []domain.StrategyDefinition
	runner        Runner
	executor      Executor
	runnerTimeout time.Duration
	sentimentFn   func(ctx context.Context) string
	logger        *zap.Logger

	mu      sync.Mutex
	lastRun map[int]int64 // cadence minutes -> unix-minute watermark
}

func NewScheduler(defs []domain.StrategyDefinition, runner Runner, executor Executor, runnerTimeout time.Duration, logger *zap.Logger) *Scheduler {
	if runnerTimeout <= 0 {
		runnerTimeout = 2 * time.Minute
	}
	return &Scheduler{
		defs:          defs,
		runner:        runner,
		executor:      executor,
		runnerTimeout: runnerTimeout,
		logger:        logger,
		lastRun:       make(map[int]int64),
	}
}

// SetSentimentFn installs an optional provider of cross-strategy macro
// sentiment included in every runner's context snapshot.
func (s *Scheduler) SetSentimentFn(fn func(ctx context.Context) string) {
	s.sentimentFn = fn
}

// Tick checks the wall clock and, when one or more cadences are due, runs
// ONE combined cycle for the union of their strategies. Returns true when a
// cycle was dispatched.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) bool {
	due := s.dueStrategies(now)
	if len(due) == 0 {
		return false
	}
	s.runCycle(ctx, due, now)
	return true
}

func (s *Scheduler) dueStrategies(now time.Time) []domain.StrategyDefinition {
	minute := now.UTC().Minute()
	unixMinute := now.Unix() / 60

	s.mu.Lock()
	defer s.mu.Unlock()

	dueCadence := make(map[int]bool)
	for _, def := range s.defs {
		if !def.Enabled || def.CadenceMinutes <= 0 {
			continue
		}
		n := def.CadenceMinutes
		if minute%n != 0 {
			continue
		}
		if s.lastRun[n] == unixMinute {
			continue
		}
		dueCadence[n] = true
	}
	if len(dueCadence) == 0 {
		return nil
	}
	for n := range dueCadence {
		s.lastRun[n] = unixMinute
	}

	var due []domain.StrategyDefinition
	for _, def := range s.defs {
		if def.Enabled && dueCadence[def.CadenceMinutes] {
			due = append(due, def)
		}
	}
	return due
}

// runCycle fans the due strategies out to one worker each, waits for all of
// them at a barrier, merges the results keyed by strategy name, and hands
// the combined snapshot to the executor exactly once.
func (s *Scheduler) runCycle(ctx context.Context, due []domain.StrategyDefinition, now time.Time) {
	cycleID := uuid.NewString()
	base := domain.MarketContext{CycleID: cycleID, StartedAt: now}
	if s.sentimentFn != nil {
		base.Sentiment = s.sentimentFn(ctx)
	}

	s.logger.Info("cycle start",
		zap.String("cycle_id", cycleID),
		zap.Int("strategies", len(due)),
		zap.Time("boundary", now.UTC().Truncate(time.Minute)))

	type keyed struct {
		name string
		res  domain.RunResult
	}
	out := make(chan keyed, len(due))

	var wg sync.WaitGroup
	for _, def := range due {
		wg.Add(1)
		go func(def domain.StrategyDefinition) {
			defer wg.Done()
			runCtx, cancel := context.WithTimeout(ctx, s.runnerTimeout)
			defer cancel()

			res := s.runOne(runCtx, def, base)
			out <- keyed{name: def.Name, res: res}
		}(def)
	}
	wg.Wait()
	close(out)

	results := make(map[string]domain.RunResult, len(due))
	for kv := range out {
		results[kv.name] = kv.res
	}

	s.executor.Execute(ctx, cycleID, due, results, now)

	s.logger.Info("cycle done",
		zap.String("cycle_id", cycleID),
		zap.Duration("elapsed", time.Since(now)))
}

// runOne isolates a single runner: its copy of the base context, its own
// timeout, and a panic guard so a broken strategy cannot take down the
// cycle.
func (s *Scheduler) runOne(ctx context.Context, def domain.StrategyDefinition, base domain.MarketContext) (res domain.RunResult) {
	defer func() {
		if r := recover(); r != nil {
			res = domain.RunResult{Strategy: def.Name, Err: fmt.Errorf("runner panic: %v", r)}
		}
	}()
	return s.runner.Run(ctx, def, base)
}
