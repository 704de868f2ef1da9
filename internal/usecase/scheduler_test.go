package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/domain"
	"github.com/krejcif/llmtrader/internal/usecase"
)

type stubRunner struct {
	mu     sync.Mutex
	calls  []string
	fail   map[string]error
	panics map[string]bool
}

func (r *stubRunner) Run(ctx context.Context, def domain.StrategyDefinition, mctx domain.MarketContext) domain.RunResult {
	r.mu.Lock()
	r.calls = append(r.calls, def.Name)
	r.mu.Unlock()

	if r.panics[def.Name] {
		panic("boom")
	}
	if err := r.fail[def.Name]; err != nil {
		return domain.RunResult{Strategy: def.Name, Err: err}
	}
	return domain.RunResult{
		Strategy: def.Name,
		Rec:      &domain.Recommendation{Action: domain.ActionNeutral, Symbol: def.Symbol},
		RefPrice: 100,
	}
}

type stubExecutor struct {
	mu      sync.Mutex
	cycles  []map[string]domain.RunResult
	cycleNs [][]string
}

func (e *stubExecutor) Execute(ctx context.Context, cycleID string, defs []domain.StrategyDefinition, results map[string]domain.RunResult, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	e.cycles = append(e.cycles, results)
	e.cycleNs = append(e.cycleNs, names)
}

func testDefs() []domain.StrategyDefinition {
	return []domain.StrategyDefinition{
		{Name: "scalper", Symbol: "SOLUSDT", CadenceMinutes: 5, Enabled: true},
		{Name: "swing", Symbol: "SOLUSDT", CadenceMinutes: 15, Enabled: true},
		{Name: "disabled", Symbol: "SOLUSDT", CadenceMinutes: 5, Enabled: false},
	}
}

func newTestScheduler(runner usecase.Runner, exec usecase.Executor) *usecase.Scheduler {
	return usecase.NewScheduler(testDefs(), runner, exec, time.Minute, zap.NewNop())
}

func TestScheduler_IdempotentWithinMinute(t *testing.T) {
	runner := &stubRunner{}
	exec := &stubExecutor{}
	s := newTestScheduler(runner, exec)

	now := time.Date(2026, 8, 20, 12, 10, 2, 0, time.UTC)
	assert.True(t, s.Tick(context.Background(), now))
	assert.False(t, s.Tick(context.Background(), now.Add(5*time.Second)), "same minute must not re-trigger")
	assert.False(t, s.Tick(context.Background(), now.Add(40*time.Second)))

	assert.Len(t, exec.cycles, 1)
	assert.Equal(t, []string{"scalper"}, exec.cycleNs[0])
}

func TestScheduler_SkipsOffBoundaryMinutes(t *testing.T) {
	exec := &stubExecutor{}
	s := newTestScheduler(&stubRunner{}, exec)

	now := time.Date(2026, 8, 20, 12, 7, 0, 0, time.UTC)
	assert.False(t, s.Tick(context.Background(), now))
	assert.Empty(t, exec.cycles)
}

func TestScheduler_CombinedCadencesRunInOneCycle(t *testing.T) {
	runner := &stubRunner{}
	exec := &stubExecutor{}
	s := newTestScheduler(runner, exec)

	// minute 15 is a boundary for both the 5m and 15m cadences
	now := time.Date(2026, 8, 20, 12, 15, 1, 0, time.UTC)
	require.True(t, s.Tick(context.Background(), now))

	require.Len(t, exec.cycles, 1, "both cadences share one barrier cycle")
	assert.ElementsMatch(t, []string{"scalper", "swing"}, exec.cycleNs[0])
	assert.Contains(t, exec.cycles[0], "scalper")
	assert.Contains(t, exec.cycles[0], "swing")
}

func TestScheduler_NextBoundaryFiresAgain(t *testing.T) {
	exec := &stubExecutor{}
	s := newTestScheduler(&stubRunner{}, exec)

	assert.True(t, s.Tick(context.Background(), time.Date(2026, 8, 20, 12, 5, 0, 0, time.UTC)))
	assert.True(t, s.Tick(context.Background(), time.Date(2026, 8, 20, 12, 10, 0, 0, time.UTC)))
	assert.Len(t, exec.cycles, 2)
}

func TestScheduler_HourlyCadenceSurvivesRollover(t *testing.T) {
	defs := []domain.StrategyDefinition{
		{Name: "trend", Symbol: "SOLUSDT", CadenceMinutes: 60, Enabled: true},
	}
	exec := &stubExecutor{}
	s := usecase.NewScheduler(defs, &stubRunner{}, exec, time.Minute, zap.NewNop())

	// minute-of-hour is 0 both times; the absolute-minute watermark must
	// still let the second hour fire
	assert.True(t, s.Tick(context.Background(), time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)))
	assert.True(t, s.Tick(context.Background(), time.Date(2026, 8, 20, 13, 0, 0, 0, time.UTC)))
	assert.Len(t, exec.cycles, 2)
}

func TestScheduler_FailedRunnerDoesNotCancelSiblings(t *testing.T) {
	runner := &stubRunner{fail: map[string]error{"scalper": errors.New("api down")}}
	exec := &stubExecutor{}
	s := newTestScheduler(runner, exec)

	now := time.Date(2026, 8, 20, 12, 15, 0, 0, time.UTC)
	require.True(t, s.Tick(context.Background(), now))

	require.Len(t, exec.cycles, 1)
	results := exec.cycles[0]
	assert.Error(t, results["scalper"].Err)
	require.NotNil(t, results["swing"].Rec, "sibling completed despite the failure")
	assert.NoError(t, results["swing"].Err)
}

func TestScheduler_PanickingRunnerIsContained(t *testing.T) {
	runner := &stubRunner{panics: map[string]bool{"swing": true}}
	exec := &stubExecutor{}
	s := newTestScheduler(runner, exec)

	now := time.Date(2026, 8, 20, 12, 15, 0, 0, time.UTC)
	require.True(t, s.Tick(context.Background(), now))

	results := exec.cycles[0]
	require.Error(t, results["swing"].Err)
	assert.Contains(t, results["swing"].Err.Error(), "panic")
	assert.NoError(t, results["scalper"].Err)
}
