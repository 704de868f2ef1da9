package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/domain"
)

const candleLookback = 100

// StrategyRunner executes one strategy's pipeline for one cycle: fetch both
// timeframes, summarize, ask the oracle, and attach risk levels when the
// decision is actionable. Any failure is captured in the RunResult instead
// of propagating, so one strategy can never abort its siblings.
type StrategyRunner struct {
	market domain.MarketData
	oracle domain.Oracle
	risk   *RiskEngine
	logger *zap.Logger
}

func NewStrategyRunner(market domain.MarketData, oracle domain.Oracle, risk *RiskEngine, logger *zap.Logger) *StrategyRunner {
	return &StrategyRunner{market: market, oracle: oracle, risk: risk, logger: logger}
}

// Run evaluates one strategy. mctx is the runner's own copy of the shared
// context; runners never alias each other's state.
func (r *StrategyRunner) Run(ctx context.Context, def domain.StrategyDefinition, mctx domain.MarketContext) domain.RunResult {
	start := time.Now()
	res := domain.RunResult{Strategy: def.Name}

	trend, err := r.market.GetCandles(ctx, def.Symbol, def.TrendTimeframe, candleLookback)
	if err != nil {
		res.Err = fmt.Errorf("fetch %s candles: %w", def.TrendTimeframe, err)
		return r.finish(res, start)
	}
	entry, err := r.market.GetCandles(ctx, def.Symbol, def.EntryTimeframe, candleLookback)
	if err != nil {
		res.Err = fmt.Errorf("fetch %s candles: %w", def.EntryTimeframe, err)
		return r.finish(res, start)
	}
	if len(entry) == 0 || len(trend) == 0 {
		res.Err = fmt.Errorf("empty candle series for %s", def.Symbol)
		return r.finish(res, start)
	}
	res.RefPrice = entry[len(entry)-1].Close

	summary := buildSummary(def, mctx, trend, entry)
	rec, err := r.oracle.Decide(ctx, def.Name, summary)
	if err != nil {
		res.Err = fmt.Errorf("oracle decide: %w", err)
		return r.finish(res, start)
	}
	if !rec.Action.Valid() {
		res.Err = fmt.Errorf("oracle returned invalid action %q", rec.Action)
		return r.finish(res, start)
	}
	if rec.Symbol == "" {
		rec.Symbol = def.Symbol
	}

	if rec.Action != domain.ActionNeutral {
		levels, err := r.risk.Calculate(entry, domain.SideForAction(rec.Action))
		if err != nil {
			res.Err = fmt.Errorf("risk levels: %w", err)
			return r.finish(res, start)
		}
		rec.Risk = levels
	}

	res.Rec = rec
	return r.finish(res, start)
}

func (r *StrategyRunner) finish(res domain.RunResult, start time.Time) domain.RunResult {
	res.Elapsed = time.Since(start)
	if res.Err != nil {
		r.logger.Warn("strategy run failed",
			zap.String("strategy", res.Strategy),
			zap.Duration("elapsed", res.Elapsed),
			zap.Error(res.Err))
	}
	return res
}

func buildSummary(def domain.StrategyDefinition, mctx domain.MarketContext, trend, entry []domain.Candle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "symbol=%s strategy=%s\n", def.Symbol, def.Name)
	if mctx.Sentiment != "" {
		fmt.Fprintf(&b, "macro_sentiment=%s\n", mctx.Sentiment)
	}
	writeTimeframe(&b, def.TrendTimeframe, trend)
	writeTimeframe(&b, def.EntryTimeframe, entry)
	return b.String()
}

func writeTimeframe(b *strings.Builder, tf string, candles []domain.Candle) {
	n := len(candles)
	fmt.Fprintf(b, "timeframe=%s candles=%d\n", tf, n)
	// keep the tail of the series, the oracle does not need full history
	from := 0
	if n > 24 {
		from = n - 24
	}
	for _, c := range candles[from:] {
		fmt.Fprintf(b, "t=%d o=%.6f h=%.6f l=%.6f c=%.6f v=%.2f\n", c.Time, c.Open, c.High, c.Low, c.Close, c.Volume)
	}
}
