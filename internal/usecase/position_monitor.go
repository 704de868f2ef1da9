package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/domain"
)

// PositionMonitor polls current prices for the traded symbols and lets the
// ledger close any leg whose stop or target was touched. Runs on its own
// short cadence, independent of strategy cadences.
type PositionMonitor struct {
	market  domain.MarketData
	ledger  *Ledger
	symbols []string
	logger  *zap.Logger
}

func NewPositionMonitor(market domain.MarketData, ledger *Ledger, symbols []string, logger *zap.Logger) *PositionMonitor {
	return &PositionMonitor{market: market, ledger: ledger, symbols: symbols, logger: logger}
}

// Check runs one monitoring pass over all watched symbols. A price failure
// on one symbol never stops the others.
func (m *PositionMonitor) Check(ctx context.Context, now time.Time) {
	for _, symbol := range m.watchList(ctx) {
		price, err := m.market.GetCurrentPrice(ctx, symbol)
		if err != nil {
			m.logger.Warn("price fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		closed, err := m.ledger.CheckPrices(ctx, symbol, price, now)
		if err != nil {
			m.logger.Error("price check failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if closed > 0 {
			m.logger.Info("legs closed on price touch",
				zap.String("symbol", symbol),
				zap.Float64("price", price),
				zap.Int("closed", closed))
		}
	}
}

// watchList is the configured symbols plus any symbol holding an open leg,
// so a position opened on a non-default symbol still gets price-checked.
func (m *PositionMonitor) watchList(ctx context.Context) []string {
	seen := make(map[string]bool, len(m.symbols))
	out := make([]string, 0, len(m.symbols))
	for _, s := range m.symbols {
		seen[s] = true
		out = append(out, s)
	}
	extra, err := m.ledger.OpenSymbols(ctx)
	if err != nil {
		m.logger.Warn("open symbol lookup failed", zap.Error(err))
		return out
	}
	for _, s := range extra {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Symbols returns the distinct symbols of the given strategies, in first
// appearance order.
func Symbols(defs []domain.StrategyDefinition) []string {
	seen := make(map[string]bool)
	var out []string
	for _, def := range defs {
		if !seen[def.Symbol] {
			seen[def.Symbol] = true
			out = append(out, def.Symbol)
		}
	}
	return out
}
