package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/domain"
)

// fundingBias labels an 8h funding rate by how crowded positioning is.
// Thresholds are a multiple of the usual 0.01% baseline rate.
func fundingBias(rate float64) string {
	switch {
	case rate > 0.0003:
		return "crowded long"
	case rate < -0.0003:
		return "crowded short"
	default:
		return "balanced"
	}
}

// NewFundingSentiment returns a macro-context provider backed by current
// funding rates of the traded symbols. Funding is always available from the
// same venue as the candles, so the cycle context never depends on an extra
// data source. Symbols whose rate cannot be fetched are skipped.
func NewFundingSentiment(market domain.MarketData, symbols []string, logger *zap.Logger) func(ctx context.Context) string {
	return func(ctx context.Context) string {
		parts := make([]string, 0, len(symbols))
		for _, symbol := range symbols {
			rate, err := market.GetFundingRate(ctx, symbol)
			if err != nil {
				logger.Warn("funding rate fetch failed", zap.String("symbol", symbol), zap.Error(err))
				continue
			}
			parts = append(parts, fmt.Sprintf("%s funding %.4f%% (%s)", symbol, rate*100, fundingBias(rate)))
		}
		return strings.Join(parts, "; ")
	}
}
