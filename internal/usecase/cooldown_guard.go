package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/domain"
)

// DefaultCooldown applies to strategies without an explicit entry.
const DefaultCooldown = 30 * time.Minute

// CooldownGuard blocks re-entry for a strategy/symbol pair until the
// configured wait after the last close has elapsed. The wait is
// unconditional: profitable closes and opposite-direction signals cool down
// the same as losing ones.
type CooldownGuard struct {
	trades    domain.TradeRepository
	durations map[string]time.Duration
	logger    *zap.Logger
}

func NewCooldownGuard(trades domain.TradeRepository, durations map[string]time.Duration, logger *zap.Logger) *CooldownGuard {
	if durations == nil {
		durations = map[string]time.Duration{}
	}
	return &CooldownGuard{trades: trades, durations: durations, logger: logger}
}

// Duration returns the cooldown configured for a strategy.
func (g *CooldownGuard) Duration(strategy string) time.Duration {
	if d, ok := g.durations[strategy]; ok {
		return d
	}
	return DefaultCooldown
}

// Check reports whether the strategy may open on symbol now, and if not, how
// long it still has to wait. A pair with no prior closed trade never blocks.
func (g *CooldownGuard) Check(ctx context.Context, strategy, symbol string, now time.Time) (bool, time.Duration, error) {
	last, err := g.trades.GetLastClosedTrade(ctx, strategy, symbol)
	if err != nil {
		return false, 0, err
	}
	if last == nil {
		return true, 0, nil
	}

	cooldown := g.Duration(strategy)
	elapsed := now.Sub(last.ExitTime)
	if elapsed >= cooldown {
		return true, 0, nil
	}

	remaining := cooldown - elapsed
	g.logger.Debug("cooldown active",
		zap.String("strategy", strategy),
		zap.String("symbol", symbol),
		zap.Duration("remaining", remaining),
		zap.String("last_exit_reason", string(last.ExitReason)))
	return false, remaining, nil
}
