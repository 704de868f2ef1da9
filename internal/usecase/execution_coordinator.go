package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/domain"
)

// ExecutionCoordinator consumes the merged cycle results and turns
// actionable recommendations into ledger entries (and live exchange orders
// for live-mode strategies). Every strategy gets a run-log row every cycle
// with an explicit reason, whether or not anything was executed.
type ExecutionCoordinator struct {
	ledger   *Ledger
	guard    *CooldownGuard
	runLog   domain.RunLogRepository
	exchange domain.Exchange
	logger   *zap.Logger
}

func NewExecutionCoordinator(ledger *Ledger, guard *CooldownGuard, runLog domain.RunLogRepository, exchange domain.Exchange, logger *zap.Logger) *ExecutionCoordinator {
	return &ExecutionCoordinator{
		ledger:   ledger,
		guard:    guard,
		runLog:   runLog,
		exchange: exchange,
		logger:   logger,
	}
}

// Execute runs once per cadence boundary, after the barrier, over a
// consistent snapshot of all strategy results in the cycle.
func (c *ExecutionCoordinator) Execute(ctx context.Context, cycleID string, defs []domain.StrategyDefinition, results map[string]domain.RunResult, now time.Time) {
	for _, def := range defs {
		res, ok := results[def.Name]
		if !ok {
			continue
		}

		run := &domain.StrategyRun{
			RunID:     cycleID,
			Strategy:  def.Name,
			Symbol:    def.Symbol,
			Timestamp: now,
		}
		run.Executed, run.ExecutionReason = c.executeOne(ctx, def, res, run, now)

		if err := c.runLog.LogStrategyRun(ctx, run); err != nil {
			c.logger.Error("write strategy run log failed",
				zap.String("strategy", def.Name), zap.Error(err))
		}
	}
}

func (c *ExecutionCoordinator) executeOne(ctx context.Context, def domain.StrategyDefinition, res domain.RunResult, run *domain.StrategyRun, now time.Time) (bool, string) {
	if res.Err != nil {
		return false, fmt.Sprintf("runner failed: %v", res.Err)
	}
	rec := res.Rec
	run.Action = rec.Action
	run.Confidence = rec.Confidence
	run.Rationale = rec.Rationale

	// Gate, open and log against the symbol the recommendation targets,
	// which may differ from the definition's default.
	symbol := rec.Symbol
	if symbol == "" {
		symbol = def.Symbol
	}
	run.Symbol = symbol

	if rec.Action == domain.ActionNeutral {
		return false, "neutral signal, no trade"
	}

	side := domain.SideForAction(rec.Action)

	// An opposite-direction signal closes the current group first. The
	// close starts the cooldown, so the gating below decides whether the
	// new entry happens this cycle.
	group, err := c.ledger.OpenGroup(ctx, def.Name, symbol)
	if err != nil {
		return false, fmt.Sprintf("ledger query failed: %v", err)
	}
	closedOpposite := 0
	if len(group) > 0 && group[0].Side != side {
		closedOpposite, err = c.ledger.CloseOpposite(ctx, def.Name, symbol, res.RefPrice, now)
		if err != nil {
			return false, fmt.Sprintf("opposite-signal close failed: %v", err)
		}
		if def.Live {
			c.cancelLiveProtection(ctx, symbol)
		}
	}

	allowed, remaining, err := c.guard.Check(ctx, def.Name, symbol, now)
	if err != nil {
		return false, fmt.Sprintf("cooldown check failed: %v", err)
	}
	if !allowed {
		if closedOpposite > 0 {
			return false, fmt.Sprintf("closed %d legs on opposite signal; cooldown blocks re-entry for %s", closedOpposite, remaining.Round(time.Second))
		}
		return false, fmt.Sprintf("cooldown active, %s remaining", remaining.Round(time.Second))
	}

	legs, err := c.ledger.Open(ctx, def.Name, symbol, rec, now)
	switch {
	case errors.Is(err, ErrAlreadyOpen):
		return false, "position already open for this strategy/symbol"
	case errors.Is(err, ErrNoRiskLevels):
		return false, "recommendation missing complete risk levels"
	case err != nil:
		return false, fmt.Sprintf("open failed: %v", err)
	}

	if def.Live {
		if err := c.placeLiveOrders(ctx, symbol, side, legs); err != nil {
			c.logger.Error("live order placement failed",
				zap.String("strategy", def.Name),
				zap.String("symbol", symbol),
				zap.Error(err))
			return true, fmt.Sprintf("opened %d legs (%s); live orders failed: %v", len(legs), side, err)
		}
		return true, fmt.Sprintf("opened %d legs (%s) at %.6f, live orders placed", len(legs), side, rec.Risk.Entry)
	}
	return true, fmt.Sprintf("opened %d legs (%s) at %.6f", len(legs), side, rec.Risk.Entry)
}

// placeLiveOrders mirrors the group onto the exchange: one market entry for
// the full size, then reduce-only stop and take-profit orders per leg.
func (c *ExecutionCoordinator) placeLiveOrders(ctx context.Context, symbol string, side domain.Side, legs []*domain.Trade) error {
	total := 0.0
	for _, leg := range legs {
		total += leg.Size
	}
	if err := c.exchange.PlaceMarketOrder(ctx, symbol, side, total); err != nil {
		return fmt.Errorf("market entry: %w", err)
	}

	closeSide := domain.SideShort
	if side == domain.SideShort {
		closeSide = domain.SideLong
	}
	for _, leg := range legs {
		if err := c.exchange.PlaceStopOrder(ctx, symbol, closeSide, leg.Size, leg.StopLoss); err != nil {
			return fmt.Errorf("stop for %s: %w", leg.ID, err)
		}
		if err := c.exchange.PlaceTakeProfitOrder(ctx, symbol, closeSide, leg.Size, leg.TakeProfit); err != nil {
			return fmt.Errorf("take profit for %s: %w", leg.ID, err)
		}
	}
	return nil
}

func (c *ExecutionCoordinator) cancelLiveProtection(ctx context.Context, symbol string) {
	if err := c.exchange.CancelAllOrders(ctx, symbol); err != nil {
		c.logger.Error("cancel protective orders failed",
			zap.String("symbol", symbol), zap.Error(err))
	}
}
