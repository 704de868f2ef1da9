package usecase

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/domain"
)

// AuditVerdict is the outcome of checking one closed trade against market
// data.
type AuditVerdict struct {
	TradeID string
	Valid   bool
	Skipped bool
	Reason  string
}

// TradeAuditor verifies that recorded stop/target exits were actually
// reachable in the candle range between entry and exit. A failed check
// flags the record invalid for statistics; it never re-opens the trade or
// touches its P&L.
type TradeAuditor struct {
	trades    domain.TradeRepository
	market    domain.MarketData
	timeframe string
	logger    *zap.Logger
}

func NewTradeAuditor(trades domain.TradeRepository, market domain.MarketData, timeframe string, logger *zap.Logger) *TradeAuditor {
	if timeframe == "" {
		timeframe = "5m"
	}
	return &TradeAuditor{trades: trades, market: market, timeframe: timeframe, logger: logger}
}

// AuditClosed checks up to limit recent closed trades for symbol/strategy
// (empty strings match all). Only stop and target exits are verifiable;
// signal and manual closes are skipped.
func (a *TradeAuditor) AuditClosed(ctx context.Context, symbol, strategy string, limit int) ([]AuditVerdict, error) {
	closed, err := a.trades.GetClosedTrades(ctx, symbol, strategy, limit)
	if err != nil {
		return nil, err
	}

	verdicts := make([]AuditVerdict, 0, len(closed))
	for _, t := range closed {
		v := a.auditOne(ctx, t)
		if !v.Valid && !v.Skipped {
			if err := a.trades.MarkInvalid(ctx, t.ID, v.Reason); err != nil {
				a.logger.Error("mark invalid failed", zap.String("id", t.ID), zap.Error(err))
			} else {
				a.logger.Warn("trade flagged invalid",
					zap.String("id", t.ID), zap.String("reason", v.Reason))
			}
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}

func (a *TradeAuditor) auditOne(ctx context.Context, t *domain.Trade) AuditVerdict {
	if t.ExitReason != domain.ExitStopLoss && t.ExitReason != domain.ExitTakeProfit {
		return AuditVerdict{TradeID: t.ID, Valid: true, Skipped: true, Reason: "exit reason not price-driven"}
	}

	candles, err := a.market.GetCandles(ctx, t.Symbol, a.timeframe, candleLookback*5)
	if err != nil {
		return AuditVerdict{TradeID: t.ID, Valid: true, Skipped: true, Reason: fmt.Sprintf("candles unavailable: %v", err)}
	}

	lo, hi := rangeBetween(candles, t.EntryTime.Unix(), t.ExitTime.Unix())
	if math.IsInf(lo, 1) {
		return AuditVerdict{TradeID: t.ID, Valid: true, Skipped: true, Reason: "no candles cover the trade window"}
	}

	reached := exitReachable(t, lo, hi)
	if reached {
		return AuditVerdict{TradeID: t.ID, Valid: true}
	}
	return AuditVerdict{
		TradeID: t.ID,
		Valid:   false,
		Reason: fmt.Sprintf("%s exit at %.6f not reachable, candle range [%.6f, %.6f]",
			t.ExitReason, t.ExitPrice, lo, hi),
	}
}

func rangeBetween(candles []domain.Candle, from, to int64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, c := range candles {
		if c.Time < from || c.Time > to {
			continue
		}
		lo = math.Min(lo, c.Low)
		hi = math.Max(hi, c.High)
	}
	return lo, hi
}

func exitReachable(t *domain.Trade, lo, hi float64) bool {
	long := t.Side == domain.SideLong
	if t.ExitReason == domain.ExitStopLoss {
		if long {
			return lo <= t.StopLoss
		}
		return hi >= t.StopLoss
	}
	if long {
		return hi >= t.TakeProfit
	}
	return lo <= t.TakeProfit
}
