package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/domain"
)

var (
	// ErrAlreadyOpen is returned when a strategy already has an open
	// position group on the symbol.
	ErrAlreadyOpen = errors.New("position group already open")
	// ErrNoRiskLevels is returned when a recommendation arrives without
	// complete entry/stop/target levels.
	ErrNoRiskLevels = errors.New("recommendation has no complete risk levels")
)

// LedgerConfig tunes position sizing and the scale-out split.
type LedgerConfig struct {
	FeeRate       float64 `yaml:"fee_rate"`
	PositionSize  float64 `yaml:"position_size"`
	ScaleOut      bool    `yaml:"scale_out"`
	BreakevenFrac float64 `yaml:"breakeven_frac"`
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		FeeRate:       0.0005,
		PositionSize:  0.1,
		ScaleOut:      true,
		BreakevenFrac: 0.5,
	}
}

// Ledger owns trade records and their OPEN -> CLOSED transitions. All state
// lives in the repository; the mutex makes the open-check-then-create
// sequence a single logical transaction so two rapid triggers for the same
// strategy cannot both pass the no-open-position check.
type Ledger struct {
	trades domain.TradeRepository
	cfg    LedgerConfig
	logger *zap.Logger
	mu     sync.Mutex
}

func NewLedger(trades domain.TradeRepository, cfg LedgerConfig, logger *zap.Logger) *Ledger {
	if cfg.BreakevenFrac <= 0 || cfg.BreakevenFrac >= 1 {
		cfg.BreakevenFrac = 0.5
	}
	return &Ledger{trades: trades, cfg: cfg, logger: logger}
}

// OpenGroup returns the strategy's open legs on the symbol, if any.
func (l *Ledger) OpenGroup(ctx context.Context, strategy, symbol string) ([]*domain.Trade, error) {
	return l.trades.GetOpenTradesByStrategy(ctx, strategy, symbol)
}

// OpenSymbols returns the distinct symbols that carry at least one open leg.
func (l *Ledger) OpenSymbols(ctx context.Context) ([]string, error) {
	open, err := l.trades.GetOpenTrades(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range open {
		if !seen[t.Symbol] {
			seen[t.Symbol] = true
			out = append(out, t.Symbol)
		}
	}
	return out, nil
}

// Open creates a position group for an actionable recommendation. With
// scale-out enabled it creates two sibling legs sharing entry time/price:
// leg 1 takes half the distance to the target with the original stop, leg 2
// takes the full target with a stop pre-tightened toward entry, so partial
// profit locks in early without a later move-stop-to-breakeven event.
func (l *Ledger) Open(ctx context.Context, strategy, symbol string, rec *domain.Recommendation, now time.Time) ([]*domain.Trade, error) {
	if rec == nil || !rec.Risk.Complete() {
		return nil, ErrNoRiskLevels
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	open, err := l.trades.GetOpenTradesByStrategy(ctx, strategy, symbol)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return nil, ErrAlreadyOpen
	}

	side := domain.SideForAction(rec.Action)
	entry := rec.Risk.Entry
	legs := l.buildLegs(strategy, symbol, side, rec, now)

	for _, leg := range legs {
		if err := l.trades.CreateTrade(ctx, leg); err != nil {
			return nil, fmt.Errorf("create leg %s: %w", leg.ID, err)
		}
	}

	l.logger.Info("position opened",
		zap.String("strategy", strategy),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("entry", entry),
		zap.Int("legs", len(legs)))
	return legs, nil
}

func (l *Ledger) buildLegs(strategy, symbol string, side domain.Side, rec *domain.Recommendation, now time.Time) []*domain.Trade {
	risk := rec.Risk
	entry := risk.Entry

	base := domain.Trade{
		Symbol:     symbol,
		Strategy:   strategy,
		Side:       side,
		Confidence: rec.Confidence,
		Rationale:  rec.Rationale,
		EntryPrice: entry,
		RiskReward: risk.RiskReward,
		ATR:        risk.ATR,
		Status:     domain.StatusOpen,
		EntryTime:  now,
		Valid:      true,
	}

	if !l.cfg.ScaleOut {
		t := base
		t.ID = fmt.Sprintf("%s_%d_%s", symbol, now.Unix(), strategy)
		t.StopLoss = risk.StopLoss
		t.TakeProfit = risk.TakeProfit
		t.Size = l.cfg.PositionSize
		t.EntryFee = domain.Fee(entry, t.Size, l.cfg.FeeRate)
		return []*domain.Trade{&t}
	}

	halfSize := l.cfg.PositionSize / 2

	leg1 := base
	leg1.ID = fmt.Sprintf("%s_%d_%s_partial1", symbol, now.Unix(), strategy)
	leg1.StopLoss = risk.StopLoss
	leg1.TakeProfit = RoundPrice(entry+(risk.TakeProfit-entry)*0.5, entry)
	leg1.Size = halfSize
	leg1.EntryFee = domain.Fee(entry, halfSize, l.cfg.FeeRate)

	leg2 := base
	leg2.ID = fmt.Sprintf("%s_%d_%s_partial2", symbol, now.Unix(), strategy)
	leg2.StopLoss = RoundPrice(entry-(entry-risk.StopLoss)*l.cfg.BreakevenFrac, entry)
	leg2.TakeProfit = risk.TakeProfit
	leg2.Size = halfSize
	leg2.EntryFee = domain.Fee(entry, halfSize, l.cfg.FeeRate)

	return []*domain.Trade{&leg1, &leg2}
}

// CloseLeg closes one leg at exitPrice. The repository rejects a second
// close of the same id.
func (l *Ledger) CloseLeg(ctx context.Context, t *domain.Trade, exitPrice float64, now time.Time, reason domain.ExitReason) error {
	exitFee, pnl, pnlPct := domain.ClosedPnL(t, exitPrice, l.cfg.FeeRate)
	if err := l.trades.CloseTrade(ctx, t.ID, exitPrice, now, reason, exitFee, pnl, pnlPct); err != nil {
		return err
	}
	l.logger.Info("position closed",
		zap.String("id", t.ID),
		zap.String("reason", string(reason)),
		zap.Float64("exit", exitPrice),
		zap.Float64("pnl", pnl),
		zap.Float64("pnl_pct", pnlPct))
	return nil
}

// CloseManual closes a single open leg by id at the operator-supplied price.
// Returns domain.ErrTradeNotFound when no open leg carries the id; a leg that
// already closed stays exactly as it was.
func (l *Ledger) CloseManual(ctx context.Context, id string, exitPrice float64, now time.Time) (*domain.Trade, error) {
	open, err := l.trades.GetOpenTrades(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, t := range open {
		if t.ID != id {
			continue
		}
		exitFee, pnl, pnlPct := domain.ClosedPnL(t, exitPrice, l.cfg.FeeRate)
		if err := l.CloseLeg(ctx, t, exitPrice, now, domain.ExitManual); err != nil {
			return nil, err
		}
		t.Status = domain.StatusClosed
		t.ExitTime = now
		t.ExitPrice = exitPrice
		t.ExitReason = domain.ExitManual
		t.ExitFee = exitFee
		t.PnL = pnl
		t.PnLPct = pnlPct
		return t, nil
	}
	return nil, domain.ErrTradeNotFound
}

// CheckPrices scans open legs on the symbol against the current price and
// closes any whose stop or target has been touched. The recorded exit price
// is the leg's exact stop/target level, not the observed tick.
func (l *Ledger) CheckPrices(ctx context.Context, symbol string, price float64, now time.Time) (int, error) {
	open, err := l.trades.GetOpenTrades(ctx, symbol)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, t := range open {
		exitPrice, reason, hit := legExit(t, price)
		if !hit {
			continue
		}
		if err := l.CloseLeg(ctx, t, exitPrice, now, reason); err != nil {
			if errors.Is(err, domain.ErrAlreadyClosed) {
				continue
			}
			l.logger.Error("close on price touch failed", zap.String("id", t.ID), zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}

func legExit(t *domain.Trade, price float64) (float64, domain.ExitReason, bool) {
	if t.Side == domain.SideLong {
		if price <= t.StopLoss {
			return t.StopLoss, domain.ExitStopLoss, true
		}
		if price >= t.TakeProfit {
			return t.TakeProfit, domain.ExitTakeProfit, true
		}
		return 0, "", false
	}
	if price >= t.StopLoss {
		return t.StopLoss, domain.ExitStopLoss, true
	}
	if price <= t.TakeProfit {
		return t.TakeProfit, domain.ExitTakeProfit, true
	}
	return 0, "", false
}

// CloseOpposite closes every open leg of the strategy's group at refPrice,
// the close of the last completed entry-timeframe candle. Using the candle
// close instead of a live tick keeps the exit free of look-ahead bias.
func (l *Ledger) CloseOpposite(ctx context.Context, strategy, symbol string, refPrice float64, now time.Time) (int, error) {
	open, err := l.trades.GetOpenTradesByStrategy(ctx, strategy, symbol)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, t := range open {
		if err := l.CloseLeg(ctx, t, refPrice, now, domain.ExitOppositeSignal); err != nil {
			if errors.Is(err, domain.ErrAlreadyClosed) {
				continue
			}
			return closed, err
		}
		closed++
	}
	return closed, nil
}
