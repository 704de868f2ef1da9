package domain

import "time"

type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

type ExitReason string

const (
	ExitStopLoss       ExitReason = "SL_HIT"
	ExitTakeProfit     ExitReason = "TP_HIT"
	ExitOppositeSignal ExitReason = "OPPOSITE_SIGNAL"
	ExitManual         ExitReason = "MANUAL_CLOSE"
	ExitCooldown       ExitReason = "COOLDOWN_CLOSE"
)

// RiskLevels is the output of the risk engine for one direction.
type RiskLevels struct {
	Entry          float64
	StopLoss       float64
	TakeProfit     float64
	RiskDistance   float64
	RewardDistance float64
	RiskReward     float64
	ATR            float64
}

// Complete reports whether the levels are usable for opening a trade.
func (r *RiskLevels) Complete() bool {
	return r != nil && r.Entry > 0 && r.StopLoss > 0 && r.TakeProfit > 0
}

// Trade is one leg of a position group. A scale-out open creates two sibling
// legs sharing entry time and price but carrying independent stop/target.
// Status transitions NONE -> OPEN -> CLOSED, terminal; after close only the
// Valid flag may change.
type Trade struct {
	ID         string
	Symbol     string
	Strategy   string
	Side       Side
	Confidence string
	Rationale  string

	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Size       float64
	RiskReward float64
	ATR        float64

	Status     TradeStatus
	EntryTime  time.Time
	ExitTime   time.Time
	ExitPrice  float64
	ExitReason ExitReason

	EntryFee float64
	ExitFee  float64
	PnL      float64
	PnLPct   float64

	Valid     bool
	AuditNote string
}

// DirectionSign returns +1 for LONG and -1 for SHORT.
func (t *Trade) DirectionSign() float64 {
	if t.Side == SideShort {
		return -1
	}
	return 1
}

// Fee is the taker fee for one fill.
func Fee(price, size, feeRate float64) float64 {
	return price * size * feeRate
}

// ClosedPnL computes the realized outcome of a leg closed at exitPrice.
// pnl = sign * (exit - entry) * size - entryFee - exitFee, and the
// percentage is relative to the leg's entry notional.
func ClosedPnL(t *Trade, exitPrice, feeRate float64) (exitFee, pnl, pnlPct float64) {
	exitFee = Fee(exitPrice, t.Size, feeRate)
	gross := t.DirectionSign() * (exitPrice - t.EntryPrice) * t.Size
	pnl = gross - t.EntryFee - exitFee
	notional := t.EntryPrice * t.Size
	if notional > 0 {
		pnlPct = pnl / notional * 100
	}
	return exitFee, pnl, pnlPct
}
