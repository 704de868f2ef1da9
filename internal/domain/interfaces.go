package domain

import (
	"context"
	"time"
)

// MarketData provides read-only market state. Candles must exclude the most
// recent still-forming candle.
type MarketData interface {
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	GetFundingRate(ctx context.Context, symbol string) (float64, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)
}

// Exchange is the execution side of the exchange API.
type Exchange interface {
	GetOpenPositions(ctx context.Context, symbol string) ([]ExternalPosition, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]ExternalOrder, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64) error
	PlaceStopOrder(ctx context.Context, symbol string, side Side, quantity, stopPrice float64) error
	PlaceTakeProfitOrder(ctx context.Context, symbol string, side Side, quantity, stopPrice float64) error
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAllOrders(ctx context.Context, symbol string) error
	GetAccountBalance(ctx context.Context) (float64, error)
}

// Oracle turns a structured market summary into a directional decision.
// Malformed responses surface as errors, never as a NEUTRAL recommendation.
type Oracle interface {
	Decide(ctx context.Context, strategy string, summary string) (*Recommendation, error)
}

// TradeRepository is the persistent position ledger.
type TradeRepository interface {
	CreateTrade(ctx context.Context, trade *Trade) error
	CloseTrade(ctx context.Context, id string, exitPrice float64, exitTime time.Time, reason ExitReason, exitFee, pnl, pnlPct float64) error
	GetOpenTrades(ctx context.Context, symbol string) ([]*Trade, error)
	GetOpenTradesByStrategy(ctx context.Context, strategy, symbol string) ([]*Trade, error)
	GetLastClosedTrade(ctx context.Context, strategy, symbol string) (*Trade, error)
	GetClosedTrades(ctx context.Context, symbol, strategy string, limit int) ([]*Trade, error)
	MarkInvalid(ctx context.Context, id, reason string) error
	GetTradeStats(ctx context.Context, symbol, strategy string) (*TradeStats, error)
}

// RunLogRepository stores the append-only per-cycle audit log.
type RunLogRepository interface {
	LogStrategyRun(ctx context.Context, run *StrategyRun) error
	ListStrategyRuns(ctx context.Context, strategy string, limit int) ([]*StrategyRun, error)
}
