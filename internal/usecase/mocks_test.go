package usecase_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/krejcif/llmtrader/internal/domain"
)

// MockTradeRepo is an in-memory TradeRepository + RunLogRepository with the
// same transition rules as the sqlite store.
type MockTradeRepo struct {
	mu      sync.Mutex
	Trades  map[string]*domain.Trade
	RunLogs []*domain.StrategyRun

	CreateErr error
}

func NewMockTradeRepo() *MockTradeRepo {
	return &MockTradeRepo{Trades: make(map[string]*domain.Trade)}
}

func (m *MockTradeRepo) CreateTrade(ctx context.Context, t *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	cp := *t
	m.Trades[t.ID] = &cp
	return nil
}

func (m *MockTradeRepo) CloseTrade(ctx context.Context, id string, exitPrice float64, exitTime time.Time, reason domain.ExitReason, exitFee, pnl, pnlPct float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Trades[id]
	if !ok {
		return domain.ErrTradeNotFound
	}
	if t.Status != domain.StatusOpen {
		return domain.ErrAlreadyClosed
	}
	t.Status = domain.StatusClosed
	t.ExitPrice = exitPrice
	t.ExitTime = exitTime
	t.ExitReason = reason
	t.ExitFee = exitFee
	t.PnL = pnl
	t.PnLPct = pnlPct
	return nil
}

func (m *MockTradeRepo) GetOpenTrades(ctx context.Context, symbol string) ([]*domain.Trade, error) {
	return m.filter(func(t *domain.Trade) bool {
		return t.Status == domain.StatusOpen && (symbol == "" || t.Symbol == symbol)
	}), nil
}

func (m *MockTradeRepo) GetOpenTradesByStrategy(ctx context.Context, strategy, symbol string) ([]*domain.Trade, error) {
	return m.filter(func(t *domain.Trade) bool {
		return t.Status == domain.StatusOpen && t.Strategy == strategy && t.Symbol == symbol
	}), nil
}

func (m *MockTradeRepo) GetLastClosedTrade(ctx context.Context, strategy, symbol string) (*domain.Trade, error) {
	closed := m.filter(func(t *domain.Trade) bool {
		return t.Status == domain.StatusClosed && t.Strategy == strategy && t.Symbol == symbol
	})
	if len(closed) == 0 {
		return nil, nil
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].ExitTime.After(closed[j].ExitTime) })
	return closed[0], nil
}

func (m *MockTradeRepo) GetClosedTrades(ctx context.Context, symbol, strategy string, limit int) ([]*domain.Trade, error) {
	closed := m.filter(func(t *domain.Trade) bool {
		return t.Status == domain.StatusClosed &&
			(symbol == "" || t.Symbol == symbol) &&
			(strategy == "" || t.Strategy == strategy)
	})
	if limit > 0 && len(closed) > limit {
		closed = closed[:limit]
	}
	return closed, nil
}

func (m *MockTradeRepo) MarkInvalid(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Trades[id]
	if !ok {
		return domain.ErrTradeNotFound
	}
	t.Valid = false
	t.AuditNote = reason
	return nil
}

func (m *MockTradeRepo) GetTradeStats(ctx context.Context, symbol, strategy string) (*domain.TradeStats, error) {
	closed, _ := m.GetClosedTrades(ctx, symbol, strategy, 0)
	st := &domain.TradeStats{}
	for _, t := range closed {
		if !t.Valid {
			continue
		}
		st.Total++
		st.TotalPnL += t.PnL
		if t.PnL > 0 {
			st.Wins++
		} else {
			st.Losses++
		}
	}
	return st, nil
}

func (m *MockTradeRepo) LogStrategyRun(ctx context.Context, run *domain.StrategyRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.RunLogs = append(m.RunLogs, &cp)
	return nil
}

func (m *MockTradeRepo) ListStrategyRuns(ctx context.Context, strategy string, limit int) ([]*domain.StrategyRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.StrategyRun
	for _, r := range m.RunLogs {
		if strategy == "" || r.Strategy == strategy {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockTradeRepo) filter(keep func(*domain.Trade) bool) []*domain.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Trade
	for _, t := range m.Trades {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MockExchange records order operations for assertions.
type MockExchange struct {
	mu        sync.Mutex
	Positions []domain.ExternalPosition
	Orders    []domain.ExternalOrder

	Cancelled    []string
	CancelledAll []string
	MarketOrders int
	StopOrders   int
	TPOrders     int
	OrdersErr    error
	PositionsErr error
}

func (m *MockExchange) GetOpenPositions(ctx context.Context, symbol string) ([]domain.ExternalPosition, error) {
	if m.PositionsErr != nil {
		return nil, m.PositionsErr
	}
	return m.Positions, nil
}

func (m *MockExchange) GetOpenOrders(ctx context.Context, symbol string) ([]domain.ExternalOrder, error) {
	if m.OrdersErr != nil {
		return nil, m.OrdersErr
	}
	return m.Orders, nil
}

func (m *MockExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarketOrders++
	return nil
}

func (m *MockExchange) PlaceStopOrder(ctx context.Context, symbol string, side domain.Side, quantity, stopPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopOrders++
	return nil
}

func (m *MockExchange) PlaceTakeProfitOrder(ctx context.Context, symbol string, side domain.Side, quantity, stopPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TPOrders++
	return nil
}

func (m *MockExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancelled = append(m.Cancelled, orderID)
	return nil
}

func (m *MockExchange) CancelAllOrders(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelledAll = append(m.CancelledAll, symbol)
	return nil
}

func (m *MockExchange) GetAccountBalance(ctx context.Context) (float64, error) {
	return 10000, nil
}

// MockMarketData serves canned candles per timeframe and fixed prices.
type MockMarketData struct {
	Prices     map[string]float64
	Candles    map[string][]domain.Candle // keyed by timeframe
	Funding    map[string]float64
	CandlesErr error
	PriceErr   error
	FundingErr error
}

func (m *MockMarketData) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if m.PriceErr != nil {
		return 0, m.PriceErr
	}
	return m.Prices[symbol], nil
}

func (m *MockMarketData) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	if m.CandlesErr != nil {
		return nil, m.CandlesErr
	}
	return m.Candles[interval], nil
}

func (m *MockMarketData) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	if m.FundingErr != nil {
		return 0, m.FundingErr
	}
	if rate, ok := m.Funding[symbol]; ok {
		return rate, nil
	}
	return 0.0001, nil
}

func (m *MockMarketData) GetOrderBook(ctx context.Context, symbol string, depth int) (*domain.OrderBook, error) {
	return &domain.OrderBook{Symbol: symbol}, nil
}

// MockOracle returns a fixed recommendation or error.
type MockOracle struct {
	Rec       *domain.Recommendation
	Err       error
	Summaries []string
}

func (m *MockOracle) Decide(ctx context.Context, strategy string, summary string) (*domain.Recommendation, error) {
	m.Summaries = append(m.Summaries, summary)
	if m.Err != nil {
		return nil, m.Err
	}
	cp := *m.Rec
	return &cp, nil
}

// steadyCandles builds a flat series around price with a fixed candle range,
// enough for the ATR lookback.
func steadyCandles(n int, price, candleRange float64) []domain.Candle {
	candles := make([]domain.Candle, n)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).Unix()
	for i := range candles {
		candles[i] = domain.Candle{
			Time:   base + int64(i)*300,
			Open:   price,
			High:   price + candleRange/2,
			Low:    price - candleRange/2,
			Close:  price,
			Volume: 1000,
		}
	}
	return candles
}
