package domain

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// SideForAction maps an actionable recommendation to a position side.
func SideForAction(a Action) Side {
	if a == ActionShort {
		return SideShort
	}
	return SideLong
}

type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type OrderBookEntry struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

type OrderBook struct {
	Symbol string           `json:"symbol"`
	Bids   []OrderBookEntry `json:"bids"`
	Asks   []OrderBookEntry `json:"asks"`
}

// Protective order types as reported by the exchange.
const (
	OrderTypeStop       = "STOP_MARKET"
	OrderTypeTakeProfit = "TAKE_PROFIT_MARKET"
)

// ExternalPosition mirrors one exchange-reported open position. Fetched on
// demand for a single reconciliation pass, never persisted.
type ExternalPosition struct {
	Symbol     string
	Side       Side
	Size       float64
	EntryPrice float64
	MarkPrice  float64
}

// ExternalOrder mirrors one exchange-reported open order.
type ExternalOrder struct {
	ID        string
	Symbol    string
	Type      string
	Side      Side
	Quantity  float64
	StopPrice float64
}
