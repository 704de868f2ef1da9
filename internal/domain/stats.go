package domain

// TradeStats aggregates closed trades. Invalidated trades are excluded.
type TradeStats struct {
	Total     int
	Wins      int
	Losses    int
	WinRate   float64
	TotalPnL  float64
	AvgPnL    float64
	TotalFees float64
	BestPnL   float64
	WorstPnL  float64
}
