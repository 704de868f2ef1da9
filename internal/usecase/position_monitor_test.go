package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/domain"
	"github.com/krejcif/llmtrader/internal/usecase"
)

func TestPositionMonitor_ClosesTouchedLegs(t *testing.T) {
	repo := NewMockTradeRepo()
	ledger := usecase.NewLedger(repo, usecase.DefaultLedgerConfig(), zap.NewNop())
	now := time.Now()

	_, err := ledger.Open(context.Background(), "swing", "SOLUSDT", longRec(100, 95, 110), now)
	require.NoError(t, err)

	market := &MockMarketData{Prices: map[string]float64{"SOLUSDT": 105.2}}
	monitor := usecase.NewPositionMonitor(market, ledger, []string{"SOLUSDT"}, zap.NewNop())
	monitor.Check(context.Background(), now.Add(time.Hour))

	open, _ := repo.GetOpenTrades(context.Background(), "SOLUSDT")
	assert.Len(t, open, 1, "half-distance leg closed, full-target leg still open")
}

func TestPositionMonitor_PriceFailureSkipsSymbol(t *testing.T) {
	repo := NewMockTradeRepo()
	ledger := usecase.NewLedger(repo, usecase.DefaultLedgerConfig(), zap.NewNop())

	_, err := ledger.Open(context.Background(), "swing", "SOLUSDT", longRec(100, 95, 110), time.Now())
	require.NoError(t, err)

	market := &MockMarketData{PriceErr: context.DeadlineExceeded}
	monitor := usecase.NewPositionMonitor(market, ledger, []string{"SOLUSDT"}, zap.NewNop())
	monitor.Check(context.Background(), time.Now())

	open, _ := repo.GetOpenTrades(context.Background(), "SOLUSDT")
	assert.Len(t, open, 2, "nothing closed when the price feed fails")
}

func TestPositionMonitor_WatchesOpenSymbolsOutsideConfig(t *testing.T) {
	repo := NewMockTradeRepo()
	ledger := usecase.NewLedger(repo, usecase.DefaultLedgerConfig(), zap.NewNop())
	now := time.Now()

	rec := longRec(100, 95, 110)
	rec.Symbol = "ETHUSDT"
	_, err := ledger.Open(context.Background(), "swing", "ETHUSDT", rec, now)
	require.NoError(t, err)

	// ETHUSDT is not in the configured list but holds open legs
	market := &MockMarketData{Prices: map[string]float64{"SOLUSDT": 100, "ETHUSDT": 94}}
	monitor := usecase.NewPositionMonitor(market, ledger, []string{"SOLUSDT"}, zap.NewNop())
	monitor.Check(context.Background(), now.Add(time.Hour))

	open, _ := repo.GetOpenTrades(context.Background(), "ETHUSDT")
	assert.Empty(t, open, "stop touch on the unconfigured symbol still closes the legs")
}

func TestSymbols_Distinct(t *testing.T) {
	defs := []domain.StrategyDefinition{
		{Name: "a", Symbol: "SOLUSDT"},
		{Name: "b", Symbol: "SOLUSDT"},
		{Name: "c", Symbol: "ETHUSDT"},
	}
	assert.Equal(t, []string{"SOLUSDT", "ETHUSDT"}, usecase.Symbols(defs))
}
