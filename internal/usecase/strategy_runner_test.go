package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/domain"
	"github.com/krejcif/llmtrader/internal/usecase"
)

func runnerDef() domain.StrategyDefinition {
	return domain.StrategyDefinition{
		Name:           "swing",
		Symbol:         "SOLUSDT",
		TrendTimeframe: "1h",
		EntryTimeframe: "15m",
		CadenceMinutes: 15,
		Enabled:        true,
	}
}

func runnerMarket() *MockMarketData {
	return &MockMarketData{
		Candles: map[string][]domain.Candle{
			"1h":  steadyCandles(50, 100, 1.2),
			"15m": steadyCandles(50, 100, 0.8),
		},
	}
}

func newRunner(market *MockMarketData, o *MockOracle) *usecase.StrategyRunner {
	risk := usecase.NewRiskEngine(usecase.DefaultRiskConfig(), zap.NewNop())
	return usecase.NewStrategyRunner(market, o, risk, zap.NewNop())
}

func TestRunner_ActionableSignalGetsRiskLevels(t *testing.T) {
	market := runnerMarket()
	o := &MockOracle{Rec: &domain.Recommendation{Action: domain.ActionLong, Confidence: "high", Rationale: "uptrend"}}
	r := newRunner(market, o)

	res := r.Run(context.Background(), runnerDef(), domain.MarketContext{CycleID: "c1"})

	require.NoError(t, res.Err)
	require.NotNil(t, res.Rec)
	require.NotNil(t, res.Rec.Risk)
	assert.True(t, res.Rec.Risk.Complete())
	assert.Equal(t, "SOLUSDT", res.Rec.Symbol)
	assert.Equal(t, 100.0, res.RefPrice, "reference price is the last completed entry candle close")
}

func TestRunner_NeutralSignalHasNoRiskLevels(t *testing.T) {
	o := &MockOracle{Rec: &domain.Recommendation{Action: domain.ActionNeutral}}
	r := newRunner(runnerMarket(), o)

	res := r.Run(context.Background(), runnerDef(), domain.MarketContext{})

	require.NoError(t, res.Err)
	assert.Nil(t, res.Rec.Risk)
}

func TestRunner_MarketFailureIsCaptured(t *testing.T) {
	market := runnerMarket()
	market.CandlesErr = errors.New("rate limited")
	r := newRunner(market, &MockOracle{Rec: &domain.Recommendation{Action: domain.ActionLong}})

	res := r.Run(context.Background(), runnerDef(), domain.MarketContext{})

	require.Error(t, res.Err)
	assert.Nil(t, res.Rec)
}

func TestRunner_MalformedOracleActionIsFailureNotNeutral(t *testing.T) {
	o := &MockOracle{Rec: &domain.Recommendation{Action: domain.Action("HOLD")}}
	r := newRunner(runnerMarket(), o)

	res := r.Run(context.Background(), runnerDef(), domain.MarketContext{})

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "invalid action")
	assert.Nil(t, res.Rec)
}

func TestRunner_SummaryCarriesSentiment(t *testing.T) {
	o := &MockOracle{Rec: &domain.Recommendation{Action: domain.ActionNeutral}}
	r := newRunner(runnerMarket(), o)

	r.Run(context.Background(), runnerDef(), domain.MarketContext{Sentiment: "risk-off"})

	require.Len(t, o.Summaries, 1)
	assert.Contains(t, o.Summaries[0], "macro_sentiment=risk-off")
	assert.Contains(t, o.Summaries[0], "timeframe=1h")
	assert.Contains(t, o.Summaries[0], "timeframe=15m")
}
