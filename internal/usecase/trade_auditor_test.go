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

func auditCandles(entry time.Time, low, high float64) []domain.Candle {
	candles := make([]domain.Candle, 20)
	for i := range candles {
		candles[i] = domain.Candle{
			Time:  entry.Add(time.Duration(i) * 5 * time.Minute).Unix(),
			Open:  (low + high) / 2,
			High:  high,
			Low:   low,
			Close: (low + high) / 2,
		}
	}
	return candles
}

func auditFixture(t *testing.T, tr *domain.Trade, candles []domain.Candle) (*MockTradeRepo, []usecase.AuditVerdict) {
	t.Helper()
	repo := NewMockTradeRepo()
	require.NoError(t, repo.CreateTrade(context.Background(), tr))

	market := &MockMarketData{Candles: map[string][]domain.Candle{"5m": candles}}
	auditor := usecase.NewTradeAuditor(repo, market, "5m", zap.NewNop())

	verdicts, err := auditor.AuditClosed(context.Background(), "", "", 50)
	require.NoError(t, err)
	return repo, verdicts
}

func TestAuditor_ConfirmsReachableExit(t *testing.T) {
	entry := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	tr := &domain.Trade{
		ID: "SOLUSDT_1_swing_partial1", Symbol: "SOLUSDT", Strategy: "swing",
		Side: domain.SideLong, EntryPrice: 100, StopLoss: 95, TakeProfit: 105,
		Size: 0.05, Status: domain.StatusClosed, Valid: true,
		EntryTime: entry, ExitTime: entry.Add(time.Hour),
		ExitPrice: 105, ExitReason: domain.ExitTakeProfit,
	}
	repo, verdicts := auditFixture(t, tr, auditCandles(entry, 99, 106))

	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Valid)
	assert.True(t, repo.Trades[tr.ID].Valid)
}

func TestAuditor_FlagsUnreachableExit(t *testing.T) {
	entry := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	tr := &domain.Trade{
		ID: "SOLUSDT_2_swing_partial1", Symbol: "SOLUSDT", Strategy: "swing",
		Side: domain.SideLong, EntryPrice: 100, StopLoss: 95, TakeProfit: 105,
		Size: 0.05, Status: domain.StatusClosed, Valid: true,
		EntryTime: entry, ExitTime: entry.Add(time.Hour),
		ExitPrice: 95, ExitReason: domain.ExitStopLoss,
	}
	// price never went below 98, the recorded stop exit is impossible
	repo, verdicts := auditFixture(t, tr, auditCandles(entry, 98, 103))

	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Valid)

	got := repo.Trades[tr.ID]
	assert.False(t, got.Valid)
	assert.NotEmpty(t, got.AuditNote)
	assert.Equal(t, domain.StatusClosed, got.Status, "audit never re-opens")
	assert.Equal(t, 95.0, got.ExitPrice, "audit never alters the recorded exit")
}

func TestAuditor_SkipsSignalCloses(t *testing.T) {
	entry := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	tr := &domain.Trade{
		ID: "SOLUSDT_3_swing_partial1", Symbol: "SOLUSDT", Strategy: "swing",
		Side: domain.SideLong, EntryPrice: 100, StopLoss: 95, TakeProfit: 105,
		Size: 0.05, Status: domain.StatusClosed, Valid: true,
		EntryTime: entry, ExitTime: entry.Add(time.Hour),
		ExitPrice: 101, ExitReason: domain.ExitOppositeSignal,
	}
	repo, verdicts := auditFixture(t, tr, auditCandles(entry, 99, 102))

	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Skipped)
	assert.True(t, repo.Trades[tr.ID].Valid)
}
