package usecase

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/domain"
)

// RiskConfig tunes the hybrid stop/target calculation.
type RiskConfig struct {
	ATRPeriod     int     `yaml:"atr_period"`
	StopATRMult   float64 `yaml:"stop_atr_mult"`
	TargetATRMult float64 `yaml:"target_atr_mult"`
	MaxStopPct    float64 `yaml:"max_stop_pct"`
	MaxTargetPct  float64 `yaml:"max_target_pct"`
}

func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		ATRPeriod:     14,
		StopATRMult:   1.0,
		TargetATRMult: 2.0,
		MaxStopPct:    0.015,
		MaxTargetPct:  0.030,
	}
}

// RiskEngine computes entry/stop/target levels from a candle series.
// Stops are ATR-scaled but capped by a fixed percentage of price; the
// tighter bound wins on each leg independently, so a volatility spike can
// never widen risk past the cap and a dead market can never stretch the
// target past what volatility supports.
type RiskEngine struct {
	cfg    RiskConfig
	logger *zap.Logger
}

func NewRiskEngine(cfg RiskConfig, logger *zap.Logger) *RiskEngine {
	return &RiskEngine{cfg: cfg, logger: logger}
}

func (e *RiskEngine) Calculate(candles []domain.Candle, side domain.Side) (*domain.RiskLevels, error) {
	if len(candles) < e.cfg.ATRPeriod+1 {
		return nil, fmt.Errorf("risk: need at least %d candles, got %d", e.cfg.ATRPeriod+1, len(candles))
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}

	atrSeries := talib.Atr(highs, lows, closes, e.cfg.ATRPeriod)
	atr := atrSeries[len(atrSeries)-1]
	entry := closes[len(closes)-1]
	if atr <= 0 || entry <= 0 {
		return nil, fmt.Errorf("risk: degenerate series, atr=%.8f entry=%.8f", atr, entry)
	}

	var stop, target float64
	switch side {
	case domain.SideLong:
		stop = math.Max(entry-e.cfg.StopATRMult*atr, entry*(1-e.cfg.MaxStopPct))
		target = math.Min(entry+e.cfg.TargetATRMult*atr, entry*(1+e.cfg.MaxTargetPct))
	case domain.SideShort:
		stop = math.Min(entry+e.cfg.StopATRMult*atr, entry*(1+e.cfg.MaxStopPct))
		target = math.Max(entry-e.cfg.TargetATRMult*atr, entry*(1-e.cfg.MaxTargetPct))
	default:
		return nil, fmt.Errorf("risk: unknown side %q", side)
	}

	stop = RoundPrice(stop, entry)
	target = RoundPrice(target, entry)
	entryR := RoundPrice(entry, entry)

	risk := math.Abs(entryR - stop)
	reward := math.Abs(target - entryR)
	if risk == 0 {
		return nil, fmt.Errorf("risk: zero risk distance at entry %.8f", entryR)
	}

	levels := &domain.RiskLevels{
		Entry:          entryR,
		StopLoss:       stop,
		TakeProfit:     target,
		RiskDistance:   risk,
		RewardDistance: reward,
		RiskReward:     reward / risk,
		ATR:            atr,
	}

	e.logger.Debug("risk levels computed",
		zap.String("side", string(side)),
		zap.Float64("entry", levels.Entry),
		zap.Float64("stop", levels.StopLoss),
		zap.Float64("target", levels.TakeProfit),
		zap.Float64("atr", atr),
		zap.Float64("rr", levels.RiskReward))

	return levels, nil
}

// RoundPrice rounds a level with precision scaled to the instrument's price
// magnitude. Sub-dollar instruments keep 6 decimals so the risk distance of
// a cheap coin is not rounded away.
func RoundPrice(v, refPrice float64) float64 {
	places := int32(2)
	if refPrice < 1 {
		places = 6
	}
	r, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return r
}
