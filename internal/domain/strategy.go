package domain

import "time"

type Action string

const (
	ActionLong    Action = "LONG"
	ActionShort   Action = "SHORT"
	ActionNeutral Action = "NEUTRAL"
)

// Valid reports whether the action is one of the three known values.
// Anything else coming back from the decision oracle is a runner failure.
func (a Action) Valid() bool {
	return a == ActionLong || a == ActionShort || a == ActionNeutral
}

// StrategyDefinition is the static identity of one strategy. Loaded once at
// startup; only the Live flag may be toggled while the process runs.
type StrategyDefinition struct {
	Name           string `yaml:"name"`
	Symbol         string `yaml:"symbol"`
	TrendTimeframe string `yaml:"trend_timeframe"`
	EntryTimeframe string `yaml:"entry_timeframe"`
	CadenceMinutes int    `yaml:"cadence_minutes"`
	Enabled        bool   `yaml:"enabled"`
	Live           bool   `yaml:"live"`
}

// Recommendation is produced once per strategy per cycle and discarded after
// the execution pass.
type Recommendation struct {
	Action     Action
	Confidence string
	Rationale  string
	Symbol     string // overrides the strategy symbol when set
	Risk       *RiskLevels
}

// RunResult carries either a recommendation or the failure that prevented
// one. Exactly one of Rec/Err is meaningful.
type RunResult struct {
	Strategy string
	Rec      *Recommendation
	Err      error
	// RefPrice is the close of the last completed entry-timeframe candle,
	// used for opposite-signal exits instead of a live tick.
	RefPrice float64
	Elapsed  time.Duration
}

// MarketContext is the cross-strategy base context. Each runner receives its
// own copy so concurrent runners never alias shared state.
type MarketContext struct {
	CycleID   string
	StartedAt time.Time
	Sentiment string
}

// StrategyRun is one append-only audit row written every cycle for every
// strategy, whether or not a trade was opened.
type StrategyRun struct {
	RunID           string
	Strategy        string
	Symbol          string
	Timestamp       time.Time
	Action          Action
	Confidence      string
	Rationale       string
	Executed        bool
	ExecutionReason string
}
