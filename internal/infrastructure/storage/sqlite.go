package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/krejcif/llmtrader/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			strategy TEXT NOT NULL,
			side TEXT NOT NULL,
			confidence TEXT,
			rationale TEXT,
			entry_price REAL NOT NULL,
			stop_loss REAL NOT NULL,
			take_profit REAL NOT NULL,
			size REAL NOT NULL,
			risk_reward REAL,
			atr REAL,
			status TEXT NOT NULL DEFAULT 'OPEN',
			entry_time DATETIME NOT NULL,
			exit_time DATETIME,
			exit_price REAL,
			exit_reason TEXT,
			entry_fee REAL NOT NULL DEFAULT 0,
			exit_fee REAL NOT NULL DEFAULT 0,
			pnl REAL,
			pnl_pct REAL,
			valid BOOLEAN NOT NULL DEFAULT 1,
			audit_note TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_strategy_symbol_status ON trades(strategy, symbol, status);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades(symbol, status);`,
		`CREATE TABLE IF NOT EXISTS strategy_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			strategy TEXT NOT NULL,
			symbol TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			action TEXT,
			confidence TEXT,
			rationale TEXT,
			executed BOOLEAN NOT NULL DEFAULT 0,
			execution_reason TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_runs_strategy ON strategy_runs(strategy, timestamp);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	// Migration: audit columns added after the initial schema.
	// We ignore the error if the column already exists
	_, _ = s.db.Exec(`ALTER TABLE trades ADD COLUMN valid BOOLEAN NOT NULL DEFAULT 1`)
	_, _ = s.db.Exec(`ALTER TABLE trades ADD COLUMN audit_note TEXT`)

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// TradeRepository Implementation

func (s *SQLiteStore) CreateTrade(ctx context.Context, t *domain.Trade) error {
	query := `INSERT INTO trades (id, symbol, strategy, side, confidence, rationale, entry_price, stop_loss, take_profit, size, risk_reward, atr, status, entry_time, entry_fee, valid)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.Symbol, t.Strategy, string(t.Side), t.Confidence, t.Rationale,
		t.EntryPrice, t.StopLoss, t.TakeProfit, t.Size, t.RiskReward, t.ATR,
		string(t.Status), t.EntryTime, t.EntryFee, t.Valid)
	return err
}

func (s *SQLiteStore) CloseTrade(ctx context.Context, id string, exitPrice float64, exitTime time.Time, reason domain.ExitReason, exitFee, pnl, pnlPct float64) error {
	query := `UPDATE trades
			  SET status = 'CLOSED', exit_price = ?, exit_time = ?, exit_reason = ?, exit_fee = ?, pnl = ?, pnl_pct = ?
			  WHERE id = ? AND status = 'OPEN'`
	res, err := s.db.ExecContext(ctx, query, exitPrice, exitTime, string(reason), exitFee, pnl, pnlPct, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var status string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM trades WHERE id = ?`, id).Scan(&status)
		if err == sql.ErrNoRows {
			return domain.ErrTradeNotFound
		}
		if err != nil {
			return err
		}
		return domain.ErrAlreadyClosed
	}
	return nil
}

const tradeColumns = `id, symbol, strategy, side, confidence, rationale, entry_price, stop_loss, take_profit, size, risk_reward, atr, status, entry_time, exit_time, exit_price, exit_reason, entry_fee, exit_fee, pnl, pnl_pct, valid, audit_note`

func scanTrade(row interface{ Scan(...any) error }) (*domain.Trade, error) {
	var t domain.Trade
	var side, status string
	var exitTime sql.NullTime
	var exitPrice, pnl, pnlPct sql.NullFloat64
	var confidence, rationale, exitReason, auditNote sql.NullString

	err := row.Scan(&t.ID, &t.Symbol, &t.Strategy, &side, &confidence, &rationale,
		&t.EntryPrice, &t.StopLoss, &t.TakeProfit, &t.Size, &t.RiskReward, &t.ATR,
		&status, &t.EntryTime, &exitTime, &exitPrice, &exitReason,
		&t.EntryFee, &t.ExitFee, &pnl, &pnlPct, &t.Valid, &auditNote)
	if err != nil {
		return nil, err
	}

	t.Side = domain.Side(side)
	t.Status = domain.TradeStatus(status)
	t.Confidence = confidence.String
	t.Rationale = rationale.String
	t.ExitReason = domain.ExitReason(exitReason.String)
	t.AuditNote = auditNote.String
	t.ExitTime = exitTime.Time
	t.ExitPrice = exitPrice.Float64
	t.PnL = pnl.Float64
	t.PnLPct = pnlPct.Float64
	return &t, nil
}

func (s *SQLiteStore) queryTrades(ctx context.Context, query string, args ...any) ([]*domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) GetOpenTrades(ctx context.Context, symbol string) ([]*domain.Trade, error) {
	if symbol == "" {
		return s.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades WHERE status = 'OPEN' ORDER BY entry_time`)
	}
	return s.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades WHERE status = 'OPEN' AND symbol = ? ORDER BY entry_time`, symbol)
}

func (s *SQLiteStore) GetOpenTradesByStrategy(ctx context.Context, strategy, symbol string) ([]*domain.Trade, error) {
	return s.queryTrades(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE status = 'OPEN' AND strategy = ? AND symbol = ? ORDER BY entry_time`,
		strategy, symbol)
}

func (s *SQLiteStore) GetLastClosedTrade(ctx context.Context, strategy, symbol string) (*domain.Trade, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE status = 'CLOSED' AND strategy = ? AND symbol = ? ORDER BY exit_time DESC LIMIT 1`,
		strategy, symbol)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SQLiteStore) GetClosedTrades(ctx context.Context, symbol, strategy string, limit int) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status = 'CLOSED'`
	var args []any
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	if strategy != "" {
		query += ` AND strategy = ?`
		args = append(args, strategy)
	}
	query += ` ORDER BY exit_time DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryTrades(ctx, query, args...)
}

func (s *SQLiteStore) MarkInvalid(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trades SET valid = 0, audit_note = ? WHERE id = ?`, reason, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrTradeNotFound
	}
	return nil
}

func (s *SQLiteStore) GetTradeStats(ctx context.Context, symbol, strategy string) (*domain.TradeStats, error) {
	query := `SELECT COUNT(*),
			  COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0),
			  COALESCE(SUM(CASE WHEN pnl <= 0 THEN 1 ELSE 0 END), 0),
			  COALESCE(SUM(pnl), 0),
			  COALESCE(SUM(entry_fee + exit_fee), 0),
			  COALESCE(MAX(pnl), 0),
			  COALESCE(MIN(pnl), 0)
			  FROM trades WHERE status = 'CLOSED' AND valid = 1`
	var args []any
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	if strategy != "" {
		query += ` AND strategy = ?`
		args = append(args, strategy)
	}

	var st domain.TradeStats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&st.Total, &st.Wins, &st.Losses, &st.TotalPnL, &st.TotalFees, &st.BestPnL, &st.WorstPnL)
	if err != nil {
		return nil, err
	}
	if st.Total > 0 {
		st.WinRate = float64(st.Wins) / float64(st.Total) * 100
		st.AvgPnL = st.TotalPnL / float64(st.Total)
	}
	return &st, nil
}

// RunLogRepository Implementation

func (s *SQLiteStore) LogStrategyRun(ctx context.Context, run *domain.StrategyRun) error {
	query := `INSERT INTO strategy_runs (run_id, strategy, symbol, timestamp, action, confidence, rationale, executed, execution_reason)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		run.RunID, run.Strategy, run.Symbol, run.Timestamp,
		string(run.Action), run.Confidence, run.Rationale, run.Executed, run.ExecutionReason)
	return err
}

func (s *SQLiteStore) ListStrategyRuns(ctx context.Context, strategy string, limit int) ([]*domain.StrategyRun, error) {
	query := `SELECT run_id, strategy, symbol, timestamp, action, confidence, rationale, executed, execution_reason FROM strategy_runs`
	var args []any
	if strategy != "" {
		query += ` WHERE strategy = ?`
		args = append(args, strategy)
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.StrategyRun
	for rows.Next() {
		var r domain.StrategyRun
		var action sql.NullString
		var confidence, rationale sql.NullString
		if err := rows.Scan(&r.RunID, &r.Strategy, &r.Symbol, &r.Timestamp, &action, &confidence, &rationale, &r.Executed, &r.ExecutionReason); err != nil {
			return nil, err
		}
		r.Action = domain.Action(action.String)
		r.Confidence = confidence.String
		r.Rationale = rationale.String
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
