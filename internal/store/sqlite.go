package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"algotrader/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Candle cache for historical OHLCV data
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timeframe, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_bars_lookup ON bars(symbol, timeframe, timestamp);

	-- Closed trades
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id INTEGER NOT NULL,
		bot_id TEXT NOT NULL,
		strategy_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		lot_size REAL NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		open_time DATETIME NOT NULL,
		close_time DATETIME NOT NULL,
		profit REAL NOT NULL,
		reason TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_bot ON trades(bot_id, close_time);

	-- Performance snapshots
	CREATE TABLE IF NOT EXISTS performance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bot_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		total_trades INTEGER NOT NULL,
		winning_trades INTEGER NOT NULL,
		losing_trades INTEGER NOT NULL,
		total_profit REAL NOT NULL,
		total_loss REAL NOT NULL,
		win_rate REAL NOT NULL,
		profit_factor REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		sharpe_ratio REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_performance_bot ON performance(bot_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveBars upserts a batch of bars in one transaction.
func (s *SQLiteStore) SaveBars(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe, timestamp) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, string(b.Timeframe), b.Timestamp.UTC(),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}
	return tx.Commit()
}

// GetBars returns cached bars in ascending timestamp order.
func (s *SQLiteStore) GetBars(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) ([]models.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timeframe, timestamp, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`,
		symbol, string(timeframe), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		var tf string
		if err := rows.Scan(&b.Symbol, &tf, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Timeframe = models.Timeframe(tf)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// GetBarsFreshness returns the newest cached timestamp for the series.
func (s *SQLiteStore) GetBarsFreshness(ctx context.Context, symbol string, timeframe models.Timeframe) (time.Time, error) {
	var ts sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM bars WHERE symbol = ? AND timeframe = ?`,
		symbol, string(timeframe)).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query freshness: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time, nil
}

// LogTrade persists one closed trade.
func (s *SQLiteStore) LogTrade(ctx context.Context, trade *models.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (position_id, bot_id, strategy_id, symbol, direction,
			lot_size, entry_price, exit_price, open_time, close_time, profit, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(trade.ID), trade.BotID, trade.StrategyID, trade.Symbol, string(trade.Direction),
		trade.LotSize, trade.EntryPrice, trade.ExitPrice,
		trade.OpenTime.UTC(), trade.CloseTime.UTC(), trade.Profit, string(trade.Reason))
	if err != nil {
		return fmt.Errorf("failed to log trade: %w", err)
	}
	return nil
}

// GetTrades returns trades matching the filter, newest first.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := `SELECT position_id, bot_id, strategy_id, symbol, direction,
		lot_size, entry_price, exit_price, open_time, close_time, profit, reason
		FROM trades WHERE 1=1`
	var args []interface{}
	var conds []string

	if filter.BotID != "" {
		conds = append(conds, "bot_id = ?")
		args = append(args, filter.BotID)
	}
	if filter.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if !filter.StartDate.IsZero() {
		conds = append(conds, "close_time >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		conds = append(conds, "close_time <= ?")
		args = append(args, filter.EndDate.UTC())
	}
	if len(conds) > 0 {
		query += " AND " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY close_time DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var id int64
		var direction, reason string
		if err := rows.Scan(&id, &t.BotID, &t.StrategyID, &t.Symbol, &direction,
			&t.LotSize, &t.EntryPrice, &t.ExitPrice, &t.OpenTime, &t.CloseTime,
			&t.Profit, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.ID = models.PositionID(id)
		t.Direction = models.Direction(direction)
		t.Reason = models.CloseReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SavePerformance persists one metrics snapshot.
func (s *SQLiteStore) SavePerformance(ctx context.Context, botID string, m models.PerformanceMetrics, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO performance (bot_id, timestamp, total_trades, winning_trades,
			losing_trades, total_profit, total_loss, win_rate, profit_factor,
			max_drawdown, sharpe_ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		botID, ts.UTC(), m.TotalTrades, m.WinningTrades, m.LosingTrades,
		m.TotalProfit, m.TotalLoss, m.WinRate, m.ProfitFactor, m.MaxDrawdown, m.SharpeRatio)
	if err != nil {
		return fmt.Errorf("failed to save performance: %w", err)
	}
	return nil
}

// GetPerformance returns a bot's snapshots in ascending time order.
func (s *SQLiteStore) GetPerformance(ctx context.Context, botID string) ([]PerformanceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bot_id, timestamp, total_trades, winning_trades, losing_trades,
			total_profit, total_loss, win_rate, profit_factor, max_drawdown, sharpe_ratio
		FROM performance WHERE bot_id = ? ORDER BY timestamp ASC`, botID)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance: %w", err)
	}
	defer rows.Close()

	var snaps []PerformanceSnapshot
	for rows.Next() {
		var p PerformanceSnapshot
		m := &p.Metrics
		if err := rows.Scan(&p.BotID, &p.Timestamp, &m.TotalTrades, &m.WinningTrades,
			&m.LosingTrades, &m.TotalProfit, &m.TotalLoss, &m.WinRate,
			&m.ProfitFactor, &m.MaxDrawdown, &m.SharpeRatio); err != nil {
			return nil, fmt.Errorf("failed to scan performance: %w", err)
		}
		snaps = append(snaps, p)
	}
	return snaps, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
