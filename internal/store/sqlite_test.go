package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"algotrader/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBarsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	bars := make([]models.Bar, 5)
	for i := range bars {
		bars[i] = models.Bar{
			Symbol:    "BTCUSDT",
			Timeframe: models.Timeframe5m,
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      100 + float64(i),
			High:      101 + float64(i),
			Low:       99 + float64(i),
			Close:     100.5 + float64(i),
			Volume:    1000,
		}
	}
	if err := s.SaveBars(ctx, bars); err != nil {
		t.Fatalf("SaveBars: %v", err)
	}

	got, err := s.GetBars(ctx, "BTCUSDT", models.Timeframe5m, start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d bars, want 5", len(got))
	}
	for i, b := range got {
		if !b.Timestamp.Equal(bars[i].Timestamp) || b.Close != bars[i].Close {
			t.Errorf("bar %d = %+v, want %+v", i, b, bars[i])
		}
	}

	// Saving the same timestamps again must update in place, not duplicate.
	bars[0].Close = 42
	if err := s.SaveBars(ctx, bars); err != nil {
		t.Fatalf("SaveBars upsert: %v", err)
	}
	got, err = s.GetBars(ctx, "BTCUSDT", models.Timeframe5m, start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetBars after upsert: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d bars after upsert, want 5", len(got))
	}
	if got[0].Close != 42 {
		t.Errorf("upserted close = %v, want 42", got[0].Close)
	}

	fresh, err := s.GetBarsFreshness(ctx, "BTCUSDT", models.Timeframe5m)
	if err != nil {
		t.Fatalf("GetBarsFreshness: %v", err)
	}
	if !fresh.Equal(bars[4].Timestamp) {
		t.Errorf("freshness = %v, want %v", fresh, bars[4].Timestamp)
	}

	empty, err := s.GetBarsFreshness(ctx, "ETHUSDT", models.Timeframe5m)
	if err != nil {
		t.Fatalf("GetBarsFreshness empty: %v", err)
	}
	if !empty.IsZero() {
		t.Errorf("freshness of unknown series = %v, want zero", empty)
	}
}

func TestTradeJournalFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	trades := []models.Trade{
		{ID: 1, BotID: "bot-a", StrategyID: "scalping-1", Symbol: "BTCUSDT",
			Direction: models.DirectionBuy, LotSize: 0.5, EntryPrice: 100, ExitPrice: 101,
			OpenTime: base, CloseTime: base.Add(time.Hour), Profit: 0.5,
			Reason: models.CloseReasonTakeProfit},
		{ID: 2, BotID: "bot-a", StrategyID: "scalping-1", Symbol: "ETHUSDT",
			Direction: models.DirectionSell, LotSize: 1, EntryPrice: 50, ExitPrice: 51,
			OpenTime: base, CloseTime: base.Add(2 * time.Hour), Profit: -1,
			Reason: models.CloseReasonStopLoss},
		{ID: 3, BotID: "bot-b", StrategyID: "grid-1", Symbol: "BTCUSDT",
			Direction: models.DirectionBuy, LotSize: 0.1, EntryPrice: 99, ExitPrice: 100,
			OpenTime: base, CloseTime: base.Add(3 * time.Hour), Profit: 0.1,
			Reason: models.CloseReasonTakeProfit},
	}
	for i := range trades {
		if err := s.LogTrade(ctx, &trades[i]); err != nil {
			t.Fatalf("LogTrade %d: %v", i, err)
		}
	}

	byBot, err := s.GetTrades(ctx, TradeFilter{BotID: "bot-a"})
	if err != nil {
		t.Fatalf("GetTrades by bot: %v", err)
	}
	if len(byBot) != 2 {
		t.Fatalf("bot-a trades = %d, want 2", len(byBot))
	}
	// Newest first.
	if byBot[0].ID != 2 || byBot[1].ID != 1 {
		t.Errorf("order = %d, %d, want 2, 1", byBot[0].ID, byBot[1].ID)
	}
	if byBot[1].Direction != models.DirectionBuy || byBot[1].Reason != models.CloseReasonTakeProfit {
		t.Errorf("round-trip lost enum fields: %+v", byBot[1])
	}

	bySymbol, err := s.GetTrades(ctx, TradeFilter{Symbol: "BTCUSDT", Limit: 1})
	if err != nil {
		t.Fatalf("GetTrades by symbol: %v", err)
	}
	if len(bySymbol) != 1 || bySymbol[0].ID != 3 {
		t.Errorf("symbol+limit = %+v, want only trade 3", bySymbol)
	}

	byWindow, err := s.GetTrades(ctx, TradeFilter{
		StartDate: base.Add(90 * time.Minute),
		EndDate:   base.Add(150 * time.Minute),
	})
	if err != nil {
		t.Fatalf("GetTrades by window: %v", err)
	}
	if len(byWindow) != 1 || byWindow[0].ID != 2 {
		t.Errorf("window = %+v, want only trade 2", byWindow)
	}
}

func TestPerformanceSnapshots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		m := models.PerformanceMetrics{
			TotalTrades:   10 * (i + 1),
			WinningTrades: 6 * (i + 1),
			LosingTrades:  4 * (i + 1),
			TotalProfit:   100 * float64(i+1),
			TotalLoss:     40 * float64(i+1),
			WinRate:       0.6,
			ProfitFactor:  2.5,
			MaxDrawdown:   0.05,
			SharpeRatio:   1.2,
		}
		if err := s.SavePerformance(ctx, "bot-a", m, base.AddDate(0, 0, i)); err != nil {
			t.Fatalf("SavePerformance %d: %v", i, err)
		}
	}

	snaps, err := s.GetPerformance(ctx, "bot-a")
	if err != nil {
		t.Fatalf("GetPerformance: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(snaps))
	}
	for i, snap := range snaps {
		if snap.Metrics.TotalTrades != 10*(i+1) {
			t.Errorf("snapshot %d trades = %d, want %d", i, snap.Metrics.TotalTrades, 10*(i+1))
		}
		if i > 0 && snap.Timestamp.Before(snaps[i-1].Timestamp) {
			t.Errorf("snapshots not in ascending time order")
		}
	}

	none, err := s.GetPerformance(ctx, "bot-x")
	if err != nil {
		t.Fatalf("GetPerformance unknown bot: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unknown bot returned %d snapshots", len(none))
	}
}
