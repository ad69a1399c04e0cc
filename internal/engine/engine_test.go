package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"algotrader/internal/broker"
	"algotrader/internal/errors"
	"algotrader/internal/models"
	"algotrader/internal/notify"
	"algotrader/internal/store"
)

func scalpingBotConfig(id string) models.BotConfig {
	return models.BotConfig{
		ID:           id,
		StrategyType: "scalping",
		Symbol:       "TESTUSDT",
		Timeframe:    models.Timeframe5m,
		Risk: models.RiskParams{
			AccountBalance:  10000,
			MaxRiskPerTrade: 0.01,
			MaxPositions:    3,
		},
	}
}

func newTestEngine(rec *notify.Recorder) (*Engine, *broker.PaperBroker) {
	paper := broker.NewPaperBroker(broker.PaperBrokerConfig{})
	e := New(Config{}, Deps{
		Exec:     paper,
		Notifier: rec,
		Logger:   zerolog.Nop(),
	})
	return e, paper
}

func trendBars(start, step float64, n int) []models.Bar {
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := 0; i < n; i++ {
		open := start + step*float64(i)
		close := open + step
		bars[i] = models.Bar{
			Symbol:    "TESTUSDT",
			Timeframe: models.Timeframe5m,
			Timestamp: ts.Add(time.Duration(i) * 5 * time.Minute),
			Open:      open,
			High:      close * 1.0005,
			Low:       open * 0.9995,
			Close:     close,
			Volume:    1000,
		}
	}
	return bars
}

func TestAddBotRejectsDuplicates(t *testing.T) {
	e, _ := newTestEngine(notify.NewRecorder())
	defer e.Shutdown(context.Background())

	if err := e.AddBot(scalpingBotConfig("bot-1")); err != nil {
		t.Fatal(err)
	}
	if err := e.AddBot(scalpingBotConfig("bot-1")); !errors.Is(err, errors.ErrBotAlreadyExists) {
		t.Fatalf("duplicate add returned %v", err)
	}
	if err := e.AddBot(models.BotConfig{ID: "bot-2", StrategyType: "nope"}); err == nil {
		t.Fatal("unknown strategy type accepted")
	}
}

func TestBotLifecycle(t *testing.T) {
	e, _ := newTestEngine(notify.NewRecorder())
	defer e.Shutdown(context.Background())

	if err := e.AddBot(scalpingBotConfig("bot-1")); err != nil {
		t.Fatal(err)
	}
	st, err := e.Status("bot-1")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != BotInitialized {
		t.Fatalf("state = %s, want initialized", st.State)
	}

	if err := e.StartBot("bot-1"); err != nil {
		t.Fatal(err)
	}
	if st, _ = e.Status("bot-1"); st.State != BotRunning {
		t.Fatalf("state = %s, want running", st.State)
	}
	// Starting a running bot is a no-op.
	if err := e.StartBot("bot-1"); err != nil {
		t.Fatal(err)
	}

	if err := e.StopBot("bot-1"); err != nil {
		t.Fatal(err)
	}
	if st, _ = e.Status("bot-1"); st.State != BotStopped {
		t.Fatalf("state = %s, want stopped", st.State)
	}
	e.mu.Lock()
	bot := e.bots["bot-1"]
	e.mu.Unlock()
	if bot.strat.IsActive() {
		t.Fatal("strategy still active after StopBot")
	}
	if err := e.StopBot("bot-1"); !errors.Is(err, errors.ErrBotNotRunning) {
		t.Fatalf("stopping a stopped bot returned %v", err)
	}

	// A stopped bot restarts cleanly, strategy included.
	if err := e.StartBot("bot-1"); err != nil {
		t.Fatal(err)
	}
	if !bot.strat.IsActive() {
		t.Fatal("strategy inactive after restart")
	}
	if err := e.StartBot("missing"); !errors.Is(err, errors.ErrBotNotFound) {
		t.Fatalf("starting unknown bot returned %v", err)
	}
}

func TestProcessBarTradesTheTrend(t *testing.T) {
	rec := notify.NewRecorder()
	e, paper := newTestEngine(rec)
	defer e.Shutdown(context.Background())

	if err := e.AddBot(scalpingBotConfig("bot-1")); err != nil {
		t.Fatal(err)
	}
	e.mu.Lock()
	bot := e.bots["bot-1"]
	e.mu.Unlock()
	bot.strat.Start()

	for _, bar := range trendBars(100, 0.05, 80) {
		e.processBar(bot, bar)
	}

	if len(rec.ByType(notify.EventSignalGenerated)) == 0 {
		t.Fatal("no signals generated in a clean trend")
	}
	opened := rec.ByType(notify.EventPositionOpened)
	if len(opened) == 0 {
		t.Fatal("no positions opened")
	}
	if len(paper.Fills()) == 0 {
		t.Fatal("no fills routed to the execution client")
	}

	st, _ := e.Status("bot-1")
	if st.Equity <= 0 {
		t.Fatalf("equity = %v", st.Equity)
	}
	if st.OpenPositions != len(opened)-len(rec.ByType(notify.EventPositionClosed)) {
		t.Fatalf("open positions %d inconsistent with %d opened / %d closed",
			st.OpenPositions, len(opened), len(rec.ByType(notify.EventPositionClosed)))
	}
}

func TestRiskRejectionIsReported(t *testing.T) {
	rec := notify.NewRecorder()
	e, paper := newTestEngine(rec)
	defer e.Shutdown(context.Background())

	cfg := scalpingBotConfig("bot-1")
	cfg.Risk.MinRiskReward = 100 // unreachable, every signal is rejected
	if err := e.AddBot(cfg); err != nil {
		t.Fatal(err)
	}
	e.mu.Lock()
	bot := e.bots["bot-1"]
	e.mu.Unlock()
	bot.strat.Start()

	for _, bar := range trendBars(100, 0.05, 80) {
		e.processBar(bot, bar)
	}

	rejected := rec.ByType(notify.EventRiskRejected)
	if len(rejected) == 0 {
		t.Fatal("no rejections reported")
	}
	for _, ev := range rejected {
		reasons, ok := ev.Fields["reasons"].([]string)
		if !ok || len(reasons) == 0 {
			t.Fatalf("rejection event carries no reasons: %+v", ev)
		}
	}
	if len(paper.Fills()) != 0 {
		t.Fatalf("rejected signals reached the execution client: %d fills", len(paper.Fills()))
	}
}

func TestEmergencyStopFlattensBot(t *testing.T) {
	rec := notify.NewRecorder()
	e, _ := newTestEngine(rec)
	defer e.Shutdown(context.Background())

	cfg := scalpingBotConfig("bot-1")
	cfg.Risk.MaxDrawdown = 0.05
	if err := e.AddBot(cfg); err != nil {
		t.Fatal(err)
	}
	e.mu.Lock()
	bot := e.bots["bot-1"]
	e.mu.Unlock()
	bot.strat.Start()

	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	bot.strat.OnFill(&models.Signal{
		Direction:  models.DirectionBuy,
		EntryPrice: 100,
		LotSize:    1,
		Timestamp:  ts,
	}, 100)

	// Breach the drawdown limit, then let the next bar trip the check.
	bot.risk.RecordClose(-1000)
	bar := models.Bar{
		Symbol: "TESTUSDT", Timeframe: models.Timeframe5m,
		Timestamp: ts.Add(5 * time.Minute),
		Open:      100, High: 100.2, Low: 99.9, Close: 100, Volume: 1000,
	}
	e.processBar(bot, bar)

	if bot.strat.IsActive() {
		t.Fatal("strategy still active after emergency stop")
	}
	if got := len(bot.strat.OpenPositions()); got != 0 {
		t.Fatalf("open positions = %d after flatten", got)
	}
	stops := rec.ByType(notify.EventEmergencyStop)
	if len(stops) != 1 {
		t.Fatalf("emergency stop events = %d, want 1", len(stops))
	}
	reasons, ok := stops[0].Fields["reasons"].([]string)
	if !ok || len(reasons) == 0 {
		t.Fatal("emergency stop event carries no reasons")
	}

	// The halt is latched: further bars do not re-trigger it.
	bar.Timestamp = bar.Timestamp.Add(5 * time.Minute)
	e.processBar(bot, bar)
	if got := len(rec.ByType(notify.EventEmergencyStop)); got != 1 {
		t.Fatalf("emergency stop events = %d after second bar, want 1", got)
	}
}

func TestStopBotPersistsPerformanceSnapshot(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	paper := broker.NewPaperBroker(broker.PaperBrokerConfig{})
	e := New(Config{}, Deps{
		Exec:     paper,
		Store:    st,
		Notifier: notify.NewRecorder(),
		Logger:   zerolog.Nop(),
	})
	defer e.Shutdown(context.Background())

	if err := e.AddBot(scalpingBotConfig("bot-1")); err != nil {
		t.Fatal(err)
	}
	if err := e.StartBot("bot-1"); err != nil {
		t.Fatal(err)
	}
	if err := e.StopBot("bot-1"); err != nil {
		t.Fatal(err)
	}

	snaps, err := st.GetPerformance(context.Background(), "bot-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	if snaps[0].BotID != "bot-1" {
		t.Fatalf("snapshot bot id = %q", snaps[0].BotID)
	}
}

func TestOnBarRoutesBySymbolAndTimeframe(t *testing.T) {
	rec := notify.NewRecorder()
	e, _ := newTestEngine(rec)
	defer e.Shutdown(context.Background())

	if err := e.AddBot(scalpingBotConfig("bot-1")); err != nil {
		t.Fatal(err)
	}
	if err := e.StartBot("bot-1"); err != nil {
		t.Fatal(err)
	}

	// Wrong symbol and wrong timeframe must not reach the bot.
	e.OnBar(models.Bar{Symbol: "OTHER", Timeframe: models.Timeframe5m, Timestamp: time.Now(), Close: 1})
	e.OnBar(models.Bar{Symbol: "TESTUSDT", Timeframe: models.Timeframe1h, Timestamp: time.Now(), Close: 1})

	e.mu.Lock()
	pending := len(e.bots["bot-1"].bars)
	e.mu.Unlock()
	if pending != 0 {
		t.Fatalf("mismatched bars queued: %d", pending)
	}

	e.OnBar(models.Bar{Symbol: "TESTUSDT", Timeframe: models.Timeframe5m, Timestamp: time.Now(), Close: 1})
	deadline := time.After(2 * time.Second)
	for {
		e.mu.Lock()
		consumed := len(e.bots["bot-1"].bars) == 0
		e.mu.Unlock()
		if consumed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("routed bar never consumed")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	if err := e.StopBot("bot-1"); err != nil {
		t.Fatal(err)
	}
}
