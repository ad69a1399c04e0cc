// Package engine orchestrates bots: bar routing, risk gating, order
// dispatch and lifecycle management.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"algotrader/internal/broker"
	"algotrader/internal/errors"
	"algotrader/internal/indicators"
	"algotrader/internal/logging"
	"algotrader/internal/metrics"
	"algotrader/internal/models"
	"algotrader/internal/notify"
	"algotrader/internal/risk"
	"algotrader/internal/store"
	"algotrader/internal/strategy"
)

// BotState is the lifecycle state of one bot.
type BotState string

const (
	BotInitialized BotState = "initialized"
	BotRunning     BotState = "running"
	BotStopped     BotState = "stopped"
	BotError       BotState = "error"
)

// Config holds engine tunables.
type Config struct {
	// OrderQueueSize bounds the shared dispatch queue; a full queue
	// applies backpressure to the emitting bot.
	OrderQueueSize int
	// Dispatchers is the number of order dispatch workers.
	Dispatchers int
	// BarBuffer is the per-bot bar channel depth.
	BarBuffer int
	// HistorySize is the rolling bar window per bot.
	HistorySize int
}

// DefaultConfig returns the standard engine tunables.
func DefaultConfig() Config {
	return Config{
		OrderQueueSize: 256,
		Dispatchers:    4,
		BarBuffer:      64,
		HistorySize:    256,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.OrderQueueSize <= 0 {
		c.OrderQueueSize = d.OrderQueueSize
	}
	if c.Dispatchers <= 0 {
		c.Dispatchers = d.Dispatchers
	}
	if c.BarBuffer <= 0 {
		c.BarBuffer = d.BarBuffer
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
}

// Deps are the engine's collaborators. Store and Metrics are optional.
type Deps struct {
	Exec     broker.ExecutionClient
	Store    store.Store
	Notifier notify.Notifier
	Metrics  *metrics.Set
	Logger   zerolog.Logger
}

// Bot couples one strategy instance with its risk manager and market
// view. All bot fields except state are touched only by the bot's own
// goroutine; state is guarded by the engine mutex.
type Bot struct {
	cfg     models.BotConfig
	strat   strategy.Strategy
	risk    *risk.Manager
	history *indicators.History
	builder *indicators.Builder
	log     zerolog.Logger

	bars chan models.Bar
	quit chan struct{}
	done chan struct{}

	state   BotState
	lastErr error
}

// BotStatus is the engine's external view of one bot.
type BotStatus struct {
	ID            string
	Symbol        string
	Strategy      strategy.Kind
	State         BotState
	OpenPositions int
	Equity        float64
	Metrics       models.PerformanceMetrics
	Err           error
}

type orderResult struct {
	fill *broker.Fill
	err  error
}

type orderTask struct {
	req   broker.OrderRequest
	reply chan orderResult
}

// Engine owns the bot registry and the shared order dispatch queue.
type Engine struct {
	cfg      Config
	exec     broker.ExecutionClient
	store    store.Store
	notifier notify.Notifier
	metrics  *metrics.Set
	log      zerolog.Logger

	mu   sync.Mutex
	bots map[string]*Bot

	orders chan orderTask
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an engine and starts its order dispatchers.
func New(cfg Config, deps Deps) *Engine {
	cfg.applyDefaults()
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogNotifier(deps.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:      cfg,
		exec:     deps.Exec,
		store:    deps.Store,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		log:      deps.Logger.With().Str("component", "engine").Logger(),
		bots:     make(map[string]*Bot),
		orders:   make(chan orderTask, cfg.OrderQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < cfg.Dispatchers; i++ {
		e.wg.Add(1)
		go e.dispatcher()
	}
	return e
}

// dispatcher consumes the shared queue and routes orders to the
// execution client.
func (e *Engine) dispatcher() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case task := <-e.orders:
			fill, err := e.exec.PlaceOrder(e.ctx, task.req)
			task.reply <- orderResult{fill: fill, err: err}
		}
	}
}

// AddBot registers a bot in the initialized state.
func (e *Engine) AddBot(cfg models.BotConfig) error {
	if cfg.ID == "" {
		return errors.NewValidationError("id", cfg.ID, "bot id is required")
	}
	strat, err := strategy.New(cfg, e.log)
	if err != nil {
		return errors.Wrap(err, "failed to create strategy")
	}

	bot := &Bot{
		cfg:     cfg,
		strat:   strat,
		risk:    risk.NewManager(cfg.Risk, e.log.With().Str("bot", cfg.ID).Logger()),
		history: indicators.NewHistory(e.cfg.HistorySize),
		builder: indicators.NewBuilder(strategy.SnapshotConfig(cfg)),
		log:     logging.WithBot(e.log, cfg.ID),
		state:   BotInitialized,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.bots[cfg.ID]; exists {
		return errors.Wrapf(errors.ErrBotAlreadyExists, "bot %q", cfg.ID)
	}
	e.bots[cfg.ID] = bot
	e.log.Info().Str("bot", cfg.ID).Str("strategy", cfg.StrategyType).Str("symbol", cfg.Symbol).Msg("Bot added")
	return nil
}

// StartBot transitions a bot to running and spawns its goroutine. A bot
// in the error state restarts only through this explicit call.
func (e *Engine) StartBot(id string) error {
	e.mu.Lock()
	bot, ok := e.bots[id]
	if !ok {
		e.mu.Unlock()
		return errors.Wrapf(errors.ErrBotNotFound, "bot %q", id)
	}
	if bot.state == BotRunning {
		e.mu.Unlock()
		return nil
	}
	bot.state = BotRunning
	bot.lastErr = nil
	bot.bars = make(chan models.Bar, e.cfg.BarBuffer)
	bot.quit = make(chan struct{})
	bot.done = make(chan struct{})
	bot.strat.Start()
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.BotsRunning.Inc()
	}
	e.notifier.Notify(notify.Event{
		Type: notify.EventBotStarted, BotID: id, Symbol: bot.cfg.Symbol, Timestamp: time.Now(),
	})

	e.wg.Add(1)
	go e.run(bot)
	return nil
}

// StopBot cooperatively stops a running bot and waits for its goroutine
// to drain.
func (e *Engine) StopBot(id string) error {
	e.mu.Lock()
	bot, ok := e.bots[id]
	if !ok {
		e.mu.Unlock()
		return errors.Wrapf(errors.ErrBotNotFound, "bot %q", id)
	}
	if bot.state != BotRunning {
		e.mu.Unlock()
		return errors.Wrapf(errors.ErrBotNotRunning, "bot %q in state %s", id, bot.state)
	}
	quit, done := bot.quit, bot.done
	e.mu.Unlock()

	close(quit)
	<-done

	bot.strat.Stop()
	if e.store != nil {
		if err := e.store.SavePerformance(e.ctx, id, bot.strat.Metrics(), time.Now()); err != nil {
			bot.log.Error().Err(err).Msg("Failed to persist performance snapshot")
		}
	}

	e.mu.Lock()
	if bot.state == BotRunning {
		bot.state = BotStopped
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.BotsRunning.Dec()
	}
	e.notifier.Notify(notify.Event{
		Type: notify.EventBotStopped, BotID: id, Symbol: bot.cfg.Symbol, Timestamp: time.Now(),
	})
	return nil
}

// StartAll starts every bot that is not already running.
func (e *Engine) StartAll() error {
	for _, id := range e.ids() {
		if err := e.StartBot(id); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every running bot.
func (e *Engine) StopAll() {
	for _, id := range e.ids() {
		if err := e.StopBot(id); err != nil && !errors.Is(err, errors.ErrBotNotRunning) {
			e.log.Warn().Err(err).Str("bot", id).Msg("Failed to stop bot")
		}
	}
}

func (e *Engine) ids() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.bots))
	for id := range e.bots {
		out = append(out, id)
	}
	return out
}

// OnBar routes a bar to every running bot trading its symbol and
// timeframe. A bot with a saturated buffer drops the bar rather than
// blocking the feed.
func (e *Engine) OnBar(bar models.Bar) {
	e.mu.Lock()
	targets := make([]*Bot, 0, len(e.bots))
	for _, bot := range e.bots {
		if bot.state != BotRunning {
			continue
		}
		if bot.cfg.Symbol != bar.Symbol || bot.cfg.Timeframe != bar.Timeframe {
			continue
		}
		targets = append(targets, bot)
	}
	e.mu.Unlock()

	for _, bot := range targets {
		select {
		case bot.bars <- bar:
		default:
			bot.log.Warn().Time("bar", bar.Timestamp).Msg("Bar buffer full, dropping bar")
		}
	}
}

// Status returns one bot's status.
func (e *Engine) Status(id string) (BotStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bot, ok := e.bots[id]
	if !ok {
		return BotStatus{}, errors.Wrapf(errors.ErrBotNotFound, "bot %q", id)
	}
	return e.statusLocked(bot), nil
}

// Statuses returns every bot's status.
func (e *Engine) Statuses() []BotStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]BotStatus, 0, len(e.bots))
	for _, bot := range e.bots {
		out = append(out, e.statusLocked(bot))
	}
	return out
}

func (e *Engine) statusLocked(bot *Bot) BotStatus {
	return BotStatus{
		ID:            bot.cfg.ID,
		Symbol:        bot.cfg.Symbol,
		Strategy:      bot.strat.Kind(),
		State:         bot.state,
		OpenPositions: len(bot.strat.OpenPositions()),
		Equity:        bot.risk.State().Equity,
		Metrics:       bot.strat.Metrics(),
		Err:           bot.lastErr,
	}
}

// Shutdown stops all bots, drains the dispatchers and waits up to the
// context deadline.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.StopAll()
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.log.Info().Msg("Engine shut down")
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "engine shutdown timed out")
	}
}

// run is the per-bot loop. A panic in one bot marks it errored without
// touching its siblings.
func (e *Engine) run(bot *Bot) {
	defer e.wg.Done()
	defer close(bot.done)
	defer func() {
		if r := recover(); r != nil {
			err := errors.NewStateError(bot.cfg.ID, "process_bar", fmt.Errorf("panic: %v", r))
			e.mu.Lock()
			bot.state = BotError
			bot.lastErr = err
			e.mu.Unlock()
			bot.log.Error().Err(err).Msg("Bot crashed")
			e.notifier.Notify(notify.Event{
				Type: notify.EventBotError, BotID: bot.cfg.ID, Symbol: bot.cfg.Symbol,
				Message: err.Error(), Timestamp: time.Now(),
			})
		}
	}()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-bot.quit:
			return
		case bar := <-bot.bars:
			e.processBar(bot, bar)
		}
	}
}

// processBar advances one bot by one bar: indicators, strategy, risk
// gate, execution, then bookkeeping for everything that opened or
// closed during the bar.
func (e *Engine) processBar(bot *Bot, bar models.Bar) {
	if e.metrics != nil {
		e.metrics.BarsProcessed.WithLabelValues(bot.cfg.ID).Inc()
	}
	if !bot.history.Add(bar) {
		bot.log.Debug().Time("bar", bar.Timestamp).Msg("Out-of-order bar dropped")
		return
	}

	snap := bot.builder.Compute(bot.history.Bars())
	sig := bot.strat.Analyze(bar, snap)
	if sig != nil {
		e.handleSignal(bot, bar, snap, sig)
	}

	for _, pos := range bot.strat.TakeOpened() {
		e.onPositionOpened(bot, pos)
	}
	for _, pos := range bot.strat.TakeClosed() {
		e.onPositionClosed(bot, pos)
	}

	bot.risk.State().RecordEquity(e.equity(bot, bar))
	if e.metrics != nil {
		e.metrics.OpenPositions.WithLabelValues(bot.cfg.ID).Set(float64(len(bot.strat.OpenPositions())))
		e.metrics.Equity.WithLabelValues(bot.cfg.ID).Set(bot.risk.State().Equity)
	}

	e.checkEmergency(bot, bar)
}

func (e *Engine) handleSignal(bot *Bot, bar models.Bar, snap *indicators.Snapshot, sig *models.Signal) {
	logging.LogSignal(bot.log, sig)
	if e.metrics != nil {
		e.metrics.SignalsGenerated.WithLabelValues(bot.cfg.ID, string(bot.strat.Kind())).Inc()
	}
	e.notifier.Notify(notify.Event{
		Type: notify.EventSignalGenerated, BotID: bot.cfg.ID, Symbol: sig.Symbol,
		Fields:    map[string]interface{}{"direction": sig.Direction, "confidence": sig.Confidence},
		Timestamp: bar.Timestamp,
	})

	var atr float64
	if snap != nil && snap.HasATR {
		atr = snap.ATR
	}
	vs, checks := bot.risk.Validate(sig, bot.strat.OpenPositions(), atr)
	if vs == nil {
		var reasons []string
		var rule string
		for _, c := range checks {
			if !c.Passed {
				reasons = append(reasons, c.Reason)
				if rule == "" {
					rule = c.Name
				}
			}
		}
		logging.LogRejection(bot.log, sig, reasons)
		if e.metrics != nil {
			e.metrics.SignalsRejected.WithLabelValues(bot.cfg.ID, rule).Inc()
		}
		e.notifier.Notify(notify.Event{
			Type: notify.EventRiskRejected, BotID: bot.cfg.ID, Symbol: sig.Symbol,
			Fields:    map[string]interface{}{"reasons": reasons},
			Timestamp: bar.Timestamp,
		})
		return
	}

	fill, err := e.placeOrder(broker.OrderRequest{
		BotID:     bot.cfg.ID,
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		LotSize:   vs.LotSize,
		Price:     sig.EntryPrice,
		Timestamp: sig.Timestamp,
	})
	if err != nil {
		bot.log.Error().Err(err).Str("symbol", sig.Symbol).Msg("Order rejected by execution client")
		return
	}

	bot.risk.Commit(vs)
	sig.LotSize = fill.LotSize
	if pos := bot.strat.OnFill(sig, fill.Price); pos != nil {
		e.onPositionOpened(bot, pos)
	}
}

// placeOrder pushes the order through the bounded queue and waits for
// the dispatcher's reply.
func (e *Engine) placeOrder(req broker.OrderRequest) (*broker.Fill, error) {
	task := orderTask{req: req, reply: make(chan orderResult, 1)}
	select {
	case <-e.ctx.Done():
		return nil, e.ctx.Err()
	case e.orders <- task:
	}
	select {
	case <-e.ctx.Done():
		return nil, e.ctx.Err()
	case res := <-task.reply:
		if res.err != nil {
			return nil, errors.NewExecutionError(req.Symbol, "place_order", res.err)
		}
		return res.fill, nil
	}
}

func (e *Engine) onPositionOpened(bot *Bot, pos *models.Position) {
	logging.LogPositionOpened(bot.log, pos)
	if e.metrics != nil {
		e.metrics.PositionsOpened.WithLabelValues(bot.cfg.ID).Inc()
	}
	e.notifier.Notify(notify.Event{
		Type: notify.EventPositionOpened, BotID: bot.cfg.ID, Symbol: pos.Symbol,
		Fields: map[string]interface{}{
			"direction": pos.Direction, "entry": pos.EntryPrice, "lot_size": pos.LotSize,
		},
		Timestamp: pos.OpenTime,
	})
}

func (e *Engine) onPositionClosed(bot *Bot, pos *models.Position) {
	bot.risk.RecordClose(pos.Profit)
	logging.LogPositionClosed(bot.log, pos)
	if e.metrics != nil {
		e.metrics.PositionsClosed.WithLabelValues(bot.cfg.ID, string(pos.CloseReason)).Inc()
	}
	e.notifier.Notify(notify.Event{
		Type: notify.EventPositionClosed, BotID: bot.cfg.ID, Symbol: pos.Symbol,
		Fields: map[string]interface{}{
			"profit": pos.Profit, "reason": pos.CloseReason,
		},
		Timestamp: pos.CloseTime,
	})

	if e.store != nil {
		trade := &models.Trade{
			ID:         pos.ID,
			BotID:      bot.cfg.ID,
			StrategyID: pos.StrategyID,
			Symbol:     pos.Symbol,
			Direction:  pos.Direction,
			LotSize:    pos.LotSize,
			EntryPrice: pos.EntryPrice,
			ExitPrice:  pos.ClosePrice,
			OpenTime:   pos.OpenTime,
			CloseTime:  pos.CloseTime,
			Profit:     pos.Profit,
			Reason:     pos.CloseReason,
		}
		if err := e.store.LogTrade(e.ctx, trade); err != nil {
			bot.log.Error().Err(err).Msg("Failed to persist trade")
		}
	}
}

// equity is the balance plus unrealized P&L marked at the bar close.
func (e *Engine) equity(bot *Bot, bar models.Bar) float64 {
	eq := bot.risk.State().Balance
	for _, pos := range bot.strat.OpenPositions() {
		pos.UpdateUnrealized(bar.Close)
		eq += pos.Unrealized
	}
	return eq
}

// checkEmergency halts the bot when a hard risk limit is breached:
// every open position is flattened at the bar close and the strategy
// stops emitting.
func (e *Engine) checkEmergency(bot *Bot, bar models.Bar) {
	stop, reasons := bot.risk.EmergencyStop(bot.strat.OpenPositions())
	if !stop || !bot.strat.IsActive() {
		return
	}

	bot.strat.Stop()
	bot.strat.CloseAll(bar.Close, bar.Timestamp, models.CloseReasonManual)
	for _, pos := range bot.strat.TakeClosed() {
		if err := e.exec.ClosePosition(e.ctx, pos, bar.Close); err != nil {
			bot.log.Error().Err(err).Msg("Failed to flatten position")
		}
		e.onPositionClosed(bot, pos)
	}

	e.notifier.Notify(notify.Event{
		Type: notify.EventEmergencyStop, BotID: bot.cfg.ID, Symbol: bot.cfg.Symbol,
		Fields:    map[string]interface{}{"reasons": reasons},
		Timestamp: bar.Timestamp,
	})
	bot.log.Error().Strs("reasons", reasons).Msg("Emergency stop: bot halted")
}
