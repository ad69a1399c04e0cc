package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"algotrader/internal/broker"
	"algotrader/internal/engine"
	"algotrader/internal/metrics"
	"algotrader/internal/models"
	"algotrader/internal/notify"
	"algotrader/internal/store"
)

func newRunCmd(app *App) *cobra.Command {
	var (
		dataPath string
		symbol   string
		tf       string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured bots over a bar feed",
		Long: `Run starts every bot from the configuration and replays the bar feed
from the given CSV file through the engine, executing against the paper
broker. The run stops at the end of the feed or on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(app.Config.Bots) == 0 {
				return fmt.Errorf("no bots configured")
			}
			if dataPath == "" {
				return fmt.Errorf("--data is required")
			}
			if symbol == "" {
				symbol = app.Config.Bots[0].Symbol
			}
			bars, err := loadBarsCSV(dataPath, symbol, models.Timeframe(tf))
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(app.Config.Database.Path)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()
			if err := st.SaveBars(cmd.Context(), bars); err != nil {
				app.Logger.Warn().Err(err).Msg("Failed to cache bars")
			}

			var set *metrics.Set
			if app.Config.Metrics.Enabled {
				set = metrics.NewSet()
				go func() {
					srv := &http.Server{Addr: app.Config.Metrics.Listen, Handler: set.Handler()}
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						app.Logger.Error().Err(err).Msg("Metrics server failed")
					}
				}()
				app.Logger.Info().Str("listen", app.Config.Metrics.Listen).Msg("Metrics endpoint up")
			}

			eng := engine.New(engine.Config{
				OrderQueueSize: app.Config.Engine.OrderQueueSize,
				Dispatchers:    app.Config.Engine.Dispatchers,
				BarBuffer:      app.Config.Engine.BarBuffer,
				HistorySize:    app.Config.Engine.HistorySize,
			}, engine.Deps{
				Exec: broker.NewPaperBroker(broker.PaperBrokerConfig{
					SlippagePct: app.Config.Execution.SlippagePct,
				}),
				Store:    st,
				Notifier: notify.NewLogNotifier(app.Logger),
				Metrics:  set,
				Logger:   app.Logger,
			})

			for _, botCfg := range app.Config.Bots {
				if err := eng.AddBot(botCfg); err != nil {
					return err
				}
			}
			if err := eng.StartAll(); err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		feed:
			for _, bar := range bars {
				select {
				case sig := <-sigCh:
					app.Logger.Info().Str("signal", sig.String()).Msg("Interrupted, shutting down")
					break feed
				default:
					eng.OnBar(bar)
				}
			}

			// Let the bots drain their buffers before stopping.
			time.Sleep(200 * time.Millisecond)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := eng.Shutdown(ctx); err != nil {
				return err
			}

			for _, status := range eng.Statuses() {
				printStatus(cmd, status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "CSV file with bars (timestamp,open,high,low,close,volume)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol of the bars in --data (default: the first bot's symbol)")
	cmd.Flags().StringVar(&tf, "timeframe", "5m", "timeframe of the bars in --data")
	return cmd
}

func printStatus(cmd *cobra.Command, s engine.BotStatus) {
	m := s.Metrics
	cmd.Printf("%-12s %-8s %-10s %-10s trades=%d winrate=%.1f%% pf=%.2f equity=%.2f\n",
		s.ID, s.Strategy, s.Symbol, s.State,
		m.TotalTrades, m.WinRate*100, m.ProfitFactor, s.Equity)
}
