package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"algotrader/internal/backtest"
	"algotrader/internal/models"
)

func newBacktestCmd(app *App) *cobra.Command {
	var (
		dataPath   string
		botID      string
		symbol     string
		tf         string
		balance    float64
		slippage   float64
		commission float64
		jsonOut    bool
		compare    bool
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical bars through one bot configuration",
		Long: `Backtest replays a CSV bar series through the bot selected with --bot
and prints the performance report. The replay is deterministic: the
same data and configuration always produce the same report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataPath == "" {
				return fmt.Errorf("--data is required")
			}
			if compare {
				return runComparison(cmd, app, dataPath, symbol, tf, balance, slippage, commission)
			}
			botCfg, err := findBot(app, botID)
			if err != nil {
				return err
			}
			if symbol == "" {
				symbol = botCfg.Symbol
			}
			bars, err := loadBarsCSV(dataPath, symbol, models.Timeframe(tf))
			if err != nil {
				return err
			}

			runner, err := backtest.NewRunner(backtest.Config{
				Bot:            botCfg,
				InitialBalance: balance,
				SlippagePct:    slippage,
				CommissionPct:  commission,
				HistorySize:    app.Config.Engine.HistorySize,
			}, app.Logger)
			if err != nil {
				return err
			}
			res := runner.Run(bars)

			if jsonOut {
				out, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}
			printReport(cmd, botCfg, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "CSV file with bars (timestamp,open,high,low,close,volume)")
	cmd.Flags().StringVar(&botID, "bot", "", "bot id from the configuration (default: first configured bot)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol of the bars (default: the bot's symbol)")
	cmd.Flags().StringVar(&tf, "timeframe", "5m", "timeframe of the bars in --data")
	cmd.Flags().Float64Var(&balance, "balance", 10000, "initial balance")
	cmd.Flags().Float64Var(&slippage, "slippage", 0, "slippage fraction per fill")
	cmd.Flags().Float64Var(&commission, "commission", 0, "commission fraction per side")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output the report as JSON")
	cmd.Flags().BoolVar(&compare, "compare", false, "run every configured bot over the same data and rank them")
	return cmd
}

// runComparison replays the same bar series through every configured bot
// and prints the ranking.
func runComparison(cmd *cobra.Command, app *App, dataPath, symbol, tf string, balance, slippage, commission float64) error {
	if len(app.Config.Bots) == 0 {
		return fmt.Errorf("no bots configured")
	}
	if symbol == "" {
		symbol = app.Config.Bots[0].Symbol
	}
	bars, err := loadBarsCSV(dataPath, symbol, models.Timeframe(tf))
	if err != nil {
		return err
	}

	results := make(map[string]*backtest.Result, len(app.Config.Bots))
	for _, botCfg := range app.Config.Bots {
		runner, err := backtest.NewRunner(backtest.Config{
			Bot:            botCfg,
			InitialBalance: balance,
			SlippagePct:    slippage,
			CommissionPct:  commission,
			HistorySize:    app.Config.Engine.HistorySize,
		}, app.Logger)
		if err != nil {
			return fmt.Errorf("bot %s: %w", botCfg.ID, err)
		}
		results[botCfg.ID] = runner.Run(bars)
	}

	strategies := make(map[string]string, len(app.Config.Bots))
	for _, b := range app.Config.Bots {
		strategies[b.ID] = b.StrategyType
	}

	cmd.Printf("%-12s %-10s %10s %8s %8s %8s %7s %8s\n",
		"BOT", "STRATEGY", "RETURN%", "WIN%", "MAXDD%", "SHARPE", "TRADES", "PF")
	for _, row := range backtest.Compare(results) {
		cmd.Printf("%-12s %-10s %10.2f %8.1f %8.2f %8.3f %7d %8.2f\n",
			row.BotID, strategies[row.BotID], row.TotalReturnPct*100, row.WinRate*100,
			row.MaxDrawdownPct*100, row.SharpeRatio, row.TotalTrades, row.ProfitFactor)
	}
	return nil
}

func findBot(app *App, botID string) (models.BotConfig, error) {
	if len(app.Config.Bots) == 0 {
		return models.BotConfig{}, fmt.Errorf("no bots configured")
	}
	if botID == "" {
		return app.Config.Bots[0], nil
	}
	for _, b := range app.Config.Bots {
		if b.ID == botID {
			return b, nil
		}
	}
	return models.BotConfig{}, fmt.Errorf("bot %q not found in configuration", botID)
}

func printReport(cmd *cobra.Command, bot models.BotConfig, res *backtest.Result) {
	cmd.Printf("Backtest: %s (%s on %s)\n", bot.ID, bot.StrategyType, bot.Symbol)
	cmd.Printf("  Balance:      %.2f -> %.2f\n", res.InitialBalance, res.FinalBalance)
	cmd.Printf("  Return:       %.2f (%.2f%%)\n", res.TotalReturn, res.TotalReturnPct*100)
	cmd.Printf("  Trades:       %d (%d won / %d lost, win rate %.1f%%)\n",
		res.TotalTrades, res.WinningTrades, res.LosingTrades, res.WinRate*100)
	cmd.Printf("  Profit factor: %.2f\n", res.ProfitFactor)
	cmd.Printf("  Avg win/loss:  %.2f / %.2f\n", res.AvgWin, res.AvgLoss)
	cmd.Printf("  Largest win:   %.2f  largest loss: %.2f\n", res.LargestWin, res.LargestLoss)
	cmd.Printf("  Max drawdown:  %.2f (%.2f%%)\n", res.MaxDrawdown, res.MaxDrawdownPct*100)
	cmd.Printf("  Sharpe:        %.3f\n", res.SharpeRatio)
	cmd.Printf("  Recovery:      %.2f  Calmar: %.2f\n", res.RecoveryFactor, res.CalmarRatio)
	cmd.Printf("  Commission:    %.2f\n", res.TotalCommission)
}
