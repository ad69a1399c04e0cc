package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBotsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "bots",
		Short: "List the configured bots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(app.Config.Bots) == 0 {
				return fmt.Errorf("no bots configured")
			}
			cmd.Printf("%-12s %-10s %-12s %-6s\n", "ID", "STRATEGY", "SYMBOL", "TF")
			for _, b := range app.Config.Bots {
				cmd.Printf("%-12s %-10s %-12s %-6s\n", b.ID, b.StrategyType, b.Symbol, b.Timeframe)
			}
			return nil
		},
	}
}
