package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stratsim",
	Short: "An event-driven trading strategy simulator",
	Long: `Stratsim replays historical OHLCV bars through a strategy and accounts for
every decision: stop resolution, risk sizing, execution costs, margin, and
forced liquidation.

It provides tools for:
  - Backtesting strategies against bar data with intent-based stops
  - Risk-based position sizing with margin-aware scaling
  - Deterministic execution cost modeling (spread, fees, liquidity impact)
  - Decision, fill, and equity journaling to SQLite or CSV`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
