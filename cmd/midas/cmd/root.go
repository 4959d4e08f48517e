package cmd

import (
	"github.com/rustyeddy/midas/config"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "midas",
	Short: "A portfolio and order state engine for algorithmic trading",
	Long: `Midas runs a trading strategy against a portfolio, either as a backtest
over historical bars with a simulated broker or live against a brokerage.

It provides tools for:
  - Running backtests from a configuration file
  - Generating and validating configuration files
  - Inspecting the configured symbols
  - Querying the trade journal`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadEnv(envFile)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "environment file with MIDAS_* overrides")
}
