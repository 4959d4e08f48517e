package cmd

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/rustyeddy/midas/config"
	"github.com/rustyeddy/midas/symbol"
	"github.com/spf13/cobra"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "List the symbols in a config file",
	Long: `Print the instrument registry built from a configuration file.

Example:
  midas symbols -f midas.yaml`,
	RunE: runSymbols,
}

var symbolsConfigPath string

func init() {
	rootCmd.AddCommand(symbolsCmd)

	symbolsCmd.Flags().StringVarP(&symbolsConfigPath, "file", "f", "", "path to config file (required)")
	symbolsCmd.MarkFlagRequired("file")
}

func runSymbols(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(symbolsConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	m, err := cfg.SymbolMap()
	if err != nil {
		return err
	}
	writeSymbols(cmd.OutOrStdout(), m)
	return nil
}

func writeSymbols(w io.Writer, m *symbol.Map) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Ticker", "Type", "Exchange", "Currency", "Qty Mult", "Fees", "Init Margin", "Day Session"})
	table.SetAutoFormatHeaders(false)
	for _, s := range m.Symbols() {
		session := ""
		if !s.Session.DayOpen.IsZero() {
			session = s.Session.DayOpen.String() + "-" + s.Session.DayClose.String()
		}
		table.Append([]string{
			fmt.Sprint(s.InstrumentID),
			s.DisplayTicker,
			string(s.Type),
			s.Exchange,
			s.Currency,
			fmt.Sprintf("%g", s.QuantityMultiplier),
			fmt.Sprintf("%.2f", s.Fees),
			fmt.Sprintf("%.2f", s.InitialMargin),
			session,
		})
	}
	table.Render()
}
