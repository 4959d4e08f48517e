package cmd

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/rustyeddy/midas/journal"
	"github.com/rustyeddy/midas/pkg/id"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display journal records from a SQLite database.

Subcommands:
  runs   - List recorded runs, newest first
  trades - List the trades of a run

Examples:
  midas journal runs --db midas.sqlite
  midas journal trades --db midas.sqlite --run 01HQ...`,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List the trades of a run",
	Args:  cobra.NoArgs,
	RunE:  runJournalTrades,
}

var (
	journalDBPath string
	journalRunID  string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalTradesCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./midas.sqlite", "path to SQLite journal DB")
	journalTradesCmd.Flags().StringVarP(&journalRunID, "run", "r", "", "run id (defaults to the latest run)")
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	runs, err := j.ListRuns()
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Run", "Stamped", "Created", "Mode", "Strategy", "Dataset", "Capital"})
	table.SetAutoFormatHeaders(false)
	for _, r := range runs {
		// generated ids carry the session start; named sessions do not
		stamped := "-"
		if t, err := id.Time(r.RunID); err == nil {
			stamped = t.Format("2006-01-02 15:04")
		}
		table.Append([]string{
			r.RunID,
			stamped,
			r.Created.Format("2006-01-02 15:04:05"),
			r.Mode,
			r.Strategy,
			r.Dataset,
			fmt.Sprintf("%.2f %s", r.Capital, r.Currency),
		})
	}
	table.Render()
	return nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	runID := journalRunID
	if runID == "" {
		runs, err := j.ListRuns()
		if err != nil {
			return fmt.Errorf("query runs: %w", err)
		}
		if len(runs) == 0 {
			return fmt.Errorf("no runs in %s: %w", journalDBPath, journal.ErrNotFound)
		}
		runID = runs[0].RunID
	}

	trades, err := j.ListTrades(runID)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Run %s: %d trades\n", runID, len(trades))
	writeTrades(cmd.OutOrStdout(), trades)
	return nil
}

func writeTrades(w io.Writer, trades []journal.TradeRecord) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time", "Trade", "Leg", "Ticker", "Action", "Quantity", "Price", "Cost", "Fees"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAutoFormatHeaders(false)
	for _, t := range trades {
		table.Append([]string{
			t.Time.Format("2006-01-02 15:04:05"),
			fmt.Sprint(t.TradeID),
			fmt.Sprint(t.LegID),
			t.Ticker,
			t.Action,
			fmt.Sprintf("%g", t.Quantity),
			fmt.Sprintf("%.4f", t.AvgPrice),
			fmt.Sprintf("%.2f", t.TradeCost),
			fmt.Sprintf("%.2f", t.Fees),
		})
	}
	table.Render()
}
