package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rustyeddy/midas/config"
	"github.com/rustyeddy/midas/engine"
	"github.com/rustyeddy/midas/journal"
	"github.com/rustyeddy/midas/logging"
	"github.com/rustyeddy/midas/portfolio"
	"github.com/rustyeddy/midas/replay"
	"github.com/rustyeddy/midas/risk"
	"github.com/rustyeddy/midas/strategies"
	"github.com/spf13/cobra"
)

// ErrNoVenue is returned for live sessions: no brokerage connection ships
// with the CLI.
var ErrNoVenue = errors.New("live mode needs a brokerage venue; none is built in")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a session from a config file",
	Long: `Run a trading session using settings from a configuration file.

In backtest mode the bars in data.file are replayed through the strategy
against a simulated broker. Open positions are liquidated at the end.

Registered strategies: ` + strings.Join(strategies.Names(), ", ") + `

Example:
  midas run -f midas.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "file", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.MarkFlagRequired("file")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	closer, err := logging.Configure(cfg.Log)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer closer.Close()

	opts, err := engineOptions(cfg)
	if err != nil {
		return err
	}

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	if j != nil {
		defer j.Close()
		opts.Journal = j
	}

	e, err := engine.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Running %s session %s\n", cfg.Mode, e.RunID())
	fmt.Fprintf(out, "  Strategy: %s\n", cfg.Strategy.Name)
	fmt.Fprintf(out, "  Bars: %d from %s\n\n", len(opts.Bars), cfg.Data.File)

	res, err := e.Run(ctx)
	if err != nil {
		return fmt.Errorf("session %s: %w", res.RunID, err)
	}
	printResult(out, cfg, res)
	return nil
}

func engineOptions(cfg *config.Config) (engine.Options, error) {
	if cfg.Mode == string(engine.Live) {
		return engine.Options{}, ErrNoVenue
	}

	symbols, err := cfg.SymbolMap()
	if err != nil {
		return engine.Options{}, err
	}
	start, end, err := cfg.Window()
	if err != nil {
		return engine.Options{}, err
	}
	pending, err := cfg.PendingTimeout()
	if err != nil {
		return engine.Options{}, err
	}
	bars, err := replay.LoadFile(cfg.Data.File, symbols)
	if err != nil {
		return engine.Options{}, fmt.Errorf("load bars: %w", err)
	}

	return engine.Options{
		Mode:           engine.Mode(cfg.Mode),
		RunID:          cfg.SessionID,
		Symbols:        symbols,
		StrategyName:   cfg.Strategy.Name,
		StrategyParams: cfg.Strategy.Params,
		Capital:        cfg.Capital,
		Currency:       cfg.Currency,
		Portfolio:      portfolio.Config{PendingTimeout: pending},
		Risk: risk.Policy{
			MaxMarginPct:     cfg.Risk.MaxMarginPct,
			MaxOpenPositions: cfg.Risk.MaxOpenPositions,
			MaxDrawdownPct:   cfg.Risk.MaxDrawdownPct,
		},
		Dataset:               cfg.Data.File,
		Bars:                  bars,
		Start:                 start,
		End:                   end,
		LiquidateOnMarginCall: cfg.Risk.LiquidateOnMarginCall,
	}, nil
}

// openJournal returns nil when journaling is off.
func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "csv":
		return journal.NewCSV(jc.TradesFile, jc.EquityFile, jc.PositionsFile)
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	}
	return nil, nil
}

func printResult(w io.Writer, cfg *config.Config, res engine.Result) {
	a := res.Account
	fmt.Fprintf(w, "Session %s complete in %s\n", res.RunID, res.Finished.Sub(res.Started).Round(time.Millisecond))

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAutoFormatHeaders(false)
	table.AppendBulk([][]string{
		{"Starting Capital", fmt.Sprintf("%.2f", cfg.Capital)},
		{"Net Liquidation", fmt.Sprintf("%.2f", a.NetLiquidation)},
		{"Cash", fmt.Sprintf("%.2f", a.TotalCashBalance)},
		{"Profit/Loss", fmt.Sprintf("%.2f", a.NetLiquidation-cfg.Capital)},
		{"Open Positions", fmt.Sprint(res.Positions)},
		{"Peak Equity", fmt.Sprintf("%.2f", res.Risk.PeakEquity)},
		{"Drawdown", fmt.Sprintf("%.2f%%", res.Risk.DrawdownPct*100)},
	})
	table.Render()

	switch cfg.Journal.Type {
	case "csv":
		fmt.Fprintf(w, "\nResults saved to:\n  - %s\n  - %s\n", cfg.Journal.TradesFile, cfg.Journal.EquityFile)
	case "sqlite":
		fmt.Fprintf(w, "\nResults saved to: %s (run %s)\n", cfg.Journal.DBPath, res.RunID)
	}
}
