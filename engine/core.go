package engine

import (
	"context"
	"fmt"

	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/execution"
	"github.com/rustyeddy/midas/journal"
	"github.com/rustyeddy/midas/market"
	"github.com/rustyeddy/midas/portfolio"
	"github.com/rustyeddy/midas/risk"
	"github.com/rustyeddy/midas/strategies"
	"golang.org/x/sync/errgroup"
)

// CoreEngine holds the order book, the portfolio and the decision making:
// strategy, execution manager and the read-only observers.
type CoreEngine struct {
	Books     *market.BookManager
	Portfolio *portfolio.Server
	Strategy  *strategies.Runner
	Execution *execution.Manager
	Risk      *risk.Monitor
	// Recorder is nil when no journal is configured.
	Recorder *journal.Recorder
}

func newCoreEngine(opts *Options, book *market.OrderBook, b *bus.Bus) (*CoreEngine, error) {
	c := &CoreEngine{
		Books:     market.NewBookManager(book, b, opts.Symbols.InstrumentIDs()),
		Portfolio: portfolio.NewServer(opts.Symbols, b, opts.Portfolio),
		Risk:      risk.NewMonitor(opts.Risk, b),
	}
	c.Execution = execution.NewManager(opts.Symbols, c.Portfolio, book, b)

	strat, err := strategies.New(opts.StrategyName, strategies.Deps{
		Symbols:   opts.Symbols,
		Positions: c.Portfolio,
	}, opts.StrategyParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	c.Strategy = strategies.NewRunner(strat, b)

	if opts.Journal != nil {
		c.Recorder = journal.NewRecorder(opts.Journal, opts.RunID, b)
	}
	return c, nil
}

func (c *CoreEngine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Books.Run(gctx) })
	g.Go(func() error { return c.Portfolio.Run(gctx) })
	g.Go(func() error { return c.Strategy.Run(gctx) })
	g.Go(func() error { return c.Execution.Run(gctx) })
	g.Go(func() error { return c.Risk.Run(gctx) })
	if c.Recorder != nil {
		g.Go(func() error { return c.Recorder.Run(gctx) })
	}
	return g.Wait()
}
