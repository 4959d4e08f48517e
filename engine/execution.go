package engine

import (
	"context"

	"github.com/rustyeddy/midas/broker"
	"github.com/rustyeddy/midas/broker/live"
	"github.com/rustyeddy/midas/broker/sim"
	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/market"
	"golang.org/x/sync/errgroup"
)

// ExecutionEngine runs the broker: the simulated one in backtests, the
// live adapter otherwise. Exactly one of Sim and Live is set.
type ExecutionEngine struct {
	Broker broker.Broker
	Sim    *sim.Engine
	Live   *live.Adapter

	runner *broker.Runner
}

func newExecutionEngine(opts *Options, book *market.OrderBook, b *bus.Bus) (*ExecutionEngine, error) {
	x := &ExecutionEngine{}
	switch opts.Mode {
	case Backtest:
		x.Sim = sim.NewEngine(sim.Config{
			Capital:               opts.Capital,
			Currency:              opts.Currency,
			LiquidateOnMarginCall: opts.LiquidateOnMarginCall,
		}, opts.Symbols, book, b)
		x.Broker = x.Sim
	case Live:
		x.Live = live.NewAdapter(opts.Venue, opts.Symbols, b, opts.Live)
		x.Broker = x.Live
	}
	x.runner = broker.NewRunner(x.Broker, b)
	return x, nil
}

func (x *ExecutionEngine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return x.runner.Run(gctx) })
	if x.Sim != nil {
		g.Go(func() error { return x.Sim.Run(gctx) })
	}
	if x.Live != nil {
		g.Go(func() error { return x.Live.Run(gctx) })
	}
	return g.Wait()
}
