package strategies

import (
	"context"

	"github.com/rustyeddy/midas/market"
	"github.com/rustyeddy/midas/orders"
)

// NoopStrategy does nothing.
type NoopStrategy struct{}

func newNoop(Deps, map[string]any) (Strategy, error) {
	return NoopStrategy{}, nil
}

func (NoopStrategy) Prepare(context.Context) error { return nil }

func (NoopStrategy) HandleMarketData(context.Context, market.Event) ([]orders.SignalInstruction, error) {
	return nil, nil
}

func (NoopStrategy) StrategyData() []Record { return nil }
