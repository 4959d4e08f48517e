package strategies

import (
	"context"
	"fmt"

	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/market"
	"github.com/rustyeddy/midas/orders"
	log "github.com/sirupsen/logrus"
)

// Runner feeds ORDER_BOOK events to a Strategy and publishes the resulting
// instructions as one SignalEvent on SIGNAL.
type Runner struct {
	strategy Strategy
	bus      *bus.Bus
	queue    *bus.Queue
	log      *log.Entry
}

func NewRunner(s Strategy, b *bus.Bus) *Runner {
	return &Runner{
		strategy: s,
		bus:      b,
		queue:    b.Subscribe(bus.OrderBook),
		log:      log.WithField("component", "strategy"),
	}
}

// Run prepares the strategy and handles market events until shutdown. A
// strategy error stops the loop.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.strategy.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare strategy: %w", err)
	}
	r.log.Info("strategy running")
	defer r.log.Info("strategy stopped")

	return bus.Consume(ctx, r.queue, func(msg any) error {
		ev, ok := msg.(market.Event)
		if !ok {
			r.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("unexpected market message")
			return nil
		}
		return r.Handle(ctx, ev)
	})
}

func (r *Runner) Handle(ctx context.Context, ev market.Event) error {
	instructions, err := r.strategy.HandleMarketData(ctx, ev)
	if err != nil {
		return fmt.Errorf("handle market data: %w", err)
	}
	if len(instructions) == 0 {
		return nil
	}
	sig, err := orders.NewSignalEvent(ev.Timestamp, instructions)
	if err != nil {
		return err
	}
	r.log.WithField("legs", len(instructions)).Debug("signal")
	r.bus.Publish(bus.Signal, sig)
	return nil
}
