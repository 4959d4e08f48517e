package broker

import (
	"context"
	"fmt"

	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/orders"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Runner feeds ORDER and CANCEL_ORDER messages to a Broker.
type Runner struct {
	broker  Broker
	orders  *bus.Queue
	cancels *bus.Queue
	log     *log.Entry
}

func NewRunner(b Broker, mb *bus.Bus) *Runner {
	return &Runner{
		broker:  b,
		orders:  mb.Subscribe(bus.Order),
		cancels: mb.Subscribe(bus.CancelOrder),
		log:     log.WithField("component", "broker"),
	}
}

func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("broker runner running")
	defer r.log.Info("broker runner stopped")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bus.Consume(gctx, r.orders, func(msg any) error {
			ev, ok := msg.(orders.OrderEvent)
			if !ok {
				r.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("unexpected order message")
				return nil
			}
			if err := r.broker.PlaceOrder(gctx, ev); err != nil {
				return fmt.Errorf("place order %s: %w", ev, err)
			}
			return nil
		})
	})
	g.Go(func() error {
		return bus.Consume(gctx, r.cancels, func(msg any) error {
			ev, ok := msg.(orders.CancelEvent)
			if !ok {
				r.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("unexpected cancel message")
				return nil
			}
			if err := r.broker.CancelOrder(gctx, ev.PermID); err != nil {
				r.log.WithError(err).WithField("perm_id", ev.PermID).Warn("cancel order")
			}
			return nil
		})
	})
	return g.Wait()
}
