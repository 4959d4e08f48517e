package portfolio

import (
	"context"
	"time"

	"github.com/rustyeddy/midas/broker"
	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/orders"
	"github.com/rustyeddy/midas/position"
	"github.com/rustyeddy/midas/symbol"
	"golang.org/x/sync/errgroup"
)

const DefaultPendingTimeout = 30 * time.Second

type Config struct {
	// PendingTimeout bounds how long a filled order keeps its instrument
	// blocked while waiting for the position update. Zero never expires.
	PendingTimeout time.Duration
}

// Server is the portfolio state: positions, active orders and the account.
// One instance is built at startup and handed to whatever needs it.
type Server struct {
	Positions *PositionManager
	Orders    *OrderManager
	Account   *AccountManager
}

func NewServer(symbols *symbol.Map, b *bus.Bus, cfg Config) *Server {
	pending := newPendingSet(cfg.PendingTimeout)
	return &Server{
		Positions: newPositionManager(symbols, pending, b),
		Orders:    newOrderManager(pending, b),
		Account:   newAccountManager(b),
	}
}

// Run starts one goroutine per manager and waits for all of them. The first
// error cancels the others.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Positions.Run(gctx) })
	g.Go(func() error { return s.Orders.Run(gctx) })
	g.Go(func() error { return s.Account.Run(gctx) })
	return g.Wait()
}

func (s *Server) Capital() float64 {
	return s.Account.Capital()
}

func (s *Server) ActiveOrderTickers() []int {
	return s.Orders.ActiveOrderTickers()
}

func (s *Server) GetPositions() map[int]position.Position {
	return s.Positions.Positions()
}

func (s *Server) GetActiveOrders() map[int]orders.ActiveOrder {
	return s.Orders.ActiveOrders()
}

func (s *Server) GetAccount() broker.Account {
	return s.Account.Account()
}
