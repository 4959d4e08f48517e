// Package live adapts a brokerage connection to the bus. The wire protocol
// lives behind the Venue interface.
package live

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rustyeddy/midas/broker"
	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/orders"
	"github.com/rustyeddy/midas/symbol"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	ErrNotConnected = errors.New("venue not connected")
	ErrVenueClosed  = errors.New("venue closed")
	ErrUnknownFill  = errors.New("fill for unknown order")
)

const (
	DefaultOrdersPerSecond = 5
	DefaultBurst           = 1

	// placedRetention is how long a finished order is kept for fills that
	// trail its final status.
	placedRetention = time.Minute
)

// Venue is a brokerage connection.
//
// Events delivers what the brokerage reports: orders.ActiveOrder,
// broker.PositionUpdate, broker.Account, Fill and broker.ConnectionEvent.
// The channel is closed when the venue shuts down.
type Venue interface {
	Connect(ctx context.Context) error
	Submit(ctx context.Context, req OrderRequest) (permID int, err error)
	Cancel(ctx context.Context, permID int) error
	Snapshot(ctx context.Context) (Snapshot, error)
	Events() <-chan any
	Close() error
}

// OrderRequest is an order in brokerage terms.
type OrderRequest struct {
	RequestID  string
	Ticker     string
	SecType    symbol.SecurityType
	Exchange   string
	Currency   string
	Side       string
	OrderType  orders.OrderType
	Quantity   float64
	LimitPrice float64
	AuxPrice   float64
}

// Fill is an execution reported by the venue.
type Fill struct {
	PermID    int
	Timestamp time.Time
	Quantity  float64
	Price     float64
	Fees      float64
}

// Snapshot is the full account state, requested after every (re)connect.
type Snapshot struct {
	Account   broker.Account
	Positions []broker.PositionUpdate
	Orders    []orders.ActiveOrder
}

type Config struct {
	OrdersPerSecond float64
	Burst           int
}

// Adapter implements broker.Broker over a Venue.
type Adapter struct {
	venue   Venue
	symbols *symbol.Map
	bus     *bus.Bus
	limiter *rate.Limiter

	mu        sync.Mutex
	connected bool
	placed    map[int]*placedOrder
	working   map[int]struct{}
	open      map[int]struct{}
	now       func() time.Time

	log *log.Entry
}

// placedOrder is an order this adapter submitted. It is forgotten once it
// is done and its fills cover the order, or placedRetention after it is done.
type placedOrder struct {
	event  orders.OrderEvent
	filled float64
	doneAt time.Time
}

func (p *placedOrder) settled(now time.Time) bool {
	if p.doneAt.IsZero() {
		return false
	}
	return p.filled >= math.Abs(p.event.Order.TotalQuantity) || now.Sub(p.doneAt) > placedRetention
}

func NewAdapter(v Venue, symbols *symbol.Map, b *bus.Bus, cfg Config) *Adapter {
	if cfg.OrdersPerSecond <= 0 {
		cfg.OrdersPerSecond = DefaultOrdersPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	return &Adapter{
		venue:   v,
		symbols: symbols,
		bus:     b,
		limiter: rate.NewLimiter(rate.Limit(cfg.OrdersPerSecond), cfg.Burst),
		placed:  make(map[int]*placedOrder),
		working: make(map[int]struct{}),
		open:    make(map[int]struct{}),
		now:     time.Now,
		log:     log.WithField("component", "live-broker"),
	}
}

// Run connects, publishes the initial snapshot and forwards venue events
// until ctx is cancelled or the venue closes.
func (a *Adapter) Run(ctx context.Context) error {
	a.log.Info("live broker connecting")
	defer a.log.Info("live broker stopped")
	defer a.venue.Close()

	if err := a.venue.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	a.setConnected(true, "connect")
	a.bus.Publish(bus.Connection, broker.ConnectionEvent{Timestamp: time.Now(), Connected: true, Reason: "connect"})
	if err := a.refresh(ctx); err != nil {
		return err
	}

	events := a.venue.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrVenueClosed
			}
			if err := a.handle(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (a *Adapter) handle(ctx context.Context, msg any) error {
	switch v := msg.(type) {
	case broker.ConnectionEvent:
		was := a.isConnected()
		a.setConnected(v.Connected, v.Reason)
		a.bus.Publish(bus.Connection, v)
		if v.Connected && !was {
			return a.refresh(ctx)
		}
	case orders.ActiveOrder:
		o := a.withInstrument(v)
		a.trackOrder(o)
		a.bus.Publish(bus.OrderUpdate, o)
	case broker.PositionUpdate:
		a.trackPosition(v)
		a.bus.Publish(bus.PositionUpdate, v)
	case broker.Account:
		a.bus.Publish(bus.AccountUpdate, v)
	case Fill:
		ev, err := a.execution(v)
		if err != nil {
			return fmt.Errorf("fill: %w", err)
		}
		a.bus.Publish(bus.Trade, ev)
	default:
		a.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("unexpected venue message")
	}
	return nil
}

// PlaceOrder submits ev, waiting for the outbound rate limit.
func (a *Adapter) PlaceOrder(ctx context.Context, ev orders.OrderEvent) error {
	if ev.Symbol == nil {
		return fmt.Errorf("place order: %w: missing symbol", orders.ErrInvalidOrder)
	}
	if _, err := a.symbols.ByID(ev.Symbol.InstrumentID); err != nil {
		return fmt.Errorf("place order: %w", err)
	}
	if !a.isConnected() {
		return fmt.Errorf("place order %s: %w", ev.String(), ErrNotConnected)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("place order %s: %w", ev.String(), err)
	}

	req := OrderRequest{
		RequestID:  uuid.NewString(),
		Ticker:     ev.Symbol.BrokerTicker,
		SecType:    ev.Symbol.Type,
		Exchange:   ev.Symbol.Exchange,
		Currency:   ev.Symbol.Currency,
		Side:       ev.Order.Side,
		OrderType:  ev.Order.Type,
		Quantity:   ev.Order.TotalQuantity,
		LimitPrice: ev.Order.LimitPrice,
		AuxPrice:   ev.Order.AuxPrice,
	}
	permID, err := a.venue.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("place order %s: %w", ev.String(), err)
	}

	a.mu.Lock()
	a.placed[permID] = &placedOrder{event: ev}
	a.working[permID] = struct{}{}
	a.mu.Unlock()

	a.log.WithFields(log.Fields{
		"perm_id":    permID,
		"request_id": req.RequestID,
		"order":      ev.String(),
	}).Info("order submitted")
	return nil
}

func (a *Adapter) CancelOrder(ctx context.Context, permID int) error {
	if !a.isConnected() {
		return fmt.Errorf("cancel order %d: %w", permID, ErrNotConnected)
	}
	if err := a.venue.Cancel(ctx, permID); err != nil {
		return fmt.Errorf("cancel order %d: %w", permID, err)
	}
	return nil
}

// refresh republishes the venue's account, positions and orders. Positions
// published earlier but missing from the snapshot are closed, and working
// orders missing from it are reported cancelled.
func (a *Adapter) refresh(ctx context.Context) error {
	snap, err := a.venue.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	a.bus.Publish(bus.AccountUpdate, snap.Account)

	seen := make(map[int]struct{}, len(snap.Positions))
	for _, p := range snap.Positions {
		seen[p.InstrumentID] = struct{}{}
		a.trackPosition(p)
		a.bus.Publish(bus.PositionUpdate, p)
	}
	for _, id := range a.openInstruments() {
		if _, ok := seen[id]; ok {
			continue
		}
		closed := broker.PositionUpdate{Timestamp: snap.Account.Timestamp, InstrumentID: id}
		a.trackPosition(closed)
		a.bus.Publish(bus.PositionUpdate, closed)
	}

	listed := make(map[int]struct{}, len(snap.Orders))
	for _, o := range snap.Orders {
		listed[o.PermID] = struct{}{}
		o = a.withInstrument(o)
		a.trackOrder(o)
		a.bus.Publish(bus.OrderUpdate, o)
	}
	for _, perm := range a.workingOrders() {
		if _, ok := listed[perm]; ok {
			continue
		}
		gone := a.withInstrument(orders.ActiveOrder{
			PermID:    perm,
			Status:    orders.Cancelled,
			Timestamp: snap.Account.Timestamp,
		})
		a.log.WithField("perm_id", perm).Warn("working order missing from snapshot")
		a.trackOrder(gone)
		a.bus.Publish(bus.OrderUpdate, gone)
	}

	a.log.WithFields(log.Fields{
		"positions": len(snap.Positions),
		"orders":    len(snap.Orders),
	}).Info("snapshot refreshed")
	return nil
}

func (a *Adapter) execution(f Fill) (broker.ExecutionEvent, error) {
	a.mu.Lock()
	po, ok := a.placed[f.PermID]
	var ev orders.OrderEvent
	if ok {
		ev = po.event
		po.filled += math.Abs(f.Quantity)
		if po.settled(a.now()) {
			delete(a.placed, f.PermID)
		}
	}
	a.mu.Unlock()
	if !ok {
		return broker.ExecutionEvent{}, fmt.Errorf("%w: %d", ErrUnknownFill, f.PermID)
	}

	sym := ev.Symbol
	qty := f.Quantity
	if ev.Order.Side == "SELL" && qty > 0 {
		qty = -qty
	}
	trade, err := broker.NewTrade(broker.Trade{
		Timestamp:    f.Timestamp,
		TradeID:      ev.TradeID,
		LegID:        ev.LegID,
		Instrument:   sym.InstrumentID,
		SecurityType: sym.Type,
		Quantity:     qty,
		AvgPrice:     f.Price,
		TradeValue:   sym.Value(qty, f.Price),
		TradeCost:    sym.Cost(qty, f.Price),
		Action:       ev.Action,
		Fees:         -f.Fees,
	})
	if err != nil {
		return broker.ExecutionEvent{}, err
	}
	return broker.ExecutionEvent{Timestamp: f.Timestamp, Trade: trade, Action: ev.Action, Symbol: sym}, nil
}

// withInstrument fills in the instrument for orders this adapter placed.
func (a *Adapter) withInstrument(o orders.ActiveOrder) orders.ActiveOrder {
	if o.Instrument != nil {
		return o
	}
	a.mu.Lock()
	po, ok := a.placed[o.PermID]
	a.mu.Unlock()
	if ok {
		o.Instrument = orders.Ptr(po.event.Symbol.InstrumentID)
	}
	return o
}

// trackOrder follows the working set and forgets finished orders. It runs
// after withInstrument so the final status is still enriched.
func (a *Adapter) trackOrder(o orders.ActiveOrder) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if o.Status.Done() {
		delete(a.working, o.PermID)
		if po, ok := a.placed[o.PermID]; ok && po.doneAt.IsZero() {
			po.doneAt = now
		}
	} else if o.Status != "" {
		a.working[o.PermID] = struct{}{}
	}
	for perm, po := range a.placed {
		if po.settled(now) {
			delete(a.placed, perm)
		}
	}
}

func (a *Adapter) workingOrders() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int, 0, len(a.working))
	for k := range a.working {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func (a *Adapter) trackPosition(p broker.PositionUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p.Position.Quantity == 0 {
		delete(a.open, p.InstrumentID)
		return
	}
	a.open[p.InstrumentID] = struct{}{}
}

func (a *Adapter) openInstruments() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int, 0, len(a.open))
	for k := range a.open {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func (a *Adapter) setConnected(connected bool, reason string) {
	a.mu.Lock()
	a.connected = connected
	a.mu.Unlock()

	entry := a.log.WithField("reason", reason)
	if connected {
		entry.Info("venue connected")
	} else {
		entry.Warn("venue disconnected")
	}
}

func (a *Adapter) isConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}
