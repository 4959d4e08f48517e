// Package sim is a deterministic broker for backtests. Fills come from the
// order book, adjusted for slippage and commission, and are reported on the
// bus the same way a live broker reports them.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/midas/broker"
	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/market"
	"github.com/rustyeddy/midas/orders"
	"github.com/rustyeddy/midas/pkg/id"
	"github.com/rustyeddy/midas/position"
	"github.com/rustyeddy/midas/symbol"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNoPosition    = errors.New("no position")
)

type Config struct {
	Capital  float64
	Currency string
	// AccountID tags every order update. A ULID is generated when empty.
	AccountID string
	// LiquidateOnMarginCall closes the worst positions at end of day until
	// the margin call clears.
	LiquidateOnMarginCall bool
}

// Engine implements broker.Broker against the order book.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	cash      float64
	positions map[int]*position.Position
	resting   map[int]*restingOrder
	lastTrade map[int]broker.Trade
	account   broker.Account
	nextID    int

	symbols *symbol.Map
	book    *market.OrderBook
	bus     *bus.Bus
	bookQ   *bus.Queue
	eodQ    *bus.Queue
	log     *log.Entry
}

func NewEngine(cfg Config, symbols *symbol.Map, book *market.OrderBook, b *bus.Bus) *Engine {
	if cfg.AccountID == "" {
		cfg.AccountID = id.New()
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	e := &Engine{
		cfg:       cfg,
		cash:      cfg.Capital,
		positions: make(map[int]*position.Position),
		resting:   make(map[int]*restingOrder),
		lastTrade: make(map[int]broker.Trade),
		nextID:    1,
		symbols:   symbols,
		book:      book,
		bus:       b,
		bookQ:     b.Subscribe(bus.OrderBook),
		eodQ:      b.Subscribe(bus.EODEvent),
		log:       log.WithFields(log.Fields{"component": "sim-broker", "account": cfg.AccountID}),
	}
	e.recomputeAccountLocked(time.Time{})
	return e
}

// Run triggers resting orders on book updates and marks to market at end
// of day until ctx is cancelled. The opening account is not published
// here; call PublishAccount before market data starts.
func (e *Engine) Run(ctx context.Context) error {
	e.log.WithField("capital", e.cfg.Capital).Info("sim broker running")
	defer e.log.Info("sim broker stopped")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bus.Consume(gctx, e.bookQ, func(msg any) error {
			ev, ok := msg.(market.Event)
			if !ok {
				return nil
			}
			return e.UpdatePrice(ev)
		})
	})
	g.Go(func() error {
		return bus.Consume(gctx, e.eodQ, func(msg any) error {
			ev, ok := msg.(market.EODEvent)
			if !ok {
				return nil
			}
			return e.EndOfDay(ev.Timestamp)
		})
	})
	return g.Wait()
}

// PublishAccount sends the current account snapshot.
func (e *Engine) PublishAccount() {
	e.mu.Lock()
	a := e.account
	e.mu.Unlock()
	e.bus.Publish(bus.AccountUpdate, a)
}

func (e *Engine) Account() broker.Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.account
}

// Positions returns a copy of the open positions.
func (e *Engine) Positions() map[int]position.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int]position.Position, len(e.positions))
	for k, p := range e.positions {
		out[k] = *p
	}
	return out
}

// PlaceOrder fills market orders immediately. Limit and stop orders rest
// until the book reaches them.
func (e *Engine) PlaceOrder(ctx context.Context, ev orders.OrderEvent) error {
	if ev.Symbol == nil {
		return fmt.Errorf("place order: %w: missing symbol", orders.ErrInvalidOrder)
	}
	if _, err := e.symbols.ByID(ev.Symbol.InstrumentID); err != nil {
		return fmt.Errorf("place order: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ro := &restingOrder{PermID: e.nextID, Event: ev, Submitted: ev.Timestamp}
	e.nextID++

	e.publishOrderLocked(ro, orders.Submitted, ev.Timestamp, nil)

	if ev.Order.Type == orders.Market {
		return e.fillLocked(ro)
	}

	price, err := e.book.Price(ro.instrument())
	if err == nil && ro.triggered(price) {
		return e.fillLocked(ro)
	}
	e.resting[ro.PermID] = ro
	e.log.WithFields(log.Fields{"perm_id": ro.PermID, "order": ev.String()}).Debug("order resting")
	return nil
}

// CancelOrder cancels a resting order.
func (e *Engine) CancelOrder(ctx context.Context, permID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ro, ok := e.resting[permID]
	if !ok {
		return fmt.Errorf("cancel order: %w: %d", ErrOrderNotFound, permID)
	}
	delete(e.resting, permID)
	e.publishOrderLocked(ro, orders.Cancelled, e.book.LastUpdated(), nil)
	return nil
}

// UpdatePrice fills resting orders for the event's instrument that the new
// price reaches, oldest first.
func (e *Engine) UpdatePrice(ev market.Event) error {
	if ev.Data == nil {
		return nil
	}
	instrument := ev.Data.ID()
	price := ev.Data.Pricing()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ro := range e.restingLocked() {
		if ro.instrument() != instrument || !ro.triggered(price) {
			continue
		}
		delete(e.resting, ro.PermID)
		if err := e.fillLocked(ro); err != nil {
			return err
		}
	}
	return nil
}

// EndOfDay marks every position to the book, republishes positions and the
// account, then checks for a margin call.
func (e *Engine) EndOfDay(ts time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.revalueLocked(ts); err != nil {
		return err
	}
	e.log.WithFields(log.Fields{
		"net_liquidation": fmt.Sprintf("%.2f", e.account.NetLiquidation),
		"unrealized":      fmt.Sprintf("%.2f", e.account.UnrealizedPnL),
	}).Info("account marked to market")

	if !e.account.CheckMarginCall() {
		return nil
	}
	e.log.WithFields(log.Fields{
		"excess_liquidity": fmt.Sprintf("%.2f", e.account.ExcessLiquidity),
		"maint_margin":     fmt.Sprintf("%.2f", e.account.FullMaintMarginReq),
	}).Warn("margin call")

	if !e.cfg.LiquidateOnMarginCall {
		return nil
	}
	return e.enforceMarginLocked()
}

// Liquidate closes every open position at the last book price. It is used
// at the end of a backtest so the account reflects realized results.
func (e *Engine) Liquidate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ro := range e.restingLocked() {
		delete(e.resting, ro.PermID)
		e.publishOrderLocked(ro, orders.Cancelled, e.book.LastUpdated(), nil)
	}

	for _, instrument := range e.instrumentsLocked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.closePositionLocked(instrument); err != nil {
			return err
		}
	}
	e.log.WithField("net_liquidation", fmt.Sprintf("%.2f", e.account.NetLiquidation)).Info("positions liquidated")
	return nil
}

func (e *Engine) closePositionLocked(instrument int) error {
	p, ok := e.positions[instrument]
	if !ok {
		return fmt.Errorf("close position: %w: %d", ErrNoPosition, instrument)
	}
	sym, err := e.symbols.ByID(instrument)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}

	action := orders.Sell
	if p.Quantity < 0 {
		action = orders.Cover
	}
	order, err := orders.NewMarketOrder(action, p.Quantity)
	if err != nil {
		return err
	}

	last := e.lastTrade[instrument]
	ro := &restingOrder{
		PermID: e.nextID,
		Event: orders.OrderEvent{
			Timestamp: e.book.LastUpdated(),
			TradeID:   last.TradeID,
			LegID:     last.LegID,
			Action:    action,
			Symbol:    sym,
			Order:     order,
		},
	}
	e.nextID++
	return e.fillLocked(ro)
}

func (e *Engine) fillLocked(ro *restingOrder) error {
	ev := ro.Event
	sym := ev.Symbol
	instrument := sym.InstrumentID

	rec, err := e.book.Retrieve(instrument)
	if err != nil {
		return fmt.Errorf("fill %s: %w", ev.String(), err)
	}
	mark := rec.Pricing()
	ts := rec.Time()

	price := ro.fillPrice(mark)
	if ev.Order.Type != orders.Limit {
		price = sym.SlippagePrice(price, ev.Action.Side())
	}
	qty := ev.Order.Quantity()
	fees := sym.CommissionFees(qty)

	var impact position.Impact
	p, exists := e.positions[instrument]
	if exists {
		impact = p.Update(qty, price, mark, ev.Order.Side)
	} else {
		p, err = position.FromSymbol(sym, qty, price, mark)
		if err != nil {
			return fmt.Errorf("fill %s: %w", ev.String(), err)
		}
		impact = p.PositionImpact()
		e.positions[instrument] = p
	}
	e.cash += impact.Cash + fees

	closed := *p
	if p.Quantity == 0 {
		delete(e.positions, instrument)
	}

	trade, err := broker.NewTrade(broker.Trade{
		Timestamp:    ts,
		TradeID:      ev.TradeID,
		LegID:        ev.LegID,
		Instrument:   instrument,
		SecurityType: sym.Type,
		Quantity:     qty,
		AvgPrice:     price,
		TradeValue:   round(sym.Value(qty, price), 2),
		TradeCost:    round(sym.Cost(qty, price), 2),
		Action:       ev.Action,
		Fees:         round(fees, 4),
	})
	if err != nil {
		return fmt.Errorf("fill %s: %w", ev.String(), err)
	}
	e.lastTrade[instrument] = trade
	e.recomputeAccountLocked(ts)

	e.log.WithFields(log.Fields{
		"instrument": instrument,
		"action":     ev.Action,
		"qty":        qty,
		"price":      price,
		"fees":       fees,
	}).Info("order filled")

	e.bus.Publish(bus.Trade, broker.ExecutionEvent{Timestamp: ts, Trade: trade, Action: ev.Action, Symbol: sym})
	e.publishOrderLocked(ro, orders.Filled, ts, &price)
	e.bus.Publish(bus.PositionUpdate, broker.PositionUpdate{
		Timestamp: ts, InstrumentID: instrument, Position: closed, PermID: ro.PermID,
	})
	e.bus.Publish(bus.AccountUpdate, e.account)
	return nil
}

func (e *Engine) revalueLocked(ts time.Time) error {
	for _, instrument := range e.instrumentsLocked() {
		price, err := e.book.Price(instrument)
		if err != nil {
			return fmt.Errorf("revalue: %w", err)
		}
		p := e.positions[instrument]
		p.Mark(price)
		e.bus.Publish(bus.PositionUpdate, broker.PositionUpdate{Timestamp: ts, InstrumentID: instrument, Position: *p})
	}
	e.recomputeAccountLocked(ts)
	e.bus.Publish(bus.AccountUpdate, e.account)
	return nil
}

// recomputeAccountLocked derives the account from cash and the open
// positions. Posted futures margin is held out of cash and returned in
// the liquidation value.
func (e *Engine) recomputeAccountLocked(ts time.Time) {
	a := broker.Account{
		Timestamp:        ts,
		Currency:         e.cfg.Currency,
		TotalCashBalance: round(e.cash, 2),
	}
	liquidation := e.cash
	for _, p := range e.positions {
		impact := p.PositionImpact()
		a.FullInitMarginReq += impact.InitMarginRequired
		a.FullMaintMarginReq += impact.MaintenanceMarginRequired
		a.UnrealizedPnL += impact.UnrealizedPnL
		liquidation += impact.LiquidationValue
		if p.Type == symbol.Future {
			a.FuturesPnL += impact.UnrealizedPnL
		}
	}
	a.NetLiquidation = round(liquidation, 2)
	a.FullAvailableFunds = round(e.cash+a.FuturesPnL, 2)
	a.BuyingPower = a.FullAvailableFunds
	a.ExcessLiquidity = round(a.NetLiquidation-a.FullMaintMarginReq, 2)
	e.account = a
}

func (e *Engine) enforceMarginLocked() error {
	for e.account.CheckMarginCall() && len(e.positions) > 0 {
		worst := 0
		worstPL := math.Inf(1)
		for _, instrument := range e.instrumentsLocked() {
			if pl := e.positions[instrument].UnrealizedPnL; pl < worstPL {
				worst, worstPL = instrument, pl
			}
		}
		e.log.WithFields(log.Fields{"instrument": worst, "unrealized": worstPL}).Warn("liquidating position")
		if err := e.closePositionLocked(worst); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) publishOrderLocked(ro *restingOrder, status orders.Status, ts time.Time, fill *float64) {
	ev := ro.Event
	total := ev.Order.TotalQuantity
	o := orders.ActiveOrder{
		PermID:     ro.PermID,
		ClientID:   1,
		OrderID:    ro.PermID,
		Status:     status,
		Timestamp:  ts,
		Account:    orders.Ptr(e.cfg.AccountID),
		Instrument: orders.Ptr(ev.Symbol.InstrumentID),
		SecType:    orders.Ptr(string(ev.Symbol.Type)),
		Exchange:   orders.Ptr(ev.Symbol.Exchange),
		Action:     orders.Ptr(ev.Order.Side),
		OrderType:  orders.Ptr(string(ev.Order.Type)),
		TotalQty:   orders.Ptr(total),
		LmtPrice:   orders.Ptr(ev.Order.LimitPrice),
		AuxPrice:   orders.Ptr(ev.Order.AuxPrice),
		Filled:     orders.Ptr(0.0),
		Remaining:  orders.Ptr(total),
	}
	if fill != nil {
		o.Filled = orders.Ptr(total)
		o.Remaining = orders.Ptr(0.0)
		o.AvgFillPrice = orders.Ptr(*fill)
		o.LastFillPrice = orders.Ptr(*fill)
	}
	e.bus.Publish(bus.OrderUpdate, o)
}

func (e *Engine) restingLocked() []*restingOrder {
	out := make([]*restingOrder, 0, len(e.resting))
	for _, ro := range e.resting {
		out = append(out, ro)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermID < out[j].PermID })
	return out
}

func (e *Engine) instrumentsLocked() []int {
	ids := make([]int, 0, len(e.positions))
	for k := range e.positions {
		ids = append(ids, k)
	}
	sort.Ints(ids)
	return ids
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
