package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/midas/broker"
	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/orders"
	"github.com/rustyeddy/midas/position"
	"github.com/rustyeddy/midas/symbol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVenue struct {
	mu        sync.Mutex
	events    chan any
	submitted []OrderRequest
	cancelled []int
	snapshots []Snapshot
	calls     int
	nextPerm  int
	closed    bool
}

func newFakeVenue(snaps ...Snapshot) *fakeVenue {
	return &fakeVenue{events: make(chan any, 16), snapshots: snaps, nextPerm: 100}
}

func (f *fakeVenue) Connect(ctx context.Context) error { return nil }

func (f *fakeVenue) Submit(ctx context.Context, req OrderRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	f.nextPerm++
	return f.nextPerm, nil
}

func (f *fakeVenue) Cancel(ctx context.Context, permID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, permID)
	return nil
}

func (f *fakeVenue) Snapshot(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.snapshots) {
		return Snapshot{}, errors.New("no snapshot")
	}
	s := f.snapshots[f.calls]
	f.calls++
	return s, nil
}

func (f *fakeVenue) Events() <-chan any { return f.events }

func (f *fakeVenue) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var ts = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

func testSymbols(t *testing.T) *symbol.Map {
	t.Helper()
	m := symbol.NewMap()
	require.NoError(t, m.Add(symbol.Symbol{
		InstrumentID: 1, BrokerTicker: "AAPL", Type: symbol.Stock, Currency: "USD", Exchange: "SMART",
		QuantityMultiplier: 1, PriceMultiplier: 1,
		Session: symbol.TradingSession{DayOpen: symbol.Clock(9, 30), DayClose: symbol.Clock(16, 0)},
	}))
	return m
}

func equity(t *testing.T, qty float64) position.Position {
	t.Helper()
	p, err := position.New(position.Position{
		Type: symbol.Stock, Action: position.Buy, Quantity: qty, AvgPrice: 10, MarketPrice: 10,
		QuantityMultiplier: 1, PriceMultiplier: 1,
	})
	require.NoError(t, err)
	return *p
}

func orderEvent(t *testing.T, syms *symbol.Map, action orders.Action, qty float64) orders.OrderEvent {
	t.Helper()
	sym, err := syms.ByID(1)
	require.NoError(t, err)
	o, err := orders.NewMarketOrder(action, qty)
	require.NoError(t, err)
	return orders.OrderEvent{Timestamp: ts, TradeID: 3, LegID: 1, Action: action, Symbol: sym, Order: o}
}

func start(t *testing.T, v *fakeVenue, topics ...bus.Topic) (*Adapter, []*bus.Queue, context.CancelFunc, chan error) {
	t.Helper()
	b := bus.New()
	queues := make([]*bus.Queue, len(topics))
	for i, topic := range topics {
		queues[i] = b.Subscribe(topic)
	}
	a := NewAdapter(v, testSymbols(t), b, Config{OrdersPerSecond: 1000, Burst: 10})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	return a, queues, cancel, done
}

func next(t *testing.T, q *bus.Queue) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := q.Get(ctx)
	require.NoError(t, err)
	return msg
}

func TestPlaceOrderRequiresConnection(t *testing.T) {
	syms := testSymbols(t)
	a := NewAdapter(newFakeVenue(), syms, bus.New(), Config{})
	err := a.PlaceOrder(context.Background(), orderEvent(t, syms, orders.Long, 5))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, a.CancelOrder(context.Background(), 1), ErrNotConnected)
}

func TestAdapterForwardsVenueEvents(t *testing.T) {
	v := newFakeVenue(Snapshot{
		Account:   broker.Account{Timestamp: ts, FullAvailableFunds: 1000},
		Positions: []broker.PositionUpdate{{Timestamp: ts, InstrumentID: 1, Position: equity(t, 5)}},
	})
	b := bus.New()
	accounts := b.Subscribe(bus.AccountUpdate)
	positions := b.Subscribe(bus.PositionUpdate)
	updates := b.Subscribe(bus.OrderUpdate)
	trades := b.Subscribe(bus.Trade)
	conns := b.Subscribe(bus.Connection)

	syms := testSymbols(t)
	a := NewAdapter(v, syms, b, Config{OrdersPerSecond: 1000, Burst: 10})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	assert.True(t, next(t, conns).(broker.ConnectionEvent).Connected)
	assert.Equal(t, 1000.0, next(t, accounts).(broker.Account).Capital())
	assert.Equal(t, 5.0, next(t, positions).(broker.PositionUpdate).Position.Quantity)

	require.NoError(t, a.PlaceOrder(ctx, orderEvent(t, syms, orders.Sell, 5)))
	v.mu.Lock()
	require.Len(t, v.submitted, 1)
	req := v.submitted[0]
	v.mu.Unlock()
	assert.Equal(t, "AAPL", req.Ticker)
	assert.Equal(t, "SELL", req.Side)
	assert.Equal(t, 5.0, req.Quantity)
	assert.NotEmpty(t, req.RequestID)

	// the venue's status update lacks the instrument
	v.events <- orders.ActiveOrder{PermID: 101, Status: orders.Filled, Timestamp: ts}
	o := next(t, updates).(orders.ActiveOrder)
	id, ok := o.InstrumentID()
	require.True(t, ok)
	assert.Equal(t, 1, id)

	v.events <- Fill{PermID: 101, Timestamp: ts, Quantity: 5, Price: 12, Fees: 1}
	ex := next(t, trades).(broker.ExecutionEvent)
	assert.Equal(t, 3, ex.Trade.TradeID)
	assert.Equal(t, -5.0, ex.Trade.Quantity)
	assert.Equal(t, -1.0, ex.Trade.Fees)
	assert.Equal(t, orders.Sell, ex.Action)

	// filled and fully executed orders are forgotten
	a.mu.Lock()
	assert.Empty(t, a.placed)
	assert.Empty(t, a.working)
	a.mu.Unlock()

	cancel()
	assert.NoError(t, <-done)
	v.mu.Lock()
	assert.True(t, v.closed)
	v.mu.Unlock()
}

func TestReconnectRefreshesSnapshot(t *testing.T) {
	v := newFakeVenue(
		Snapshot{
			Account:   broker.Account{Timestamp: ts, FullAvailableFunds: 1000},
			Positions: []broker.PositionUpdate{{Timestamp: ts, InstrumentID: 1, Position: equity(t, 5)}},
		},
		// the position was closed while disconnected
		Snapshot{Account: broker.Account{Timestamp: ts.Add(time.Hour), FullAvailableFunds: 1060}},
	)
	a, qs, cancel, done := start(t, v, bus.PositionUpdate, bus.AccountUpdate, bus.Connection)
	defer cancel()
	positions, accounts, conns := qs[0], qs[1], qs[2]

	assert.True(t, next(t, conns).(broker.ConnectionEvent).Connected)
	assert.Equal(t, 1000.0, next(t, accounts).(broker.Account).Capital())
	assert.Equal(t, 5.0, next(t, positions).(broker.PositionUpdate).Position.Quantity)

	v.events <- broker.ConnectionEvent{Timestamp: ts, Connected: false, Reason: "socket reset"}
	assert.False(t, next(t, conns).(broker.ConnectionEvent).Connected)
	require.Eventually(t, func() bool { return !a.isConnected() }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, a.PlaceOrder(context.Background(), orderEvent(t, testSymbols(t), orders.Long, 1)), ErrNotConnected)

	v.events <- broker.ConnectionEvent{Timestamp: ts, Connected: true, Reason: "reconnected"}
	assert.True(t, next(t, conns).(broker.ConnectionEvent).Connected)
	assert.Equal(t, 1060.0, next(t, accounts).(broker.Account).Capital())

	closed := next(t, positions).(broker.PositionUpdate)
	assert.Equal(t, 1, closed.InstrumentID)
	assert.Zero(t, closed.Position.Quantity)

	cancel()
	assert.NoError(t, <-done)
}

func TestVenueClosed(t *testing.T) {
	v := newFakeVenue(Snapshot{})
	_, _, cancel, done := start(t, v)
	defer cancel()

	close(v.events)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrVenueClosed)
	case <-time.After(time.Second):
		t.Fatal("adapter did not stop")
	}
}

func TestUnknownFillStopsAdapter(t *testing.T) {
	v := newFakeVenue(Snapshot{})
	_, qs, cancel, done := start(t, v, bus.Trade)
	defer cancel()

	v.events <- Fill{PermID: 999, Timestamp: ts, Quantity: 1, Price: 1}
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrUnknownFill)
	case <-time.After(time.Second):
		t.Fatal("adapter kept running after an unknown fill")
	}
	assert.Zero(t, qs[0].Len())
}

func TestReconnectCancelsVanishedOrders(t *testing.T) {
	v := newFakeVenue(
		Snapshot{
			Account: broker.Account{Timestamp: ts},
			Orders: []orders.ActiveOrder{
				{PermID: 7, Status: orders.Submitted, Instrument: orders.Ptr(1)},
				{PermID: 8, Status: orders.Submitted, Instrument: orders.Ptr(1)},
			},
		},
		// order 7 finished while disconnected
		Snapshot{
			Account: broker.Account{Timestamp: ts.Add(time.Hour)},
			Orders:  []orders.ActiveOrder{{PermID: 8, Status: orders.Submitted, Instrument: orders.Ptr(1)}},
		},
	)
	a, qs, cancel, done := start(t, v, bus.OrderUpdate, bus.Connection)
	defer cancel()
	updates, conns := qs[0], qs[1]

	assert.True(t, next(t, conns).(broker.ConnectionEvent).Connected)
	assert.Equal(t, 7, next(t, updates).(orders.ActiveOrder).PermID)
	assert.Equal(t, 8, next(t, updates).(orders.ActiveOrder).PermID)

	// an order placed by this session that the venue also lost
	require.NoError(t, a.PlaceOrder(context.Background(), orderEvent(t, testSymbols(t), orders.Long, 1)))

	v.events <- broker.ConnectionEvent{Timestamp: ts, Connected: false, Reason: "socket reset"}
	assert.False(t, next(t, conns).(broker.ConnectionEvent).Connected)
	v.events <- broker.ConnectionEvent{Timestamp: ts, Connected: true, Reason: "reconnected"}
	assert.True(t, next(t, conns).(broker.ConnectionEvent).Connected)

	still := next(t, updates).(orders.ActiveOrder)
	assert.Equal(t, 8, still.PermID)
	assert.Equal(t, orders.Submitted, still.Status)

	gone := next(t, updates).(orders.ActiveOrder)
	assert.Equal(t, 7, gone.PermID)
	assert.Equal(t, orders.Cancelled, gone.Status)
	assert.Equal(t, ts.Add(time.Hour), gone.Timestamp)

	placed := next(t, updates).(orders.ActiveOrder)
	assert.Equal(t, 101, placed.PermID)
	assert.Equal(t, orders.Cancelled, placed.Status)
	id, ok := placed.InstrumentID()
	require.True(t, ok)
	assert.Equal(t, 1, id)

	assert.Equal(t, []int{8}, a.workingOrders())

	cancel()
	assert.NoError(t, <-done)
}

func TestFinishedOrdersAreForgotten(t *testing.T) {
	syms := testSymbols(t)
	a := NewAdapter(newFakeVenue(), syms, bus.New(), Config{})
	clock := ts
	a.now = func() time.Time { return clock }
	a.setConnected(true, "test")

	ctx := context.Background()
	require.NoError(t, a.PlaceOrder(ctx, orderEvent(t, syms, orders.Long, 5)))
	require.NoError(t, a.PlaceOrder(ctx, orderEvent(t, syms, orders.Long, 5)))

	// a partial fill trails the cancel and is still matched
	require.NoError(t, a.handle(ctx, orders.ActiveOrder{PermID: 101, Status: orders.Cancelled}))
	require.NoError(t, a.handle(ctx, Fill{PermID: 101, Timestamp: ts, Quantity: 2, Price: 10}))

	// the final status lands before its execution
	require.NoError(t, a.handle(ctx, orders.ActiveOrder{PermID: 102, Status: orders.Filled}))
	a.mu.Lock()
	assert.Len(t, a.placed, 2)
	a.mu.Unlock()
	require.NoError(t, a.handle(ctx, Fill{PermID: 102, Timestamp: ts, Quantity: 5, Price: 10}))

	clock = clock.Add(placedRetention + time.Second)
	require.NoError(t, a.handle(ctx, orders.ActiveOrder{PermID: 55, Status: orders.Cancelled}))

	a.mu.Lock()
	assert.Empty(t, a.placed)
	assert.Empty(t, a.working)
	a.mu.Unlock()
}
