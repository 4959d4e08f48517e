package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/midas/broker"
	"github.com/rustyeddy/midas/broker/live"
	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/journal"
	"github.com/rustyeddy/midas/market"
	"github.com/rustyeddy/midas/pkg/id"
	"github.com/rustyeddy/midas/strategies"
	"github.com/rustyeddy/midas/symbol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

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

func bars(prices ...float64) []market.Bar {
	out := make([]market.Bar, len(prices))
	for i, p := range prices {
		out[i] = market.Bar{InstrumentID: 1, Timestamp: t0.Add(time.Duration(i) * time.Minute), Open: p, High: p, Low: p, Close: p}
	}
	return out
}

func backtestOptions(t *testing.T) Options {
	return Options{
		Mode:         Backtest,
		RunID:        "RUN1",
		Symbols:      testSymbols(t),
		StrategyName: "ema-cross",
		StrategyParams: map[string]any{
			"ticker":      "AAPL",
			"fast_period": 1,
			"slow_period": 2,
			"quantity":    10,
			"allow_short": false,
		},
		Capital: 1000,
		Bars:    bars(10, 10, 12, 13, 9),
	}
}

func TestBacktestEndToEnd(t *testing.T) {
	j, err := journal.NewSQLite(filepath.Join(t.TempDir(), "midas.db"))
	require.NoError(t, err)
	defer j.Close()

	opts := backtestOptions(t)
	opts.Journal = j
	opts.Dataset = "bars.csv"

	e, err := New(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := e.Run(ctx)
	require.NoError(t, err)

	// long 10 @ 12 on the bull cross, sold @ 9 on the bear cross
	assert.Equal(t, "RUN1", res.RunID)
	assert.Equal(t, 970.0, res.Account.NetLiquidation)
	assert.Equal(t, 970.0, res.Account.TotalCashBalance)
	assert.Zero(t, res.Positions)
	assert.True(t, res.Risk.Allowed)

	trades, err := j.ListTrades("RUN1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "LONG", trades[0].Action)
	assert.Equal(t, 12.0, trades[0].AvgPrice)
	assert.Equal(t, "SELL", trades[1].Action)
	assert.Equal(t, -10.0, trades[1].Quantity)
	assert.Equal(t, trades[0].TradeID, trades[1].TradeID)

	equity, err := j.ListEquity("RUN1")
	require.NoError(t, err)
	require.NotEmpty(t, equity)
	assert.Equal(t, 1000.0, equity[0].NetLiquidation)
	assert.Equal(t, 970.0, equity[len(equity)-1].NetLiquidation)

	run, err := j.GetRun("RUN1")
	require.NoError(t, err)
	assert.Equal(t, "ema-cross", run.Strategy)
	assert.Equal(t, "bars.csv", run.Dataset)
}

func TestBacktestLiquidatesAtEnd(t *testing.T) {
	opts := backtestOptions(t)
	opts.Bars = bars(10, 10, 12, 13)

	e, err := New(opts)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := e.Run(ctx)
	require.NoError(t, err)

	// the position opened at 12 is closed at the last price
	assert.Equal(t, 1010.0, res.Account.NetLiquidation)
	assert.Zero(t, res.Positions)
}

func TestBacktestIsDeterministic(t *testing.T) {
	run := func() Result {
		e, err := New(backtestOptions(t))
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err := e.Run(ctx)
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.Account, b.Account)
}

func TestBacktestRunIDStampedWithReplayStart(t *testing.T) {
	opts := backtestOptions(t)
	opts.RunID = ""
	opts.Bars = append(bars(12, 13), market.Bar{InstrumentID: 1, Timestamp: t0.Add(-time.Hour), Close: 11})

	e, err := New(opts)
	require.NoError(t, err)
	stamped, err := id.Time(e.RunID())
	require.NoError(t, err)
	assert.WithinDuration(t, t0.Add(-time.Hour), stamped, 0)

	opts.RunID = ""
	opts.Start = t0.Add(24 * time.Hour)
	e, err = New(opts)
	require.NoError(t, err)
	stamped, err = id.Time(e.RunID())
	require.NoError(t, err)
	assert.WithinDuration(t, opts.Start, stamped, 0)
}

func TestNewValidatesOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		want   error
	}{
		{"no symbols", func(o *Options) { o.Symbols = symbol.NewMap() }, ErrInvalidOptions},
		{"no strategy", func(o *Options) { o.StrategyName = "" }, ErrInvalidOptions},
		{"unknown strategy", func(o *Options) { o.StrategyName = "martingale" }, strategies.ErrUnknownStrategy},
		{"zero capital", func(o *Options) { o.Capital = 0 }, ErrInvalidOptions},
		{"unknown mode", func(o *Options) { o.Mode = "paper" }, ErrInvalidOptions},
		{"live without venue", func(o *Options) { o.Mode = Live }, ErrInvalidOptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := backtestOptions(t)
			tt.mutate(&opts)
			_, err := New(opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStartTwice(t *testing.T) {
	e, err := New(backtestOptions(t))
	require.NoError(t, err)
	assert.ErrorIs(t, e.Wait(), ErrNotStarted)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Start(ctx))
	assert.ErrorIs(t, e.Start(ctx), ErrAlreadyStarted)
	assert.NoError(t, e.Wait())
}

type idleVenue struct {
	events chan any
}

func (v *idleVenue) Connect(context.Context) error { return nil }
func (v *idleVenue) Submit(context.Context, live.OrderRequest) (int, error) {
	return 0, errors.New("not implemented")
}
func (v *idleVenue) Cancel(context.Context, int) error { return nil }
func (v *idleVenue) Snapshot(context.Context) (live.Snapshot, error) {
	return live.Snapshot{Account: broker.Account{FullAvailableFunds: 5000}}, nil
}
func (v *idleVenue) Events() <-chan any { return v.events }
func (v *idleVenue) Close() error       { return nil }

type feed struct {
	err error
}

func (f feed) Run(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return nil
}

func liveOptions(t *testing.T, f feed) Options {
	opts := backtestOptions(t)
	opts.Mode = Live
	opts.Venue = &idleVenue{events: make(chan any)}
	opts.Feed = func(*bus.Bus, *symbol.Map) (Component, error) { return f, nil }
	return opts
}

func TestLiveStopJoinsEverything(t *testing.T) {
	e, err := New(liveOptions(t, feed{}))
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))

	require.Eventually(t, func() bool {
		return e.Core.Portfolio.Capital() == 5000
	}, time.Second, 5*time.Millisecond)

	e.Stop()
	done := make(chan error, 1)
	go func() { done <- e.Wait() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestFatalErrorStopsSession(t *testing.T) {
	boom := errors.New("feed lost")
	e, err := New(liveOptions(t, feed{err: boom}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = e.Run(ctx)
	assert.ErrorIs(t, err, boom)
}
