package risk

import (
	"context"
	"testing"
	"time"

	"github.com/rustyeddy/midas/broker"
	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/position"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)

func account(netLiq, margin, excess float64) broker.Account {
	return broker.Account{Timestamp: ts, NetLiquidation: netLiq, FullInitMarginReq: margin, ExcessLiquidity: excess}
}

func TestMonitorTracksPeak(t *testing.T) {
	m := NewMonitor(Policy{MaxDrawdownPct: 0.1}, bus.New())

	assert.True(t, m.HandleAccount(account(100000, 0, 100000)).Allowed)
	assert.True(t, m.HandleAccount(account(120000, 0, 120000)).Allowed)

	u := m.HandleAccount(account(105000, 0, 105000))
	assert.True(t, u.Has(CodeDrawdown))
	assert.Equal(t, 120000.0, u.PeakEquity)
	assert.InDelta(t, 0.125, u.DrawdownPct, 1e-9)
	assert.Equal(t, u, m.Last())
}

func TestMonitorCountsPositions(t *testing.T) {
	m := NewMonitor(Policy{MaxOpenPositions: 1}, bus.New())

	m.HandlePositions(map[int]position.Position{1: {}, 2: {}})
	assert.True(t, m.HandleAccount(account(100, 0, 100)).Has(CodeTooManyOpen))

	m.HandlePositions(map[int]position.Position{1: {}})
	assert.True(t, m.HandleAccount(account(100, 0, 100)).Allowed)
}

func TestMonitorPublishesUpdates(t *testing.T) {
	b := bus.New()
	updates := b.Subscribe(bus.RiskUpdate)
	m := NewMonitor(Policy{}, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	b.Publish(bus.PortfolioAccount, account(2000, 10000, -6000))

	wctx, wcancel := context.WithTimeout(context.Background(), time.Second)
	defer wcancel()
	msg, err := updates.Get(wctx)
	require.NoError(t, err)
	u := msg.(Update)
	assert.True(t, u.Has(CodeMarginCall))
	assert.False(t, u.Allowed)
	assert.Equal(t, ts, u.Timestamp)

	cancel()
	assert.NoError(t, <-done)
}
