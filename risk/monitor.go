// Package risk watches the portfolio against account-level limits. The
// monitor only reports; it never places or cancels orders.
package risk

import (
	"context"
	"fmt"
	"sync"

	"github.com/rustyeddy/midas/broker"
	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/position"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Monitor evaluates Policy on every PORTFOLIO_ACCOUNT notification and
// publishes the result on RISK_UPDATE.
type Monitor struct {
	policy Policy
	bus    *bus.Bus

	accounts  *bus.Queue
	positions *bus.Queue

	mu     sync.Mutex
	peak   float64
	open   int
	active map[string]bool
	last   Update

	log *log.Entry
}

func NewMonitor(p Policy, b *bus.Bus) *Monitor {
	return &Monitor{
		policy:    p,
		bus:       b,
		accounts:  b.Subscribe(bus.PortfolioAccount),
		positions: b.Subscribe(bus.PortfolioPositions),
		active:    make(map[string]bool),
		log:       log.WithField("component", "risk"),
	}
}

func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("risk monitor running")
	defer m.log.Info("risk monitor stopped")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bus.Consume(gctx, m.accounts, m.handle) })
	g.Go(func() error { return bus.Consume(gctx, m.positions, m.handle) })
	return g.Wait()
}

func (m *Monitor) handle(msg any) error {
	switch v := msg.(type) {
	case broker.Account:
		m.HandleAccount(v)
	case map[int]position.Position:
		m.HandlePositions(v)
	default:
		m.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("unexpected risk message")
	}
	return nil
}

// HandlePositions records the number of open positions for the next
// evaluation.
func (m *Monitor) HandlePositions(positions map[int]position.Position) {
	m.mu.Lock()
	m.open = len(positions)
	m.mu.Unlock()
}

// HandleAccount evaluates the policy against a and publishes the result.
// Violations are logged when they first appear and when they clear.
func (m *Monitor) HandleAccount(a broker.Account) Update {
	m.mu.Lock()
	if a.NetLiquidation > m.peak {
		m.peak = a.NetLiquidation
	}
	u := Evaluate(m.policy, Snapshot{
		Timestamp:      a.Timestamp,
		NetLiquidation: a.NetLiquidation,
		InitMargin:     a.FullInitMarginReq,
		PeakEquity:     m.peak,
		OpenPositions:  m.open,
		MarginCall:     a.CheckMarginCall(),
	})

	seen := make(map[string]bool, len(u.Violations))
	for _, v := range u.Violations {
		seen[v.Code] = true
		if !m.active[v.Code] {
			m.log.WithFields(log.Fields{"code": v.Code, "ts": a.Timestamp}).Warn(v.Msg)
		}
	}
	for code := range m.active {
		if !seen[code] {
			m.log.WithFields(log.Fields{"code": code, "ts": a.Timestamp}).Info("risk limit cleared")
		}
	}
	m.active = seen
	m.last = u
	m.mu.Unlock()

	m.bus.Publish(bus.RiskUpdate, u)
	return u
}

// Last returns the most recent evaluation.
func (m *Monitor) Last() Update {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
