// Package execution turns strategy signals into broker orders.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/orders"
	"github.com/rustyeddy/midas/symbol"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultInFlightTimeout bounds how long a sent order blocks its
// instrument without the portfolio ever reporting it.
const DefaultInFlightTimeout = 30 * time.Second

// Portfolio is the part of the portfolio server the manager consults.
type Portfolio interface {
	ActiveOrderTickers() []int
	Capital() float64
}

// Prices resolves the latest price for an instrument.
type Prices interface {
	Price(instrument int) (float64, error)
}

// Manager is the order execution manager. At most one order is in flight
// per instrument, and entries are only sent when the account can fund all
// of them.
//
// The portfolio learns about an order only when the broker acknowledges it,
// so the manager also remembers the orders it sent until the portfolio
// reports them on PORTFOLIO_ORDERS.
type Manager struct {
	symbols   *symbol.Map
	portfolio Portfolio
	prices    Prices

	mu       sync.Mutex
	inflight map[int][]time.Time
	reported map[int]struct{}
	timeout  time.Duration
	now      func() time.Time

	bus     *bus.Bus
	signals *bus.Queue
	notices *bus.Queue
	log     *log.Entry
}

func NewManager(symbols *symbol.Map, p Portfolio, prices Prices, b *bus.Bus) *Manager {
	return &Manager{
		symbols:   symbols,
		portfolio: p,
		prices:    prices,
		inflight:  make(map[int][]time.Time),
		reported:  make(map[int]struct{}),
		timeout:   DefaultInFlightTimeout,
		now:       time.Now,
		bus:       b,
		signals:   b.Subscribe(bus.Signal),
		notices:   b.Subscribe(bus.PortfolioOrders),
		log:       log.WithField("component", "execution"),
	}
}

// Run handles SIGNAL messages until shutdown. A signal that cannot be
// translated into orders stops the loop.
func (m *Manager) Run(ctx context.Context) error {
	m.log.Info("execution manager running")
	defer m.log.Info("execution manager stopped")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bus.Consume(gctx, m.signals, func(msg any) error {
			sig, ok := msg.(orders.SignalEvent)
			if !ok {
				m.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("unexpected signal message")
				return nil
			}
			_, err := m.HandleSignal(sig)
			return err
		})
	})
	g.Go(func() error {
		return bus.Consume(gctx, m.notices, func(msg any) error {
			u, ok := msg.(orders.Update)
			if !ok {
				m.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("unexpected order notice")
				return nil
			}
			m.OrderReported(u)
			return nil
		})
	})
	return g.Wait()
}

// OrderReported releases one in-flight slot of the order's instrument the
// first time the portfolio reports a PermID. From then on the portfolio's
// own active set gates the instrument.
func (m *Manager) OrderReported(u orders.Update) {
	m.mu.Lock()
	defer m.mu.Unlock()

	perm := u.Order.PermID
	if _, ok := m.reported[perm]; !ok && u.Instrument != 0 {
		if sent := m.inflight[u.Instrument]; len(sent) > 0 {
			if len(sent) == 1 {
				delete(m.inflight, u.Instrument)
			} else {
				m.inflight[u.Instrument] = sent[1:]
			}
		}
	}
	if u.Order.Status.Done() {
		delete(m.reported, perm)
	} else {
		m.reported[perm] = struct{}{}
	}
}

// InFlight returns the instruments with sent orders the portfolio has not
// reported yet.
func (m *Manager) InFlight() map[int]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflightLocked()
}

func (m *Manager) inflightLocked() map[int]struct{} {
	now := m.now()
	out := make(map[int]struct{}, len(m.inflight))
	for id, sent := range m.inflight {
		for len(sent) > 0 && m.timeout > 0 && now.Sub(sent[0]) > m.timeout {
			m.log.WithFields(log.Fields{
				"instrument": id,
				"age":        now.Sub(sent[0]),
			}).Warn("sent order never reported")
			sent = sent[1:]
		}
		if len(sent) == 0 {
			delete(m.inflight, id)
			continue
		}
		m.inflight[id] = sent
		out[id] = struct{}{}
	}
	return out
}

type leg struct {
	event orders.OrderEvent
	cost  float64
}

// HandleSignal publishes the orders for sig and returns them. A signal
// touching an instrument with an active order is dropped whole. Entry legs
// are all sent or none are.
func (m *Manager) HandleSignal(sig orders.SignalEvent) ([]orders.OrderEvent, error) {
	if len(sig.Instructions) == 0 {
		return nil, orders.ErrEmptySignal
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	active := m.inflightLocked()
	for _, id := range m.portfolio.ActiveOrderTickers() {
		active[id] = struct{}{}
	}
	for _, si := range sig.Instructions {
		if _, busy := active[si.Instrument]; busy {
			m.log.WithFields(log.Fields{
				"instrument": si.Instrument,
				"trade_id":   si.TradeID,
			}).Info("signal rejected: instrument has an active order")
			return nil, nil
		}
	}

	var entries, exits []leg
	var entryCost float64
	for _, si := range sig.Instructions {
		l, err := m.buildLeg(sig, si)
		if err != nil {
			return nil, err
		}
		if si.Action.IsEntry() {
			entries = append(entries, l)
			entryCost += l.cost
		} else {
			exits = append(exits, l)
		}
	}

	send := exits
	if len(entries) > 0 {
		capital := m.portfolio.Capital()
		if entryCost <= capital {
			send = append(send, entries...)
		} else {
			m.log.WithFields(log.Fields{
				"required":  fmt.Sprintf("%.2f", entryCost),
				"available": fmt.Sprintf("%.2f", capital),
				"legs":      len(entries),
			}).Info("entry orders rejected: insufficient capital")
		}
	}

	out := make([]orders.OrderEvent, 0, len(send))
	for _, l := range send {
		m.log.WithField("order", l.event.String()).Debug("sending order")
		id := l.event.Symbol.InstrumentID
		m.inflight[id] = append(m.inflight[id], m.now())
		m.bus.Publish(bus.Order, l.event)
		out = append(out, l.event)
	}
	return out, nil
}

func (m *Manager) buildLeg(sig orders.SignalEvent, si orders.SignalInstruction) (leg, error) {
	order, err := si.ToOrder()
	if err != nil {
		return leg{}, fmt.Errorf("signal %s: %w", si, err)
	}
	sym, err := m.symbols.ByID(si.Instrument)
	if err != nil {
		return leg{}, fmt.Errorf("signal %s: %w", si, err)
	}
	price, err := m.prices.Price(si.Instrument)
	if err != nil {
		return leg{}, fmt.Errorf("signal %s: %w", si, err)
	}

	return leg{
		event: orders.OrderEvent{
			Timestamp: sig.Timestamp,
			TradeID:   si.TradeID,
			LegID:     si.LegID,
			Action:    si.Action,
			Symbol:    sym,
			Order:     order,
		},
		cost: sym.Cost(order.Quantity(), price),
	}, nil
}
