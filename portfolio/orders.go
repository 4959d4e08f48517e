package portfolio

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/orders"
	log "github.com/sirupsen/logrus"
)

// OrderManager owns the active orders map, keyed by PermID.
type OrderManager struct {
	mu     sync.RWMutex
	active map[int]*orders.ActiveOrder

	pending *pendingSet
	bus     *bus.Bus
	queue   *bus.Queue
	log     *log.Entry
}

func newOrderManager(pending *pendingSet, b *bus.Bus) *OrderManager {
	return &OrderManager{
		active:  make(map[int]*orders.ActiveOrder),
		pending: pending,
		bus:     b,
		queue:   b.Subscribe(bus.OrderUpdate),
		log:     log.WithField("component", "orders"),
	}
}

func (m *OrderManager) Run(ctx context.Context) error {
	m.log.Info("order manager running")
	defer m.log.Info("order manager stopped")

	return bus.Consume(ctx, m.queue, func(msg any) error {
		o, ok := msg.(orders.ActiveOrder)
		if !ok {
			m.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("unexpected order message")
			return nil
		}
		m.UpdateOrders(o)
		return nil
	})
}

// UpdateOrders applies a broker order status. Cancelled orders are removed.
// Filled orders are removed and their instrument stays blocked until the
// position manager sees the resulting position. Anything else is inserted
// or merged into the existing order.
func (m *OrderManager) UpdateOrders(o orders.ActiveOrder) {
	m.mu.Lock()
	existing, exists := m.active[o.PermID]
	instrument, known := o.InstrumentID()
	if !known && exists {
		instrument, known = existing.InstrumentID()
	}

	switch o.Status {
	case orders.Cancelled, orders.ApiCancelled:
		delete(m.active, o.PermID)

	case orders.Filled:
		delete(m.active, o.PermID)
		if known {
			if m.pending.add(instrument, o.PermID, o.Timestamp) {
				m.log.WithField("instrument", instrument).Debug("awaiting position update")
			}
		} else {
			m.log.WithField("perm_id", o.PermID).Warn("filled order without instrument")
		}

	default:
		if exists {
			existing.Merge(o)
		} else {
			c := o.Clone()
			m.active[o.PermID] = &c
		}
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.log.WithFields(log.Fields{"perm_id": o.PermID, "status": o.Status}).Debug("order updated")
	m.log.Info("\n" + ordersTable(snapshot))

	u := orders.Update{Order: o.Clone(), Active: snapshot}
	if known {
		u.Instrument = instrument
	}
	m.bus.Publish(bus.PortfolioOrders, u)
}

// ActiveOrders returns a copy of the active orders.
func (m *OrderManager) ActiveOrders() map[int]orders.ActiveOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// ActiveOrderTickers returns every instrument with a working order or a
// fill still waiting for its position update.
func (m *OrderManager) ActiveOrderTickers() []int {
	set := make(map[int]struct{})

	m.mu.RLock()
	for _, o := range m.active {
		if id, ok := o.InstrumentID(); ok {
			set[id] = struct{}{}
		}
	}
	m.mu.RUnlock()

	for _, id := range m.pending.ids() {
		set[id] = struct{}{}
	}

	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (m *OrderManager) snapshotLocked() map[int]orders.ActiveOrder {
	out := make(map[int]orders.ActiveOrder, len(m.active))
	for id, o := range m.active {
		out[id] = o.Clone()
	}
	return out
}
