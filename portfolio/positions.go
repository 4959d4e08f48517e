package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/midas/broker"
	"github.com/rustyeddy/midas/bus"
	"github.com/rustyeddy/midas/position"
	"github.com/rustyeddy/midas/symbol"
	log "github.com/sirupsen/logrus"
)

var ErrUnknownInstrument = errors.New("unknown instrument")

// PositionManager owns the positions map. Its Run goroutine is the only
// writer; other goroutines read copies through the accessors.
type PositionManager struct {
	mu        sync.RWMutex
	positions map[int]*position.Position

	symbols *symbol.Map
	pending *pendingSet
	bus     *bus.Bus
	queue   *bus.Queue
	log     *log.Entry
}

func newPositionManager(symbols *symbol.Map, pending *pendingSet, b *bus.Bus) *PositionManager {
	return &PositionManager{
		positions: make(map[int]*position.Position),
		symbols:   symbols,
		pending:   pending,
		bus:       b,
		queue:     b.Subscribe(bus.PositionUpdate),
		log:       log.WithField("component", "positions"),
	}
}

// Run applies POSITION_UPDATE messages until shutdown. An update for an
// instrument missing from the symbol map stops the loop with an error.
func (m *PositionManager) Run(ctx context.Context) error {
	m.log.Info("position manager running")
	defer m.log.Info("position manager stopped")

	return bus.Consume(ctx, m.queue, func(msg any) error {
		u, ok := msg.(broker.PositionUpdate)
		if !ok {
			m.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("unexpected position message")
			return nil
		}
		if _, err := m.symbols.ByID(u.InstrumentID); err != nil {
			return fmt.Errorf("position update: %w: %d", ErrUnknownInstrument, u.InstrumentID)
		}
		m.apply(u.InstrumentID, u.PermID, u.Position, u.Timestamp)
		return nil
	})
}

// UpdatePositions applies the broker's view of instrument. A zero quantity
// removes the position; an identical position is ignored. It reports
// whether the map changed.
func (m *PositionManager) UpdatePositions(instrument int, p position.Position) bool {
	return m.apply(instrument, 0, p, time.Time{})
}

func (m *PositionManager) apply(instrument, permID int, p position.Position, ts time.Time) bool {
	m.mu.Lock()
	current, exists := m.positions[instrument]
	switch {
	case p.Quantity == 0:
		if !exists {
			m.mu.Unlock()
			m.pending.observe(instrument, permID, ts, false)
			return false
		}
		delete(m.positions, instrument)
	case exists && current.Equal(&p):
		m.mu.Unlock()
		m.pending.observe(instrument, permID, ts, false)
		return false
	default:
		cp := p
		m.positions[instrument] = &cp
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	m.pending.observe(instrument, permID, ts, true)

	m.log.WithField("instrument", instrument).Debug("positions updated")
	m.log.Info("\n" + positionsTable(snapshot))
	m.bus.Publish(bus.PortfolioPositions, snapshot)
	return true
}

// Get returns a copy of the position for instrument.
func (m *PositionManager) Get(instrument int) (position.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[instrument]
	if !ok {
		return position.Position{}, false
	}
	return *p, true
}

// Positions returns a copy of every open position.
func (m *PositionManager) Positions() map[int]position.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Instruments returns the instruments with open positions, sorted.
func (m *PositionManager) Instruments() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int, 0, len(m.positions))
	for id := range m.positions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (m *PositionManager) snapshotLocked() map[int]position.Position {
	out := make(map[int]position.Position, len(m.positions))
	for id, p := range m.positions {
		out[id] = *p
	}
	return out
}
