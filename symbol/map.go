package symbol

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicateSymbol = errors.New("duplicate symbol")
	ErrUnknownSymbol   = errors.New("unknown symbol")
)

// Map resolves instrument ids and the three ticker spaces (broker, data,
// display) to symbols. It is filled once at startup and only read after.
type Map struct {
	byID      map[int]*Symbol
	byBroker  map[string]int
	byData    map[string]int
	byDisplay map[string]int
}

func NewMap() *Map {
	return &Map{
		byID:      make(map[int]*Symbol),
		byBroker:  make(map[string]int),
		byData:    make(map[string]int),
		byDisplay: make(map[string]int),
	}
}

// Add validates s and registers it under its id and tickers.
func (m *Map) Add(s Symbol) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, ok := m.byID[s.InstrumentID]; ok {
		return fmt.Errorf("%w: instrument id %d", ErrDuplicateSymbol, s.InstrumentID)
	}
	if _, ok := m.byBroker[s.BrokerTicker]; ok {
		return fmt.Errorf("%w: broker ticker %q", ErrDuplicateSymbol, s.BrokerTicker)
	}
	if _, ok := m.byData[s.DataTicker]; ok {
		return fmt.Errorf("%w: data ticker %q", ErrDuplicateSymbol, s.DataTicker)
	}
	if _, ok := m.byDisplay[s.DisplayTicker]; ok {
		return fmt.Errorf("%w: display ticker %q", ErrDuplicateSymbol, s.DisplayTicker)
	}

	sym := s
	m.byID[s.InstrumentID] = &sym
	m.byBroker[s.BrokerTicker] = s.InstrumentID
	m.byData[s.DataTicker] = s.InstrumentID
	m.byDisplay[s.DisplayTicker] = s.InstrumentID
	return nil
}

// ByID returns the symbol registered under id.
func (m *Map) ByID(id int) (*Symbol, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: instrument id %d", ErrUnknownSymbol, id)
	}
	return s, nil
}

// ByTicker looks a symbol up by broker, data or display ticker.
func (m *Map) ByTicker(ticker string) (*Symbol, error) {
	id, ok := m.ID(ticker)
	if !ok {
		return nil, fmt.Errorf("%w: ticker %q", ErrUnknownSymbol, ticker)
	}
	return m.byID[id], nil
}

// ID resolves any ticker to its instrument id.
func (m *Map) ID(ticker string) (int, bool) {
	if id, ok := m.byBroker[ticker]; ok {
		return id, true
	}
	if id, ok := m.byData[ticker]; ok {
		return id, true
	}
	id, ok := m.byDisplay[ticker]
	return id, ok
}

// InstrumentIDs returns the registered ids in ascending order.
func (m *Map) InstrumentIDs() []int {
	ids := make([]int, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Symbols returns the registered symbols ordered by instrument id.
func (m *Map) Symbols() []*Symbol {
	ids := m.InstrumentIDs()
	out := make([]*Symbol, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.byID[id])
	}
	return out
}

func (m *Map) Len() int { return len(m.byID) }
