package market

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrNoPrice = errors.New("price not found")

// OrderBook holds the latest record per instrument. The BookManager is its
// only writer; strategies, execution and brokers read it concurrently.
type OrderBook struct {
	mu            sync.RWMutex
	book          map[int]Record
	lastUpdated   time.Time
	tickersLoaded bool
}

func NewOrderBook() *OrderBook {
	return &OrderBook{book: make(map[int]Record)}
}

func (ob *OrderBook) Set(r Record) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.book[r.ID()] = r
	if r.Time().After(ob.lastUpdated) {
		ob.lastUpdated = r.Time()
	}
}

// Retrieve returns the latest record for instrument.
func (ob *OrderBook) Retrieve(instrument int) (Record, error) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	r, ok := ob.book[instrument]
	if !ok {
		return nil, fmt.Errorf("%w: instrument %d", ErrNoPrice, instrument)
	}
	return r, nil
}

// Price is shorthand for Retrieve(instrument).Pricing().
func (ob *OrderBook) Price(instrument int) (float64, error) {
	r, err := ob.Retrieve(instrument)
	if err != nil {
		return 0, err
	}
	return r.Pricing(), nil
}

// RetrieveAll returns a copy of the book.
func (ob *OrderBook) RetrieveAll() map[int]Record {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	out := make(map[int]Record, len(ob.book))
	for k, v := range ob.book {
		out[k] = v
	}
	return out
}

func (ob *OrderBook) LastUpdated() time.Time {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.lastUpdated
}

// TickersLoaded reports whether every instrument passed to CheckLoaded has
// received at least one record.
func (ob *OrderBook) TickersLoaded() bool {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.tickersLoaded
}

// CheckLoaded updates TickersLoaded against ids and returns it.
func (ob *OrderBook) CheckLoaded(ids []int) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	if ob.tickersLoaded {
		return true
	}
	for _, id := range ids {
		if _, ok := ob.book[id]; !ok {
			return false
		}
	}
	ob.tickersLoaded = true
	return true
}
