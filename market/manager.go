package market

import (
	"context"
	"fmt"

	"github.com/rustyeddy/midas/bus"
	log "github.com/sirupsen/logrus"
)

// BookManager consumes DATA, applies records to the OrderBook and fans them
// out on ORDER_BOOK. End of day markers are forwarded to EOD_EVENT after
// every record before them.
type BookManager struct {
	book        *OrderBook
	bus         *bus.Bus
	queue       *bus.Queue
	instruments []int
	log         *log.Entry
}

func NewBookManager(book *OrderBook, b *bus.Bus, instruments []int) *BookManager {
	return &BookManager{
		book:        book,
		bus:         b,
		queue:       b.Subscribe(bus.Data),
		instruments: instruments,
		log:         log.WithField("component", "orderbook"),
	}
}

// Run processes data until ctx is cancelled or the bus is closed, then
// drains what is left.
func (m *BookManager) Run(ctx context.Context) error {
	m.log.Info("order book manager running")
	defer m.log.Info("order book manager stopped")

	return bus.Consume(ctx, m.queue, func(msg any) error {
		m.Handle(msg)
		return nil
	})
}

// Handle applies a single DATA message.
func (m *BookManager) Handle(msg any) {
	switch v := msg.(type) {
	case Record:
		m.book.Set(v)
		if !m.book.TickersLoaded() && m.book.CheckLoaded(m.instruments) {
			m.log.Info("all tickers loaded")
		}
		m.bus.Publish(bus.OrderBook, Event{Timestamp: v.Time(), Data: v})
	case EODEvent:
		m.log.WithField("ts", v.Timestamp).Debug("end of day")
		m.bus.Publish(bus.EODEvent, v)
	default:
		m.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("unexpected data message")
	}
}
