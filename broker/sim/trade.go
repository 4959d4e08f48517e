package sim

import (
	"time"

	"github.com/rustyeddy/midas/orders"
)

// restingOrder is a limit or stop order waiting for the book to reach it.
type restingOrder struct {
	PermID    int
	Event     orders.OrderEvent
	Submitted time.Time
}

func (r *restingOrder) instrument() int {
	return r.Event.Symbol.InstrumentID
}

// triggered reports whether price reaches the order. Limits trade at the
// limit or better; stops fire once price moves through the stop.
func (r *restingOrder) triggered(price float64) bool {
	o := r.Event.Order
	switch o.Type {
	case orders.Limit:
		return hitLimit(o, price)
	case orders.StopLimit:
		return hitStop(o, price)
	}
	return true
}

// fillPrice is the price before slippage.
func (r *restingOrder) fillPrice(price float64) float64 {
	o := r.Event.Order
	if o.Type == orders.Limit {
		return o.LimitPrice
	}
	return price
}

func hitLimit(o orders.Order, price float64) bool {
	if o.Side == "BUY" {
		return price <= o.LimitPrice
	}
	return price >= o.LimitPrice
}

func hitStop(o orders.Order, price float64) bool {
	if o.Side == "BUY" {
		return price >= o.AuxPrice
	}
	return price <= o.AuxPrice
}
