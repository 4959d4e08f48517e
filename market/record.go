package market

import (
	"fmt"
	"time"
)

// Record is a market data record for a single instrument.
type Record interface {
	ID() int
	Time() time.Time
	// Pricing is the price used to mark positions and cost orders.
	Pricing() float64
}

// Bar is an OHLCV bar.
type Bar struct {
	InstrumentID int
	Timestamp    time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
}

func (b Bar) ID() int          { return b.InstrumentID }
func (b Bar) Time() time.Time  { return b.Timestamp }
func (b Bar) Pricing() float64 { return b.Close }

func (b Bar) String() string {
	return fmt.Sprintf("bar[%d %s o=%.4f h=%.4f l=%.4f c=%.4f v=%.0f]",
		b.InstrumentID, b.Timestamp.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close, b.Volume)
}

// Quote is a top-of-book update.
type Quote struct {
	InstrumentID int
	Timestamp    time.Time
	BidPrice     float64
	AskPrice     float64
	BidSize      float64
	AskSize      float64
}

func (q Quote) ID() int         { return q.InstrumentID }
func (q Quote) Time() time.Time { return q.Timestamp }

// Pricing is the mid price.
func (q Quote) Pricing() float64 { return (q.BidPrice + q.AskPrice) / 2 }

func (q Quote) Spread() float64 { return q.AskPrice - q.BidPrice }

// Event is published on the ORDER_BOOK topic after the book applied a record.
type Event struct {
	Timestamp time.Time
	Data      Record
}

// EODEvent marks the end of a trading day.
type EODEvent struct {
	Timestamp time.Time
}
