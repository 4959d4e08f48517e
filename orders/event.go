package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/midas/symbol"
)

var ErrEmptySignal = errors.New("signal has no instructions")

// SignalEvent is a strategy's request to trade one or more legs together.
type SignalEvent struct {
	Timestamp    time.Time
	Instructions []SignalInstruction
}

func NewSignalEvent(ts time.Time, instructions []SignalInstruction) (SignalEvent, error) {
	if len(instructions) == 0 {
		return SignalEvent{}, ErrEmptySignal
	}
	return SignalEvent{Timestamp: ts, Instructions: instructions}, nil
}

// Instruments returns the instrument ids the signal touches.
func (s SignalEvent) Instruments() []int {
	out := make([]int, 0, len(s.Instructions))
	for _, si := range s.Instructions {
		out = append(out, si.Instrument)
	}
	return out
}

// OrderEvent asks the broker to place Order for Symbol.
type OrderEvent struct {
	Timestamp time.Time
	TradeID   int
	LegID     int
	Action    Action
	Symbol    *symbol.Symbol
	Order     Order
}

func (e OrderEvent) String() string {
	return fmt.Sprintf("order[%s trade=%d leg=%d %s]", e.Symbol.DisplayTicker, e.TradeID, e.LegID, e.Order)
}

// CancelEvent asks the broker to cancel a working order.
type CancelEvent struct {
	Timestamp time.Time
	PermID    int
}
