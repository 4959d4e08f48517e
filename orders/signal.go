package orders

import (
	"fmt"
)

// SignalInstruction is one leg of a strategy signal.
type SignalInstruction struct {
	Instrument int
	OrderType  OrderType
	Action     Action
	TradeID    int
	LegID      int
	Weight     float64
	Quantity   float64
	LimitPrice float64
	AuxPrice   float64
}

// NewSignalInstruction validates the fields that ToOrder depends on.
func NewSignalInstruction(si SignalInstruction) (SignalInstruction, error) {
	if si.Instrument <= 0 {
		return si, fmt.Errorf("%w: instrument must be positive", ErrInvalidSignal)
	}
	if !si.Action.Valid() {
		return si, fmt.Errorf("%w: unknown action %q", ErrInvalidSignal, si.Action)
	}
	if si.TradeID <= 0 {
		return si, fmt.Errorf("%w: trade_id must be greater than zero", ErrInvalidSignal)
	}
	if si.LegID <= 0 {
		return si, fmt.Errorf("%w: leg_id must be greater than zero", ErrInvalidSignal)
	}
	if si.Quantity == 0 {
		return si, fmt.Errorf("%w: quantity must not be zero", ErrInvalidSignal)
	}
	if si.LimitPrice < 0 || si.AuxPrice < 0 {
		return si, fmt.Errorf("%w: prices must be greater than zero", ErrInvalidSignal)
	}

	switch si.OrderType {
	case Market:
	case Limit:
		if si.LimitPrice == 0 {
			return si, fmt.Errorf("%w: limit_price is required for %s", ErrInvalidSignal, Limit)
		}
	case StopLimit:
		if si.AuxPrice == 0 {
			return si, fmt.Errorf("%w: aux_price is required for %s", ErrInvalidSignal, StopLimit)
		}
	default:
		return si, fmt.Errorf("%w: unknown order type %q", ErrInvalidSignal, si.OrderType)
	}
	return si, nil
}

// ToOrder builds the order for this instruction.
func (si SignalInstruction) ToOrder() (Order, error) {
	switch si.OrderType {
	case Market:
		return NewMarketOrder(si.Action, si.Quantity)
	case Limit:
		return NewLimitOrder(si.Action, si.Quantity, si.LimitPrice)
	case StopLimit:
		return NewStopLoss(si.Action, si.Quantity, si.AuxPrice)
	}
	return Order{}, fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, si.OrderType)
}

func (si SignalInstruction) String() string {
	return fmt.Sprintf("instrument=%d %s %s qty=%g trade=%d leg=%d",
		si.Instrument, si.OrderType, si.Action, si.Quantity, si.TradeID, si.LegID)
}
