package orders

import (
	"errors"
	"fmt"
	"math"

	"github.com/rustyeddy/midas/symbol"
)

var (
	ErrInvalidOrder  = errors.New("invalid order")
	ErrInvalidSignal = errors.New("invalid signal instruction")
)

// Action is the strategy-level intent of an order leg.
type Action string

const (
	Long  Action = "LONG"
	Short Action = "SHORT"
	Sell  Action = "SELL"
	Cover Action = "COVER"
)

// BrokerSide maps an action onto the side the broker sees.
func (a Action) BrokerSide() (string, error) {
	switch a {
	case Long, Cover:
		return "BUY", nil
	case Short, Sell:
		return "SELL", nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidOrder, a)
}

// Side is the slippage side of the action.
func (a Action) Side() symbol.Side {
	if a == Long || a == Cover {
		return symbol.Buy
	}
	return symbol.Sell
}

// IsEntry reports whether the action opens exposure (LONG, SHORT). Entries
// are subject to the capital check; exits are not.
func (a Action) IsEntry() bool {
	return a == Long || a == Short
}

func (a Action) Valid() bool {
	_, err := a.BrokerSide()
	return err == nil
}

type OrderType string

const (
	Market    OrderType = "MKT"
	Limit     OrderType = "LMT"
	StopLimit OrderType = "STPLMT"
)

// Order is a broker-neutral order. TotalQuantity is always positive; the
// direction lives in Side.
type Order struct {
	Type          OrderType
	Action        Action
	Side          string
	TotalQuantity float64
	LimitPrice    float64
	AuxPrice      float64
}

func newOrder(t OrderType, action Action, quantity float64) (Order, error) {
	side, err := action.BrokerSide()
	if err != nil {
		return Order{}, err
	}
	if quantity == 0 {
		return Order{}, fmt.Errorf("%w: quantity must not be zero", ErrInvalidOrder)
	}
	return Order{
		Type:          t,
		Action:        action,
		Side:          side,
		TotalQuantity: math.Abs(quantity),
	}, nil
}

func NewMarketOrder(action Action, quantity float64) (Order, error) {
	return newOrder(Market, action, quantity)
}

func NewLimitOrder(action Action, quantity, limitPrice float64) (Order, error) {
	if limitPrice <= 0 {
		return Order{}, fmt.Errorf("%w: limit price must be greater than zero", ErrInvalidOrder)
	}
	o, err := newOrder(Limit, action, quantity)
	o.LimitPrice = limitPrice
	return o, err
}

// NewStopLoss builds a stop order triggered at auxPrice.
func NewStopLoss(action Action, quantity, auxPrice float64) (Order, error) {
	if auxPrice <= 0 {
		return Order{}, fmt.Errorf("%w: aux price must be greater than zero", ErrInvalidOrder)
	}
	o, err := newOrder(StopLimit, action, quantity)
	o.AuxPrice = auxPrice
	return o, err
}

// Quantity is the signed quantity: positive for BUY, negative for SELL.
func (o Order) Quantity() float64 {
	if o.Side == "SELL" {
		return -o.TotalQuantity
	}
	return o.TotalQuantity
}

func (o Order) String() string {
	return fmt.Sprintf("%s %s %g", o.Type, o.Action, o.TotalQuantity)
}
