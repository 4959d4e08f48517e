package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionSide(t *testing.T) {
	tests := []struct {
		action Action
		side   string
		entry  bool
	}{
		{Long, "BUY", true},
		{Cover, "BUY", false},
		{Short, "SELL", true},
		{Sell, "SELL", false},
	}
	for _, tt := range tests {
		side, err := tt.action.BrokerSide()
		require.NoError(t, err)
		assert.Equal(t, tt.side, side)
		assert.Equal(t, tt.entry, tt.action.IsEntry())
	}

	_, err := Action("HOLD").BrokerSide()
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestOrderConstructors(t *testing.T) {
	o, err := NewMarketOrder(Short, 10)
	require.NoError(t, err)
	assert.Equal(t, 10.0, o.TotalQuantity)
	assert.Equal(t, -10.0, o.Quantity())

	o, err = NewMarketOrder(Cover, -3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, o.Quantity())

	_, err = NewMarketOrder(Long, 0)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = NewLimitOrder(Long, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	o, err = NewStopLoss(Sell, 1, 99.5)
	require.NoError(t, err)
	assert.Equal(t, StopLimit, o.Type)
	assert.Equal(t, 99.5, o.AuxPrice)
}

func TestNewSignalInstruction(t *testing.T) {
	base := SignalInstruction{
		Instrument: 1,
		OrderType:  Market,
		Action:     Long,
		TradeID:    1,
		LegID:      1,
		Weight:     0.5,
		Quantity:   10,
	}

	_, err := NewSignalInstruction(base)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*SignalInstruction)
	}{
		{"trade id", func(s *SignalInstruction) { s.TradeID = 0 }},
		{"leg id", func(s *SignalInstruction) { s.LegID = -1 }},
		{"action", func(s *SignalInstruction) { s.Action = "BUY" }},
		{"quantity", func(s *SignalInstruction) { s.Quantity = 0 }},
		{"limit needs price", func(s *SignalInstruction) { s.OrderType = Limit }},
		{"stop needs aux", func(s *SignalInstruction) { s.OrderType = StopLimit }},
		{"negative limit", func(s *SignalInstruction) { s.LimitPrice = -1 }},
		{"order type", func(s *SignalInstruction) { s.OrderType = "MOC" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			si := base
			tt.mutate(&si)
			_, err := NewSignalInstruction(si)
			assert.ErrorIs(t, err, ErrInvalidSignal)
		})
	}
}

func TestToOrder(t *testing.T) {
	si := SignalInstruction{Instrument: 1, OrderType: Limit, Action: Short, TradeID: 1, LegID: 2, Quantity: 5, LimitPrice: 101}
	o, err := si.ToOrder()
	require.NoError(t, err)
	assert.Equal(t, Limit, o.Type)
	assert.Equal(t, "SELL", o.Side)
	assert.Equal(t, 101.0, o.LimitPrice)
	assert.Equal(t, -5.0, o.Quantity())
}

func TestActiveOrderMerge(t *testing.T) {
	o := ActiveOrder{
		PermID:     10,
		ClientID:   1,
		OrderID:    5,
		Status:     PreSubmitted,
		Instrument: Ptr(70),
		Action:     Ptr("BUY"),
		TotalQty:   Ptr(10.0),
		Remaining:  Ptr(10.0),
	}

	o.Merge(ActiveOrder{
		PermID:    10,
		Status:    Submitted,
		Filled:    Ptr(4.0),
		Remaining: Ptr(6.0),
	})

	assert.Equal(t, Submitted, o.Status)
	assert.Equal(t, 1, o.ClientID)
	assert.Equal(t, 5, o.OrderID)
	assert.Equal(t, "BUY", *o.Action)
	assert.Equal(t, 4.0, *o.Filled)
	assert.Equal(t, 6.0, *o.Remaining)
	id, ok := o.InstrumentID()
	assert.True(t, ok)
	assert.Equal(t, 70, id)
}

func TestActiveOrderClone(t *testing.T) {
	o := ActiveOrder{PermID: 1, Filled: Ptr(1.0)}
	c := o.Clone()
	*o.Filled = 2
	assert.Equal(t, 1.0, *c.Filled)
}
