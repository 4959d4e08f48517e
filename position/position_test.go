package position

import (
	"testing"

	"github.com/rustyeddy/midas/symbol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-6

func newFuture(t *testing.T) *Position {
	t.Helper()
	p, err := New(Position{
		Type:               symbol.Future,
		Action:             Buy,
		Quantity:           5,
		AvgPrice:           80,
		MarketPrice:        90,
		QuantityMultiplier: 40000,
		PriceMultiplier:    0.01,
		InitialMargin:      5000,
		MaintenanceMargin:  4000,
	})
	require.NoError(t, err)
	return p
}

func newEquity(t *testing.T) *Position {
	t.Helper()
	p, err := New(Position{
		Type:               symbol.Stock,
		Action:             Buy,
		Quantity:           100,
		AvgPrice:           10,
		MarketPrice:        20,
		QuantityMultiplier: 1,
		PriceMultiplier:    1,
	})
	require.NoError(t, err)
	return p
}

func assertImpact(t *testing.T, want, got Impact) {
	t.Helper()
	assert.InDelta(t, want.InitMarginRequired, got.InitMarginRequired, eps, "init margin")
	assert.InDelta(t, want.MaintenanceMarginRequired, got.MaintenanceMarginRequired, eps, "maint margin")
	assert.InDelta(t, want.UnrealizedPnL, got.UnrealizedPnL, eps, "unrealized")
	assert.InDelta(t, want.LiquidationValue, got.LiquidationValue, eps, "liquidation")
	assert.InDelta(t, want.Cash, got.Cash, eps, "cash")
}

func TestNewValidation(t *testing.T) {
	base := Position{
		Type:               symbol.Future,
		Action:             Buy,
		Quantity:           1,
		AvgPrice:           1,
		MarketPrice:        1,
		QuantityMultiplier: 1,
		PriceMultiplier:    1,
	}

	tests := []struct {
		name   string
		mutate func(*Position)
	}{
		{"action", func(p *Position) { p.Action = "LONG" }},
		{"quantity multiplier", func(p *Position) { p.QuantityMultiplier = 0 }},
		{"price multiplier", func(p *Position) { p.PriceMultiplier = -1 }},
		{"initial margin", func(p *Position) { p.InitialMargin = -1 }},
		{"maintenance margin", func(p *Position) { p.MaintenanceMargin = -1 }},
		{"type", func(p *Position) { p.Type = "IND" }},
		{"strike", func(p *Position) { p.Type = symbol.Option; p.Right = symbol.Call }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := New(p)
			assert.ErrorIs(t, err, ErrInvalidPosition)
		})
	}
}

func TestFutureConstruction(t *testing.T) {
	p := newFuture(t)
	assert.InDelta(t, 160000.0, p.InitialValue, eps)
	assert.InDelta(t, 25000.0, p.InitialCost, eps)
	assert.InDelta(t, 180000.0, p.MarketValue, eps)
	assert.InDelta(t, 20000.0, p.UnrealizedPnL, eps)
	assert.InDelta(t, 25000.0, p.InitMarginRequired, eps)
	assert.InDelta(t, 20000.0, p.MaintenanceMarginRequired, eps)
	assert.InDelta(t, 45000.0, p.LiquidationValue, eps)
}

func TestFuturePositionImpact(t *testing.T) {
	p := newFuture(t)
	p.Mark(25)

	upl := (25.0 - 80) * 0.01 * 5 * 40000
	assertImpact(t, Impact{
		InitMarginRequired:        25000,
		MaintenanceMarginRequired: 20000,
		UnrealizedPnL:             upl,
		LiquidationValue:          25000 + upl,
		Cash:                      -25000,
	}, p.PositionImpact())
}

func TestFuturePositionImpactIsPure(t *testing.T) {
	p := newFuture(t)
	before := *p
	p.PositionImpact()
	assert.True(t, p.Equal(&before))
}

func TestFutureFullExit(t *testing.T) {
	p := newFuture(t)
	imp := p.Update(-5, 25, 25, Sell)

	assertImpact(t, Impact{
		Cash: 5*5000 + (25.0-80)*0.01*5*40000,
	}, imp)
	assert.Zero(t, p.Quantity)
}

func TestFutureAdd(t *testing.T) {
	p := newFuture(t)
	imp := p.Update(5, 90, 90, Buy)

	// only the original five contracts carry P&L
	upl := (90.0 - 80) * 0.01 * 5 * 40000
	assertImpact(t, Impact{
		InitMarginRequired:        50000,
		MaintenanceMarginRequired: 40000,
		UnrealizedPnL:             upl,
		LiquidationValue:          50000 + upl,
		Cash:                      -25000,
	}, imp)
	assert.InDelta(t, 85.0, p.AvgPrice, eps)
	assert.Equal(t, 10.0, p.Quantity)
}

func TestFuturePartialExit(t *testing.T) {
	p := newFuture(t)
	imp := p.Update(-2, 95, 95, Sell)

	remaining := 3.0
	upl := (95.0 - 80) * 0.01 * remaining * 40000
	realized := (95.0 - 80) * 0.01 * 2 * 40000
	assertImpact(t, Impact{
		InitMarginRequired:        remaining * 5000,
		MaintenanceMarginRequired: remaining * 4000,
		UnrealizedPnL:             upl,
		LiquidationValue:          remaining*5000 + upl,
		Cash:                      2*5000 + realized,
	}, imp)
	assert.Equal(t, 80.0, p.AvgPrice)
	assert.Equal(t, Buy, p.Action)
}

func TestFutureFlip(t *testing.T) {
	p := newFuture(t)
	imp := p.Update(-8, 90, 90, Sell)

	realized := (90.0 - 80) * 0.01 * 5 * 40000
	assertImpact(t, Impact{
		InitMarginRequired:        3 * 5000,
		MaintenanceMarginRequired: 3 * 4000,
		UnrealizedPnL:             0,
		LiquidationValue:          3 * 5000,
		Cash:                      (25000 - 15000) + realized,
	}, imp)
	assert.Equal(t, Sell, p.Action)
	assert.Equal(t, -3.0, p.Quantity)
	assert.Equal(t, 90.0, p.AvgPrice)
}

func TestFlipResetsPnLWhenMarketDiffers(t *testing.T) {
	p := newFuture(t)
	imp := p.Update(-8, 88, 91, Sell)
	assert.Zero(t, imp.UnrealizedPnL)
	assert.Equal(t, 88.0, p.AvgPrice)

	// the next mark picks the market up again
	p.Mark(91)
	assert.InDelta(t, (91.0-88)*0.01*-3*40000, p.UnrealizedPnL, eps)
}

func TestEquityConstruction(t *testing.T) {
	p := newEquity(t)
	assert.Equal(t, 1000.0, p.InitialValue)
	assert.Equal(t, 1000.0, p.InitialCost)
	assert.Equal(t, 2000.0, p.MarketValue)
	assert.Equal(t, 1000.0, p.UnrealizedPnL)
	assert.Zero(t, p.InitMarginRequired)
	assert.Equal(t, 2000.0, p.LiquidationValue)

	assertImpact(t, Impact{UnrealizedPnL: 1000, LiquidationValue: 2000, Cash: -1000}, p.PositionImpact())
}

func TestEquityFullExit(t *testing.T) {
	p := newEquity(t)
	imp := p.Update(-100, 25, 25, Sell)

	assertImpact(t, Impact{UnrealizedPnL: 0, LiquidationValue: 0, Cash: 2500}, imp)
	assert.Zero(t, p.Quantity)
}

func TestEquityAdd(t *testing.T) {
	p := newEquity(t)
	imp := p.Update(100, 20, 20, Buy)

	assert.InDelta(t, 15.0, p.AvgPrice, eps)
	assertImpact(t, Impact{UnrealizedPnL: 1000, LiquidationValue: 4000, Cash: -2000}, imp)
}

func TestEquityPartialExit(t *testing.T) {
	p := newEquity(t)
	imp := p.Update(-40, 25, 25, Sell)

	assert.Equal(t, 10.0, p.AvgPrice)
	assertImpact(t, Impact{
		UnrealizedPnL:    (25.0 - 10) * 60,
		LiquidationValue: 25 * 60,
		Cash:             40 * 25,
	}, imp)
}

func TestEquityFlip(t *testing.T) {
	p := newEquity(t)
	imp := p.Update(-110, 25, 25, Sell)

	assertImpact(t, Impact{UnrealizedPnL: 0, LiquidationValue: -250, Cash: 2750}, imp)
	assert.Equal(t, Sell, p.Action)
	assert.Equal(t, 25.0, p.AvgPrice)
}

func TestActionDecidesSign(t *testing.T) {
	p := newEquity(t)
	p.Update(40, 25, 25, Sell)
	assert.Equal(t, 60.0, p.Quantity)
}

func TestZeroFillOnlyMarks(t *testing.T) {
	p := newEquity(t)
	imp := p.Update(0, 30, 30, Buy)
	assert.Zero(t, imp.Cash)
	assert.Equal(t, 100.0, p.Quantity)
	assert.Equal(t, 30.0, p.MarketPrice)
}

func TestOptionPosition(t *testing.T) {
	p, err := New(Position{
		Type:               symbol.Option,
		Action:             Buy,
		Quantity:           2,
		AvgPrice:           3,
		MarketPrice:        4,
		QuantityMultiplier: 100,
		PriceMultiplier:    1,
		Right:              symbol.Call,
		StrikePrice:        150,
		ExpirationDate:     "2024-06-21",
	})
	require.NoError(t, err)

	assertImpact(t, Impact{UnrealizedPnL: 200, LiquidationValue: 800, Cash: -600}, p.PositionImpact())

	imp := p.Update(-2, 5, 5, Sell)
	assertImpact(t, Impact{Cash: 1000}, imp)
}

func TestFromSymbol(t *testing.T) {
	sym := &symbol.Symbol{
		InstrumentID:       1,
		Type:               symbol.Future,
		InitialMargin:      5000,
		MaintenanceMargin:  4000,
		QuantityMultiplier: 40000,
		PriceMultiplier:    0.01,
	}
	p, err := FromSymbol(sym, -2, 80, 80)
	require.NoError(t, err)
	assert.Equal(t, Sell, p.Action)
	assert.Equal(t, 10000.0, p.InitMarginRequired)
	assert.Zero(t, p.UnrealizedPnL)
}
