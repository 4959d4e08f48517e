package indicators

import (
	"testing"
	"time"

	"github.com/rustyeddy/midas/market"
	"github.com/stretchr/testify/assert"
)

func bars(prices ...float64) []market.Record {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Record, len(prices))
	for i, p := range prices {
		out[i] = market.Bar{InstrumentID: 1, Timestamp: base.Add(time.Duration(i) * time.Hour), Close: p}
	}
	return out
}

func TestSimpleMAStreaming(t *testing.T) {
	records := bars(closes...)

	t.Run("basic functionality", func(t *testing.T) {
		ma := NewMA(3)
		assert.Equal(t, "MA(3)", ma.Name())
		assert.Equal(t, 3, ma.Warmup())
		assert.False(t, ma.Ready())
		assert.Equal(t, 0.0, ma.Value())

		ma.Update(records[0])
		ma.Update(records[1])
		assert.False(t, ma.Ready())

		ma.Update(records[2])
		assert.True(t, ma.Ready())
		assert.InDelta(t, (102.0+105.0+106.0)/3.0, ma.Value(), 0.001)

		// window slides
		ma.Update(records[3])
		assert.InDelta(t, (105.0+106.0+108.0)/3.0, ma.Value(), 0.001)
	})

	t.Run("reset", func(t *testing.T) {
		ma := NewMA(2)
		ma.Update(records[0])
		ma.Update(records[1])
		assert.True(t, ma.Ready())

		ma.Reset()
		assert.False(t, ma.Ready())
		assert.Equal(t, 0.0, ma.Value())
	})
}

func TestExponentialMAStreaming(t *testing.T) {
	records := bars(closes...)

	t.Run("basic functionality", func(t *testing.T) {
		ema := NewEMA(3)
		assert.Equal(t, "EMA(3)", ema.Name())
		assert.Equal(t, 3, ema.Warmup())
		assert.False(t, ema.Ready())

		ema.Update(records[0])
		ema.Update(records[1])
		assert.False(t, ema.Ready())
		assert.Equal(t, 0.0, ema.Value())

		// seeded with the simple average
		ema.Update(records[2])
		assert.True(t, ema.Ready())
		seed := (102.0 + 105.0 + 106.0) / 3.0
		assert.InDelta(t, seed, ema.Value(), 0.001)

		// multiplier = 2/(3+1) = 0.5
		ema.Update(records[3])
		assert.InDelta(t, (108.0-seed)*0.5+seed, ema.Value(), 0.001)
	})

	t.Run("quotes use the mid price", func(t *testing.T) {
		ema := NewEMA(1)
		ema.Update(market.Quote{InstrumentID: 1, BidPrice: 99, AskPrice: 101})
		assert.InDelta(t, 100.0, ema.Value(), 0.001)
	})

	t.Run("reset", func(t *testing.T) {
		ema := NewEMA(2)
		ema.Update(records[0])
		ema.Update(records[1])
		assert.True(t, ema.Ready())

		ema.Reset()
		assert.False(t, ema.Ready())
		assert.Equal(t, 0.0, ema.Value())
	})
}

// batch averages over a whole price slice, for cross-checking the
// streaming versions.
func batchMA(prices []float64, period int) float64 {
	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period)
}

func batchEMA(prices []float64, period int) float64 {
	k := 2.0 / float64(period+1)
	ema := 0.0
	for _, p := range prices[:period] {
		ema += p
	}
	ema /= float64(period)
	for _, p := range prices[period:] {
		ema = (p-ema)*k + ema
	}
	return ema
}

func TestStreamingMatchesBatch(t *testing.T) {
	var _ Indicator = &SimpleMA{}
	var _ Indicator = &ExponentialMA{}

	for _, period := range []int{1, 3, 5, 10} {
		ma, ema := NewMA(period), NewEMA(period)
		for _, r := range bars(closes...) {
			ma.Update(r)
			ema.Update(r)
		}

		assert.InDelta(t, batchMA(closes, period), ma.Value(), 0.001, ma.Name())
		assert.InDelta(t, batchEMA(closes, period), ema.Value(), 0.001, ema.Name())
	}
}
