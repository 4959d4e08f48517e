// Package indicators provides streaming technical indicators for strategies.
package indicators

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/midas/market"
)

var (
	ErrPeriod  = errors.New("invalid period")
	ErrAverage = errors.New("unknown average")
)

// Indicator computes a single streaming value from market records.
// It is deterministic and safe to use in live, replay and backtests.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next record's price.
	Update(r market.Record)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool

	// Value returns the current value, 0 until Ready.
	Value() float64
}

// Moving average kinds accepted by NewAverage.
const (
	SMA = "sma"
	EMA = "ema"
)

// NewAverage returns a streaming moving average of the given kind.
func NewAverage(kind string, period int) (Indicator, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: must be positive, got %d", ErrPeriod, period)
	}
	switch kind {
	case SMA:
		return NewMA(period), nil
	case EMA:
		return NewEMA(period), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrAverage, kind)
}
