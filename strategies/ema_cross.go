package strategies

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/midas/indicators"
	"github.com/rustyeddy/midas/market"
	"github.com/rustyeddy/midas/orders"
	log "github.com/sirupsen/logrus"
)

type EMACrossConfig struct {
	Ticker     string  `yaml:"ticker"`
	FastPeriod int     `yaml:"fast_period"`
	SlowPeriod int     `yaml:"slow_period"`
	Quantity   float64 `yaml:"quantity"`
	AllowShort bool    `yaml:"allow_short"`
	// Average is the moving average kind, "ema" or "sma".
	Average string `yaml:"average"`
}

func EMACrossConfigDefaults() *EMACrossConfig {
	return &EMACrossConfig{
		FastPeriod: 10,
		SlowPeriod: 30,
		Quantity:   1,
		AllowShort: true,
		Average:    indicators.EMA,
	}
}

func (c *EMACrossConfig) Validate() error {
	if c.Ticker == "" {
		return fmt.Errorf("%w: ticker is required", ErrInvalidParams)
	}
	if c.FastPeriod <= 0 || c.SlowPeriod <= c.FastPeriod {
		return fmt.Errorf("%w: need 0 < fast_period < slow_period, got %d/%d", ErrInvalidParams, c.FastPeriod, c.SlowPeriod)
	}
	if c.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidParams)
	}
	if c.Average != indicators.EMA && c.Average != indicators.SMA {
		return fmt.Errorf("%w: average must be %q or %q, got %q", ErrInvalidParams, indicators.EMA, indicators.SMA, c.Average)
	}
	return nil
}

// EMACross trades a single instrument on fast/slow moving average
// crossovers, exponential by default.
//   - Enters only on a cross
//   - Reverses on the opposite cross (exit leg then entry leg in one signal)
//   - Without AllowShort a bear cross only exits
type EMACross struct {
	*EMACrossConfig

	instrument int
	positions  Positions

	fast indicators.Indicator
	slow indicators.Indicator

	lastDiff     float64
	haveLastDiff bool

	nextTradeID int
	openTradeID int

	data []Record
	log  *log.Entry
}

func newEMACross(deps Deps, params map[string]any) (Strategy, error) {
	cfg := EMACrossConfigDefaults()
	if err := decodeParams(params, cfg); err != nil {
		return nil, err
	}
	return NewEMACross(cfg, deps)
}

func NewEMACross(cfg *EMACrossConfig, deps Deps) (*EMACross, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Symbols == nil {
		return nil, fmt.Errorf("%w: symbol map is required", ErrInvalidParams)
	}
	sym, err := deps.Symbols.ByTicker(cfg.Ticker)
	if err != nil {
		return nil, err
	}

	fast, err := indicators.NewAverage(cfg.Average, cfg.FastPeriod)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	slow, err := indicators.NewAverage(cfg.Average, cfg.SlowPeriod)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	return &EMACross{
		EMACrossConfig: cfg,
		instrument:     sym.InstrumentID,
		positions:      deps.Positions,
		fast:           fast,
		slow:           slow,
		log:            log.WithFields(log.Fields{"component": "ema-cross", "average": cfg.Average}),
	}, nil
}

func (s *EMACross) Prepare(ctx context.Context) error {
	s.fast.Reset()
	s.slow.Reset()
	s.lastDiff, s.haveLastDiff = 0, false
	s.nextTradeID, s.openTradeID = 0, 0
	s.data = nil
	return nil
}

func (s *EMACross) HandleMarketData(ctx context.Context, ev market.Event) ([]orders.SignalInstruction, error) {
	if ev.Data == nil || ev.Data.ID() != s.instrument {
		return nil, nil
	}

	s.fast.Update(ev.Data)
	s.slow.Update(ev.Data)

	// Wait until both averages are warmed up.
	if !s.fast.Ready() || !s.slow.Ready() {
		return nil, nil
	}

	diff := s.fast.Value() - s.slow.Value()
	s.data = append(s.data, Record{
		Timestamp:  ev.Timestamp,
		Instrument: s.instrument,
		Values: map[string]float64{
			"price": ev.Data.Pricing(),
			"fast":  s.fast.Value(),
			"slow":  s.slow.Value(),
		},
	})

	// Need a previous diff to detect a cross.
	if !s.haveLastDiff {
		s.lastDiff = diff
		s.haveLastDiff = true
		return nil, nil
	}

	bullCross := diff > 0 && s.lastDiff <= 0
	bearCross := diff < 0 && s.lastDiff >= 0
	s.lastDiff = diff

	switch {
	case bullCross:
		return s.onSignal(ev.Timestamp, "BullCross", +1)
	case bearCross:
		return s.onSignal(ev.Timestamp, "BearCross", -1)
	}
	return nil, nil
}

func (s *EMACross) onSignal(ts time.Time, signal string, dir int) ([]orders.SignalInstruction, error) {
	held := s.held()

	// Already positioned in the direction of the cross.
	if (held > 0 && dir > 0) || (held < 0 && dir < 0) {
		return nil, nil
	}

	var legs []orders.SignalInstruction
	if held != 0 {
		exit := orders.Sell
		if held < 0 {
			exit = orders.Cover
		}
		tradeID := s.openTradeID
		if tradeID == 0 {
			tradeID = s.newTradeID()
		}
		leg, err := s.instruction(exit, math.Abs(held), tradeID, 2)
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
		s.openTradeID = 0
	}

	if dir > 0 || s.AllowShort {
		entry := orders.Long
		if dir < 0 {
			entry = orders.Short
		}
		s.openTradeID = s.newTradeID()
		leg, err := s.instruction(entry, s.Quantity, s.openTradeID, 1)
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	if len(legs) == 0 {
		return nil, nil
	}

	s.log.WithFields(log.Fields{
		"signal": signal,
		"time":   ts.Format(time.RFC3339),
		"held":   held,
		"legs":   len(legs),
	}).Info("ema cross")
	return legs, nil
}

func (s *EMACross) instruction(action orders.Action, qty float64, tradeID, legID int) (orders.SignalInstruction, error) {
	return orders.NewSignalInstruction(orders.SignalInstruction{
		Instrument: s.instrument,
		OrderType:  orders.Market,
		Action:     action,
		TradeID:    tradeID,
		LegID:      legID,
		Weight:     1,
		Quantity:   qty,
	})
}

func (s *EMACross) newTradeID() int {
	s.nextTradeID++
	return s.nextTradeID
}

// held is the signed quantity the portfolio reports for the instrument.
func (s *EMACross) held() float64 {
	if s.positions == nil {
		return 0
	}
	p, ok := s.positions.GetPositions()[s.instrument]
	if !ok {
		return 0
	}
	return p.Quantity
}

func (s *EMACross) StrategyData() []Record {
	out := make([]Record, len(s.data))
	copy(out, s.data)
	return out
}
