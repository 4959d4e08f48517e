package symbol

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// SecurityType discriminates the Symbol variants.
type SecurityType string

const (
	Stock  SecurityType = "STK"
	Future SecurityType = "FUT"
	Option SecurityType = "OPT"
)

// Right is the option right.
type Right string

const (
	Call Right = "CALL"
	Put  Right = "PUT"
)

var (
	ErrInvalidSymbol  = errors.New("invalid symbol")
	ErrInvalidSession = errors.New("invalid trading session")
)

// Side is what the slippage model needs to know about an order: whether it
// buys (LONG, COVER) or sells (SHORT, SELL).
type Side int

const (
	Buy Side = iota
	Sell
)

// EquityData holds the equity-only fields.
type EquityData struct {
	CompanyName       string  `json:"company_name" yaml:"company_name"`
	Industry          string  `json:"industry" yaml:"industry"`
	MarketCap         float64 `json:"market_cap" yaml:"market_cap"`
	SharesOutstanding int64   `json:"shares_outstanding" yaml:"shares_outstanding"`
}

// FutureData holds the futures-only fields.
type FutureData struct {
	ProductCode                  string  `json:"product_code" yaml:"product_code"`
	ProductName                  string  `json:"product_name" yaml:"product_name"`
	Industry                     string  `json:"industry" yaml:"industry"`
	ContractSize                 float64 `json:"contract_size" yaml:"contract_size"`
	ContractUnits                string  `json:"contract_units" yaml:"contract_units"`
	TickSize                     float64 `json:"tick_size" yaml:"tick_size"`
	MinPriceFluctuation          float64 `json:"min_price_fluctuation" yaml:"min_price_fluctuation"`
	Continuous                   bool    `json:"continuous" yaml:"continuous"`
	LastTradeDateOrContractMonth string  `json:"last_trade_date" yaml:"last_trade_date"`
	ExpiryMonths                 []int   `json:"expiry_months,omitempty" yaml:"expiry_months,omitempty"`
	TermDayRule                  string  `json:"term_day_rule,omitempty" yaml:"term_day_rule,omitempty"`
}

// OptionData holds the option-only fields.
type OptionData struct {
	StrikePrice                  float64 `json:"strike_price" yaml:"strike_price"`
	ExpirationDate               string  `json:"expiration_date" yaml:"expiration_date"`
	Right                        Right   `json:"right" yaml:"right"`
	ContractSize                 float64 `json:"contract_size" yaml:"contract_size"`
	UnderlyingName               string  `json:"underlying_name" yaml:"underlying_name"`
	LastTradeDateOrContractMonth string  `json:"last_trade_date" yaml:"last_trade_date"`
}

// Symbol is the static description of a tradable instrument. Exactly one of
// Equity, Future or Option is set and it matches Type.
type Symbol struct {
	InstrumentID       int            `json:"instrument_id" yaml:"instrument_id"`
	BrokerTicker       string         `json:"broker_ticker" yaml:"broker_ticker"`
	DataTicker         string         `json:"data_ticker" yaml:"data_ticker"`
	DisplayTicker      string         `json:"midas_ticker" yaml:"midas_ticker"`
	Type               SecurityType   `json:"security_type" yaml:"security_type"`
	Currency           string         `json:"currency" yaml:"currency"`
	Exchange           string         `json:"exchange" yaml:"exchange"`
	Fees               float64        `json:"fees" yaml:"fees"`
	InitialMargin      float64        `json:"initial_margin" yaml:"initial_margin"`
	MaintenanceMargin  float64        `json:"maintenance_margin" yaml:"maintenance_margin"`
	QuantityMultiplier float64        `json:"quantity_multiplier" yaml:"quantity_multiplier"`
	PriceMultiplier    float64        `json:"price_multiplier" yaml:"price_multiplier"`
	SlippageFactor     float64        `json:"slippage_factor" yaml:"slippage_factor"`
	Session            TradingSession `json:"trading_session" yaml:"trading_session"`

	Equity *EquityData `json:"equity,omitempty" yaml:"equity,omitempty"`
	Future *FutureData `json:"future,omitempty" yaml:"future,omitempty"`
	Option *OptionData `json:"option,omitempty" yaml:"option,omitempty"`
}

// Validate checks the construction invariants of the symbol.
func (s *Symbol) Validate() error {
	if s.InstrumentID <= 0 {
		return fmt.Errorf("%w: instrument_id must be positive", ErrInvalidSymbol)
	}
	if s.BrokerTicker == "" {
		return fmt.Errorf("%w: broker_ticker is required", ErrInvalidSymbol)
	}
	if s.DataTicker == "" {
		s.DataTicker = s.BrokerTicker
	}
	if s.DisplayTicker == "" {
		s.DisplayTicker = s.BrokerTicker
	}
	if s.Fees < 0 {
		return fmt.Errorf("%w: %s: fees cannot be negative", ErrInvalidSymbol, s.BrokerTicker)
	}
	if s.InitialMargin < 0 || s.MaintenanceMargin < 0 {
		return fmt.Errorf("%w: %s: margins must be non-negative", ErrInvalidSymbol, s.BrokerTicker)
	}
	if s.QuantityMultiplier <= 0 || s.PriceMultiplier <= 0 {
		return fmt.Errorf("%w: %s: multipliers must be greater than zero", ErrInvalidSymbol, s.BrokerTicker)
	}
	if s.SlippageFactor < 0 {
		return fmt.Errorf("%w: %s: slippage_factor must be non-negative", ErrInvalidSymbol, s.BrokerTicker)
	}
	if err := s.Session.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSymbol, s.BrokerTicker, err)
	}

	switch s.Type {
	case Stock:
		if s.Equity == nil {
			s.Equity = &EquityData{}
		}
	case Future:
		if s.Future == nil {
			return fmt.Errorf("%w: %s: future data is required", ErrInvalidSymbol, s.BrokerTicker)
		}
		if s.Future.TickSize <= 0 {
			return fmt.Errorf("%w: %s: tick_size must be greater than zero", ErrInvalidSymbol, s.BrokerTicker)
		}
	case Option:
		if s.Option == nil {
			return fmt.Errorf("%w: %s: option data is required", ErrInvalidSymbol, s.BrokerTicker)
		}
		if s.Option.StrikePrice <= 0 {
			return fmt.Errorf("%w: %s: strike_price must be greater than zero", ErrInvalidSymbol, s.BrokerTicker)
		}
		if s.Option.Right != Call && s.Option.Right != Put {
			return fmt.Errorf("%w: %s: unknown option right %q", ErrInvalidSymbol, s.BrokerTicker, s.Option.Right)
		}
	default:
		return fmt.Errorf("%w: %s: unknown security type %q", ErrInvalidSymbol, s.BrokerTicker, s.Type)
	}
	return nil
}

// Value is the signed notional value of quantity at price.
func (s *Symbol) Value(quantity, price float64) float64 {
	return quantity * price * s.QuantityMultiplier * s.PriceMultiplier
}

// Cost is the capital needed to hold quantity at price: the full notional
// for equities and options, the initial margin for futures.
func (s *Symbol) Cost(quantity, price float64) float64 {
	switch s.Type {
	case Future:
		return math.Abs(quantity) * s.InitialMargin
	default:
		return math.Abs(quantity) * price * s.QuantityMultiplier * s.PriceMultiplier
	}
}

// CommissionFees returns the (negative) commission for quantity units.
func (s *Symbol) CommissionFees(quantity float64) float64 {
	return -math.Abs(quantity) * s.Fees
}

// SlippagePrice moves price against the order by the slippage factor.
func (s *Symbol) SlippagePrice(price float64, side Side) float64 {
	if side == Buy {
		return price + s.SlippageFactor
	}
	return price - s.SlippageFactor
}

// InDaySession reports whether t falls inside the day session, inclusive.
func (s *Symbol) InDaySession(t time.Time) bool {
	if !s.Session.hasDay() {
		return false
	}
	tod := timeOfDay(t)
	return s.Session.DayOpen.d <= tod && tod <= s.Session.DayClose.d
}

// AfterDaySession reports whether t is past the day session close.
func (s *Symbol) AfterDaySession(t time.Time) bool {
	if !s.Session.hasDay() {
		return false
	}
	return timeOfDay(t) > s.Session.DayClose.d
}

func (s Symbol) String() string {
	return fmt.Sprintf("%s(%d,%s)", s.DisplayTicker, s.InstrumentID, s.Type)
}
