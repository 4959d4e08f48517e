package risk

import (
	"fmt"
	"time"
)

const (
	CodeMarginCall    = "MARGIN_CALL"
	CodeMarginTooHigh = "MARGIN_TOO_HIGH"
	CodeDrawdown      = "DRAWDOWN_LIMIT"
	CodeTooManyOpen   = "TOO_MANY_OPEN_POSITIONS"
)

type Violation struct {
	Code string
	Msg  string
}

// Update is the result of one evaluation, published on RISK_UPDATE.
type Update struct {
	Timestamp  time.Time
	Allowed    bool
	Violations []Violation

	Equity      float64
	PeakEquity  float64
	MarginPct   float64
	DrawdownPct float64
}

func (u *Update) add(code, msg string) {
	u.Violations = append(u.Violations, Violation{Code: code, Msg: msg})
	u.Allowed = false
}

// Has reports whether the update carries a violation with code.
func (u Update) Has(code string) bool {
	for _, v := range u.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

func Evaluate(p Policy, s Snapshot) Update {
	u := Update{
		Timestamp:   s.Timestamp,
		Allowed:     true,
		Equity:      s.NetLiquidation,
		PeakEquity:  s.PeakEquity,
		MarginPct:   MarginPct(s.InitMargin, s.NetLiquidation),
		DrawdownPct: Drawdown(s.PeakEquity, s.NetLiquidation),
	}

	if s.MarginCall {
		u.add(CodeMarginCall, "net liquidation below maintenance margin")
	}

	// Margin cap
	if p.MaxMarginPct > 0 && u.MarginPct > p.MaxMarginPct {
		u.add(CodeMarginTooHigh,
			fmt.Sprintf("margin used %.2f%% exceeds max %.2f%%",
				100*u.MarginPct, 100*p.MaxMarginPct))
	}

	// Exposure constraints
	if p.MaxOpenPositions > 0 && s.OpenPositions > p.MaxOpenPositions {
		u.add(CodeTooManyOpen,
			fmt.Sprintf("open positions %d > max %d", s.OpenPositions, p.MaxOpenPositions))
	}

	// Circuit breaker
	if p.MaxDrawdownPct > 0 && u.DrawdownPct >= p.MaxDrawdownPct {
		u.add(CodeDrawdown,
			fmt.Sprintf("drawdown %.2f%% >= limit %.2f%%", 100*u.DrawdownPct, 100*p.MaxDrawdownPct))
	}

	return u
}
