package risk

import "time"

// Policy holds the account-level limits the monitor enforces. A zero limit
// is disabled.
type Policy struct {
	// Exposure limits
	MaxMarginPct     float64 // 0.50: initial margin / net liquidation
	MaxOpenPositions int     // 5

	// Circuit breakers
	MaxDrawdownPct float64 // 0.20: from the equity peak
}

// Snapshot is what the monitor knows about the account when it evaluates.
type Snapshot struct {
	Timestamp      time.Time
	NetLiquidation float64
	InitMargin     float64
	PeakEquity     float64
	OpenPositions  int
	MarginCall     bool
}
