package risk

import "math"

// MarginPct is the share of equity tied up as initial margin.
func MarginPct(margin, equity float64) float64 {
	if equity <= 0 {
		if margin > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return margin / equity
}

// Drawdown is the fall from peak as a fraction of peak.
func Drawdown(peak, equity float64) float64 {
	if peak <= 0 || equity >= peak {
		return 0
	}
	return (peak - equity) / peak
}
