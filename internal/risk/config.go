package risk

// Config holds the limits the Portfolio Risk Manager enforces. Limits that
// bound size (MaxTotalCapitalUsage, MaxSingleTradeExposure) cause an order
// intent's quantity to be shrunk to the largest size that still fits; every
// other limit is a veto — the order is refused outright rather than resized,
// since there is no quantity that makes a correlation breach, a sector
// concentration breach, a leverage breach, or a drawdown halt acceptable.
type Config struct {
	TotalCapitalUSD float64

	// MaxTotalCapitalUsage caps the fraction of TotalCapitalUSD that may be
	// deployed across all agents at once. Size constraint: shrinks.
	MaxTotalCapitalUsage float64

	// MaxSingleTradeExposure caps the notional of any one order as a
	// fraction of TotalCapitalUSD. Size constraint: shrinks.
	MaxSingleTradeExposure float64

	// MaxLeverage is the hard ceiling on any position's leverage. Veto.
	MaxLeverage float64

	// MaxCorrelation is the ceiling on pairwise return correlation between
	// an agent's symbol and any symbol already carrying a position. Veto.
	MaxCorrelation float64

	// MaxSectorExposure caps the fraction of deployed capital in any one
	// commodity sector (from the pool registry). Veto.
	MaxSectorExposure float64

	// DrawdownHaltPercent is the realized+unrealized drawdown from peak
	// equity, as a fraction, at which the kill switch trips and every agent
	// is halted. Veto (via the halted flag) once tripped.
	DrawdownHaltPercent float64

	// VolatilityHighATRRatio is carried through from configuration, but the
	// Manager does not read it: SizeMultiplierForVolatility scales sizing by
	// fixed ATR14/price buckets (below 0.01, 0.02, 0.03, 0.04, and above),
	// whatever this field holds.
	VolatilityHighATRRatio float64
}

// DefaultConfig returns conservative defaults suitable for paper trading.
func DefaultConfig() Config {
	return Config{
		TotalCapitalUSD:        100000,
		MaxTotalCapitalUsage:   0.75,
		MaxSingleTradeExposure: 0.15,
		MaxLeverage:            5.0,
		MaxCorrelation:         0.85,
		MaxSectorExposure:      0.40,
		DrawdownHaltPercent:    0.20,
		VolatilityHighATRRatio: 0.04,
	}
}
