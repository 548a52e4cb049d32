// Package analysis defines the shared interfaces technical indicators
// implement; the concrete indicators live in internal/analysis/indicators.
package analysis

import (
	"github.com/cherryquant/orchestrator/internal/models"
)

// Indicator defines the interface for a single-value technical indicator.
type Indicator interface {
	Name() string
	Calculate(candles []models.Candle) ([]float64, error)
	Period() int
}

// MultiValueIndicator defines the interface for indicators that return
// several related series (MACD's line/signal/histogram, Bollinger's three
// bands, stochastic's K/D/J).
type MultiValueIndicator interface {
	Name() string
	Calculate(candles []models.Candle) (map[string][]float64, error)
	Period() int
}
