// Package marketdata provides the read-only market-data surface the
// orchestrator core consumes: OHLCV snapshots, dominant-contract resolution,
// and recent-return series for correlation analysis.
package marketdata

import (
	"context"
	"time"

	"github.com/cherryquant/orchestrator/internal/models"
)

// Source is the read-only market-data surface a StrategyAgent and the
// PortfolioRiskManager depend on. All calls are cancellable with a deadline;
// staleness is signalled through MarketSnapshot.Timestamp and left to the
// caller to judge.
type Source interface {
	// GetSnapshot returns the latest known OHLCV + indicator snapshot for a
	// symbol/timeframe pair.
	GetSnapshot(ctx context.Context, symbol, timeframe string) (models.MarketSnapshot, error)

	// ResolveDominantContracts expands a commodity code (e.g. "rb") into the
	// currently dominant tradeable contract symbols (e.g. "rb2410").
	ResolveDominantContracts(ctx context.Context, commodity string) ([]string, error)

	// RecentReturns returns the last `window` close-to-close returns for a
	// symbol, used by the risk manager's correlation matrix.
	RecentReturns(ctx context.Context, symbol string, window int) ([]float64, error)
}

// Timeframe constants understood by Source implementations.
const (
	Timeframe1m  = "1m"
	Timeframe5m  = "5m"
	Timeframe15m = "15m"
	Timeframe1h  = "1h"
	Timeframe1d  = "1d"
)

func timeframeDuration(timeframe string) time.Duration {
	switch timeframe {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}
