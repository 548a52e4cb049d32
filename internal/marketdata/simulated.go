package marketdata

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cherryquant/orchestrator/internal/analysis/indicators"
	"github.com/cherryquant/orchestrator/internal/models"
)

// SimulatedSource is a deterministic synthetic Source used for development,
// backtesting harnesses, and tests: it generates a random-walk candle series
// per symbol seeded from the symbol name, so repeated calls for the same
// symbol are reproducible within a process run.
type SimulatedSource struct {
	mu      sync.Mutex
	rngs    map[string]*rand.Rand
	candles map[string][]models.Candle
	engine  *indicators.Engine

	basePrice  float64
	volatility float64
	barsSeeded int
}

// NewSimulatedSource creates a simulated market-data source. basePrice seeds
// new symbols' starting price; volatility is the per-bar log-return standard
// deviation; barsSeeded is how much history to materialize on first touch.
func NewSimulatedSource(basePrice, volatility float64, barsSeeded int) *SimulatedSource {
	if basePrice <= 0 {
		basePrice = 3500.0
	}
	if volatility <= 0 {
		volatility = 0.01
	}
	if barsSeeded < 120 {
		barsSeeded = 120
	}

	eng := indicators.NewEngine(4)
	eng.RegisterIndicator(indicators.NewSMA(5))
	eng.RegisterIndicator(indicators.NewSMA(10))
	eng.RegisterIndicator(indicators.NewSMA(20))
	eng.RegisterIndicator(indicators.NewSMA(60))
	eng.RegisterIndicator(indicators.NewEMA(12))
	eng.RegisterIndicator(indicators.NewEMA(26))
	eng.RegisterIndicator(indicators.NewRSI(14))
	eng.RegisterIndicator(indicators.NewATR(14))
	eng.RegisterMultiIndicator(indicators.NewMACD(12, 26, 9))
	eng.RegisterMultiIndicator(indicators.NewBollingerBands(20, 2.0))
	eng.RegisterMultiIndicator(indicators.NewKDJ(14, 3, 3))

	return &SimulatedSource{
		rngs:       make(map[string]*rand.Rand),
		candles:    make(map[string][]models.Candle),
		engine:     eng,
		basePrice:  basePrice,
		volatility: volatility,
		barsSeeded: barsSeeded,
	}
}

func symbolSeed(symbol string) int64 {
	var h int64 = 1469598103934665603
	for _, c := range symbol {
		h ^= int64(c)
		h *= 1099511628211
	}
	return h
}

// seriesFor returns the candle history for a symbol at the given timeframe,
// generating and caching it on first access and appending one fresh bar on
// every subsequent call.
func (s *SimulatedSource) seriesFor(symbol, timeframe string) []models.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()

	step := timeframeDuration(timeframe)
	rng, ok := s.rngs[symbol]
	if !ok {
		rng = rand.New(rand.NewSource(symbolSeed(symbol)))
		s.rngs[symbol] = rng
		s.candles[symbol] = generateSeries(symbol, rng, s.basePrice, s.volatility, s.barsSeeded, step)
		return s.candles[symbol]
	}

	existing := s.candles[symbol]
	last := existing[len(existing)-1]
	next := nextCandle(rng, last, s.volatility, step)
	existing = append(existing, next)
	s.candles[symbol] = existing
	return existing
}

func generateSeries(symbol string, rng *rand.Rand, basePrice, volatility float64, n int, step time.Duration) []models.Candle {
	candles := make([]models.Candle, 0, n)
	start := time.Now().Add(-time.Duration(n) * step)
	prev := models.Candle{Symbol: symbol, Timestamp: start, Open: basePrice, High: basePrice, Low: basePrice, Close: basePrice}
	candles = append(candles, prev)
	for i := 1; i < n; i++ {
		prev = nextCandle(rng, prev, volatility, step)
		candles = append(candles, prev)
	}
	return candles
}

func nextCandle(rng *rand.Rand, prev models.Candle, volatility float64, step time.Duration) models.Candle {
	logReturn := rng.NormFloat64() * volatility
	open := prev.Close
	closePrice := open * math.Exp(logReturn)
	high := math.Max(open, closePrice) * (1 + rng.Float64()*volatility*0.5)
	low := math.Min(open, closePrice) * (1 - rng.Float64()*volatility*0.5)
	volume := 5000 + rng.Float64()*20000
	return models.Candle{
		Symbol:    prev.Symbol,
		Timestamp: prev.Timestamp.Add(step),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		OpenInt:   prev.OpenInt,
	}
}

// GetSnapshot returns the latest snapshot, computing the indicator set over
// the cached history via the parallel indicator engine.
func (s *SimulatedSource) GetSnapshot(ctx context.Context, symbol, timeframe string) (models.MarketSnapshot, error) {
	candles := s.seriesFor(symbol, timeframe)
	last := candles[len(candles)-1]

	single, multi, err := s.engine.CalculateAll(ctx, candles)
	if err != nil {
		return models.MarketSnapshot{}, err
	}

	ind := models.Indicators{
		MA5:   lastOf(single["SMA_5"]),
		MA10:  lastOf(single["SMA_10"]),
		MA20:  lastOf(single["SMA_20"]),
		MA60:  lastOf(single["SMA_60"]),
		EMA12: lastOf(single["EMA_12"]),
		EMA26: lastOf(single["EMA_26"]),
		RSI14: lastOf(single["RSI_14"]),
		ATR14: lastOf(single["ATR_14"]),
	}
	if macd, ok := multi["MACD_12_26_9"]; ok {
		ind.MACD = lastOf(macd["macd"])
		ind.MACDSignal = lastOf(macd["signal"])
		ind.MACDHist = lastOf(macd["histogram"])
	}
	if bb, ok := multi["BollingerBands_20_2.0"]; ok {
		ind.BollUpper = lastOf(bb["upper"])
		ind.BollMid = lastOf(bb["middle"])
		ind.BollLower = lastOf(bb["lower"])
	}
	if kdj, ok := multi["KDJ"]; ok {
		ind.K = lastOf(kdj["k"])
		ind.D = lastOf(kdj["d"])
		ind.J = lastOf(kdj["j"])
	}

	recent := candles
	if len(recent) > 200 {
		recent = recent[len(recent)-200:]
	}

	return models.MarketSnapshot{
		Symbol:        symbol,
		Timestamp:     last.Timestamp,
		LastPrice:     last.Close,
		Bid:           last.Close * 0.9995,
		Ask:           last.Close * 1.0005,
		OpenInterest:  last.OpenInt,
		Volume24h:     last.Volume,
		Indicators:    ind,
		RecentCandles: recent,
	}, nil
}

func lastOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

// ResolveDominantContracts expands a commodity code into its currently
// dominant contract symbol. The simulated source treats every commodity as
// having a single active contract named after the commodity code itself,
// since simulated history doesn't model contract roll.
func (s *SimulatedSource) ResolveDominantContracts(ctx context.Context, commodity string) ([]string, error) {
	return []string{fmt.Sprintf("%s-dom", commodity)}, nil
}

// RecentReturns returns the last `window` close-to-close simple returns,
// (close - previous close) / previous close.
func (s *SimulatedSource) RecentReturns(ctx context.Context, symbol string, window int) ([]float64, error) {
	candles := s.seriesFor(symbol, Timeframe5m)
	if len(candles) < 2 {
		return nil, nil
	}
	if window <= 0 || window > len(candles)-1 {
		window = len(candles) - 1
	}
	start := len(candles) - window
	returns := make([]float64, 0, window)
	for i := start; i < len(candles); i++ {
		if i == 0 {
			continue
		}
		prevClose := candles[i-1].Close
		if prevClose == 0 {
			continue
		}
		returns = append(returns, (candles[i].Close-prevClose)/prevClose)
	}
	return returns, nil
}

var _ Source = (*SimulatedSource)(nil)
