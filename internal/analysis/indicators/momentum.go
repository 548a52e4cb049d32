package indicators

import (
	"fmt"

	"github.com/cherryquant/orchestrator/internal/models"
)

// RSI calculates the Relative Strength Index.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI_%d", r.period)
}

func (r *RSI) Period() int {
	return r.period
}

func (r *RSI) Calculate(candles []models.Candle) ([]float64, error) {
	if r.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < r.period+1 {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	result := make([]float64, n)
	closes := closePrices(candles)

	gains := make([]float64, n)
	losses := make([]float64, n)

	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := mean(gains[1 : r.period+1])
	avgLoss := mean(losses[1 : r.period+1])

	if avgLoss == 0 {
		result[r.period] = 100
	} else {
		rs := avgGain / avgLoss
		result[r.period] = 100 - (100 / (1 + rs))
	}

	for i := r.period + 1; i < n; i++ {
		avgGain = (avgGain*float64(r.period-1) + gains[i]) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + losses[i]) / float64(r.period)

		if avgLoss == 0 {
			result[i] = 100
		} else {
			rs := avgGain / avgLoss
			result[i] = 100 - (100 / (1 + rs))
		}
	}

	return result, nil
}

// Stochastic calculates the Stochastic Oscillator (%K and %D).
type Stochastic struct {
	kPeriod int
	dPeriod int
	smooth  int
}

// NewStochastic creates a new Stochastic indicator.
func NewStochastic(kPeriod, dPeriod, smooth int) *Stochastic {
	return &Stochastic{
		kPeriod: kPeriod,
		dPeriod: dPeriod,
		smooth:  smooth,
	}
}

func (s *Stochastic) Name() string {
	return fmt.Sprintf("Stochastic_%d_%d_%d", s.kPeriod, s.dPeriod, s.smooth)
}

func (s *Stochastic) Period() int {
	return s.kPeriod + s.dPeriod
}

func (s *Stochastic) Calculate(candles []models.Candle) (map[string][]float64, error) {
	if s.kPeriod <= 0 || s.dPeriod <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < s.Period() {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	highs := highPrices(candles)
	lows := lowPrices(candles)
	closes := closePrices(candles)

	rawK := make([]float64, n)
	percentK := make([]float64, n)
	percentD := make([]float64, n)

	for i := s.kPeriod - 1; i < n; i++ {
		highestHigh := highest(highs[i-s.kPeriod+1 : i+1])
		lowestLow := lowest(lows[i-s.kPeriod+1 : i+1])

		if highestHigh == lowestLow {
			rawK[i] = 50
		} else {
			rawK[i] = 100 * (closes[i] - lowestLow) / (highestHigh - lowestLow)
		}
	}

	if s.smooth > 1 {
		for i := s.kPeriod + s.smooth - 2; i < n; i++ {
			percentK[i] = mean(rawK[i-s.smooth+1 : i+1])
		}
	} else {
		copy(percentK, rawK)
	}

	startIdx := s.kPeriod - 1
	if s.smooth > 1 {
		startIdx = s.kPeriod + s.smooth - 2
	}
	for i := startIdx + s.dPeriod - 1; i < n; i++ {
		percentD[i] = mean(percentK[i-s.dPeriod+1 : i+1])
	}

	return map[string][]float64{
		"percent_k": percentK,
		"percent_d": percentD,
	}, nil
}

// KDJ is the Stochastic-derived K/D/J oscillator, with J = 3K - 2D, common
// in futures charting platforms alongside the plain stochastic.
type KDJ struct {
	stoch *Stochastic
}

// NewKDJ creates a new KDJ indicator over the given %K/%D periods.
func NewKDJ(kPeriod, dPeriod, smooth int) *KDJ {
	return &KDJ{stoch: NewStochastic(kPeriod, dPeriod, smooth)}
}

func (k *KDJ) Name() string {
	return "KDJ"
}

func (k *KDJ) Period() int {
	return k.stoch.Period()
}

func (k *KDJ) Calculate(candles []models.Candle) (map[string][]float64, error) {
	stoch, err := k.stoch.Calculate(candles)
	if err != nil {
		return nil, err
	}

	n := len(candles)
	j := make([]float64, n)
	for i := 0; i < n; i++ {
		j[i] = 3*stoch["percent_k"][i] - 2*stoch["percent_d"][i]
	}

	return map[string][]float64{
		"k": stoch["percent_k"],
		"d": stoch["percent_d"],
		"j": j,
	}, nil
}
