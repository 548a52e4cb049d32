package risk

import "gonum.org/v1/gonum/stat"

// returnsOf converts a price series into percentage returns.
func returnsOf(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return returns
}

// pairwiseCorrelation returns the Pearson correlation between two equal-length
// return series computed from price history, or 0 if there isn't enough
// overlapping history to say anything.
func pairwiseCorrelation(pricesA, pricesB []float64) float64 {
	ra := returnsOf(pricesA)
	rb := returnsOf(pricesB)

	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	if n < 5 {
		return 0
	}
	return stat.Correlation(ra[:n], rb[:n], nil)
}

// correlationMatrix computes pairwise correlation for every symbol pair in
// the given price history map, keyed "symbolA|symbolB" with symbolA < symbolB.
func correlationMatrix(priceHistory map[string][]float64) map[string]float64 {
	symbols := make([]string, 0, len(priceHistory))
	for s := range priceHistory {
		symbols = append(symbols, s)
	}

	out := make(map[string]float64)
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			a, b := symbols[i], symbols[j]
			if a > b {
				a, b = b, a
			}
			out[a+"|"+b] = pairwiseCorrelation(priceHistory[symbols[i]], priceHistory[symbols[j]])
		}
	}
	return out
}
