package decision

import "github.com/cherryquant/orchestrator/internal/models"

// fallbackPositionFraction is the share of remaining capital the rule-based
// fallback commits to a new entry. The LLM path sizes from the same
// remaining-capital constraint via the prompt; the fallback has no model to
// ask, so it takes a fixed conservative slice instead.
const fallbackPositionFraction = 0.1

// fallbackQuantity sizes a fallback entry off the capital still available to
// the agent. Close decisions are re-sized to the open position by the
// caller, and a hold never reaches the broker, so only entries need a figure
// here.
func fallbackQuantity(action models.DecisionAction, price, remainingCapitalUSD float64) float64 {
	if action != models.ActionBuyToEnter && action != models.ActionSellToEnter {
		return 0
	}
	if price <= 0 || remainingCapitalUSD <= 0 {
		return 0
	}
	return (remainingCapitalUSD * fallbackPositionFraction) / price
}

// fallbackDecide produces a deterministic rule-based decision from the
// snapshot's indicator set when the LLM path is unavailable or exhausted.
// It always returns a well-formed decision; if the indicators needed for a
// confident read are missing (zero-valued, meaning "not enough history"),
// it returns hold with zero confidence.
func fallbackDecide(snapshot models.MarketSnapshot, current models.Position) (action models.DecisionAction, confidence float64, rationale string) {
	ind := snapshot.Indicators

	if ind.MA20 == 0 || ind.MA60 == 0 || ind.RSI14 == 0 || ind.BollUpper == ind.BollLower {
		return models.ActionHold, 0, "insufficient indicator history for a fallback read"
	}

	trendUp := ind.MA20 > ind.MA60 && ind.MACDHist > 0
	trendDown := ind.MA20 < ind.MA60 && ind.MACDHist < 0

	switch {
	case !current.IsFlat() && current.Side == models.SideBuy && trendDown:
		return models.ActionClose, 0.55, "MA20/MA60 and MACD turned bearish against an open long"
	case !current.IsFlat() && current.Side == models.SideSell && trendUp:
		return models.ActionClose, 0.55, "MA20/MA60 and MACD turned bullish against an open short"
	case !current.IsFlat():
		return models.ActionHold, 0.3, "existing position, no reversal signal"
	case trendUp && ind.RSI14 < 70 && snapshot.LastPrice < ind.BollUpper:
		return models.ActionBuyToEnter, 0.45, "uptrend confirmed by MA crossover and MACD, RSI and Bollinger not overbought"
	case trendDown && ind.RSI14 > 30 && snapshot.LastPrice > ind.BollLower:
		return models.ActionSellToEnter, 0.45, "downtrend confirmed by MA crossover and MACD, RSI and Bollinger not oversold"
	case ind.RSI14 >= 70:
		return models.ActionHold, 0.2, "RSI overbought, avoiding new longs"
	case ind.RSI14 <= 30:
		return models.ActionHold, 0.2, "RSI oversold, avoiding new shorts"
	default:
		return models.ActionHold, 0.15, "no trend or extreme reading"
	}
}
