package decision

import (
	"fmt"
	"strings"

	"github.com/cherryquant/orchestrator/internal/models"
)

// sectorTemplates gives the LLM prompt a sector-specific framing, selected by
// the symbol's commodity category.
var sectorTemplates = map[string]string{
	"black":          "You specialize in ferrous and construction-materials futures (rebar, hot-rolled coil, iron ore, coke, coking coal). Weigh infrastructure demand and steel-mill margins.",
	"metal":          "You specialize in base-metal futures (copper, aluminium, zinc, lead, nickel, tin). Weigh global industrial demand and LME inventory trends.",
	"precious_metal": "You specialize in precious-metal futures (gold, silver). Weigh real yields, dollar strength, and safe-haven flows.",
	"agriculture":    "You specialize in agricultural futures. Weigh seasonal supply, weather, and planting/harvest cycles.",
	"chemical":       "You specialize in chemical and energy-linked futures. Weigh crude oil pass-through and petrochemical spreads.",
	"financial":      "You specialize in financial futures (index, bond). Weigh macro policy and rate expectations.",
}

func sectorTemplateFor(sector string) string {
	if t, ok := sectorTemplates[sector]; ok {
		return t
	}
	return "You are a generalist commodity futures strategist."
}

// schemaBlock documents the required JSON output shape.
const schemaBlock = `Respond with exactly one JSON object, no surrounding text, with these fields:
{
  "action": "buy_to_enter" | "sell_to_enter" | "close" | "hold",
  "quantity": number >= 0,
  "leverage": number in [1, 20],
  "entry_price": number,
  "profit_target": number,
  "stop_loss": number,
  "confidence": number in [0, 1],
  "opportunity_score": number,
  "rationale": string,
  "invalidation_condition": string
}
stop_loss must be on the losing side of entry_price relative to action (below entry for buy_to_enter, above entry for sell_to_enter).`

// buildPrompt assembles the full prompt for one decision cycle.
func buildPrompt(sector string, snapshot models.MarketSnapshot, current models.Position, constraints Constraints) string {
	var b strings.Builder

	fmt.Fprintln(&b, sectorTemplateFor(sector))
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, schemaBlock)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Market snapshot for %s as of %s:\n", snapshot.Symbol, snapshot.Timestamp.Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(&b, "  last=%.4f bid=%.4f ask=%.4f open_interest=%.0f volume_24h=%.0f\n",
		snapshot.LastPrice, snapshot.Bid, snapshot.Ask, snapshot.OpenInterest, snapshot.Volume24h)
	ind := snapshot.Indicators
	fmt.Fprintf(&b, "  ma5=%.4f ma10=%.4f ma20=%.4f ma60=%.4f ema12=%.4f ema26=%.4f\n",
		ind.MA5, ind.MA10, ind.MA20, ind.MA60, ind.EMA12, ind.EMA26)
	fmt.Fprintf(&b, "  macd=%.4f macd_signal=%.4f macd_hist=%.4f rsi14=%.2f\n",
		ind.MACD, ind.MACDSignal, ind.MACDHist, ind.RSI14)
	fmt.Fprintf(&b, "  boll_upper=%.4f boll_mid=%.4f boll_lower=%.4f atr14=%.4f\n",
		ind.BollUpper, ind.BollMid, ind.BollLower, ind.ATR14)
	fmt.Fprintf(&b, "  k=%.2f d=%.2f j=%.2f\n", ind.K, ind.D, ind.J)
	fmt.Fprintln(&b)

	if current.IsFlat() {
		fmt.Fprintln(&b, "Current position: flat")
	} else {
		fmt.Fprintf(&b, "Current position: %s %.4f units @ %.4f entry, leverage %.1fx\n",
			current.Side, current.Quantity, current.EntryPrice, current.Leverage)
	}

	fmt.Fprintf(&b, "Risk constraints: remaining_capital_usd=%.2f confidence_threshold=%.2f\n",
		constraints.RemainingCapitalUSD, constraints.ConfidenceThreshold)

	return b.String()
}

// buildRepairPrompt asks the model to correct a prior reply that failed validation.
func buildRepairPrompt(original string, reply string, validationErr error) string {
	var b strings.Builder
	fmt.Fprintln(&b, original)
	fmt.Fprintln(&b, "---")
	fmt.Fprintln(&b, "Your previous reply failed validation:")
	fmt.Fprintln(&b, reply)
	fmt.Fprintf(&b, "Error: %v\n", validationErr)
	fmt.Fprintln(&b, "Reply again with a single corrected JSON object only.")
	return b.String()
}

// Constraints carries the risk-aware framing the engine injects into the prompt.
type Constraints struct {
	RemainingCapitalUSD float64
	ConfidenceThreshold float64
}
