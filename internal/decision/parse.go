package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cherryquant/orchestrator/internal/models"
)

// rawDecision mirrors the JSON schema the prompt asks the LLM for.
type rawDecision struct {
	Action                string  `json:"action"`
	Quantity               float64 `json:"quantity"`
	Leverage               float64 `json:"leverage"`
	EntryPrice             float64 `json:"entry_price"`
	ProfitTarget           float64 `json:"profit_target"`
	StopLoss               float64 `json:"stop_loss"`
	Confidence             float64 `json:"confidence"`
	OpportunityScore       float64 `json:"opportunity_score"`
	Rationale              string  `json:"rationale"`
	InvalidationCondition  string  `json:"invalidation_condition"`
}

var validActions = map[string]models.DecisionAction{
	"buy_to_enter":  models.ActionBuyToEnter,
	"sell_to_enter": models.ActionSellToEnter,
	"close":         models.ActionClose,
	"hold":          models.ActionHold,
}

// extractJSON pulls the first top-level JSON object out of a reply that may
// contain surrounding prose or markdown fencing.
func extractJSON(reply string) (string, error) {
	start := strings.IndexByte(reply, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in reply")
	}
	depth := 0
	for i := start; i < len(reply); i++ {
		switch reply[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return reply[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object in reply")
}

// parseAndValidate extracts, unmarshals, and validates a raw LLM reply
// against the AIDecision schema and invariants described in the prompt.
func parseAndValidate(reply string) (rawDecision, error) {
	var rd rawDecision

	obj, err := extractJSON(reply)
	if err != nil {
		return rd, err
	}
	if err := json.Unmarshal([]byte(obj), &rd); err != nil {
		return rd, fmt.Errorf("invalid JSON: %w", err)
	}

	if _, ok := validActions[rd.Action]; !ok {
		return rd, fmt.Errorf("invalid action %q", rd.Action)
	}
	if rd.Confidence < 0 || rd.Confidence > 1 {
		return rd, fmt.Errorf("confidence %.4f out of [0,1]", rd.Confidence)
	}
	if rd.Action != "hold" && rd.Action != "close" {
		if rd.Leverage < 1 || rd.Leverage > 20 {
			return rd, fmt.Errorf("leverage %.4f out of [1,20]", rd.Leverage)
		}
		if rd.Quantity < 0 {
			return rd, fmt.Errorf("quantity %.4f is negative", rd.Quantity)
		}
		if rd.Action == "buy_to_enter" && rd.StopLoss >= rd.EntryPrice {
			return rd, fmt.Errorf("stop_loss %.4f must be below entry_price %.4f for buy_to_enter", rd.StopLoss, rd.EntryPrice)
		}
		if rd.Action == "sell_to_enter" && rd.StopLoss <= rd.EntryPrice && rd.StopLoss != 0 {
			return rd, fmt.Errorf("stop_loss %.4f must be above entry_price %.4f for sell_to_enter", rd.StopLoss, rd.EntryPrice)
		}
	}

	return rd, nil
}
