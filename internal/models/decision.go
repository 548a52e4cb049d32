package models

import "time"

// DecisionAction is what the AI decision engine resolved to do.
type DecisionAction string

const (
	ActionBuyToEnter  DecisionAction = "buy_to_enter"
	ActionSellToEnter DecisionAction = "sell_to_enter"
	ActionClose       DecisionAction = "close"
	ActionHold        DecisionAction = "hold"
)

// DecisionSource records where a decision came from, for audit and for the
// reasoning-quality metrics in telemetry.
type DecisionSource string

const (
	SourceLLM       DecisionSource = "llm"
	SourceFallback  DecisionSource = "fallback"
	SourceSimulated DecisionSource = "simulated"
)

// MarketRegime classifies the prevailing conditions at decision time; it is
// advisory context attached to a decision, never itself a veto input.
type MarketRegime string

const (
	RegimeTrendingUp     MarketRegime = "TRENDING_UP"
	RegimeTrendingDown   MarketRegime = "TRENDING_DOWN"
	RegimeRanging        MarketRegime = "RANGING"
	RegimeHighVolatility MarketRegime = "HIGH_VOLATILITY"
	RegimeUnknown        MarketRegime = "UNKNOWN"
)

// AIDecision is the engine's output for one tick: a fully formed trade
// intent or a hold, always produced, never an error for an external-facing
// reason (LLM outage, malformed completion, rate limit all degrade to a
// fallback decision rather than propagate up as a failure).
type AIDecision struct {
	DecisionID           string         `json:"decision_id" db:"decision_id"`
	DecisionTime         time.Time      `json:"decision_time" db:"decision_time"`
	AgentID              string         `json:"agent_id" db:"agent_id"`
	Symbol               string         `json:"symbol" db:"symbol"`
	Action               DecisionAction `json:"action" db:"action"`
	Quantity             float64        `json:"quantity" db:"quantity"`
	Leverage             float64        `json:"leverage" db:"leverage"`
	EntryPrice           float64        `json:"entry_price" db:"entry_price"`
	ProfitTarget          float64        `json:"profit_target" db:"profit_target"`
	StopLoss             float64        `json:"stop_loss" db:"stop_loss"`
	Confidence           float64        `json:"confidence" db:"confidence"`
	OpportunityScore     float64        `json:"opportunity_score" db:"opportunity_score"`
	Rationale            string         `json:"rationale" db:"rationale"`
	Source               DecisionSource `json:"source" db:"source"`
	MarketRegime         MarketRegime   `json:"market_regime" db:"market_regime"`
	InvalidationCondition string         `json:"invalidation_condition,omitempty" db:"invalidation_condition"`
}

// IsActionable reports whether the decision requires submitting an order.
func (d AIDecision) IsActionable() bool {
	return d.Action != ActionHold
}

// DecisionRecord is the persisted, append-only audit row for a single
// decision cycle: the decision itself plus the risk verdict it was put
// through and the order intent (if any) that resulted.
type DecisionRecord struct {
	Decision    AIDecision   `json:"decision"`
	RiskVerdict *RiskVerdict `json:"risk_verdict,omitempty"`
	OrderIntent *OrderIntent `json:"order_intent,omitempty"`
	LoggedAt    time.Time    `json:"logged_at"`
}
