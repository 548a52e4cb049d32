package models

import "time"

// AgentState is the lifecycle state of a StrategyAgent.
type AgentState string

const (
	StateInitializing AgentState = "INITIALIZING"
	StateIdle         AgentState = "IDLE"
	StateThinking     AgentState = "THINKING"
	StateOrdering     AgentState = "ORDERING"
	StatePaused       AgentState = "PAUSED"
	StateHalted       AgentState = "HALTED"
	StateTerminated   AgentState = "TERMINATED"
)

// CanTick reports whether an agent in this state is eligible for scheduling.
func (s AgentState) CanTick() bool {
	return s == StateIdle
}

// SelectionMode governs how a StrategyAgent turns its configured symbol
// selector into the candidate symbols it may trade on a given tick.
type SelectionMode string

const (
	// SelectionAIDriven resolves Pool/Commodities to currently-dominant
	// contracts every tick, so a contract rollover changes what's traded.
	SelectionAIDriven SelectionMode = "ai_driven"
	// SelectionManual trades exactly the configured Symbol/Symbols, never
	// re-resolving against pool or dominant-contract metadata.
	SelectionManual SelectionMode = "manual"
)

// StrategyConfig is the immutable configuration a StrategyAgent is built from.
// Once an agent is running, its Config never changes; reconfiguration means
// halting the agent and starting a new one with a new config.
type StrategyConfig struct {
	AgentID      string `json:"agent_id" db:"agent_id"`
	StrategyName string `json:"strategy_name" db:"strategy_name"`

	// Symbol selector. At most one of Symbols, Commodities, or Pool is set;
	// Symbol is both the fallback selector when none are, and the single
	// symbol the agent is actually trading once selection narrows down to
	// one (see strategy.Agent.selectSymbols).
	Symbol        string        `json:"symbol" db:"symbol"`
	Symbols       []string      `json:"symbols,omitempty" db:"-"`
	Commodities   []string      `json:"commodities,omitempty" db:"-"`
	Pool          string        `json:"pool" db:"pool"`
	MaxSymbols    int           `json:"max_symbols" db:"max_symbols"`
	SelectionMode SelectionMode `json:"selection_mode" db:"selection_mode"`

	CapitalUSD      float64       `json:"capital_usd" db:"capital_usd"`
	MaxPositionSize float64       `json:"max_position_size" db:"max_position_size"`
	MaxPositions    int           `json:"max_positions" db:"max_positions"`
	MaxLeverage     float64       `json:"max_leverage" db:"max_leverage"`
	RiskPerTrade    float64       `json:"risk_per_trade" db:"risk_per_trade"`
	TickInterval    time.Duration `json:"tick_interval" db:"tick_interval"`

	ConfidenceThreshold float64 `json:"confidence_threshold" db:"confidence_threshold"`
	LLMModel            string  `json:"llm_model" db:"llm_model"`
	LLMTemp             float64 `json:"llm_temperature" db:"llm_temperature"`

	// IsActive gates scheduling: an inactive config is persisted but never
	// spawned. ManualOverride suspends AI-sourced decisions for an
	// otherwise-active agent, leaving it ticking (so position management
	// and risk checks keep running) without the engine proposing new entries.
	IsActive       bool `json:"is_active" db:"is_active"`
	ManualOverride bool `json:"manual_override" db:"manual_override"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AgentSnapshot is a point-in-time view of an agent's runtime state, used for
// persistence and for answering status queries without touching the agent's
// own goroutine.
type AgentSnapshot struct {
	AgentID      string     `json:"agent_id" db:"agent_id"`
	State        AgentState `json:"state" db:"state"`
	Position     *Position  `json:"position,omitempty" db:"-"`
	RealizedPnL  float64    `json:"realized_pnl" db:"realized_pnl"`
	LastTickAt   time.Time  `json:"last_tick_at" db:"last_tick_at"`
	LastError    string     `json:"last_error,omitempty" db:"last_error"`
	HaltedReason string     `json:"halted_reason,omitempty" db:"halted_reason"`
}
