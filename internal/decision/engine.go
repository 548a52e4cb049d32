// Package decision implements the AI Decision Engine: it turns a market
// snapshot and agent context into a validated AIDecision, calling out to an
// LLM with a deterministic fallback when that path is unavailable.
package decision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cherryquant/orchestrator/internal/llm"
	"github.com/cherryquant/orchestrator/internal/models"
)

// SectorLookup resolves a symbol to its commodity sector, used to pick the
// prompt's sector-specialised template.
type SectorLookup interface {
	SectorOf(symbol string) string
}

// Config holds engine-wide tunables.
type Config struct {
	Model               string
	Temperature         float64
	MaxTokens           int
	CallTimeout         time.Duration
	ConfidenceThreshold float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:               "gpt-4o-mini",
		Temperature:         0.2,
		MaxTokens:           600,
		CallTimeout:         30 * time.Second,
		ConfidenceThreshold: 0.4,
	}
}

// Engine is the AI Decision Engine.
type Engine struct {
	client  llm.Client
	sectors SectorLookup
	cfg     Config
	log     zerolog.Logger
}

// NewEngine creates a decision engine. client may be nil, in which case
// every decision is produced by the fallback rule.
func NewEngine(client llm.Client, sectors SectorLookup, cfg Config, log zerolog.Logger) *Engine {
	return &Engine{client: client, sectors: sectors, cfg: cfg, log: log}
}

// ConfidenceThreshold returns the minimum confidence a decision needs before
// a caller should act on it instead of treating it as an informational hold.
func (e *Engine) ConfidenceThreshold() float64 {
	return e.cfg.ConfidenceThreshold
}

// Decide runs the full decide pipeline for one tick and always returns a
// well-formed AIDecision; it never returns an error to the caller.
func (e *Engine) Decide(ctx context.Context, snapshot models.MarketSnapshot, agentID string, current models.Position, remainingCapitalUSD float64) models.AIDecision {
	now := time.Now()

	if e.client != nil {
		if d, ok := e.decideWithLLM(ctx, snapshot, agentID, current, remainingCapitalUSD, now); ok {
			return d
		}
	}

	action, confidence, rationale := fallbackDecide(snapshot, current)
	return models.AIDecision{
		DecisionID:   uuid.NewString(),
		DecisionTime: now,
		AgentID:      agentID,
		Symbol:       snapshot.Symbol,
		Action:       action,
		Quantity:     fallbackQuantity(action, snapshot.LastPrice, remainingCapitalUSD),
		Leverage:     1,
		EntryPrice:   snapshot.LastPrice,
		Confidence:   confidence,
		Rationale:    rationale,
		Source:       models.SourceFallback,
		MarketRegime: models.RegimeUnknown,
	}
}

func (e *Engine) decideWithLLM(ctx context.Context, snapshot models.MarketSnapshot, agentID string, current models.Position, remainingCapitalUSD float64, now time.Time) (models.AIDecision, bool) {
	sector := ""
	if e.sectors != nil {
		sector = e.sectors.SectorOf(snapshot.Symbol)
	}

	constraints := Constraints{RemainingCapitalUSD: remainingCapitalUSD, ConfidenceThreshold: e.cfg.ConfidenceThreshold}
	prompt := buildPrompt(sector, snapshot, current, constraints)

	reply, err := e.complete(ctx, prompt)
	if err != nil {
		e.log.Warn().Err(err).Str("agent_id", agentID).Msg("llm call failed, falling back")
		return models.AIDecision{}, false
	}

	rd, err := parseAndValidate(reply)
	if err != nil {
		repairPrompt := buildRepairPrompt(prompt, reply, err)
		reply2, err2 := e.complete(ctx, repairPrompt)
		if err2 != nil {
			e.log.Warn().Err(err2).Str("agent_id", agentID).Msg("llm repair call failed, falling back")
			return models.AIDecision{}, false
		}
		rd, err = parseAndValidate(reply2)
		if err != nil {
			e.log.Warn().Err(err).Str("agent_id", agentID).Msg("llm reply failed validation twice, falling back")
			return models.AIDecision{}, false
		}
	}

	return e.normalize(rd, snapshot, agentID, now), true
}

func (e *Engine) complete(ctx context.Context, prompt string) (string, error) {
	deadline := time.Now().Add(e.cfg.CallTimeout)
	return e.client.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Model:       e.cfg.Model,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
		Deadline:    deadline,
	})
}

// normalize clamps and fills the parsed reply into a complete AIDecision.
func (e *Engine) normalize(rd rawDecision, snapshot models.MarketSnapshot, agentID string, now time.Time) models.AIDecision {
	confidence := rd.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	entryPrice := rd.EntryPrice
	if entryPrice == 0 {
		entryPrice = snapshot.LastPrice
	}

	return models.AIDecision{
		DecisionID:            uuid.NewString(),
		DecisionTime:          now,
		AgentID:               agentID,
		Symbol:                snapshot.Symbol,
		Action:                validActions[rd.Action],
		Quantity:              rd.Quantity,
		Leverage:              rd.Leverage,
		EntryPrice:            entryPrice,
		ProfitTarget:          rd.ProfitTarget,
		StopLoss:              rd.StopLoss,
		Confidence:            confidence,
		OpportunityScore:      rd.OpportunityScore,
		Rationale:             rd.Rationale,
		Source:                models.SourceLLM,
		MarketRegime:          models.RegimeUnknown,
		InvalidationCondition: rd.InvalidationCondition,
	}
}
