// Package strategy implements the Strategy Agent: a single-symbol state
// machine that runs one decision cycle per tick, turning a market snapshot
// into a risk-checked order via the AI Decision Engine and a broker.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cherryquant/orchestrator/internal/broker"
	"github.com/cherryquant/orchestrator/internal/decision"
	"github.com/cherryquant/orchestrator/internal/logging"
	"github.com/cherryquant/orchestrator/internal/marketdata"
	"github.com/cherryquant/orchestrator/internal/models"
	"github.com/cherryquant/orchestrator/internal/resilience"
	"github.com/cherryquant/orchestrator/internal/risk"
	"github.com/cherryquant/orchestrator/internal/telemetry"
	"github.com/cherryquant/orchestrator/pkg/utils"
)

// RiskChecker is the narrow view of the Portfolio Risk Manager an agent
// needs: evaluate a proposed order, and record the position change once it
// fills.
type RiskChecker interface {
	Evaluate(ctx context.Context, decision models.AIDecision, currentPosition models.Position, price float64) (models.RiskVerdict, error)
	RecordFill(ctx context.Context, agentID string, position models.Position) error
	SizeMultiplierForVolatility(atrRatio float64) float64
}

// Logger is where an agent reports each completed decision cycle. The
// manager wires this to the decision logger; tests can stub it.
type Logger interface {
	Log(ctx context.Context, record models.DecisionRecord)
}

// PoolExpander is the narrow view of the commodity pool registry a Strategy
// Agent needs to turn a named pool selector into commodity codes.
type PoolExpander interface {
	Expand(poolName string) ([]string, error)
}

// staleAfter is the multiple of TickInterval past which a fetched snapshot
// is considered too old to trade on.
const staleAfter = 2

// orderSubmitRetry governs retries of a transient broker submission
// failure. Bounded and short: an agent that can't get an order placed after
// a few attempts surfaces the failure as a rejected intent rather than
// holding up the next tick.
var orderSubmitRetry = utils.RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      1 * time.Second,
	BackoffFactor: 2.0,
}

// Agent is a Strategy Agent: one goroutine-free state machine driven
// entirely by Tick, so the manager controls all concurrency.
type Agent struct {
	cfg    models.StrategyConfig
	market marketdata.Source
	brk    broker.Broker
	eng    *decision.Engine
	risk   RiskChecker
	logger Logger
	pools  PoolExpander
	regime *resilience.MarketRegimeDetector
	log    zerolog.Logger

	state         models.AgentState
	activeSymbol  string
	position      models.Position
	realized      float64
	lastTick      time.Time
	haltedOn      string
	lastErr       string
}

// New creates an agent in INITIALIZING state. Call Start to move it to IDLE
// and make it eligible for ticking. pools may be nil; an agent configured
// with a named pool selector but no registry falls back to its single
// configured Symbol.
func New(cfg models.StrategyConfig, market marketdata.Source, brk broker.Broker, eng *decision.Engine, riskChecker RiskChecker, logger Logger, pools PoolExpander, log zerolog.Logger) *Agent {
	return &Agent{
		cfg:          cfg,
		market:       market,
		brk:          brk,
		eng:          eng,
		risk:         riskChecker,
		logger:       logger,
		pools:        pools,
		regime:       resilience.NewMarketRegimeDetector(resilience.DefaultRegimeConfig()),
		log:          logging.WithAgent(log, cfg.AgentID),
		state:        models.StateInitializing,
		activeSymbol: cfg.Symbol,
		position: models.Position{
			AgentID: cfg.AgentID,
			Symbol:  cfg.Symbol,
		},
	}
}

// Start transitions an agent out of INITIALIZING (or PAUSED) into IDLE.
func (a *Agent) Start() {
	if a.state == models.StateInitializing || a.state == models.StatePaused {
		a.state = models.StateIdle
	}
}

// Pause transitions a running agent to PAUSED; it is skipped by the
// scheduler but can be resumed.
func (a *Agent) Pause() {
	if a.state == models.StateIdle {
		a.state = models.StatePaused
	}
}

// Resume transitions a paused agent back to IDLE.
func (a *Agent) Resume() {
	if a.state == models.StatePaused {
		a.state = models.StateIdle
	}
}

// Terminate permanently retires the agent; it never ticks again.
func (a *Agent) Terminate() {
	a.state = models.StateTerminated
}

// Halt forces an immediate transition to HALTED, independent of whatever
// the agent is doing on its own tick. The Agent Manager calls this on every
// registered agent when the Portfolio Risk Manager's kill-switch trips, so
// the whole fleet stops proposing new orders within one scheduler tick
// instead of each agent discovering VetoHalted on its own next Tick. A
// no-op once an agent has already reached a terminal state.
func (a *Agent) Halt(reason string) {
	if a.state == models.StateTerminated {
		return
	}
	a.haltOn(reason)
}

// State reports the agent's current lifecycle state.
func (a *Agent) State() models.AgentState {
	return a.state
}

// Snapshot returns a point-in-time view of the agent for persistence or
// status queries.
func (a *Agent) Snapshot() models.AgentSnapshot {
	snap := models.AgentSnapshot{
		AgentID:      a.cfg.AgentID,
		State:        a.state,
		RealizedPnL:  a.realized,
		LastTickAt:   a.lastTick,
		LastError:    a.lastErr,
		HaltedReason: a.haltedOn,
	}
	if !a.position.IsFlat() {
		pos := a.position
		snap.Position = &pos
	}
	return snap
}

// Tick runs exactly one decision cycle. The manager is responsible for
// ensuring Tick is never called concurrently for the same agent; a panic
// inside the cycle is recovered here and halts only this agent.
func (a *Agent) Tick(ctx context.Context) {
	if !a.state.CanTick() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			a.haltOn(fmt.Sprintf("panic during tick: %v", r))
		}
	}()

	a.state = models.StateThinking
	a.lastTick = time.Now()

	candidates, err := a.selectSymbols(ctx)
	if err != nil || len(candidates) == 0 {
		a.lastErr = fmt.Sprintf("symbol selection failed: %v", err)
		a.log.Warn().Err(err).Msg("symbol selection failed, skipping tick")
		a.state = models.StateIdle
		return
	}
	a.activeSymbol = a.chooseActiveSymbol(candidates)

	snapshot, err := a.market.GetSnapshot(ctx, a.activeSymbol, marketdata.Timeframe5m)
	if err != nil {
		a.lastErr = err.Error()
		a.log.Warn().Err(err).Msg("snapshot fetch failed, skipping tick")
		a.state = models.StateIdle
		return
	}
	if a.isStale(snapshot) {
		a.log.Warn().Time("snapshot_time", snapshot.Timestamp).Msg("snapshot too stale, skipping tick")
		a.state = models.StateIdle
		return
	}

	a.updateRegime(snapshot)

	remainingCapital := a.cfg.CapitalUSD - a.position.NotionalUSD(snapshot.LastPrice)

	if a.cfg.ManualOverride {
		a.log.Debug().Msg("manual override active, skipping AI-sourced decision")
		a.state = models.StateIdle
		return
	}

	aiDecision := a.eng.Decide(ctx, snapshot, a.cfg.AgentID, a.position, remainingCapital)
	aiDecision.MarketRegime = a.regime.GetRegime()

	record := models.DecisionRecord{Decision: aiDecision, LoggedAt: time.Now()}
	logging.LogDecision(a.log, a.cfg.AgentID, aiDecision.Symbol, string(aiDecision.Action), aiDecision.Confidence, string(aiDecision.Source), aiDecision.Rationale)
	telemetry.RecordDecision(a.cfg.AgentID, aiDecision.Symbol, string(aiDecision.Action), string(aiDecision.Source), aiDecision.Confidence)

	confidenceThreshold := a.eng.ConfidenceThreshold()
	if a.cfg.ConfidenceThreshold > 0 {
		confidenceThreshold = a.cfg.ConfidenceThreshold
	}
	if aiDecision.Confidence < confidenceThreshold || !aiDecision.IsActionable() {
		a.finish(ctx, record)
		return
	}

	a.state = models.StateOrdering
	a.order(ctx, snapshot, aiDecision, remainingCapital, &record)
	a.finish(ctx, record)
}

// selectSymbols resolves the agent's configured symbol selector into its
// candidate symbols for this tick. In ai_driven mode, a pool or explicit
// commodity list is expanded and resolved against the market data source's
// currently-dominant contracts every tick, so a contract rollover changes
// the candidate set on the next tick; in manual mode (or with no pool/
// commodity selector configured) the explicit Symbols list, or failing
// that the single Symbol, is used as-is.
func (a *Agent) selectSymbols(ctx context.Context) ([]string, error) {
	if a.cfg.SelectionMode == models.SelectionAIDriven {
		switch {
		case a.cfg.Pool != "" && a.pools != nil:
			commodities, err := a.pools.Expand(a.cfg.Pool)
			if err != nil {
				return nil, err
			}
			return a.resolveDominant(ctx, commodities)
		case len(a.cfg.Commodities) > 0:
			return a.resolveDominant(ctx, a.cfg.Commodities)
		}
	}
	if len(a.cfg.Symbols) > 0 {
		return clipSymbols(a.cfg.Symbols, a.cfg.MaxSymbols), nil
	}
	return []string{a.cfg.Symbol}, nil
}

// resolveDominant expands each commodity code to its currently dominant
// contract. A commodity that fails to resolve is skipped rather than
// failing the whole selection, consistent with the per-symbol failure
// semantics of the rest of the tick protocol.
func (a *Agent) resolveDominant(ctx context.Context, commodities []string) ([]string, error) {
	var symbols []string
	for _, c := range commodities {
		resolved, err := a.market.ResolveDominantContracts(ctx, c)
		if err != nil {
			a.log.Warn().Err(err).Str("commodity", c).Msg("dominant contract resolution failed, skipping commodity")
			continue
		}
		symbols = append(symbols, resolved...)
	}
	return clipSymbols(symbols, a.cfg.MaxSymbols), nil
}

func clipSymbols(symbols []string, max int) []string {
	if max <= 0 || max >= len(symbols) {
		return symbols
	}
	return symbols[:max]
}

// chooseActiveSymbol picks the single symbol this tick actually trades out
// of the candidate set. An open position is never abandoned mid-trade just
// because a rollover reshuffled the candidate list; once it's flat again,
// the next tick is free to land on whichever candidate comes first.
func (a *Agent) chooseActiveSymbol(candidates []string) string {
	if !a.position.IsFlat() {
		for _, s := range candidates {
			if s == a.position.Symbol {
				return s
			}
		}
	}
	return candidates[0]
}

func (a *Agent) isStale(snapshot models.MarketSnapshot) bool {
	if snapshot.Timestamp.IsZero() {
		return false
	}
	return time.Since(snapshot.Timestamp) > staleAfter*a.cfg.TickInterval
}

func (a *Agent) updateRegime(snapshot models.MarketSnapshot) {
	ind := snapshot.Indicators
	if snapshot.LastPrice <= 0 {
		return
	}
	a.regime.UpdateVolatility(ind.ATR14 / snapshot.LastPrice)
	direction := 0
	if ind.MA20 > ind.MA60 {
		direction = 1
	} else if ind.MA20 < ind.MA60 {
		direction = -1
	}
	trendStrength := 0.0
	if snapshot.LastPrice != 0 {
		trendStrength = clamp01(abs(ind.MACDHist) / (snapshot.LastPrice * 0.01))
	}
	a.regime.UpdateTrend(trendStrength, direction)
}

func (a *Agent) order(ctx context.Context, snapshot models.MarketSnapshot, aiDecision models.AIDecision, availableCash float64, record *models.DecisionRecord) {
	sized := a.size(aiDecision, snapshot, availableCash)

	verdict, err := a.risk.Evaluate(ctx, sized, a.position, snapshot.LastPrice)
	if err != nil {
		a.lastErr = err.Error()
		a.log.Warn().Err(err).Msg("risk evaluation failed")
		return
	}
	record.RiskVerdict = &verdict

	if !verdict.Approved() {
		a.log.Info().Str("veto", string(verdict.Veto)).Str("notes", verdict.Notes).Msg("order vetoed or zero-sized")
		return
	}

	intent := models.OrderIntent{
		DecisionID:  sized.DecisionID,
		AgentID:     a.cfg.AgentID,
		Symbol:      sized.Symbol,
		Side:        sideFor(sized.Action, a.position),
		Quantity:    verdict.ApprovedQuantity,
		Leverage:    sized.Leverage,
		LimitPrice:  sized.EntryPrice,
		Status:      models.OrderPending,
		SubmittedAt: time.Now(),
	}

	orderID, err := utils.RetryWithResult(ctx, orderSubmitRetry, func() (string, error) {
		return a.brk.Submit(ctx, intent)
	})
	if err != nil {
		intent.Status = models.OrderRejected
		intent.RejectReason = err.Error()
		a.log.Warn().Err(err).Msg("broker submit failed after retries")
		record.OrderIntent = &intent
		return
	}
	intent.OrderID = orderID
	record.OrderIntent = &intent

	a.settle(ctx, sized, intent)
}

// size turns a decision into a position-sized decision: it applies the
// agent's leverage cap, then sizes the quantity from risk_per_trade (the
// fraction of available cash a single stop-out may cost, divided by the
// per-unit stop distance) when both are known, falling back to scaling the
// LLM-proposed quantity by the ATR-volatility multiplier otherwise. Either
// way the result is capped at max_position_size.
func (a *Agent) size(d models.AIDecision, snapshot models.MarketSnapshot, availableCash float64) models.AIDecision {
	if d.Action == models.ActionClose {
		d.Quantity = a.position.Quantity
		return d
	}

	if d.Leverage <= 0 {
		d.Leverage = 1
	}
	if d.Leverage > a.cfg.MaxLeverage {
		d.Leverage = a.cfg.MaxLeverage
	}

	atrRatio := 0.0
	if snapshot.LastPrice > 0 {
		atrRatio = snapshot.Indicators.ATR14 / snapshot.LastPrice
	}
	multiplier := a.risk.SizeMultiplierForVolatility(atrRatio)

	if riskQty := a.riskPerTradeQuantity(d, availableCash, multiplier); riskQty > 0 {
		d.Quantity = riskQty
	} else {
		d.Quantity *= multiplier
	}

	if a.cfg.MaxPositionSize > 0 && d.Quantity > a.cfg.MaxPositionSize {
		d.Quantity = a.cfg.MaxPositionSize
	}

	return d
}

// riskPerTradeQuantity implements the risk_per_trade sizing rule:
// risk_per_trade x available_cash bounds how much a single stop-out may
// cost, divided by the per-unit loss distance to turn that budget into a
// quantity. The simulated market doesn't model physical contract
// multipliers, so the ATR-volatility multiplier fills that role in the
// denominator instead of a fixed per-contract constant. Returns 0 (falling
// back to plain volatility scaling in size) if risk_per_trade or the
// entry/stop-loss distance isn't set.
func (a *Agent) riskPerTradeQuantity(d models.AIDecision, availableCash, multiplier float64) float64 {
	if a.cfg.RiskPerTrade <= 0 || d.EntryPrice <= 0 || d.StopLoss <= 0 || availableCash <= 0 {
		return 0
	}
	stopDistance := abs(d.EntryPrice - d.StopLoss)
	if stopDistance <= 0 || multiplier <= 0 {
		return 0
	}
	return (a.cfg.RiskPerTrade * availableCash) / (stopDistance * multiplier)
}

// settle records the resulting position change from a broker submission.
// PaperBroker-style implementations fill synchronously, so Position can be
// read back immediately; the broker's Events channel is not consumed, so a
// fill that arrives only asynchronously is not picked up here.
func (a *Agent) settle(ctx context.Context, d models.AIDecision, intent models.OrderIntent) {
	pos, err := a.brk.Position(ctx, a.cfg.AgentID, a.activeSymbol)
	if err != nil {
		a.log.Warn().Err(err).Msg("position lookup after submit failed")
		return
	}
	if err := a.risk.RecordFill(ctx, a.cfg.AgentID, pos); err != nil {
		a.log.Warn().Err(err).Msg("recording fill with risk manager failed")
	}
	a.position = pos
}

func (a *Agent) finish(ctx context.Context, record models.DecisionRecord) {
	if a.logger != nil {
		a.logger.Log(ctx, record)
	}
	if a.state != models.StateHalted && a.state != models.StateTerminated {
		a.state = models.StateIdle
	}
}

func (a *Agent) haltOn(reason string) {
	a.state = models.StateHalted
	a.haltedOn = reason
	a.lastErr = reason
	a.log.Error().Str("reason", reason).Msg("agent halted")
}

func sideFor(action models.DecisionAction, current models.Position) models.OrderSide {
	switch action {
	case models.ActionBuyToEnter:
		return models.SideBuy
	case models.ActionSellToEnter:
		return models.SideSell
	case models.ActionClose:
		if current.Side == models.SideBuy {
			return models.SideSell
		}
		return models.SideBuy
	default:
		return models.SideBuy
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
