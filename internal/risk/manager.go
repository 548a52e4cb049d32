// Package risk implements the Portfolio Risk Manager: the single writer of
// cross-agent portfolio state, and the sole authority that decides whether
// an order intent is approved, shrunk, or vetoed before it reaches a broker.
package risk

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cherryquant/orchestrator/internal/cherryerrors"
	"github.com/cherryquant/orchestrator/internal/logging"
	"github.com/cherryquant/orchestrator/internal/models"
	"github.com/cherryquant/orchestrator/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SectorLookup resolves a symbol to its commodity sector, so the manager can
// enforce sector concentration limits without importing the pool registry
// directly.
type SectorLookup interface {
	SectorOf(symbol string) string
}

// Notifier is the alerting sink the manager pushes halt and veto events to.
// Implementations may fan out to Slack, email, or just a log sink.
type Notifier interface {
	Notify(ctx context.Context, level, message string)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string) {}

type evalRequest struct {
	decision models.AIDecision
	position models.Position // agent's current position, zero value if flat
	price    float64
	reply    chan models.RiskVerdict
}

type fillRequest struct {
	agentID  string
	position models.Position
	reply    chan struct{}
}

type priceUpdate struct {
	symbol string
	price  float64
}

// Manager is the Portfolio Risk Manager. It owns all cross-agent portfolio
// state and is the only goroutine that writes it; every other goroutine
// reads through View, which hands back an immutable snapshot.
type Manager struct {
	cfg      Config
	sectors  SectorLookup
	notifier Notifier
	log      zerolog.Logger

	requests chan evalRequest
	fills    chan fillRequest
	prices   chan priceUpdate
	done     chan struct{}

	view atomic.Pointer[models.PortfolioView]

	// fields below are only ever touched by Run's goroutine.
	positions    map[string]models.Position
	priceHistory map[string][]float64
	peakEquity   float64
	halted       bool
	haltReason   string

	haltHandler func(reason string)
}

// NewManager constructs a Portfolio Risk Manager. Call Run in its own
// goroutine before sending any evaluation requests.
func NewManager(cfg Config, sectors SectorLookup, notifier Notifier, log zerolog.Logger) *Manager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	m := &Manager{
		cfg:          cfg,
		sectors:      sectors,
		notifier:     notifier,
		log:          log,
		requests:     make(chan evalRequest),
		fills:        make(chan fillRequest),
		prices:       make(chan priceUpdate, 256),
		done:         make(chan struct{}),
		positions:    make(map[string]models.Position),
		priceHistory: make(map[string][]float64),
		peakEquity:   cfg.TotalCapitalUSD,
	}
	m.publishView()
	return m
}

// Run is the manager's single-writer loop. It exits when ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-m.requests:
			verdict := m.evaluate(req.decision, req.position, req.price)
			telemetry.RecordRiskVerdict(verdictOutcome(verdict))
			req.reply <- verdict
		case f := <-m.fills:
			m.applyFill(f.position)
			m.publishView()
			close(f.reply)
		case p := <-m.prices:
			m.recordPrice(p.symbol, p.price)
			m.checkDrawdown(ctx)
		}
	}
}

// View returns the latest published portfolio snapshot. Safe to call from
// any goroutine; never blocks on the manager's loop.
func (m *Manager) View() models.PortfolioView {
	v := m.view.Load()
	if v == nil {
		return models.PortfolioView{}
	}
	return *v
}

// Evaluate asks the risk manager to approve, shrink, or veto an order
// intent derived from decision. Blocks until the manager's loop processes
// it or ctx is cancelled.
func (m *Manager) Evaluate(ctx context.Context, decision models.AIDecision, currentPosition models.Position, price float64) (models.RiskVerdict, error) {
	reply := make(chan models.RiskVerdict, 1)
	select {
	case m.requests <- evalRequest{decision: decision, position: currentPosition, price: price, reply: reply}:
	case <-ctx.Done():
		return models.RiskVerdict{}, ctx.Err()
	case <-m.done:
		return models.RiskVerdict{}, cherryerrors.ErrManagerStopped
	}

	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return models.RiskVerdict{}, ctx.Err()
	}
}

// RecordFill tells the risk manager an order intent filled, updating the
// agent's tracked position before the next evaluation is processed.
func (m *Manager) RecordFill(ctx context.Context, agentID string, position models.Position) error {
	reply := make(chan struct{})
	select {
	case m.fills <- fillRequest{agentID: agentID, position: position, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdatePrice feeds a mark price used for correlation and drawdown tracking.
// Non-blocking; prices are buffered and dropped only if the loop falls far
// behind, which only happens if Run has stopped.
func (m *Manager) UpdatePrice(symbol string, price float64) {
	select {
	case m.prices <- priceUpdate{symbol: symbol, price: price}:
	default:
	}
}

func (m *Manager) evaluate(decision models.AIDecision, pos models.Position, price float64) models.RiskVerdict {
	now := time.Now()
	verdict := models.RiskVerdict{
		DecisionID:   decision.DecisionID,
		RequestedQty: decision.Quantity,
		EvaluatedAt:  now,
	}

	if !decision.IsActionable() {
		verdict.ApprovedQuantity = 0
		return verdict
	}

	if m.halted {
		verdict.Veto = models.VetoHalted
		verdict.Notes = m.haltReason
		return verdict
	}

	if decision.Action == models.ActionClose {
		verdict.ApprovedQuantity = decision.Quantity
		return verdict
	}

	if decision.Leverage > m.cfg.MaxLeverage {
		verdict.Veto = models.VetoLeverage
		verdict.Notes = fmt.Sprintf("requested leverage %.1fx exceeds limit %.1fx", decision.Leverage, m.cfg.MaxLeverage)
		return verdict
	}

	if m.sectors != nil {
		sector := m.sectors.SectorOf(decision.Symbol)
		if sector != "" {
			exposure := m.sectorExposureUSD(sector) + decision.Quantity*price*decision.Leverage
			view := m.View()
			deployed := view.DeployedUSD + decision.Quantity*price*decision.Leverage
			if view.DeployedUSD > 0 && exposure/deployed > m.cfg.MaxSectorExposure {
				verdict.Veto = models.VetoSectorConcentration
				verdict.Notes = fmt.Sprintf("sector %q exposure would reach %.0f%% of deployed capital", sector, exposure/deployed*100)
				return verdict
			}
		}
	}

	if corr := m.maxCorrelationTo(decision.Symbol); corr > m.cfg.MaxCorrelation {
		verdict.Veto = models.VetoCorrelation
		verdict.Notes = fmt.Sprintf("correlation %.2f with an existing position exceeds limit %.2f", corr, m.cfg.MaxCorrelation)
		return verdict
	}

	approvedQty := m.shrinkToFit(decision, pos, price)
	verdict.ApprovedQuantity = approvedQty
	if approvedQty < decision.Quantity {
		verdict.Notes = "quantity reduced to fit capital usage limits"
	}
	return verdict
}

func (m *Manager) shrinkToFit(decision models.AIDecision, pos models.Position, price float64) float64 {
	qty := decision.Quantity
	if qty <= 0 || price <= 0 {
		return 0
	}

	notional := qty * price * decision.Leverage

	maxSingleTrade := m.cfg.TotalCapitalUSD * m.cfg.MaxSingleTradeExposure
	if notional > maxSingleTrade {
		qty = maxSingleTrade / (price * decision.Leverage)
		notional = maxSingleTrade
	}

	view := m.View()
	remainingCapacity := m.cfg.TotalCapitalUSD*m.cfg.MaxTotalCapitalUsage - view.DeployedUSD
	if remainingCapacity <= 0 {
		return 0
	}
	if notional > remainingCapacity {
		qty = remainingCapacity / (price * decision.Leverage)
	}

	if qty < 0 {
		qty = 0
	}
	return qty
}

func (m *Manager) applyFill(pos models.Position) {
	if pos.IsFlat() {
		delete(m.positions, pos.AgentID)
	} else {
		m.positions[pos.AgentID] = pos
	}
}

func (m *Manager) sectorExposureUSD(sector string) float64 {
	var total float64
	for _, p := range m.positions {
		if m.sectors.SectorOf(p.Symbol) == sector {
			total += p.NotionalUSD(p.EntryPrice)
		}
	}
	return total
}

func (m *Manager) maxCorrelationTo(symbol string) float64 {
	if len(m.positions) == 0 {
		return 0
	}
	var max float64
	for _, p := range m.positions {
		if p.Symbol == symbol {
			continue
		}
		c := pairwiseCorrelation(m.priceHistory[symbol], m.priceHistory[p.Symbol])
		if c < 0 {
			c = -c
		}
		if c > max {
			max = c
		}
	}
	return max
}

func (m *Manager) recordPrice(symbol string, price float64) {
	h := m.priceHistory[symbol]
	h = append(h, price)
	if len(h) > 500 {
		h = h[len(h)-500:]
	}
	m.priceHistory[symbol] = h
}

func (m *Manager) checkDrawdown(ctx context.Context) {
	view := m.currentView()
	equity := m.cfg.TotalCapitalUSD + view.RealizedPnL + view.UnrealizedPnL
	if equity > m.peakEquity {
		m.peakEquity = equity
	}
	if m.peakEquity <= 0 {
		return
	}
	drawdown := (m.peakEquity - equity) / m.peakEquity
	if drawdown >= m.cfg.DrawdownHaltPercent && !m.halted {
		m.halt(ctx, fmt.Sprintf("drawdown %.1f%% from peak equity breached kill-switch threshold %.1f%%", drawdown*100, m.cfg.DrawdownHaltPercent*100))
	}
	m.publishView()
}

func (m *Manager) halt(ctx context.Context, reason string) {
	m.halted = true
	m.haltReason = reason
	logging.LogHalt(m.log, reason)
	m.notifier.Notify(ctx, "critical", "CherryQuant halt_all: "+reason)
	if m.haltHandler != nil {
		m.haltHandler(reason)
	}
}

// OnHalt registers the callback invoked whenever the kill-switch trips.
// Wired once at startup to the Agent Manager's HaltAll, so every agent
// transitions to HALTED in the same tick the kill-switch fires rather than
// only vetoing new orders through Evaluate.
func (m *Manager) OnHalt(fn func(reason string)) {
	m.haltHandler = fn
}

// SizeMultiplierForVolatility scales a proposed position size down when a
// symbol's ATR14-to-price ratio indicates elevated volatility. Called by a
// StrategyAgent before it ever reaches the manager, so high-volatility
// symbols arrive with an already-conservative quantity instead of tripping
// a capital-usage shrink on every tick.
func (m *Manager) SizeMultiplierForVolatility(atrRatio float64) float64 {
	return volatilityFactor(atrRatio)
}

// TrailingStopFor computes a trailing stop price for an open position.
func (m *Manager) TrailingStopFor(entryPrice, currentPrice, trailPercent float64, isLong bool) float64 {
	return trailingStop(entryPrice, currentPrice, trailPercent, isLong)
}

// Resume clears a kill-switch halt. Intended for operator use only, never
// called automatically.
func (m *Manager) Resume() {
	m.halted = false
	m.haltReason = ""
	m.publishView()
}

// currentView sums notional and unrealized P&L in decimal rather than
// float64: with dozens of open positions summed on every publish, float64
// accumulation error compounds in a way a single position's arithmetic
// never shows, and the published view is the one place an operator checks
// the books.
func (m *Manager) currentView() models.PortfolioView {
	positions := make([]models.Position, 0, len(m.positions))
	deployed, unrealized := decimal.Zero, decimal.Zero
	for _, p := range m.positions {
		positions = append(positions, p)
		deployed = deployed.Add(decimal.NewFromFloat(p.NotionalUSD(p.EntryPrice)))
		unrealized = unrealized.Add(decimal.NewFromFloat(p.UnrealizedPnL))
	}
	return models.PortfolioView{
		GeneratedAt:       time.Now(),
		TotalCapitalUSD:   m.cfg.TotalCapitalUSD,
		DeployedUSD:       deployed.InexactFloat64(),
		UnrealizedPnL:     unrealized.InexactFloat64(),
		Positions:         positions,
		CorrelationMatrix: correlationMatrix(m.priceHistory),
		Halted:            m.halted,
		HaltReason:        m.haltReason,
	}
}

func (m *Manager) publishView() {
	v := m.currentView()
	m.view.Store(&v)
	telemetry.SetPortfolioGauges(v.DeployedUSD, v.UnrealizedPnL, v.Halted)
}

// verdictOutcome maps a verdict to the outcome label telemetry groups by:
// "approved", "shrunk", the veto reason string, or "rejected" when nothing
// was approved without a veto (a hold, for instance).
func verdictOutcome(v models.RiskVerdict) string {
	switch {
	case v.Veto != models.VetoNone:
		return string(v.Veto)
	case v.Shrunk():
		return "shrunk"
	case v.Approved():
		return "approved"
	default:
		return "rejected"
	}
}
