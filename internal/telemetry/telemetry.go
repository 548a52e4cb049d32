// Package telemetry exposes the orchestrator's Prometheus metrics: per-agent
// decision throughput and latency, LLM call volume and error rate, risk
// verdict outcomes, and portfolio-level gauges.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registry is the dedicated registry for orchestrator metrics, kept
	// separate from the default global registry so cmd/orchestratord can
	// expose exactly this metric set on its /metrics endpoint.
	Registry = prometheus.NewRegistry()

	DecisionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cherryquant",
			Subsystem: "decision",
			Name:      "total",
			Help:      "Total decision cycles completed, by agent and action.",
		},
		[]string{"agent_id", "symbol", "action", "source"},
	)

	DecisionConfidence = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cherryquant",
			Subsystem: "decision",
			Name:      "confidence",
			Help:      "Confidence of the most recent decision for an agent.",
		},
		[]string{"agent_id", "symbol"},
	)

	TickDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cherryquant",
			Subsystem: "agent",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of one agent tick.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"agent_id"},
	)

	AgentState = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cherryquant",
			Subsystem: "agent",
			Name:      "state",
			Help:      "1 if the agent is currently in this state, 0 otherwise.",
		},
		[]string{"agent_id", "state"},
	)

	LLMCallsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cherryquant",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total LLM completion calls, by model and outcome.",
		},
		[]string{"model", "outcome"}, // outcome: success, retry, fallback
	)

	LLMCallDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cherryquant",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM completion call duration.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 30},
		},
		[]string{"model"},
	)

	LLMThrottledTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "cherryquant",
			Subsystem: "llm",
			Name:      "throttled_total",
			Help:      "Ticks dropped because the shared LLM call budget stayed empty for a full decision interval.",
		},
	)

	RiskVerdictsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cherryquant",
			Subsystem: "risk",
			Name:      "verdicts_total",
			Help:      "Risk manager verdicts, by outcome (approved, shrunk, veto reason, rejected).",
		},
		[]string{"outcome"},
	)

	PortfolioDeployedUSD = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cherryquant",
			Subsystem: "portfolio",
			Name:      "deployed_usd",
			Help:      "Total notional currently deployed across all agents.",
		},
	)

	PortfolioUnrealizedPnL = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cherryquant",
			Subsystem: "portfolio",
			Name:      "unrealized_pnl_usd",
			Help:      "Total unrealized P&L across all open positions.",
		},
	)

	PortfolioHalted = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cherryquant",
			Subsystem: "portfolio",
			Name:      "halted",
			Help:      "1 if the portfolio kill switch has tripped, 0 otherwise.",
		},
	)
)

// Init registers the standard process/go collectors alongside the
// orchestrator-specific metrics above.
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}

// RecordDecision updates the decision-cycle counters and gauges for one
// completed tick.
func RecordDecision(agentID, symbol, action, source string, confidence float64) {
	DecisionsTotal.WithLabelValues(agentID, symbol, action, source).Inc()
	DecisionConfidence.WithLabelValues(agentID, symbol).Set(confidence)
}

// RecordTick observes how long one agent tick took.
func RecordTick(agentID string, seconds float64) {
	TickDuration.WithLabelValues(agentID).Observe(seconds)
}

// SetAgentState zeroes every known state gauge for the agent, then sets the
// current one, so a dashboard query for "agents in THINKING" doesn't carry
// stale 1s forward after a transition.
func SetAgentState(agentID, state string) {
	for _, s := range []string{"INITIALIZING", "IDLE", "THINKING", "ORDERING", "PAUSED", "HALTED", "TERMINATED"} {
		val := 0.0
		if s == state {
			val = 1.0
		}
		AgentState.WithLabelValues(agentID, s).Set(val)
	}
}

// RecordLLMCall records one LLM completion attempt.
func RecordLLMCall(model, outcome string, seconds float64) {
	LLMCallsTotal.WithLabelValues(model, outcome).Inc()
	if outcome == "success" {
		LLMCallDuration.WithLabelValues(model).Observe(seconds)
	}
}

// RecordThrottled records one tick dropped by the shared LLM budget.
func RecordThrottled() {
	LLMThrottledTotal.Inc()
}

// RecordRiskVerdict records one risk manager verdict outcome: "approved",
// "shrunk", the veto reason string, or "rejected".
func RecordRiskVerdict(outcome string) {
	RiskVerdictsTotal.WithLabelValues(outcome).Inc()
}

// SetPortfolioGauges updates the portfolio-level gauges from a snapshot.
func SetPortfolioGauges(deployedUSD, unrealizedPnL float64, halted bool) {
	PortfolioDeployedUSD.Set(deployedUSD)
	PortfolioUnrealizedPnL.Set(unrealizedPnL)
	haltedVal := 0.0
	if halted {
		haltedVal = 1.0
	}
	PortfolioHalted.Set(haltedVal)
}
