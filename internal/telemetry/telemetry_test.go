package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDecision_UpdatesCounterAndConfidenceGauge(t *testing.T) {
	RecordDecision("agent-x", "GC", "buy_to_enter", "fallback", 0.6)

	count := testutil.ToFloat64(DecisionsTotal.WithLabelValues("agent-x", "GC", "buy_to_enter", "fallback"))
	assert.GreaterOrEqual(t, count, 1.0)

	confidence := testutil.ToFloat64(DecisionConfidence.WithLabelValues("agent-x", "GC"))
	assert.Equal(t, 0.6, confidence)
}

func TestRecordTick_ObservesHistogram(t *testing.T) {
	RecordTick("agent-y", 0.2)
	count := testutil.CollectAndCount(TickDuration)
	assert.Greater(t, count, 0)
}

func TestSetAgentState_OnlyCurrentStateGaugeIsOne(t *testing.T) {
	SetAgentState("agent-z", "THINKING")

	assert.Equal(t, 1.0, testutil.ToFloat64(AgentState.WithLabelValues("agent-z", "THINKING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(AgentState.WithLabelValues("agent-z", "IDLE")))

	SetAgentState("agent-z", "IDLE")
	assert.Equal(t, 1.0, testutil.ToFloat64(AgentState.WithLabelValues("agent-z", "IDLE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(AgentState.WithLabelValues("agent-z", "THINKING")))
}

func TestRecordLLMCall_OnlyObservesDurationOnSuccess(t *testing.T) {
	before := testutil.CollectAndCount(LLMCallDuration)
	RecordLLMCall("gpt-4o-mini", "fallback", 1.0)
	assert.Equal(t, before, testutil.CollectAndCount(LLMCallDuration))

	RecordLLMCall("gpt-4o-mini", "success", 1.5)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(LLMCallDuration), 1)
}

func TestRecordThrottled_IncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(LLMThrottledTotal)
	RecordThrottled()
	assert.Equal(t, before+1, testutil.ToFloat64(LLMThrottledTotal))
}

func TestRecordRiskVerdict_IncrementsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(RiskVerdictsTotal.WithLabelValues("approved"))
	RecordRiskVerdict("approved")
	assert.Equal(t, before+1, testutil.ToFloat64(RiskVerdictsTotal.WithLabelValues("approved")))
}

func TestSetPortfolioGauges_UpdatesAllThreeGauges(t *testing.T) {
	SetPortfolioGauges(5000, -120, true)

	assert.Equal(t, 5000.0, testutil.ToFloat64(PortfolioDeployedUSD))
	assert.Equal(t, -120.0, testutil.ToFloat64(PortfolioUnrealizedPnL))
	assert.Equal(t, 1.0, testutil.ToFloat64(PortfolioHalted))

	SetPortfolioGauges(0, 0, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(PortfolioHalted))
}

func TestInit_RegistersProcessCollectorsWithoutPanicking(t *testing.T) {
	reg := Registry
	require.NotNil(t, reg)
	assert.NotPanics(t, Init)
}
