package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cherryquant/orchestrator/internal/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_StrategyConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cfg := models.StrategyConfig{
		AgentID:             "agent-1",
		StrategyName:        "black pool breakout",
		Symbol:              "GC",
		Commodities:         []string{"rb", "hc"},
		Pool:                "metals",
		MaxSymbols:          3,
		SelectionMode:       models.SelectionAIDriven,
		CapitalUSD:          50000,
		MaxPositionSize:     10,
		MaxPositions:        2,
		MaxLeverage:         3,
		RiskPerTrade:         0.02,
		TickInterval:        30 * time.Second,
		ConfidenceThreshold: 0.6,
		LLMModel:            "gpt-4",
		LLMTemp:             0.2,
		IsActive:            true,
		ManualOverride:      false,
		CreatedAt:           time.Now().Truncate(time.Second),
	}
	require.NoError(t, s.SaveStrategyConfig(ctx, cfg))

	got, err := s.GetStrategyConfig(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, cfg.Symbol, got.Symbol)
	assert.Equal(t, cfg.TickInterval, got.TickInterval)
	assert.Equal(t, cfg.LLMModel, got.LLMModel)
	assert.Equal(t, cfg.StrategyName, got.StrategyName)
	assert.Equal(t, cfg.Commodities, got.Commodities)
	assert.Equal(t, cfg.MaxSymbols, got.MaxSymbols)
	assert.Equal(t, cfg.SelectionMode, got.SelectionMode)
	assert.Equal(t, cfg.MaxPositionSize, got.MaxPositionSize)
	assert.Equal(t, cfg.MaxPositions, got.MaxPositions)
	assert.Equal(t, cfg.RiskPerTrade, got.RiskPerTrade)
	assert.Equal(t, cfg.ConfidenceThreshold, got.ConfidenceThreshold)
	assert.True(t, got.IsActive)

	cfg.MaxLeverage = 5
	require.NoError(t, s.SaveStrategyConfig(ctx, cfg))
	got, err = s.GetStrategyConfig(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.MaxLeverage)

	list, err := s.ListStrategyConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteStrategyConfig(ctx, "agent-1"))
	_, err = s.GetStrategyConfig(ctx, "agent-1")
	assert.Error(t, err)
}

func TestSQLiteStore_AgentSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	snap := models.AgentSnapshot{
		AgentID:     "agent-1",
		State:       models.StateThinking,
		RealizedPnL: 123.45,
		Position:    &models.Position{AgentID: "agent-1", Symbol: "GC", Quantity: 2},
	}
	require.NoError(t, s.SaveAgentSnapshot(ctx, snap))

	list, err := s.ListAgentSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.StateThinking, list[0].State)
	require.NotNil(t, list[0].Position)
	assert.Equal(t, "GC", list[0].Position.Symbol)
}

func TestSQLiteStore_DecisionRecordsFilterByAgent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	records := []models.DecisionRecord{
		{Decision: models.AIDecision{DecisionID: "d1", AgentID: "a1", Symbol: "GC", DecisionTime: time.Now()}, LoggedAt: time.Now()},
		{Decision: models.AIDecision{DecisionID: "d2", AgentID: "a2", Symbol: "SI", DecisionTime: time.Now()}, LoggedAt: time.Now()},
	}
	require.NoError(t, s.SaveDecisionRecords(ctx, records))

	got, err := s.GetDecisionRecords(ctx, DecisionFilter{AgentID: "a1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].Decision.DecisionID)
}

func TestSQLiteStore_PortfolioSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	view := models.PortfolioView{GeneratedAt: now, TotalCapitalUSD: 100000, DeployedUSD: 5000}
	require.NoError(t, s.SavePortfolioSnapshot(ctx, view))

	got, err := s.GetPortfolioSnapshots(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5000.0, got[0].DeployedUSD)
}

func TestSQLiteStore_AlertRoundTripAndResolve(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alert := Alert{ID: "alert-1", Level: "warning", Message: "drawdown approaching limit", CreatedAt: time.Now()}
	require.NoError(t, s.SaveAlert(ctx, alert))

	active, err := s.GetActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "warning", active[0].Level)

	alert.Resolved = true
	require.NoError(t, s.SaveAlert(ctx, alert))

	active, err = s.GetActiveAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSQLiteStore_Ping(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
