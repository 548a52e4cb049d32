package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cherryquant/orchestrator/internal/config"
	"github.com/cherryquant/orchestrator/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Manager: config.ManagerConfig{
			Mode:               "paper",
			MaxConcurrentTicks: 2,
			LLMCallsPerSecond:  1,
			LLMBurst:           1,
		},
		Risk: config.RiskConfig{
			TotalCapitalUSD:        100000,
			MaxTotalCapitalUsage:   0.75,
			MaxSingleTradeExposure: 0.15,
			MaxLeverage:            5,
			MaxCorrelation:         0.85,
			MaxSectorExposure:      0.4,
			DrawdownHaltPercent:    0.2,
			VolatilityHighATRRatio: 0.04,
		},
		Store: config.StoreConfig{Path: filepath.Join(dir, "test.db")},
		Pools: config.PoolsConfig{OverridePath: filepath.Join(dir, "does-not-exist.yaml")},
	}
}

func TestNewApp_WiresEveryCollaboratorWithoutAnAPIKey(t *testing.T) {
	app, err := NewApp(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer app.Store.Close()

	assert.NotNil(t, app.Pools)
	assert.NotNil(t, app.Market)
	assert.NotNil(t, app.Broker)
	assert.Nil(t, app.LLM, "no OpenAI key configured, so the LLM client should stay nil")
	assert.NotNil(t, app.Engine)
	assert.NotNil(t, app.Risk)
	assert.NotNil(t, app.Logger)
	assert.NotNil(t, app.Manager)
	assert.NotNil(t, app.Store)
	assert.NotNil(t, app.Notify)
	assert.NotNil(t, app.Alerts)
	assert.NotNil(t, app.Breakers)
	assert.NotNil(t, app.Maintenance)
	assert.NotNil(t, app.Health)
}

func TestApp_CreateAgentPersistsAndRestoresAcrossRestart(t *testing.T) {
	cfg := testConfig(t)

	app, err := NewApp(cfg, zerolog.Nop())
	require.NoError(t, err)

	agentCfg := models.StrategyConfig{AgentID: "agent-1", Symbol: "GC", CapitalUSD: 10000, MaxLeverage: 3, IsActive: true}
	require.NoError(t, app.CreateAgent(context.Background(), agentCfg))
	app.Store.Close()

	restarted, err := NewApp(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer restarted.Store.Close()

	require.NoError(t, restarted.restoreAgents(context.Background()))
	assert.Len(t, restarted.Manager.Snapshot(), 1)
}

func TestApp_SnapshotPortfolioIsANoOpWithoutAStore(t *testing.T) {
	app, err := NewApp(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	app.Store.Close()
	app.Store = nil

	assert.NotPanics(t, func() { app.snapshotPortfolio() })
}
