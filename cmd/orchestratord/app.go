package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/cherryquant/orchestrator/internal/broker"
	"github.com/cherryquant/orchestrator/internal/config"
	"github.com/cherryquant/orchestrator/internal/decision"
	"github.com/cherryquant/orchestrator/internal/llm"
	"github.com/cherryquant/orchestrator/internal/logger"
	"github.com/cherryquant/orchestrator/internal/manager"
	"github.com/cherryquant/orchestrator/internal/marketdata"
	"github.com/cherryquant/orchestrator/internal/models"
	"github.com/cherryquant/orchestrator/internal/notify"
	"github.com/cherryquant/orchestrator/internal/pools"
	"github.com/cherryquant/orchestrator/internal/resilience"
	"github.com/cherryquant/orchestrator/internal/risk"
	"github.com/cherryquant/orchestrator/internal/store"
	"github.com/cherryquant/orchestrator/internal/strategy"
)

// App is the composition root: every long-lived collaborator the
// orchestrator wires together, held in one place so commands can reach into
// it without each owning its own construction logic.
type App struct {
	Config *config.Config
	Log    zerolog.Logger

	Pools       *pools.Registry
	Market      marketdata.Source
	Broker      *broker.PaperBroker
	LLM         llm.Client
	Engine      *decision.Engine
	Risk        *risk.Manager
	Logger      *logger.DecisionLogger
	Manager     *manager.Manager
	Store       store.DataStore
	Notify      *notify.MultiNotifier
	Alerts      *notify.AlertHub
	Breakers    *resilience.CircuitBreakerRegistry
	Maintenance *cron.Cron
	Health      *resilience.HealthMonitor
}

// NewApp constructs every collaborator from cfg but starts nothing; call
// Run to start the background loops.
func NewApp(cfg *config.Config, log zerolog.Logger) (*App, error) {
	reg, err := pools.Load(cfg.Pools.OverridePath)
	if err != nil {
		return nil, fmt.Errorf("loading commodity pools: %w", err)
	}

	// dataStore stays nil (the interface, not just the pointer) if opening
	// fails, so every nil check below behaves correctly rather than tripping
	// the typed-nil-interface trap.
	var dataStore store.DataStore
	sqliteStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		log.Warn().Err(err).Msg("failed to open store, running without persistence")
	} else {
		dataStore = sqliteStore
	}

	decisionLog := logger.New(logger.DefaultConfig(), dataStore, log)

	alertHub := notify.NewAlertHub(100)
	channels := []notify.Channel{notify.NewLogChannel(log), notify.ChannelFor(alertHub)}
	if cfg.Notifications.Webhook.Enabled {
		channels = append(channels, notify.NewWebhookChannel(cfg.Notifications.Webhook.URL, 10*time.Second))
	}
	var persister notify.Persister
	if dataStore != nil {
		persister = dataStore
	}
	notifier := notify.New(log, persister, channels...)

	market := marketdata.NewSimulatedSource(100, 0.015, 300)

	breakers := resilience.NewCircuitBreakerRegistry(resilience.DefaultCircuitBreakerConfig())

	var llmClient llm.Client
	if cfg.Credentials.OpenAI.APIKey != "" {
		llmClient = llm.NewOpenAIClientWithBreaker(cfg.Credentials.OpenAI.APIKey, breakers.Get("llm.openai"))
	}

	engineCfg := decision.DefaultConfig()
	if cfg.LLM.Model != "" {
		engineCfg.Model = cfg.LLM.Model
	}
	if cfg.LLM.Temperature > 0 {
		engineCfg.Temperature = cfg.LLM.Temperature
	}
	if cfg.LLM.MaxTokens > 0 {
		engineCfg.MaxTokens = cfg.LLM.MaxTokens
	}
	if cfg.LLM.RequestTimeout > 0 {
		engineCfg.CallTimeout = cfg.LLM.RequestTimeout
	}
	engine := decision.NewEngine(llmClient, reg, engineCfg, log)

	riskMgr := risk.NewManager(cfg.ToRiskConfig(), reg, notifier, log)

	mgrCfg := manager.DefaultConfig()
	if cfg.Manager.MaxConcurrentTicks > 0 {
		mgrCfg.Workers = cfg.Manager.MaxConcurrentTicks
	}
	if cfg.Manager.LLMCallsPerSecond > 0 {
		mgrCfg.LLMCallsPerSecond = cfg.Manager.LLMCallsPerSecond
	}
	if cfg.Manager.LLMBurst > 0 {
		mgrCfg.LLMBurst = cfg.Manager.LLMBurst
	}
	agentManager := manager.New(mgrCfg, log)
	riskMgr.OnHalt(agentManager.HaltAll)

	paperBroker := broker.NewPaperBroker()

	health := resilience.NewHealthMonitor(resilience.DefaultHealthMonitorConfig())
	if sqliteStore != nil {
		health.RegisterComponent("store", resilience.DatabaseHealthCheck(func(ctx context.Context) error {
			return sqliteStore.Ping(ctx)
		}))
	}
	if openaiClient, ok := llmClient.(*llm.OpenAIClient); ok {
		health.RegisterComponent("llm", resilience.APIHealthCheck("llm", func(ctx context.Context) (time.Duration, error) {
			if openaiClient.BreakerState() == resilience.CircuitOpen {
				return 0, fmt.Errorf("circuit breaker open")
			}
			return 0, nil
		}))
	}

	return &App{
		Config:      cfg,
		Log:         log,
		Pools:       reg,
		Market:      market,
		Broker:      paperBroker,
		LLM:         llmClient,
		Engine:      engine,
		Risk:        riskMgr,
		Logger:      decisionLog,
		Manager:     agentManager,
		Store:       dataStore,
		Notify:      notifier,
		Alerts:      alertHub,
		Breakers:    breakers,
		Maintenance: cron.New(),
		Health:      health,
	}, nil
}

// CreateAgent builds a StrategyAgent over the app's shared collaborators,
// registers it with the manager, and persists its config if a store is
// wired in.
func (a *App) CreateAgent(ctx context.Context, cfg models.StrategyConfig) error {
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}
	if err := a.spawnAgent(cfg); err != nil {
		return err
	}
	if a.Store != nil {
		if err := a.Store.SaveStrategyConfig(ctx, cfg); err != nil {
			return fmt.Errorf("persisting strategy config: %w", err)
		}
	}
	return nil
}

func (a *App) spawnAgent(cfg models.StrategyConfig) error {
	agent := strategy.New(cfg, a.Market, a.Broker, a.Engine, a.Risk, a.Logger, a.Pools, a.Log)
	return a.Manager.CreateAgent(agent, cfg)
}

// snapshotPortfolio persists a PortfolioView to the store, scheduled by the
// maintenance cron so historical exposure/drawdown can be queried later
// without replaying the decision journal.
func (a *App) snapshotPortfolio() {
	if a.Store == nil {
		return
	}
	view := a.Risk.View()
	if err := a.Store.SavePortfolioSnapshot(context.Background(), view); err != nil {
		a.Log.Warn().Err(err).Msg("portfolio snapshot persistence failed")
	}
}

// restoreAgents re-creates every agent whose config survived in the store
// from a prior run, so `serve` picks up where an earlier process left off
// instead of starting with zero scheduled agents.
func (a *App) restoreAgents(ctx context.Context) error {
	if a.Store == nil {
		return nil
	}
	configs, err := a.Store.ListStrategyConfigs(ctx)
	if err != nil {
		return fmt.Errorf("listing strategy configs: %w", err)
	}
	for _, cfg := range configs {
		if !cfg.IsActive {
			a.Log.Info().Str("agent_id", cfg.AgentID).Msg("skipping restore of inactive strategy config")
			continue
		}
		if err := a.spawnAgent(cfg); err != nil {
			a.Log.Warn().Err(err).Str("agent_id", cfg.AgentID).Msg("failed to restore agent")
		}
	}
	return nil
}

// Run starts every background loop and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	go a.Risk.Run(ctx)
	go a.Logger.Run(ctx)
	a.Health.Start()

	a.Maintenance.Schedule(cron.Every(time.Minute), cron.FuncJob(a.snapshotPortfolio))
	a.Maintenance.Start()

	a.Manager.Run(ctx)

	a.Maintenance.Stop()
	a.Health.Stop()
	a.Logger.Stop()
}
