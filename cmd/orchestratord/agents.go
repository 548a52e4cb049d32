package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cherryquant/orchestrator/internal/models"
)

// newAgentsCmd groups one-off agent management commands. It is intended for
// operators poking at a running instance's store out of band; the actual
// scheduling loop only runs under `serve`.
func newAgentsCmd(buildApp func() (*App, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect and seed strategy agent configuration",
	}
	cmd.AddCommand(newAgentsListCmd(buildApp))
	cmd.AddCommand(newAgentsAddCmd(buildApp))
	return cmd
}

func newAgentsListCmd(buildApp func() (*App, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every strategy config persisted in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			if app.Store == nil {
				return fmt.Errorf("no store configured")
			}
			defer app.Store.Close()

			configs, err := app.Store.ListStrategyConfigs(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(configs)
		},
	}
}

func newAgentsAddCmd(buildApp func() (*App, error)) *cobra.Command {
	var agentID, strategyName, symbol, pool, selectionMode string
	var symbols, commodities []string
	var capitalUSD, maxLeverage, llmTemp, maxPositionSize, riskPerTrade, confidenceThreshold float64
	var maxSymbols, maxPositions int
	var tickInterval time.Duration
	var llmModel string
	var isActive, manualOverride bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Persist a new strategy config for the next `serve` to pick up",
		RunE: func(cmd *cobra.Command, args []string) error {
			if symbol == "" && len(symbols) == 0 && pool == "" {
				return fmt.Errorf("--symbol is required unless --symbols or --pool is set")
			}
			app, err := buildApp()
			if err != nil {
				return err
			}
			if app.Store == nil {
				return fmt.Errorf("no store configured")
			}
			defer app.Store.Close()

			cfg := models.StrategyConfig{
				AgentID:             agentID,
				StrategyName:        strategyName,
				Symbol:              symbol,
				Symbols:             symbols,
				Commodities:         commodities,
				Pool:                pool,
				MaxSymbols:          maxSymbols,
				SelectionMode:       models.SelectionMode(selectionMode),
				CapitalUSD:          capitalUSD,
				MaxPositionSize:     maxPositionSize,
				MaxPositions:        maxPositions,
				MaxLeverage:         maxLeverage,
				RiskPerTrade:        riskPerTrade,
				TickInterval:        tickInterval,
				ConfidenceThreshold: confidenceThreshold,
				LLMModel:            llmModel,
				LLMTemp:             llmTemp,
				IsActive:            isActive,
				ManualOverride:      manualOverride,
				CreatedAt:           time.Now(),
			}
			return app.Store.SaveStrategyConfig(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&agentID, "agent-id", "", "unique agent id (required)")
	cmd.Flags().StringVar(&strategyName, "strategy-name", "", "human-readable strategy name")
	cmd.Flags().StringVar(&symbol, "symbol", "", "traded symbol (required unless --symbols or --pool is set)")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "explicit symbol list selector")
	cmd.Flags().StringSliceVar(&commodities, "commodities", nil, "explicit commodity code list selector")
	cmd.Flags().StringVar(&pool, "pool", "", "named commodity pool selector")
	cmd.Flags().IntVar(&maxSymbols, "max-symbols", 1, "concurrent symbol cap for the selector above")
	cmd.Flags().StringVar(&selectionMode, "selection-mode", string(models.SelectionManual), "symbol selection mode: ai_driven or manual")
	cmd.Flags().Float64Var(&capitalUSD, "capital-usd", 10000, "capital allocated to this agent")
	cmd.Flags().Float64Var(&maxPositionSize, "max-position-size", 0, "maximum position size in contracts (0 = uncapped)")
	cmd.Flags().IntVar(&maxPositions, "max-positions", 1, "maximum concurrent open positions")
	cmd.Flags().Float64Var(&maxLeverage, "max-leverage", 3, "per-agent leverage ceiling")
	cmd.Flags().Float64Var(&riskPerTrade, "risk-per-trade", 0, "fraction of capital risked per trade (0 disables risk-based sizing)")
	cmd.Flags().DurationVar(&tickInterval, "tick-interval", 5*time.Minute, "decision cycle interval")
	cmd.Flags().Float64Var(&confidenceThreshold, "confidence-threshold", 0.5, "minimum AI confidence required to act on a decision")
	cmd.Flags().StringVar(&llmModel, "llm-model", "gpt-4o-mini", "LLM model override for this agent")
	cmd.Flags().Float64Var(&llmTemp, "llm-temperature", 0.2, "LLM sampling temperature")
	cmd.Flags().BoolVar(&isActive, "active", true, "whether the strategy is scheduled once restored")
	cmd.Flags().BoolVar(&manualOverride, "manual-override", false, "suspend AI-sourced decisions, keeping position management running")
	_ = cmd.MarkFlagRequired("agent-id")

	return cmd
}
