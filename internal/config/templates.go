package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# CherryQuant orchestrator configuration

[manager]
# Operating mode: "live", "paper", "simulated"
mode = "paper"
# Upper bound on agents ticked concurrently by the worker pool
max_concurrent_ticks = 8
# Per-tick deadline; loaded but not applied: the manager sets no deadline on an agent's cycle
tick_timeout = "45s"
# Shared LLM call budget across every agent, enforced by a token bucket
llm_calls_per_second = 2.0
llm_burst = 4

[risk]
# Total capital under management across all agents
total_capital_usd = 100000.0
# Fraction of total capital that may be deployed at once
max_total_capital_usage = 0.75
# Fraction of total capital any single order intent may use
max_single_trade_exposure = 0.15
# Hard ceiling on any position's leverage
max_leverage = 5.0
# Pairwise return correlation ceiling between concurrently held symbols
max_correlation = 0.85
# Fraction of deployed capital (including the new order) any one commodity sector may occupy
max_sector_exposure = 0.40
# Drawdown from peak equity that trips the kill switch
drawdown_halt_percent = 0.20
# ATR14/price ratio; not read by the risk manager, whose sizing multiplier uses fixed ATR/price buckets
volatility_high_atr_ratio = 0.04

[store]
path = ""

[pools]
override_path = ""

[notifications]
enabled = false
level = "halts_only"

[notifications.webhook]
enabled = false
url = ""
`

const credentialsTemplate = `# CherryQuant credentials
# WARNING: keep this file secure, do not commit to version control.

[openai]
api_key = ""
`

const llmTemplate = `# CherryQuant AI Decision Engine defaults

model = "gpt-4o"
temperature = 0.3
max_tokens = 1024
request_timeout = "30s"
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return nil
}

func createTemplateLLMConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "llm.toml")
	if err := os.WriteFile(path, []byte(llmTemplate), 0644); err != nil {
		return fmt.Errorf("writing llm template: %w", err)
	}

	return nil
}
