// Package config provides configuration loading for the orchestrator:
// manager scheduling, portfolio risk limits, LLM defaults, and credentials,
// loaded from TOML with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cherryquant/orchestrator/internal/risk"
	"github.com/spf13/viper"
)

// Config holds all orchestrator configuration.
type Config struct {
	Manager       ManagerConfig      `mapstructure:"manager"`
	Risk          RiskConfig         `mapstructure:"risk"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Store         StoreConfig        `mapstructure:"store"`
	Pools         PoolsConfig        `mapstructure:"pools"`
	LLM           LLMConfig          `mapstructure:"-"`
	Credentials   Credentials        `mapstructure:"-"`
}

// ManagerConfig holds Agent Manager scheduling configuration.
type ManagerConfig struct {
	Mode               string        `mapstructure:"mode"` // "live", "paper", "simulated"
	MaxConcurrentTicks int           `mapstructure:"max_concurrent_ticks"`
	TickTimeout        time.Duration `mapstructure:"tick_timeout"`
	LLMCallsPerSecond  float64       `mapstructure:"llm_calls_per_second"`
	LLMBurst           int           `mapstructure:"llm_burst"`
}

// RiskConfig mirrors internal/risk.Config in TOML-friendly form; ToRiskConfig
// translates it into a risk.Config for the Portfolio Risk Manager.
type RiskConfig struct {
	TotalCapitalUSD        float64 `mapstructure:"total_capital_usd"`
	MaxTotalCapitalUsage   float64 `mapstructure:"max_total_capital_usage"`
	MaxSingleTradeExposure float64 `mapstructure:"max_single_trade_exposure"`
	MaxLeverage            float64 `mapstructure:"max_leverage"`
	MaxCorrelation         float64 `mapstructure:"max_correlation"`
	MaxSectorExposure      float64 `mapstructure:"max_sector_exposure"`
	DrawdownHaltPercent    float64 `mapstructure:"drawdown_halt_percent"`
	VolatilityHighATRRatio float64 `mapstructure:"volatility_high_atr_ratio"`
}

// StoreConfig configures the SQLite-backed persistence layer.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// PoolsConfig points at the commodity pool override file.
type PoolsConfig struct {
	OverridePath string `mapstructure:"override_path"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Level   string        `mapstructure:"level"` // all, halts_only, errors_only
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// Credentials holds API credentials, loaded separately from credentials.toml.
type Credentials struct {
	OpenAI OpenAICredentials `mapstructure:"openai"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// LLMConfig holds defaults for the AI Decision Engine's LLM client, loaded
// from llm.toml.
type LLMConfig struct {
	Model         string        `mapstructure:"model"`
	Temperature   float64       `mapstructure:"temperature"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/cherryquant"
	}
	return filepath.Join(home, ".config", "cherryquant")
}

// Load loads configuration from the specified directory. If configDir is
// empty, the default configuration directory is used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	if err := loadLLMConfig(configDir, &cfg.LLM); err != nil {
		return nil, fmt.Errorf("loading llm.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("manager.mode", "paper")
	v.SetDefault("manager.max_concurrent_ticks", 8)
	v.SetDefault("manager.tick_timeout", "45s")
	v.SetDefault("manager.llm_calls_per_second", 2.0)
	v.SetDefault("manager.llm_burst", 4)

	v.SetDefault("risk.total_capital_usd", 100000.0)
	v.SetDefault("risk.max_total_capital_usage", 0.75)
	v.SetDefault("risk.max_single_trade_exposure", 0.15)
	v.SetDefault("risk.max_leverage", 5.0)
	v.SetDefault("risk.max_correlation", 0.85)
	v.SetDefault("risk.max_sector_exposure", 0.40)
	v.SetDefault("risk.drawdown_halt_percent", 0.20)
	v.SetDefault("risk.volatility_high_atr_ratio", 0.04)

	v.SetDefault("store.path", filepath.Join(configDir, "cherryquant.db"))
	v.SetDefault("pools.override_path", filepath.Join(configDir, "pools.yaml"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if tmplErr := createTemplateConfig(configDir, name); tmplErr != nil {
				return tmplErr
			}
			return v.Unmarshal(target)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if tmplErr := createTemplateCredentials(configDir); tmplErr != nil {
				return tmplErr
			}
			return nil
		}
		return err
	}

	return v.Unmarshal(creds)
}

func loadLLMConfig(configDir string, llm *LLMConfig) error {
	v := viper.New()
	v.SetConfigName("llm")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("model", "gpt-4o")
	v.SetDefault("temperature", 0.3)
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("request_timeout", "30s")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if tmplErr := createTemplateLLMConfig(configDir); tmplErr != nil {
				return tmplErr
			}
			return v.Unmarshal(llm)
		}
		return err
	}

	return v.Unmarshal(llm)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("CHERRYQUANT_MODE"); v != "" {
		cfg.Manager.Mode = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Manager.Mode != "" && c.Manager.Mode != "live" && c.Manager.Mode != "paper" && c.Manager.Mode != "simulated" {
		return fmt.Errorf("invalid manager mode: %s (must be 'live', 'paper', or 'simulated')", c.Manager.Mode)
	}
	if c.Risk.MaxTotalCapitalUsage <= 0 || c.Risk.MaxTotalCapitalUsage > 1 {
		return fmt.Errorf("max_total_capital_usage must be in (0, 1]")
	}
	if c.Risk.MaxSingleTradeExposure <= 0 || c.Risk.MaxSingleTradeExposure > 1 {
		return fmt.Errorf("max_single_trade_exposure must be in (0, 1]")
	}
	if c.Risk.MaxLeverage <= 0 {
		return fmt.Errorf("max_leverage must be positive")
	}
	if c.Manager.LLMCallsPerSecond <= 0 {
		return fmt.Errorf("llm_calls_per_second must be positive")
	}
	return nil
}

// IsPaperMode returns true if the orchestrator is configured for paper trading.
func (c *Config) IsPaperMode() bool {
	return c.Manager.Mode == "paper"
}

// ToRiskConfig translates the TOML-friendly RiskConfig into the risk
// package's Config, for wiring into risk.NewManager at the composition root.
func (c *Config) ToRiskConfig() risk.Config {
	return risk.Config{
		TotalCapitalUSD:        c.Risk.TotalCapitalUSD,
		MaxTotalCapitalUsage:   c.Risk.MaxTotalCapitalUsage,
		MaxSingleTradeExposure: c.Risk.MaxSingleTradeExposure,
		MaxLeverage:            c.Risk.MaxLeverage,
		MaxCorrelation:         c.Risk.MaxCorrelation,
		MaxSectorExposure:      c.Risk.MaxSectorExposure,
		DrawdownHaltPercent:    c.Risk.DrawdownHaltPercent,
		VolatilityHighATRRatio: c.Risk.VolatilityHighATRRatio,
	}
}
