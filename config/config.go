// Package config loads and validates the full run configuration, then hands
// each subsystem its own typed config. Validation happens once, at load time;
// by the time the pipeline starts, every parameter is known good.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mshull/stratsim/execution"
	"github.com/mshull/stratsim/margin"
	"github.com/mshull/stratsim/portfolio"
	"github.com/mshull/stratsim/risk"
	"github.com/mshull/stratsim/stops"
)

// Config represents the complete run configuration.
type Config struct {
	Account   AccountConfig   `json:"account" yaml:"account"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Stops     StopsConfig     `json:"stops" yaml:"stops"`
	Execution ExecutionConfig `json:"execution" yaml:"execution"`
	Strategy  StrategyConfig  `json:"strategy" yaml:"strategy"`
	Data      DataConfig      `json:"data" yaml:"data"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// AccountConfig contains account initialization parameters.
type AccountConfig struct {
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
}

// RiskConfig contains sizing and limit parameters.
type RiskConfig struct {
	Mode                 string  `json:"mode" yaml:"mode"` // "equity_pct" or "r_fixed"
	RPerTrade            float64 `json:"r_per_trade,omitempty" yaml:"r_per_trade,omitempty"`
	EquityPct            float64 `json:"equity_pct,omitempty" yaml:"equity_pct,omitempty"`
	MaxPositions         int     `json:"max_positions" yaml:"max_positions"`
	MaxLeverage          float64 `json:"max_leverage" yaml:"max_leverage"`
	MaxNotionalPctEquity float64 `json:"max_notional_pct_equity" yaml:"max_notional_pct_equity"`
	MaintFreeMarginPct   float64 `json:"maintenance_free_margin_pct" yaml:"maintenance_free_margin_pct"`
	MarginScaling        bool    `json:"margin_scaling" yaml:"margin_scaling"`
	MarginBufferTier     int     `json:"margin_buffer_tier" yaml:"margin_buffer_tier"`
	Rounding             string  `json:"rounding,omitempty" yaml:"rounding,omitempty"`
	LotSize              float64 `json:"lot_size,omitempty" yaml:"lot_size,omitempty"`
}

// StopsConfig contains stop resolution policy parameters.
type StopsConfig struct {
	Mode               string  `json:"mode" yaml:"mode"` // "safe" or "strict"
	AllowLegacyProxy   bool    `json:"allow_legacy_proxy" yaml:"allow_legacy_proxy"`
	LegacyProxyPct     float64 `json:"legacy_proxy_pct,omitempty" yaml:"legacy_proxy_pct,omitempty"`
	MinStopDistancePct float64 `json:"min_stop_distance_pct,omitempty" yaml:"min_stop_distance_pct,omitempty"`
}

// ExecutionConfig contains the fill cost model parameters.
type ExecutionConfig struct {
	SpreadMode  string  `json:"spread_mode" yaml:"spread_mode"`
	SpreadBps   float64 `json:"spread_bps,omitempty" yaml:"spread_bps,omitempty"`
	PriceRef    string  `json:"price_ref,omitempty" yaml:"price_ref,omitempty"`
	MakerFeeBps float64 `json:"maker_fee_bps" yaml:"maker_fee_bps"`
	TakerFeeBps float64 `json:"taker_fee_bps" yaml:"taker_fee_bps"`
	SlippageK   float64 `json:"slippage_k" yaml:"slippage_k"`
	ATRPctCap   float64 `json:"atr_pct_cap" yaml:"atr_pct_cap"`
	ImpactCap   float64 `json:"impact_cap" yaml:"impact_cap"`
}

// StrategyConfig names the strategy and carries its raw parameters.
type StrategyConfig struct {
	Name      string         `json:"name" yaml:"name"`
	ATRPeriod int            `json:"atr_period" yaml:"atr_period"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// DataConfig locates the bar data.
type DataConfig struct {
	CSVPath string `json:"csv_path" yaml:"csv_path"`
}

// JournalConfig contains journaling parameters.
type JournalConfig struct {
	Type          string `json:"type" yaml:"type"` // "memory", "csv" or "sqlite"
	DBPath        string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	DecisionsFile string `json:"decisions_file,omitempty" yaml:"decisions_file,omitempty"`
	FillsFile     string `json:"fills_file,omitempty" yaml:"fills_file,omitempty"`
	EquityFile    string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
}

// Default returns a configuration that passes Validate and behaves sanely on
// typical daily bars.
func Default() *Config {
	return &Config{
		Account: AccountConfig{Currency: "USD", Balance: 10_000},
		Risk: RiskConfig{
			Mode:                 string(risk.ModeRFixed),
			RPerTrade:            0.01,
			MaxPositions:         5,
			MaxLeverage:          1,
			MaxNotionalPctEquity: 1,
			MaintFreeMarginPct:   0,
			MarginScaling:        true,
			MarginBufferTier:     1,
		},
		Stops: StopsConfig{
			Mode:               string(stops.ModeSafe),
			MinStopDistancePct: 0.001,
		},
		Execution: ExecutionConfig{
			SpreadMode:  string(execution.SpreadFixedBps),
			SpreadBps:   1,
			TakerFeeBps: 5,
			SlippageK:   0.5,
			ATRPctCap:   0.05,
			ImpactCap:   0.002,
		},
		Strategy: StrategyConfig{Name: "emacross", ATRPeriod: 14},
		Journal:  JournalConfig{Type: "memory"},
		Log:      LogConfig{Level: "info"},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON.
	if yamlErr := yaml.Unmarshal(data, cfg); yamlErr != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", yamlErr)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the whole configuration, delegating to each subsystem's own
// validation.
func (c *Config) Validate() error {
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive, got %g", c.Account.Balance)
	}
	if err := c.RiskConfig().Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if err := c.StopPolicy().Validate(); err != nil {
		return fmt.Errorf("stops: %w", err)
	}
	if err := c.ExecutionConfig().Validate(); err != nil {
		return fmt.Errorf("execution: %w", err)
	}
	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy.name is required")
	}
	if c.Strategy.ATRPeriod <= 0 {
		return fmt.Errorf("strategy.atr_period must be positive, got %d", c.Strategy.ATRPeriod)
	}
	switch c.Journal.Type {
	case "", "memory":
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path is required for sqlite journaling")
		}
	case "csv":
		if c.Journal.DecisionsFile == "" || c.Journal.FillsFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal type csv requires decisions_file, fills_file and equity_file")
		}
	default:
		return fmt.Errorf("journal.type must be memory, csv or sqlite, got %q", c.Journal.Type)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}

// RiskConfig converts to the risk engine's typed config. Execution fee and
// impact parameters are mirrored so the affordability buffers match the costs
// the execution model will actually charge.
func (c *Config) RiskConfig() risk.Config {
	// The spread mirror matches the execution model exactly: bps apply only
	// in fixed_bps mode, the range proxy flag only in bar_range_proxy mode.
	spreadBps := 0.0
	if c.Execution.SpreadMode == string(execution.SpreadFixedBps) {
		spreadBps = c.Execution.SpreadBps
	}
	return risk.Config{
		Mode:                     risk.Mode(c.Risk.Mode),
		RPerTrade:                c.Risk.RPerTrade,
		EquityPct:                c.Risk.EquityPct,
		MaxPositions:             c.Risk.MaxPositions,
		MaxLeverage:              c.Risk.MaxLeverage,
		MaxNotionalPctEquity:     c.Risk.MaxNotionalPctEquity,
		MaintenanceFreeMarginPct: c.Risk.MaintFreeMarginPct,
		MarginScaling:            c.Risk.MarginScaling,
		MarginBufferTier:         c.Risk.MarginBufferTier,
		MakerFeeBps:              c.Execution.MakerFeeBps,
		TakerFeeBps:              c.Execution.TakerFeeBps,
		SlippageImpactCap:        c.Execution.ImpactCap,
		SpreadBps:                spreadBps,
		SpreadRangeProxy:         c.Execution.SpreadMode == string(execution.SpreadBarRangeProxy),
		Rounding:                 risk.Rounding(c.Risk.Rounding),
		LotSize:                  c.Risk.LotSize,
	}
}

// StopPolicy converts to the stop resolver's policy.
func (c *Config) StopPolicy() stops.Policy {
	return stops.Policy{
		Mode:               stops.PolicyMode(c.Stops.Mode),
		AllowLegacyProxy:   c.Stops.AllowLegacyProxy,
		LegacyProxyPct:     c.Stops.LegacyProxyPct,
		MinStopDistancePct: c.Stops.MinStopDistancePct,
	}
}

// ExecutionConfig converts to the execution model's typed config.
func (c *Config) ExecutionConfig() execution.Config {
	return execution.Config{
		SpreadMode:  execution.SpreadMode(c.Execution.SpreadMode),
		SpreadBps:   c.Execution.SpreadBps,
		PriceRef:    execution.PriceRef(c.Execution.PriceRef),
		MakerFeeBps: c.Execution.MakerFeeBps,
		TakerFeeBps: c.Execution.TakerFeeBps,
		SlippageK:   c.Execution.SlippageK,
		ATRPctCap:   c.Execution.ATRPctCap,
		ImpactCap:   c.Execution.ImpactCap,
	}
}

// PortfolioConfig converts to the portfolio's typed config. The buffer rates
// are derived from the same fee and impact parameters the risk engine uses,
// so sizing and liquidation agree on what "afford" means.
func (c *Config) PortfolioConfig() portfolio.Config {
	return portfolio.Config{
		MaxLeverage:              c.Risk.MaxLeverage,
		MaintenanceFreeMarginPct: c.Risk.MaintFreeMarginPct,
		Buffers: margin.Rates(
			c.Execution.MakerFeeBps,
			c.Execution.TakerFeeBps,
			c.Execution.ImpactCap,
			c.Risk.MarginBufferTier,
		),
		Liquidation: portfolio.LiquidationLargestMargin,
	}
}
