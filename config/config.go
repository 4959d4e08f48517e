package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/midas/symbol"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete session configuration.
type Config struct {
	Mode      string          `json:"mode" yaml:"mode"` // "backtest" or "live"
	SessionID string          `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Capital   float64         `json:"capital" yaml:"capital"`
	Currency  string          `json:"currency" yaml:"currency"`
	Symbols   []symbol.Symbol `json:"symbols" yaml:"symbols"`
	Strategy  StrategyConfig  `json:"strategy" yaml:"strategy"`
	Data      DataConfig      `json:"data" yaml:"data"`
	Portfolio PortfolioConfig `json:"portfolio" yaml:"portfolio"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// StrategyConfig names a registered strategy. Params are decoded by the
// strategy itself.
type StrategyConfig struct {
	Name   string         `json:"name" yaml:"name"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// DataConfig is the bar file replayed in backtest mode. Start and End are
// RFC3339 or YYYY-MM-DD; either may be empty.
type DataConfig struct {
	File  string `json:"file" yaml:"file"`
	Start string `json:"start,omitempty" yaml:"start,omitempty"`
	End   string `json:"end,omitempty" yaml:"end,omitempty"`
}

type PortfolioConfig struct {
	PendingTimeout string `json:"pending_timeout,omitempty" yaml:"pending_timeout,omitempty"` // e.g. "30s"
}

// RiskConfig limits; zero disables a check.
type RiskConfig struct {
	MaxMarginPct          float64 `json:"max_margin_pct,omitempty" yaml:"max_margin_pct,omitempty"`
	MaxOpenPositions      int     `json:"max_open_positions,omitempty" yaml:"max_open_positions,omitempty"`
	MaxDrawdownPct        float64 `json:"max_drawdown_pct,omitempty" yaml:"max_drawdown_pct,omitempty"`
	LiquidateOnMarginCall bool    `json:"liquidate_on_margin_call,omitempty" yaml:"liquidate_on_margin_call,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type          string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	TradesFile    string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile    string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	PositionsFile string `json:"positions_file,omitempty" yaml:"positions_file,omitempty"`
	DBPath        string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // "text" or "json"
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
// and applies environment overrides before validating.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv reads a .env file into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from MIDAS_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MIDAS_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("MIDAS_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MIDAS_JOURNAL_DB"); v != "" {
		c.Journal.Type = "sqlite"
		c.Journal.DBPath = v
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration and the symbols in it.
func (c *Config) Validate() error {
	switch c.Mode {
	case "backtest", "live":
	default:
		return fmt.Errorf("%w: mode must be 'backtest' or 'live'", ErrInvalidConfig)
	}
	if c.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidConfig)
	}
	if c.Mode == "backtest" && c.Capital <= 0 {
		return fmt.Errorf("%w: capital must be positive", ErrInvalidConfig)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: at least one symbol is required", ErrInvalidConfig)
	}
	if _, err := c.SymbolMap(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Strategy.Name == "" {
		return fmt.Errorf("%w: strategy.name is required", ErrInvalidConfig)
	}
	if c.Mode == "backtest" && c.Data.File == "" {
		return fmt.Errorf("%w: data.file is required for backtests", ErrInvalidConfig)
	}
	start, end, err := c.Window()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return fmt.Errorf("%w: data.end must be after data.start", ErrInvalidConfig)
	}
	if _, err := c.PendingTimeout(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Risk.MaxMarginPct < 0 || c.Risk.MaxDrawdownPct < 0 || c.Risk.MaxOpenPositions < 0 {
		return fmt.Errorf("%w: risk limits cannot be negative", ErrInvalidConfig)
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("%w: journal trades_file and equity_file required for CSV type", ErrInvalidConfig)
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("%w: journal db_path required for SQLite type", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: journal.type must be 'csv', 'sqlite' or 'none'", ErrInvalidConfig)
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be 'text' or 'json'", ErrInvalidConfig)
	}
	return nil
}

// SymbolMap builds the instrument registry from the configured symbols.
func (c *Config) SymbolMap() (*symbol.Map, error) {
	m := symbol.NewMap()
	for _, s := range c.Symbols {
		if err := m.Add(s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Window returns the parsed data window. Zero times mean unbounded.
func (c *Config) Window() (start, end time.Time, err error) {
	if start, err = parseTime(c.Data.Start); err != nil {
		return start, end, fmt.Errorf("data.start: %w", err)
	}
	if end, err = parseTime(c.Data.End); err != nil {
		return start, end, fmt.Errorf("data.end: %w", err)
	}
	return start, end, nil
}

func (c *Config) PendingTimeout() (time.Duration, error) {
	if c.Portfolio.PendingTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Portfolio.PendingTimeout)
	if err != nil {
		return 0, fmt.Errorf("portfolio.pending_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("portfolio.pending_timeout cannot be negative")
	}
	return d, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, symbol.SessionZone)
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Mode:     "backtest",
		Capital:  100000,
		Currency: "USD",
		Symbols: []symbol.Symbol{
			{
				InstrumentID:       1,
				BrokerTicker:       "AAPL",
				Type:               symbol.Stock,
				Currency:           "USD",
				Exchange:           "SMART",
				Fees:               0.005,
				QuantityMultiplier: 1,
				PriceMultiplier:    1,
				SlippageFactor:     0.01,
				Session: symbol.TradingSession{
					DayOpen:  symbol.Clock(9, 30),
					DayClose: symbol.Clock(16, 0),
				},
			},
		},
		Strategy: StrategyConfig{
			Name: "ema-cross",
			Params: map[string]any{
				"ticker":      "AAPL",
				"fast_period": 10,
				"slow_period": 30,
				"quantity":    100,
				"allow_short": true,
				"average":     "ema",
			},
		},
		Data: DataConfig{File: "./bars.csv"},
		Portfolio: PortfolioConfig{
			PendingTimeout: "30s",
		},
		Risk: RiskConfig{
			MaxMarginPct:   0.5,
			MaxDrawdownPct: 0.2,
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./midas.sqlite",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
