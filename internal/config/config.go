// Package config defines the top-level configuration for wheelbot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Supported broker identifiers. The set is closed: adding a backend means
// adding a constant here, a case to the broker factory, and an adapter
// package.
const (
	BrokerIBKR   = "ibkr"
	BrokerSchwab = "schwab"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by WHEELBOT_* environment
// variables.
type Config struct {
	Account   AccountConfig           `toml:"account"`
	Symbols   map[string]SymbolConfig `toml:"symbols"`
	Target    TargetConfig            `toml:"target"`
	WriteWhen WriteWhenConfig         `toml:"write_when"`
	RollWhen  RollWhenConfig          `toml:"roll_when"`
	Orders    OrdersConfig            `toml:"orders"`
	Journal   JournalConfig           `toml:"journal"`
	DryRun    bool                    `toml:"dry_run"`
	LogLevel  string                  `toml:"log_level"`
}

// AccountConfig selects the brokerage backend and holds per-broker
// connection settings.
type AccountConfig struct {
	Broker string       `toml:"broker"`
	IBKR   IBKRConfig   `toml:"ibkr"`
	Schwab SchwabConfig `toml:"schwab"`
}

// IBKRConfig holds Client Portal gateway connection settings.
type IBKRConfig struct {
	GatewayURL string `toml:"gateway_url"`
	AccountID  string `toml:"account_id"`
}

// SchwabConfig holds Schwab trader-API credentials. AccountHash is the
// opaque per-account hash value the API keys account operations by, not
// the plain account number.
type SchwabConfig struct {
	AppKey        string `toml:"app_key"`
	AppSecret     string `toml:"app_secret"`
	AccountHash   string `toml:"account_hash"`
	TokenPath     string `toml:"token_path"`
	BaseURL       string `toml:"base_url"`
	MarketDataURL string `toml:"market_data_url"`
}

// SymbolConfig is the per-underlying strategy target.
type SymbolConfig struct {
	Weight float64 `toml:"weight"` // fraction of net liquidation
	Delta  float64 `toml:"delta"`  // strike-selection input, externally supplied
	DTE    int     `toml:"dte"`    // 0 means fall back to target.dte
}

// TargetConfig holds strategy-wide fallbacks.
type TargetConfig struct {
	DTE int `toml:"dte"`
}

// WriteWhenConfig gates when new options may be written.
type WriteWhenConfig struct {
	Puts PutsWriteConfig `toml:"puts"`
}

// PutsWriteConfig gates put writing.
type PutsWriteConfig struct {
	Green bool `toml:"green"`
}

// RollWhenConfig holds roll-decision thresholds.
type RollWhenConfig struct {
	// PnL is the fraction of maximum theoretical profit that must be
	// captured before a short option is rolled.
	PnL float64 `toml:"pnl"`
}

// OrdersConfig holds order-routing overrides passed through to the
// broker adapter.
type OrdersConfig struct {
	Exchange string     `toml:"exchange"`
	Algo     AlgoConfig `toml:"algo"`
}

// AlgoConfig names an execution algorithm and its parameters.
type AlgoConfig struct {
	Strategy string            `toml:"strategy"`
	Params   map[string]string `toml:"params"`
}

// JournalConfig enables the order journal when Path is non-empty.
type JournalConfig struct {
	Path string `toml:"path"`
}

// Defaults returns the built-in configuration that TOML values are merged
// on top of.
func Defaults() Config {
	return Config{
		Account: AccountConfig{
			Broker: BrokerIBKR,
			IBKR: IBKRConfig{
				GatewayURL: "https://localhost:5000/v1/api",
			},
			Schwab: SchwabConfig{
				BaseURL:       "https://api.schwabapi.com",
				MarketDataURL: "https://api.schwabapi.com/marketdata/v1",
			},
		},
		Target: TargetConfig{DTE: 45},
		WriteWhen: WriteWhenConfig{
			Puts: PutsWriteConfig{Green: true},
		},
		RollWhen: RollWhenConfig{PnL: 0.9},
		LogLevel: "info",
	}
}

// Validate checks that the configuration names a supported broker, that
// the selected broker's required fields are present, and that per-symbol
// targets are sane. The core assumes Validate has been called before it
// runs.
func (c *Config) Validate() error {
	broker := strings.ToLower(c.Account.Broker)
	switch broker {
	case BrokerIBKR:
		if c.Account.IBKR.GatewayURL == "" {
			return fmt.Errorf("config: account.ibkr.gateway_url is required")
		}
		if c.Account.IBKR.AccountID == "" {
			return fmt.Errorf("config: account.ibkr.account_id is required")
		}
	case BrokerSchwab:
		if c.Account.Schwab.AppKey == "" || c.Account.Schwab.AppSecret == "" {
			return fmt.Errorf("config: account.schwab.app_key and app_secret are required")
		}
		if c.Account.Schwab.AccountHash == "" {
			return fmt.Errorf("config: account.schwab.account_hash is required")
		}
		if c.Account.Schwab.TokenPath == "" {
			return fmt.Errorf("config: account.schwab.token_path is required")
		}
	default:
		return fmt.Errorf("config: unsupported account.broker %q", c.Account.Broker)
	}

	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: at least one [symbols.X] entry is required")
	}
	totalWeight := 0.0
	for sym, sc := range c.Symbols {
		if sc.Weight < 0 || sc.Weight > 1 {
			return fmt.Errorf("config: symbols.%s.weight must be in [0, 1], got %v", sym, sc.Weight)
		}
		if sc.Delta < 0 || sc.Delta > 1 {
			return fmt.Errorf("config: symbols.%s.delta must be in [0, 1], got %v", sym, sc.Delta)
		}
		if sc.DTE < 0 {
			return fmt.Errorf("config: symbols.%s.dte must not be negative", sym)
		}
		totalWeight += sc.Weight
	}
	if totalWeight > 1.0+1e-9 {
		return fmt.Errorf("config: symbol weights sum to %v, must not exceed 1", totalWeight)
	}

	if c.Target.DTE <= 0 {
		return fmt.Errorf("config: target.dte must be positive")
	}
	if c.RollWhen.PnL <= 0 || c.RollWhen.PnL > 1 {
		return fmt.Errorf("config: roll_when.pnl must be in (0, 1]")
	}
	return nil
}

// SymbolDTE returns the configured DTE for a symbol, falling back to the
// target default when the symbol does not set one.
func (c *Config) SymbolDTE(symbol string) int {
	if sc, ok := c.Symbols[symbol]; ok && sc.DTE > 0 {
		return sc.DTE
	}
	return c.Target.DTE
}

// SymbolDelta returns the configured delta for a symbol, falling back to
// 0.30 when the symbol does not set one.
func (c *Config) SymbolDelta(symbol string) float64 {
	if sc, ok := c.Symbols[symbol]; ok && sc.Delta > 0 {
		return sc.Delta
	}
	return 0.30
}
