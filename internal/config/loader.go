package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WHEELBOT_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WHEELBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Account ──
	setStr(&cfg.Account.Broker, "WHEELBOT_ACCOUNT_BROKER")

	// ── IBKR ──
	setStr(&cfg.Account.IBKR.GatewayURL, "WHEELBOT_IBKR_GATEWAY_URL")
	setStr(&cfg.Account.IBKR.AccountID, "WHEELBOT_IBKR_ACCOUNT_ID")

	// ── Schwab ──
	setStr(&cfg.Account.Schwab.AppKey, "WHEELBOT_SCHWAB_APP_KEY")
	setStr(&cfg.Account.Schwab.AppSecret, "WHEELBOT_SCHWAB_APP_SECRET")
	setStr(&cfg.Account.Schwab.AccountHash, "WHEELBOT_SCHWAB_ACCOUNT_HASH")
	setStr(&cfg.Account.Schwab.TokenPath, "WHEELBOT_SCHWAB_TOKEN_PATH")
	setStr(&cfg.Account.Schwab.BaseURL, "WHEELBOT_SCHWAB_BASE_URL")
	setStr(&cfg.Account.Schwab.MarketDataURL, "WHEELBOT_SCHWAB_MARKET_DATA_URL")

	// ── Strategy ──
	setFloat64(&cfg.RollWhen.PnL, "WHEELBOT_ROLL_WHEN_PNL")
	setBool(&cfg.WriteWhen.Puts.Green, "WHEELBOT_WRITE_WHEN_PUTS_GREEN")
	setInt(&cfg.Target.DTE, "WHEELBOT_TARGET_DTE")

	// ── Orders ──
	setStr(&cfg.Orders.Exchange, "WHEELBOT_ORDERS_EXCHANGE")
	setStr(&cfg.Orders.Algo.Strategy, "WHEELBOT_ORDERS_ALGO_STRATEGY")

	// ── Journal ──
	setStr(&cfg.Journal.Path, "WHEELBOT_JOURNAL_PATH")

	// ── Top-level ──
	setBool(&cfg.DryRun, "WHEELBOT_DRY_RUN")
	setStr(&cfg.LogLevel, "WHEELBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
}
