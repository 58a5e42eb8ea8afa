// Package config defines all configuration for the box-accumulation bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via POLY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	PaperTrading bool              `mapstructure:"paper_trading"`
	Wallet       WalletConfig      `mapstructure:"wallet"`
	API          APIConfig         `mapstructure:"api"`
	Trading      TradingConfig     `mapstructure:"trading"`
	WebSocket    WebSocketConfig   `mapstructure:"websocket"`
	Persistence  PersistenceConfig `mapstructure:"persistence"`
	Logging      LoggingConfig     `mapstructure:"logging"`
	Dashboard    DashboardConfig   `mapstructure:"dashboard"`
}

// WalletConfig holds the Ethereum wallet used for signing orders.
// PrivateKey signs L1 (EIP-712) auth and derives L2 API keys.
// FunderAddress is the on-chain address that funds orders (may differ from signer if using a proxy).
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	FunderAddress string `mapstructure:"funder_address"`
	ChainID       int    `mapstructure:"chain_id"`
}

// APIConfig holds Polymarket API endpoints and optional pre-derived L2 credentials.
// If ApiKey/Secret/Passphrase are empty, the bot derives them via L1 auth on startup.
type APIConfig struct {
	CLOBBaseURL string `mapstructure:"clob_base_url"`
	WSMarketURL string `mapstructure:"ws_market_url"`
	WSUserURL   string `mapstructure:"ws_user_url"`
	ApiKey      string `mapstructure:"api_key"`
	Secret      string `mapstructure:"secret"`
	Passphrase  string `mapstructure:"passphrase"`
}

// TradingConfig tunes the breakeven-box accumulation strategy.
//
//   - TargetAssets / TargetTimeframes: which market questions qualify,
//     e.g. ["BTC","ETH","SOL"] x ["15m","1h"].
//   - MinPrice / MaxPrice: both outcome prices must sit in this band.
//   - MaxPositionUSDC: global cap on total spend across all markets.
//   - MaxPositionPerMarket: documented per-market cap (parsed, not yet
//     enforced by the quote pipeline).
//   - BreakevenTarget / SafetyMargin: YES avg + NO avg must stay below
//     BreakevenTarget − SafetyMargin (0.985 with defaults).
//   - SkewThreshold: YES/NO quantity ratio beyond which quotes tilt to
//     favor the lighter side.
//   - QuoteRefreshInterval: cancel-replace cycle period.
//   - BatchSize: max orders per batch submission.
type TradingConfig struct {
	TargetAssets     []string `mapstructure:"target_assets"`
	TargetTimeframes []string `mapstructure:"target_timeframes"`

	MinPrice float64 `mapstructure:"min_price"`
	MaxPrice float64 `mapstructure:"max_price"`

	MaxPositionUSDC      float64 `mapstructure:"max_position_usdc"`
	MaxPositionPerMarket float64 `mapstructure:"max_position_per_market"`

	TickSize      float64 `mapstructure:"tick_size"`
	BaseQuoteSize float64 `mapstructure:"base_quote_size"`

	BreakevenTarget float64 `mapstructure:"breakeven_target"`
	SafetyMargin    float64 `mapstructure:"safety_margin"`

	SkewThreshold float64 `mapstructure:"skew_threshold"`

	QuoteRefreshInterval  time.Duration `mapstructure:"quote_refresh_interval"`
	MarketRefreshInterval time.Duration `mapstructure:"market_refresh_interval"`
	BatchSize             int           `mapstructure:"batch_size"`

	RebateRateBps float64 `mapstructure:"rebate_rate_bps"`
}

// EffectiveTarget is the combined average cost ceiling for a box:
// breakeven target minus the safety buffer.
func (t TradingConfig) EffectiveTarget() float64 {
	return t.BreakevenTarget - t.SafetyMargin
}

// WebSocketConfig controls feed reconnection behavior.
type WebSocketConfig struct {
	ReconnectBaseDelay  time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay   time.Duration `mapstructure:"reconnect_max_delay"`
	ReconnectMultiplier float64       `mapstructure:"reconnect_multiplier"`
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval"`
	ConnectionTimeout   time.Duration `mapstructure:"connection_timeout"`
}

// PersistenceConfig sets where and how often bot state is saved.
type PersistenceConfig struct {
	StateFile    string        `mapstructure:"state_file"`
	SaveInterval time.Duration `mapstructure:"save_interval"`
	Enabled      bool          `mapstructure:"enabled"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the read-only HTTP dashboard server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: POLY_PRIVATE_KEY, POLY_API_KEY, POLY_API_SECRET, POLY_PASSPHRASE.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("POLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("POLY_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("POLY_API_KEY"); key != "" {
		cfg.API.ApiKey = key
	}
	if secret := os.Getenv("POLY_API_SECRET"); secret != "" {
		cfg.API.Secret = secret
	}
	if pass := os.Getenv("POLY_PASSPHRASE"); pass != "" {
		cfg.API.Passphrase = pass
	}
	if os.Getenv("POLY_PAPER_TRADING") == "true" || os.Getenv("POLY_PAPER_TRADING") == "1" {
		cfg.PaperTrading = true
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.clob_base_url", "https://clob.polymarket.com")
	v.SetDefault("api.ws_market_url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("api.ws_user_url", "wss://ws-subscriptions-clob.polymarket.com/ws/user")
	v.SetDefault("wallet.chain_id", 137)

	v.SetDefault("trading.target_assets", []string{"BTC", "ETH", "SOL"})
	v.SetDefault("trading.target_timeframes", []string{"15m", "1h"})
	v.SetDefault("trading.min_price", 0.20)
	v.SetDefault("trading.max_price", 0.80)
	v.SetDefault("trading.max_position_usdc", 100.0)
	v.SetDefault("trading.max_position_per_market", 50.0)
	v.SetDefault("trading.tick_size", 0.01)
	v.SetDefault("trading.base_quote_size", 5.0)
	v.SetDefault("trading.breakeven_target", 0.99)
	v.SetDefault("trading.safety_margin", 0.005)
	v.SetDefault("trading.skew_threshold", 1.2)
	v.SetDefault("trading.quote_refresh_interval", "500ms")
	v.SetDefault("trading.market_refresh_interval", "60s")
	v.SetDefault("trading.batch_size", 10)
	v.SetDefault("trading.rebate_rate_bps", 10.0)

	v.SetDefault("websocket.reconnect_base_delay", "1s")
	v.SetDefault("websocket.reconnect_max_delay", "30s")
	v.SetDefault("websocket.reconnect_multiplier", 2.0)
	v.SetDefault("websocket.heartbeat_interval", "30s")
	v.SetDefault("websocket.connection_timeout", "10s")

	v.SetDefault("persistence.state_file", "data/state.json")
	v.SetDefault("persistence.save_interval", "5s")
	v.SetDefault("persistence.enabled", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.port", 8080)
}

// Validate checks all required fields and value ranges.
// Credentials are only required when the bot will actually submit orders.
func (c *Config) Validate() error {
	if !c.PaperTrading {
		if c.Wallet.PrivateKey == "" {
			return fmt.Errorf("wallet.private_key is required (set POLY_PRIVATE_KEY)")
		}
		if c.Wallet.ChainID == 0 {
			return fmt.Errorf("wallet.chain_id is required (137 for mainnet)")
		}
		switch c.Wallet.SignatureType {
		case 0, 1, 2:
		default:
			return fmt.Errorf("wallet.signature_type must be one of: 0 (EOA), 1 (POLY_PROXY), 2 (GNOSIS_SAFE)")
		}
		if c.Wallet.SignatureType != 0 && c.Wallet.FunderAddress == "" {
			return fmt.Errorf("wallet.funder_address is required when wallet.signature_type is 1 or 2")
		}
	}
	if c.API.CLOBBaseURL == "" {
		return fmt.Errorf("api.clob_base_url is required")
	}
	if len(c.Trading.TargetAssets) == 0 {
		return fmt.Errorf("trading.target_assets must name at least one asset")
	}
	if c.Trading.MinPrice <= 0 || c.Trading.MaxPrice >= 1 || c.Trading.MinPrice >= c.Trading.MaxPrice {
		return fmt.Errorf("trading price band must satisfy 0 < min_price < max_price < 1")
	}
	if c.Trading.TickSize <= 0 {
		return fmt.Errorf("trading.tick_size must be > 0")
	}
	if c.Trading.BaseQuoteSize <= 0 {
		return fmt.Errorf("trading.base_quote_size must be > 0")
	}
	if c.Trading.MaxPositionUSDC <= 0 {
		return fmt.Errorf("trading.max_position_usdc must be > 0")
	}
	if c.Trading.MaxPositionPerMarket <= 0 {
		return fmt.Errorf("trading.max_position_per_market must be > 0")
	}
	if c.Trading.BreakevenTarget <= 0 || c.Trading.BreakevenTarget >= 1 {
		return fmt.Errorf("trading.breakeven_target must be in (0, 1)")
	}
	if c.Trading.SafetyMargin < 0 || c.Trading.SafetyMargin >= c.Trading.BreakevenTarget {
		return fmt.Errorf("trading.safety_margin must be in [0, breakeven_target)")
	}
	if c.Trading.SkewThreshold <= 1 {
		return fmt.Errorf("trading.skew_threshold must be > 1")
	}
	if c.Trading.QuoteRefreshInterval <= 0 {
		return fmt.Errorf("trading.quote_refresh_interval must be > 0")
	}
	if c.Trading.BatchSize <= 0 {
		return fmt.Errorf("trading.batch_size must be > 0")
	}
	return nil
}
