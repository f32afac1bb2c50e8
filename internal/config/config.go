// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// ORIGIN_TRADER_RPC_URL or ORIGIN_TRADER_CONTRACTS_TOKEN_FACTORY.
const EnvPrefix = "ORIGIN_TRADER"

type ContractsConfig struct {
	TokenFactory  string `mapstructure:"token_factory"`
	SwapRouter    string `mapstructure:"swap_router"`
	BaseToken     string `mapstructure:"base_token"`
	WrappedNative string `mapstructure:"wrapped_native"`
}

type KeygenConfig struct {
	Account string `mapstructure:"account"`
	Product string `mapstructure:"product"`
	Token   string `mapstructure:"token"`
}

type Config struct {
	License string       `mapstructure:"license"`
	Keygen  KeygenConfig `mapstructure:"keygen"`

	ChainID     int64           `mapstructure:"chain_id"`
	RPCURL      string          `mapstructure:"rpc_url"`
	ExplorerURL string          `mapstructure:"explorer_url"`
	APIBaseURL  string          `mapstructure:"api_base_url"`
	Contracts   ContractsConfig `mapstructure:"contracts"`

	// Wallet secrets normally come from .env, not the config file.
	PrivateKey     string `mapstructure:"private_key"`
	Mnemonic       string `mapstructure:"mnemonic"`
	DerivationPath string `mapstructure:"derivation_path"`
	// CSV с колонками Name,PrivateKeyHex; используется, если ключ и мнемоника пусты.
	WalletsFile string `mapstructure:"wallets_file"`
	WalletName  string `mapstructure:"wallet_name"`

	QuoteIntervalMs         int     `mapstructure:"quote_interval_ms"`
	BalanceIntervalMs       int     `mapstructure:"balance_interval_ms"`
	NativeBalanceIntervalMs int     `mapstructure:"native_balance_interval_ms"`
	PriceIntervalMs         int     `mapstructure:"price_interval_ms"`
	ReceiptPollMs           int     `mapstructure:"receipt_poll_ms"`
	ConfirmationTimeoutMs   int     `mapstructure:"confirmation_timeout_ms"`
	APIRateLimit            float64 `mapstructure:"api_rate_limit"`

	SettingsDir  string `mapstructure:"settings_dir"`
	JournalPath  string `mapstructure:"journal_path"`
	LogFile      string `mapstructure:"log_file"`
	DebugLogging bool   `mapstructure:"debug_logging"`
}

const (
	DefaultChainID                 = 97
	DefaultQuoteIntervalMs         = 3000
	DefaultBalanceIntervalMs       = 3000
	DefaultNativeBalanceIntervalMs = 10000
	DefaultPriceIntervalMs         = 10000
	DefaultReceiptPollMs           = 1000
	DefaultAPIRateLimit            = 5
	DefaultDerivationPath          = "m/44'/60'/0'/0/0"
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"license":                    "",
		"keygen.account":             "",
		"keygen.product":             "",
		"keygen.token":               "",
		"chain_id":                   DefaultChainID,
		"rpc_url":                    "",
		"explorer_url":               "",
		"api_base_url":               "",
		"contracts.token_factory":    "",
		"contracts.swap_router":      "",
		"contracts.base_token":       "",
		"contracts.wrapped_native":   "",
		"private_key":                "",
		"mnemonic":                   "",
		"derivation_path":            DefaultDerivationPath,
		"wallets_file":               "",
		"wallet_name":                "",
		"quote_interval_ms":          DefaultQuoteIntervalMs,
		"balance_interval_ms":        DefaultBalanceIntervalMs,
		"native_balance_interval_ms": DefaultNativeBalanceIntervalMs,
		"price_interval_ms":          DefaultPriceIntervalMs,
		"receipt_poll_ms":            DefaultReceiptPollMs,
		"confirmation_timeout_ms":    0,
		"api_rate_limit":             DefaultAPIRateLimit,
		"settings_dir":               "data/settings",
		"journal_path":               "data/journal.db",
		"log_file":                   "logs/trader.log",
		"debug_logging":              false,
	}
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadConfig reads path (JSON or YAML; empty means defaults only) and applies
// ORIGIN_TRADER_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.ChainID <= 0 {
		return errors.New("invalid chain_id")
	}
	if cfg.RPCURL == "" {
		return errors.New("rpc_url is empty")
	}
	if err := validateURLWithCache(cfg.RPCURL, "http", "ws"); err != nil {
		return fmt.Errorf("invalid rpc_url: %w", err)
	}
	if cfg.APIBaseURL == "" {
		return errors.New("api_base_url is empty")
	}
	if err := validateURLWithCache(cfg.APIBaseURL, "http"); err != nil {
		return fmt.Errorf("invalid api_base_url: %w", err)
	}
	if cfg.ExplorerURL != "" {
		if err := validateURLWithCache(cfg.ExplorerURL, "http"); err != nil {
			return fmt.Errorf("invalid explorer_url: %w", err)
		}
	}
	if err := validateContracts(cfg); err != nil {
		return err
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	if cfg.License != "" && (cfg.Keygen.Account == "" || cfg.Keygen.Product == "") {
		return errors.New("license set but keygen account/product missing")
	}
	return nil
}

func validateContracts(cfg *Config) error {
	for name, hex := range map[string]string{
		"contracts.token_factory":  cfg.Contracts.TokenFactory,
		"contracts.swap_router":    cfg.Contracts.SwapRouter,
		"contracts.base_token":     cfg.Contracts.BaseToken,
		"contracts.wrapped_native": cfg.Contracts.WrappedNative,
	} {
		if hex != "" && !common.IsHexAddress(hex) {
			return fmt.Errorf("invalid %s address %q", name, hex)
		}
	}
	if _, ok := Presets[cfg.ChainID]; !ok && cfg.Contracts.SwapRouter == "" && cfg.Contracts.TokenFactory == "" {
		return fmt.Errorf("chain_id %d has no preset; set contracts explicitly", cfg.ChainID)
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	for name, v := range map[string]int{
		"quote_interval_ms":          cfg.QuoteIntervalMs,
		"balance_interval_ms":        cfg.BalanceIntervalMs,
		"native_balance_interval_ms": cfg.NativeBalanceIntervalMs,
		"price_interval_ms":          cfg.PriceIntervalMs,
		"receipt_poll_ms":            cfg.ReceiptPollMs,
	} {
		if v <= 0 {
			return fmt.Errorf("invalid %s", name)
		}
	}
	if cfg.ConfirmationTimeoutMs < 0 {
		return errors.New("invalid confirmation_timeout_ms")
	}
	if cfg.APIRateLimit < 0 {
		return errors.New("invalid api_rate_limit")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocols ...string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return errors.New("invalid URL format")
	}
	for _, p := range protocols {
		if strings.HasPrefix(parsed.Scheme, p) {
			urlCache.Store(rawURL, parsed)
			return nil
		}
	}
	return errors.New("invalid URL protocol")
}

// Durations

func (cfg *Config) QuoteInterval() time.Duration { return ms(cfg.QuoteIntervalMs) }
func (cfg *Config) BalanceInterval() time.Duration { return ms(cfg.BalanceIntervalMs) }
func (cfg *Config) NativeBalanceInterval() time.Duration { return ms(cfg.NativeBalanceIntervalMs) }
func (cfg *Config) PriceInterval() time.Duration { return ms(cfg.PriceIntervalMs) }
func (cfg *Config) ReceiptPoll() time.Duration { return ms(cfg.ReceiptPollMs) }

// ConfirmationTimeout is zero when receipts are awaited without a deadline.
func (cfg *Config) ConfirmationTimeout() time.Duration { return ms(cfg.ConfirmationTimeoutMs) }

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
