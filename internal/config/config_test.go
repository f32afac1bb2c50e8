// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validConfigJSON = `{
    "chain_id": 97,
    "rpc_url": "https://data-seed-prebsc-1-s1.bnbchain.org:8545",
    "api_base_url": "https://api.test.origin.fun",
    "quote_interval_ms": 2000,
    "debug_logging": true
}`

func setupTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() *Config {
	return &Config{
		ChainID:                 97,
		RPCURL:                  "https://rpc.test",
		APIBaseURL:              "https://api.test",
		QuoteIntervalMs:         1000,
		BalanceIntervalMs:       1000,
		NativeBalanceIntervalMs: 1000,
		PriceIntervalMs:         1000,
		ReceiptPollMs:           500,
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "Valid config",
			content: validConfigJSON,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, int64(97), cfg.ChainID)
				assert.Equal(t, 2000, cfg.QuoteIntervalMs)
				assert.True(t, cfg.DebugLogging)
				// defaults
				assert.Equal(t, DefaultNativeBalanceIntervalMs, cfg.NativeBalanceIntervalMs)
				assert.Equal(t, DefaultReceiptPollMs, cfg.ReceiptPollMs)
				assert.Equal(t, DefaultDerivationPath, cfg.DerivationPath)
				assert.Zero(t, cfg.ConfirmationTimeout())
			},
		},
		{
			name:    "Missing rpc url",
			content: `{"chain_id": 97}`,
			wantErr: true,
		},
		{
			name:    "Negative interval",
			content: `{"rpc_url": "https://rpc.test", "quote_interval_ms": -1}`,
			wantErr: true,
		},
		{
			name:    "Invalid JSON syntax",
			content: "{invalid json",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(setupTestConfig(t, tt.content))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfigEnvironmentVariables(t *testing.T) {
	t.Setenv("ORIGIN_TRADER_RPC_URL", "wss://env-rpc.test")
	t.Setenv("ORIGIN_TRADER_PRIVATE_KEY", "0xabc")
	t.Setenv("ORIGIN_TRADER_CONTRACTS_TOKEN_FACTORY", "0x00000000000000000000000000000000000000f1")

	cfg, err := LoadConfig(setupTestConfig(t, `{"rpc_url": "https://file-rpc.test", "api_base_url": "https://api.test"}`))
	require.NoError(t, err)

	assert.Equal(t, "wss://env-rpc.test", cfg.RPCURL)
	assert.Equal(t, "0xabc", cfg.PrivateKey)
	assert.Equal(t, common.HexToAddress("0xf1"), cfg.Chain().Contracts.TokenFactory)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	t.Setenv("ORIGIN_TRADER_RPC_URL", "https://env-only.test")
	t.Setenv("ORIGIN_TRADER_API_BASE_URL", "https://api.env-only.test")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultChainID), cfg.ChainID)
	assert.Equal(t, "https://api.env-only.test", cfg.APIBaseURL)
	assert.Equal(t, "data/journal.db", cfg.JournalPath)
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ORIGIN_TRADER_DOTENV_PROBE=42\n"), 0o600))
	t.Setenv("ORIGIN_TRADER_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("ORIGIN_TRADER_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "42", os.Getenv("ORIGIN_TRADER_DOTENV_PROBE"))
}

func TestConfigValidationDetails(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		expectedError string
	}{
		{"Zero chain", func(c *Config) { c.ChainID = 0 }, "invalid chain_id"},
		{"Empty rpc", func(c *Config) { c.RPCURL = "" }, "rpc_url is empty"},
		{"Bad rpc protocol", func(c *Config) { c.RPCURL = "ftp://rpc.test" }, "invalid rpc_url: invalid URL protocol"},
		{"Empty api url", func(c *Config) { c.APIBaseURL = "" }, "api_base_url is empty"},
		{"Bad api url", func(c *Config) { c.APIBaseURL = "not a url" }, "invalid api_base_url: invalid URL format"},
		{"Bad contract", func(c *Config) { c.Contracts.SwapRouter = "0x12" }, `invalid contracts.swap_router address "0x12"`},
		{"Unknown chain without contracts", func(c *Config) { c.ChainID = 1 }, "chain_id 1 has no preset; set contracts explicitly"},
		{"Zero receipt poll", func(c *Config) { c.ReceiptPollMs = 0 }, "invalid receipt_poll_ms"},
		{"Negative confirmation timeout", func(c *Config) { c.ConfirmationTimeoutMs = -5 }, "invalid confirmation_timeout_ms"},
		{"License without keygen", func(c *Config) { c.License = "KEY" }, "license set but keygen account/product missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			require.Error(t, err)
			assert.Equal(t, tt.expectedError, err.Error())
		})
	}

	assert.NoError(t, validateConfig(validConfig()))
}

func TestChainPresets(t *testing.T) {
	cfg := validConfig()
	ch := cfg.Chain()
	assert.Equal(t, "https://testnet.bscscan.com", ch.ExplorerURL)
	assert.Equal(t, common.HexToAddress("0x17de68f0b56896C604B042daeecF22e1Ea022fe2"), ch.Contracts.TokenFactory)
	assert.Equal(t, common.Address{}, ch.WrappedNative)

	cfg.ChainID = 56
	cfg.ExplorerURL = "https://explorer.example/"
	cfg.Contracts.TokenFactory = "0x00000000000000000000000000000000000000aa"
	ch = cfg.Chain()
	assert.Equal(t, common.HexToAddress("0xBB4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"), ch.WrappedNative)
	assert.Equal(t, common.HexToAddress("0xaa"), ch.Contracts.TokenFactory)

	hash := common.HexToHash("0x01")
	assert.Equal(t, "https://explorer.example/tx/"+hash.Hex(), ch.TxURL(hash))
	assert.Equal(t, hash.Hex(), Chain{}.TxURL(hash))
}

func TestDurations(t *testing.T) {
	cfg := validConfig()
	cfg.ConfirmationTimeoutMs = 1500
	assert.Equal(t, time.Second, cfg.QuoteInterval())
	assert.Equal(t, 500*time.Millisecond, cfg.ReceiptPoll())
	assert.Equal(t, 1500*time.Millisecond, cfg.ConfirmationTimeout())
}
