// internal/config/chains.go
package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/origin-trader/internal/dex"
)

// Chain is the resolved network profile the trader runs against.
type Chain struct {
	ID          int64
	Name        string
	Symbol      string
	ExplorerURL string
	Contracts   dex.Contracts
	// BaseSymbol names the router base token.
	BaseSymbol string
	// WrappedNative is the aux_contract_addr under which the price feed
	// lists the native coin; zero when the feed has none.
	WrappedNative common.Address
}

// Presets are the BNB Smart Chain networks the platform is deployed on.
var Presets = map[int64]Chain{
	56: {
		ID:          56,
		Name:        "BNB Smart Chain",
		Symbol:      "BNB",
		ExplorerURL: "https://bscscan.com",
		BaseSymbol:  "ORIGIN",
		Contracts: dex.Contracts{
			SwapRouter: common.HexToAddress("0x6050c41Fa3395494feb87798CEaBB8840a8D0b67"),
			BaseToken:  common.HexToAddress("0xe75B8CF742Bb13342688d740C271368412664444"),
		},
		WrappedNative: common.HexToAddress("0xBB4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"),
	},
	97: {
		ID:          97,
		Name:        "BNB Smart Chain Testnet",
		Symbol:      "tBNB",
		ExplorerURL: "https://testnet.bscscan.com",
		BaseSymbol:  "ORIGIN",
		Contracts: dex.Contracts{
			TokenFactory: common.HexToAddress("0x17de68f0b56896C604B042daeecF22e1Ea022fe2"),
			SwapRouter:   common.HexToAddress("0x7623c9d6385bae0c8bc24da6862e202bfdddec72"),
			BaseToken:    common.HexToAddress("0x7048FaCAee7Dd8198AC4F7A390d3333741D8aA19"),
		},
	},
}

// TxURL links a transaction on the explorer.
func (c Chain) TxURL(hash common.Hash) string {
	if c.ExplorerURL == "" {
		return hash.Hex()
	}
	return fmt.Sprintf("%s/tx/%s", strings.TrimSuffix(c.ExplorerURL, "/"), hash.Hex())
}

// AddressURL links an account or token on the explorer.
func (c Chain) AddressURL(addr common.Address) string {
	if c.ExplorerURL == "" {
		return addr.Hex()
	}
	return fmt.Sprintf("%s/address/%s", strings.TrimSuffix(c.ExplorerURL, "/"), addr.Hex())
}

// Chain merges the preset for ChainID with any addresses set in the config.
func (cfg *Config) Chain() Chain {
	ch, ok := Presets[cfg.ChainID]
	if !ok {
		ch = Chain{ID: cfg.ChainID, Name: fmt.Sprintf("chain %d", cfg.ChainID), Symbol: "ETH", BaseSymbol: "BASE"}
	}
	if cfg.ExplorerURL != "" {
		ch.ExplorerURL = cfg.ExplorerURL
	}
	override(&ch.Contracts.TokenFactory, cfg.Contracts.TokenFactory)
	override(&ch.Contracts.SwapRouter, cfg.Contracts.SwapRouter)
	override(&ch.Contracts.BaseToken, cfg.Contracts.BaseToken)
	override(&ch.WrappedNative, cfg.Contracts.WrappedNative)
	return ch
}

func override(dst *common.Address, hex string) {
	if common.IsHexAddress(hex) {
		*dst = common.HexToAddress(hex)
	}
}
