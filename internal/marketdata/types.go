// internal/marketdata/types.go
package marketdata

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// envelope is the common response wrapper of the platform API.
type envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

func (e envelope[T]) ok() bool {
	return e.Code == 0 || e.Code == 200
}

// Coin is the token record returned by coin_show and coin_list.
type Coin struct {
	Mint              string          `json:"mint"`
	Name              string          `json:"name"`
	Symbol            string          `json:"symbol"`
	ImageURL          string          `json:"image_url"`
	PriceUSD          decimal.Decimal `json:"price_usd_f"`
	PriceChange24h    decimal.Decimal `json:"price_change_24h_f"`
	MarketCap         decimal.Decimal `json:"market_cap_f"`
	ExternalLiquidity decimal.Decimal `json:"external_liquidity"`
	// IsRefine marks tokens whose page opens on the mining tab.
	IsRefine int `json:"is_refine"`
	// IsGraduated is the market phase flag: 1 once the token trades on the router.
	IsGraduated int `json:"is_graduated"`
}

// Address returns the token address, zero if Mint is not a hex address.
func (c Coin) Address() common.Address {
	if !common.IsHexAddress(c.Mint) {
		return common.Address{}
	}
	return common.HexToAddress(c.Mint)
}

// CoinPage is a page of coins.
type CoinPage struct {
	List  []Coin `json:"list"`
	Total int    `json:"total"`
}

// ListParams pages coin_list and holder/coins.
type ListParams struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	User     string `json:"user,omitempty"`
	UserAddr string `json:"user_addr,omitempty"`
}

// AssetPrice is one chain_asset_config entry.
type AssetPrice struct {
	AuxContractAddr string          `json:"aux_contract_addr"`
	Symbol          string          `json:"symbol"`
	Price           decimal.Decimal `json:"price"`
}
