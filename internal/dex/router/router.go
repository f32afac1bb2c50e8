// =============================
// File: internal/dex/router/router.go
// =============================
package router

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/origin-trader/internal/blockchain/evm"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
)

// PoolFee is the fee tier of every origin pool (1%, in hundredths of a bip).
const PoolFee = 10000

const routerABIJSON = `[
  {"inputs":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"fee","type":"uint24"}],"name":"getAmountOut","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"meme","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"fee","type":"uint24"}],"name":"swapFixedTokenForMeme","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"meme","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"fee","type":"uint24"}],"name":"swapMemeForFixedToken","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

// RouterABI is the swap router interface for graduated tokens.
var RouterABI = evm.MustParseABI(routerABIJSON)

// Market is a graduated token traded on the swap router against the base token.
// Both sides spend an ERC20 and need an approval to the router.
type Market struct {
	Router    common.Address
	Token     common.Address
	BaseToken common.Address
}

// New returns a router market.
func New(router, token, baseToken common.Address) *Market {
	return &Market{Router: router, Token: token, BaseToken: baseToken}
}

func (m *Market) Phase() model.Phase { return model.PhaseGraduated }
func (m *Market) Mint() common.Address { return m.Token }
func (m *Market) Spender() common.Address { return m.Router }

// Spend: buy is paid in the base token, sell in the listed token.
func (m *Market) Spend(side model.Side) model.Spend {
	tokenIn, _ := m.pair(side)
	return model.Spend{Token: tokenIn}
}

// Output returns the token received for side.
func (m *Market) Output(side model.Side) common.Address {
	_, tokenOut := m.pair(side)
	return tokenOut
}

// Validate checks router, token and base token.
func (m *Market) Validate() error {
	return model.RequireAddresses(
		model.NamedAddress{Name: "swap router", Addr: m.Router},
		model.NamedAddress{Name: "token", Addr: m.Token},
		model.NamedAddress{Name: "base token", Addr: m.BaseToken},
	)
}

// QuoteCall builds getAmountOut(tokenIn, tokenOut, amountIn, fee).
func (m *Market) QuoteCall(side model.Side, amountIn *big.Int) (evm.Call, error) {
	if !side.Valid() {
		return evm.Call{}, fmt.Errorf("%w: %v", model.ErrUnknownSide, side)
	}
	tokenIn, tokenOut := m.pair(side)
	return evm.Call{
		To:     m.Router,
		ABI:    RouterABI,
		Method: "getAmountOut",
		Args:   []interface{}{tokenIn, tokenOut, amountIn, big.NewInt(PoolFee)},
	}, nil
}

// TradeCall builds swapFixedTokenForMeme (buy) or swapMemeForFixedToken (sell).
func (m *Market) TradeCall(side model.Side, amountIn, minOut *big.Int) (evm.Call, error) {
	var method string
	switch side {
	case model.Buy:
		method = "swapFixedTokenForMeme"
	case model.Sell:
		method = "swapMemeForFixedToken"
	default:
		return evm.Call{}, fmt.Errorf("%w: %v", model.ErrUnknownSide, side)
	}
	return evm.Call{
		To:     m.Router,
		ABI:    RouterABI,
		Method: method,
		Args:   []interface{}{m.Token, amountIn, minOut, big.NewInt(PoolFee)},
	}, nil
}

func (m *Market) pair(side model.Side) (tokenIn, tokenOut common.Address) {
	if side == model.Buy {
		return m.BaseToken, m.Token
	}
	return m.Token, m.BaseToken
}
