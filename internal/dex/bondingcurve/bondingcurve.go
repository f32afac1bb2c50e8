// =============================
// File: internal/dex/bondingcurve/bondingcurve.go
// =============================
package bondingcurve

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/origin-trader/internal/blockchain/evm"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
)

const factoryABIJSON = `[
  {"inputs":[{"name":"token","type":"address"},{"name":"amountIn","type":"uint256"}],"name":"getBuyAmountOut","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"token","type":"address"},{"name":"amountIn","type":"uint256"}],"name":"getSellAmountOut","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"token","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"minAmountOut","type":"uint256"}],"name":"buyToken","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[{"name":"token","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"minAmountOut","type":"uint256"}],"name":"sellToken","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// FactoryABI is the TokenFactory interface used for curve quotes and trades.
var FactoryABI = evm.MustParseABI(factoryABIJSON)

// Market is a token still trading on the TokenFactory bonding curve.
// Buys pay native BNB; sells pay the token and need an approval to the factory.
type Market struct {
	Factory common.Address
	Token   common.Address
}

// New returns a bonding-curve market.
func New(factory, token common.Address) *Market {
	return &Market{Factory: factory, Token: token}
}

func (m *Market) Phase() model.Phase { return model.PhaseBonding }
func (m *Market) Mint() common.Address { return m.Token }
func (m *Market) Spender() common.Address { return m.Factory }

// Spend: buy is paid in BNB, sell in the token itself.
func (m *Market) Spend(side model.Side) model.Spend {
	if side == model.Buy {
		return model.Spend{Native: true}
	}
	return model.Spend{Token: m.Token}
}

// Output returns the token received; zero address for BNB.
func (m *Market) Output(side model.Side) common.Address {
	if side == model.Buy {
		return m.Token
	}
	return common.Address{}
}

// Validate checks that factory and token are known.
func (m *Market) Validate() error {
	return model.RequireAddresses(
		model.NamedAddress{Name: "token factory", Addr: m.Factory},
		model.NamedAddress{Name: "token", Addr: m.Token},
	)
}

// QuoteCall builds getBuyAmountOut / getSellAmountOut.
func (m *Market) QuoteCall(side model.Side, amountIn *big.Int) (evm.Call, error) {
	var method string
	switch side {
	case model.Buy:
		method = "getBuyAmountOut"
	case model.Sell:
		method = "getSellAmountOut"
	default:
		return evm.Call{}, fmt.Errorf("%w: %v", model.ErrUnknownSide, side)
	}
	return evm.Call{
		To:     m.Factory,
		ABI:    FactoryABI,
		Method: method,
		Args:   []interface{}{m.Token, amountIn},
	}, nil
}

// TradeCall builds buyToken (payable, value = amountIn) or sellToken.
func (m *Market) TradeCall(side model.Side, amountIn, minOut *big.Int) (evm.Call, error) {
	call := evm.Call{
		To:   m.Factory,
		ABI:  FactoryABI,
		Args: []interface{}{m.Token, amountIn, minOut},
	}
	switch side {
	case model.Buy:
		call.Method = "buyToken"
		call.Value = new(big.Int).Set(amountIn)
	case model.Sell:
		call.Method = "sellToken"
	default:
		return evm.Call{}, fmt.Errorf("%w: %v", model.ErrUnknownSide, side)
	}
	return call, nil
}
