// internal/blockchain/evm/erc20.go
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
  {"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// ERC20 is the parsed token ABI shared by balance and allowance reads.
var ERC20 = MustParseABI(erc20ABIJSON)

// MustParseABI parses a JSON ABI and panics on malformed input.
// Only used for ABIs compiled into the binary.
func MustParseABI(raw string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return &parsed
}

// BalanceOfCall builds an ERC20 balanceOf read.
func BalanceOfCall(token, owner common.Address) Call {
	return Call{To: token, ABI: ERC20, Method: "balanceOf", Args: []interface{}{owner}}
}

// AllowanceCall builds an ERC20 allowance read.
func AllowanceCall(token, owner, spender common.Address) Call {
	return Call{To: token, ABI: ERC20, Method: "allowance", Args: []interface{}{owner, spender}}
}

// ApproveCall builds an ERC20 approve write for exactly amount.
func ApproveCall(token, spender common.Address, amount *big.Int) Call {
	return Call{To: token, ABI: ERC20, Method: "approve", Args: []interface{}{spender, amount}}
}

// ReadBigInt performs a read whose first output is a uint256.
func ReadBigInt(ctx context.Context, chain Chain, call Call) (*big.Int, error) {
	out, err := chain.ReadContract(ctx, call)
	if err != nil {
		return nil, err
	}
	return BigIntResult(out)
}

// BigIntResult extracts the first output of a read as *big.Int.
func BigIntResult(out []interface{}) (*big.Int, error) {
	if len(out) == 0 {
		return nil, ErrEmptyResult
	}
	v, ok := out[0].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResult, out[0])
	}
	return new(big.Int).Set(v), nil
}
