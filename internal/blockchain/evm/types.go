// internal/blockchain/evm/types.go
package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Call describes one contract method invocation.
// Value is only meaningful for WriteContract and may be nil.
type Call struct {
	To     common.Address
	ABI    *abi.ABI
	Method string
	Args   []interface{}
	Value  *big.Int
}

// Chain is the narrow RPC surface the trading core depends on.
type Chain interface {
	ReadContract(ctx context.Context, call Call) ([]interface{}, error)
	WriteContract(ctx context.Context, call Call) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// BalanceReader reads wallet balances.
type BalanceReader interface {
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// Signer signs transactions for a single account.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Backend is the subset of ethclient.Client used by Client.
type Backend interface {
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.TransactionSender
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}
