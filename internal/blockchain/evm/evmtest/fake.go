// Package evmtest provides an in-memory evm.Chain for tests.
package evmtest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rovshanmuradov/origin-trader/internal/blockchain/evm"
)

// FakeChain records every call and answers through the optional hooks.
// Without hooks reads fail, writes succeed and receipts are successful.
type FakeChain struct {
	mu sync.Mutex

	ReadFn    func(ctx context.Context, call evm.Call) ([]interface{}, error)
	WriteFn   func(ctx context.Context, call evm.Call) (common.Hash, error)
	ReceiptFn func(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	reads    []evm.Call
	writes   []evm.Call
	receipts []common.Hash
	nonce    uint64
}

// ReadContract implements evm.Chain.
func (f *FakeChain) ReadContract(ctx context.Context, call evm.Call) ([]interface{}, error) {
	f.mu.Lock()
	f.reads = append(f.reads, call)
	fn := f.ReadFn
	f.mu.Unlock()

	if fn == nil {
		return nil, fmt.Errorf("no read handler for %s", call.Method)
	}
	return fn(ctx, call)
}

// WriteContract implements evm.Chain.
func (f *FakeChain) WriteContract(ctx context.Context, call evm.Call) (common.Hash, error) {
	f.mu.Lock()
	f.writes = append(f.writes, call)
	f.nonce++
	n := f.nonce
	fn := f.WriteFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, call)
	}
	return common.BigToHash(big.NewInt(int64(n))), nil
}

// WaitForReceipt implements evm.Chain.
func (f *FakeChain) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	f.receipts = append(f.receipts, hash)
	fn := f.ReceiptFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, hash)
	}
	return Success(hash), nil
}

// Reads returns a copy of the recorded reads.
func (f *FakeChain) Reads() []evm.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]evm.Call(nil), f.reads...)
}

// Writes returns a copy of the recorded writes.
func (f *FakeChain) Writes() []evm.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]evm.Call(nil), f.writes...)
}

// Waited returns the hashes passed to WaitForReceipt.
func (f *FakeChain) Waited() []common.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]common.Hash(nil), f.receipts...)
}

// WritesTo counts recorded writes of method.
func (f *FakeChain) WritesTo(method string) int {
	n := 0
	for _, w := range f.Writes() {
		if w.Method == method {
			n++
		}
	}
	return n
}

// Success builds a successful receipt.
func Success(hash common.Hash) *types.Receipt {
	return &types.Receipt{
		TxHash:            hash,
		Status:            types.ReceiptStatusSuccessful,
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(3_000_000_000),
	}
}

// Reverted builds a failed receipt.
func Reverted(hash common.Hash) *types.Receipt {
	r := Success(hash)
	r.Status = types.ReceiptStatusFailed
	return r
}

// Uint is a convenience read result holding a single uint256.
func Uint(v int64) []interface{} {
	return []interface{}{big.NewInt(v)}
}

// BigUint wraps v as a read result.
func BigUint(v *big.Int) []interface{} {
	return []interface{}{new(big.Int).Set(v)}
}
