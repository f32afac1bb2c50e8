// internal/allowance/allowance.go
package allowance

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/origin-trader/internal/blockchain/evm"
)

var (
	// ErrRead: the current allowance could not be read.
	ErrRead = errors.New("allowance read failed")
	// ErrSubmit: the approve transaction was not accepted.
	ErrSubmit = errors.New("approval submit failed")
	// ErrConfirm: the approve transaction was not confirmed.
	ErrConfirm = errors.New("approval confirmation failed")
	// ErrReverted: the approve transaction was mined but reverted.
	ErrReverted = errors.New("approval reverted")
)

// Result of EnsureAllowance. ApprovalHash is set only when an approval was sent.
type Result struct {
	AlreadySufficient bool
	Current           *big.Int
	ApprovalHash      common.Hash
}

// Manager makes sure a spender may pull a token before a trade.
type Manager struct {
	chain  evm.Chain
	logger *zap.Logger
}

// NewManager creates an allowance manager.
func NewManager(chain evm.Chain, logger *zap.Logger) *Manager {
	return &Manager{chain: chain, logger: logger.Named("allowance")}
}

// EnsureAllowance reads allowance(owner, spender) on token and, if it is below
// required, approves exactly required and waits for the approval to be mined.
// The allowance is read on every call; it can change outside this process.
func (m *Manager) EnsureAllowance(ctx context.Context, token, owner, spender common.Address, required *big.Int) (Result, error) {
	if required == nil || required.Sign() <= 0 {
		return Result{}, fmt.Errorf("%w: required amount must be positive", ErrRead)
	}

	log := m.logger.With(
		zap.String("token", token.Hex()),
		zap.String("owner", owner.Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("required", required.String()))

	current, err := evm.ReadBigInt(ctx, m.chain, evm.AllowanceCall(token, owner, spender))
	if err != nil {
		log.Warn("Allowance read failed", zap.Error(err))
		return Result{}, fmt.Errorf("%w: %w", ErrRead, err)
	}
	if current.Cmp(required) >= 0 {
		log.Debug("Allowance already sufficient", zap.String("current", current.String()))
		return Result{AlreadySufficient: true, Current: current}, nil
	}

	log.Info("Approving exact amount", zap.String("current", current.String()))
	hash, err := m.chain.WriteContract(ctx, evm.ApproveCall(token, spender, required))
	if err != nil {
		log.Error("Approve submit failed", zap.Error(err))
		return Result{}, fmt.Errorf("%w: %w", ErrSubmit, err)
	}

	receipt, err := m.chain.WaitForReceipt(ctx, hash)
	if err != nil {
		log.Error("Approve confirmation failed", zap.String("tx_hash", hash.Hex()), zap.Error(err))
		return Result{ApprovalHash: hash}, fmt.Errorf("%w: %w", ErrConfirm, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Error("Approve reverted", zap.String("tx_hash", hash.Hex()))
		return Result{ApprovalHash: hash}, fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
	}

	log.Info("Approval confirmed", zap.String("tx_hash", hash.Hex()))
	return Result{Current: new(big.Int).Set(required), ApprovalHash: hash}, nil
}
