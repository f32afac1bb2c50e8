package executor

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/origin-trader/internal/allowance"
	"github.com/rovshanmuradov/origin-trader/internal/blockchain/evm"
	"github.com/rovshanmuradov/origin-trader/internal/blockchain/evm/evmtest"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/events"
	"github.com/rovshanmuradov/origin-trader/internal/quote"
	"github.com/rovshanmuradov/origin-trader/internal/storage"
	"github.com/rovshanmuradov/origin-trader/internal/storage/journal"
	"github.com/rovshanmuradov/origin-trader/internal/storage/models"
)

func journalled(t *testing.T, chain *evmtest.FakeChain) (*Executor, storage.Journal, *recordingBus) {
	t.Helper()
	log := zaptest.NewLogger(t)
	j, err := journal.Open(context.Background(), ":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	bus := &recordingBus{}
	exec, err := New(Dependencies{
		Session:   session{addr: owner, ok: true},
		Chain:     chain,
		Quotes:    quote.NewSource(chain, log),
		Allowance: allowance.NewManager(chain, log),
		Bus:       bus,
		Journal:   j,
	}, log)
	require.NoError(t, err)
	return exec, j, bus
}

func quotingChain() *evmtest.FakeChain {
	return &evmtest.FakeChain{
		ReadFn: func(_ context.Context, call evm.Call) ([]interface{}, error) {
			if call.Method == "allowance" {
				return evmtest.Uint(0), nil
			}
			return evmtest.BigUint(twoTokens), nil
		},
	}
}

func TestAttemptIsJournalled(t *testing.T) {
	exec, j, _ := journalled(t, quotingChain())

	out, err := exec.Execute(context.Background(), Request{
		Side: model.Sell, Amount: oneTenth, Market: market(t, model.PhaseBonding), Tolerance: 1,
	})
	require.NoError(t, err)

	rec, err := j.GetAttempt(context.Background(), out.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", rec.State)
	assert.Equal(t, out.Hash.Hex(), rec.TxHash)
	assert.Equal(t, out.ApprovalHash.Hex(), rec.ApprovalHash)
	assert.Equal(t, "1980000000000000000", rec.MinOut)
	assert.Equal(t, "2000000000000000000", rec.QuotedOut)
	assert.Equal(t, oneTenth.String(), rec.AmountIn)
	assert.Equal(t, "sell", rec.Side)
	assert.Equal(t, "trade", rec.Flow)
	assert.Equal(t, "bonding", rec.Phase)
	assert.Equal(t, owner.Hex(), rec.Owner)
	assert.Equal(t, out.FeeWei.String(), rec.FeeWei)
}

func TestFailedAttemptKeepsReasonAndCause(t *testing.T) {
	chain := quotingChain()
	chain.ReceiptFn = func(_ context.Context, h common.Hash) (*types.Receipt, error) {
		return evmtest.Reverted(h), nil
	}
	exec, j, _ := journalled(t, chain)

	out, err := exec.Execute(context.Background(), Request{
		Side: model.Buy, Amount: oneTenth, Market: market(t, model.PhaseBonding), Tolerance: 1,
	})
	require.Error(t, err)

	rec, err := j.GetAttempt(context.Background(), out.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, "failed", rec.State)
	assert.Equal(t, string(ReasonActionFailed), rec.Reason)
	assert.Contains(t, rec.ErrorMessage, "reverted")
}

func TestReconcileSettlesHungAttempts(t *testing.T) {
	chain := quotingChain()
	hung := common.HexToHash("0xbeef")
	stillPending := common.HexToHash("0xcafe")
	chain.ReceiptFn = func(ctx context.Context, h common.Hash) (*types.Receipt, error) {
		if h == stillPending {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		r := evmtest.Success(h)
		r.GasUsed = 100
		r.EffectiveGasPrice = big.NewInt(2)
		return r, nil
	}
	exec, j, bus := journalled(t, chain)
	ctx := context.Background()

	for _, rec := range []*models.Attempt{
		{ID: "a", Owner: owner.Hex(), Side: "buy", Flow: "swap", Phase: "graduated", Mint: mint.Hex(), AmountIn: "1", State: "confirming", TxHash: hung.Hex()},
		{ID: "b", Owner: owner.Hex(), Side: "sell", Flow: "swap", Phase: "graduated", Mint: mint.Hex(), AmountIn: "1", State: "confirming", TxHash: stillPending.Hex()},
	} {
		require.NoError(t, j.SaveAttempt(ctx, rec))
	}

	settled, err := exec.Reconcile(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.Equal(t, "a", settled[0].ID)
	assert.Equal(t, "200", settled[0].FeeWei)

	rec, err := j.GetAttempt(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", rec.State)

	left, err := j.ListUnsettled(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0].ID)

	assert.Equal(t, []events.EventType{events.TradeSucceeded}, bus.types())
}

func TestReconcileWithoutJournal(t *testing.T) {
	h := newHarness(t, twoTokens, big.NewInt(0))
	settled, err := h.exec.Reconcile(context.Background(), time.Millisecond)
	assert.NoError(t, err)
	assert.Empty(t, settled)
}

func TestJournalFailureDoesNotFailTrade(t *testing.T) {
	log := zaptest.NewLogger(t)
	chain := quotingChain()
	exec, err := New(Dependencies{
		Session:   session{addr: owner, ok: true},
		Chain:     chain,
		Quotes:    quote.NewSource(chain, log),
		Allowance: allowance.NewManager(chain, log),
		Journal:   brokenJournal{},
	}, log)
	require.NoError(t, err)

	out, err := exec.Execute(context.Background(), Request{
		Side: model.Buy, Amount: oneTenth, Market: market(t, model.PhaseBonding), Tolerance: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, Succeeded, out.State)
}

type brokenJournal struct{ storage.Journal }

func (brokenJournal) SaveAttempt(context.Context, *models.Attempt) error {
	return errors.New("disk full")
}
