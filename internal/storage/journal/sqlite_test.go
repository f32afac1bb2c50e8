package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/origin-trader/internal/storage"
	"github.com/rovshanmuradov/origin-trader/internal/storage/models"
)

const owner = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func openTemp(t *testing.T) storage.Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal", "trades.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestSaveAttemptUpserts(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)

	a := &models.Attempt{
		ID: "a1", Owner: owner, Side: "buy", Flow: "trade", Phase: "bonding",
		Mint: "0x01", AmountIn: "100000000000000000", State: "quoting", Tolerance: 1,
	}
	require.NoError(t, j.SaveAttempt(ctx, a))
	created := a.CreatedAt

	a.State = "confirming"
	a.TxHash = "0xabc"
	a.MinOut = "1980000000000000000"
	require.NoError(t, j.SaveAttempt(ctx, a))

	got, err := j.GetAttempt(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "confirming", got.State)
	assert.Equal(t, "0xabc", got.TxHash)
	assert.Equal(t, "1980000000000000000", got.MinOut)
	assert.Equal(t, "100000000000000000", got.AmountIn)
	assert.Equal(t, created.UnixMilli(), got.CreatedAt.UnixMilli())

	byHash, err := j.FindByHash(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "a1", byHash.ID)
}

func TestNotFound(t *testing.T) {
	j := openTemp(t)
	_, err := j.GetAttempt(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = j.FindByHash(context.Background(), "0xdead")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListAttemptsAndUnsettled(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)

	for _, a := range []*models.Attempt{
		{ID: "done", Owner: owner, Side: "sell", Flow: "trade", Phase: "graduated", Mint: "0x01", AmountIn: "1", State: "succeeded", TxHash: "0x1"},
		{ID: "hung", Owner: owner, Side: "buy", Flow: "mining", Phase: "graduated", Mint: "0x01", AmountIn: "2", State: "confirming", TxHash: "0x2"},
		{ID: "rejected", Owner: owner, Side: "buy", Flow: "trade", Phase: "bonding", Mint: "0x01", AmountIn: "3", State: "idle"},
		{ID: "other", Owner: "0x02", Side: "buy", Flow: "trade", Phase: "bonding", Mint: "0x01", AmountIn: "4", State: "failed"},
	} {
		require.NoError(t, j.SaveAttempt(ctx, a))
	}

	list, err := j.ListAttempts(ctx, owner, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	page, err := j.ListAttempts(ctx, owner, 1, 0)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	unsettled, err := j.ListUnsettled(ctx)
	require.NoError(t, err)
	require.Len(t, unsettled, 1)
	assert.Equal(t, "hung", unsettled[0].ID)
	assert.False(t, unsettled[0].Settled())
}

func TestInMemory(t *testing.T) {
	j, err := Open(context.Background(), ":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer j.Close()
	require.NoError(t, j.SaveAttempt(context.Background(), &models.Attempt{ID: "x", Owner: owner, Side: "buy", Flow: "trade", Phase: "bonding", Mint: "0x01", AmountIn: "1", State: "idle"}))
}
