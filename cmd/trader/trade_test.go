package main

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/rovshanmuradov/origin-trader/internal/bot"
	"github.com/rovshanmuradov/origin-trader/internal/config"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/executor"
	"github.com/rovshanmuradov/origin-trader/internal/quote"
)

func ether(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}

func TestNewTradeResult_Success(t *testing.T) {
	chain := config.Chain{ExplorerURL: "https://bscscan.com"}
	hash := common.HexToHash("0xbeef")
	tc := &bot.TradeCommand{
		Side: model.Buy,
		Outcome: &executor.Outcome{
			AttemptID: "a1",
			Side:      model.Buy,
			Flow:      executor.FlowSwap,
			State:     executor.Succeeded,
			Quote: quote.Quote{
				InputAmount:  ether("500000000000000000"),
				OutputAmount: ether("1000000000000000000000"),
			},
			MinOut: ether("990000000000000000000"),
			Hash:   hash,
			FeeWei: ether("105000000000000"),
		},
	}

	r := newTradeResult(tc, chain, nil)
	assert.Equal(t, "a1", r.AttemptID)
	assert.Equal(t, "swap", r.Flow)
	assert.Equal(t, "succeeded", r.State)
	assert.Equal(t, "0.5", r.AmountIn)
	assert.Equal(t, "1000", r.QuotedOut)
	assert.Equal(t, "990", r.MinOut)
	assert.Equal(t, "0.000105", r.Fee)
	assert.Equal(t, "https://bscscan.com/tx/"+hash.Hex(), r.TxURL)
	assert.Empty(t, r.ApprovalHash)
	assert.Empty(t, r.Error)
}

func TestNewTradeResult_Rejected(t *testing.T) {
	tc := &bot.TradeCommand{Side: model.Sell}
	r := newTradeResult(tc, config.Chain{}, executor.ErrAttemptInFlight)

	assert.Equal(t, "rejected", r.State)
	assert.Equal(t, "sell", r.Side)
	assert.Equal(t, "trade", r.Flow)
	assert.Contains(t, r.Error, "already in progress")
	assert.Empty(t, r.TxHash)
}

func TestNewTradeResult_Failed(t *testing.T) {
	hash := common.HexToHash("0xdead")
	tc := &bot.TradeCommand{Side: model.Buy, Mining: true}
	err := &executor.TradeError{
		Side:   model.Buy,
		Reason: executor.ReasonActionFailed,
		Hash:   hash,
		Err:    errors.New("reverted"),
	}

	r := newTradeResult(tc, config.Chain{}, err)
	assert.Equal(t, "failed", r.State)
	assert.Equal(t, "action_failed", r.Reason)
	assert.Equal(t, "mining", r.Flow)
	assert.Equal(t, hash.Hex(), r.TxHash)
	assert.Equal(t, hash.Hex(), r.TxURL, "no explorer falls back to the bare hash")
	assert.Equal(t, "buy action_failed", r.Error)
}

func TestNewTradeResult_KeepsCauseOutOfOutput(t *testing.T) {
	cause := errors.New(`send transaction: Post "https://rpc.internal:8545": dial tcp 10.0.0.5:8545: connection refused`)
	tc := &bot.TradeCommand{Side: model.Buy}

	r := newTradeResult(tc, config.Chain{}, &executor.TradeError{
		Side:   model.Buy,
		Reason: executor.ReasonActionFailed,
		Err:    cause,
	})
	assert.Equal(t, "buy action_failed", r.Error)
	assert.NotContains(t, r.Error, "rpc.internal")

	r = newTradeResult(tc, config.Chain{}, fmt.Errorf("%w: %v", executor.ErrQuoteUnavailable, cause))
	assert.Equal(t, "rejected", r.State)
	assert.Equal(t, executor.ErrQuoteUnavailable.Error(), r.Error)
	assert.NotContains(t, r.Error, "10.0.0.5")
}

func TestSideTitle(t *testing.T) {
	assert.Equal(t, "Buy", sideTitle(model.Buy, false))
	assert.Equal(t, "Sell", sideTitle(model.Sell, false))
	assert.Equal(t, "Mining buy", sideTitle(model.Buy, true))
}

func TestShortHex(t *testing.T) {
	assert.Equal(t, "", shortHex(""))
	assert.Equal(t, "0xabc", shortHex("0xabc"))
	assert.Equal(t, "0x1111…2222", shortHex("0x1111000000000000000000000000000000002222"))
}

func TestStateLabel(t *testing.T) {
	assert.Equal(t, "succeeded", stateLabel(&bot.HistoryEntry{State: "succeeded"}))
	assert.Equal(t, "failed (approval_failed)", stateLabel(&bot.HistoryEntry{State: "failed", Reason: "approval_failed"}))
}
