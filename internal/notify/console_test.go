package notify

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/events"
)

type fakeLinks struct{}

func (fakeLinks) TxURL(h common.Hash) string { return "https://explorer.test/tx/" + h.Hex() }

func TestConsoleMessages(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, fakeLinks{}, "BNB", zaptest.NewLogger(t))
	hash := common.HexToHash("0xabc")

	c.Submitted(hash, model.Buy, "trade")
	c.Succeeded(hash, model.Buy, "trade", big.NewInt(21_000_000_000_000))
	c.Failed(model.Sell, "trade", "approval_failed", common.Hash{})
	c.Failed(model.Buy, "mining", "action_failed", hash)
	c.Error(errors.New("amount must be positive"))

	s := out.String()
	assert.Contains(t, s, "Buy submitted")
	assert.Contains(t, s, "https://explorer.test/tx/"+hash.Hex())
	assert.Contains(t, s, "Buy confirmed")
	assert.Contains(t, s, "Gas fee: 0.000021 BNB")
	assert.Contains(t, s, "Sell failed: token approval failed")
	assert.Contains(t, s, "Mining buy failed: transaction failed")
	assert.Contains(t, s, "Error: amount must be positive")
}

func TestConsoleQuote(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, fakeLinks{}, "BNB", zaptest.NewLogger(t))
	e18 := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	c.Quote(model.Buy, e18, new(big.Int).Mul(e18, big.NewInt(2)), new(big.Int).Mul(e18, big.NewInt(2)), 1.5)

	s := out.String()
	assert.Contains(t, s, "Input:")
	assert.Contains(t, s, "1.5% slippage, buy")
}

func TestConsoleAttach(t *testing.T) {
	var out bytes.Buffer
	bus := events.NewBus(zaptest.NewLogger(t), 16)
	t.Cleanup(func() { _ = bus.Shutdown(context.Background()) })

	c := NewConsole(&out, fakeLinks{}, "BNB", zaptest.NewLogger(t))
	c.Attach(bus)

	hash := common.HexToHash("0x01")
	require.NoError(t, bus.PublishSync(context.Background(), &events.TradeSubmittedEvent{
		BaseEvent: events.NewBase(events.TradeSubmitted), Side: model.Sell, Flow: "trade", Hash: hash,
	}))
	require.NoError(t, bus.PublishSync(context.Background(), &events.TradeFailedEvent{
		BaseEvent: events.NewBase(events.TradeFailed), Side: model.Sell, Flow: "trade", Reason: "action_failed", Hash: hash,
	}))
	assert.Contains(t, out.String(), "Sell submitted")
	assert.Contains(t, out.String(), "Sell failed: transaction failed")

	c.Detach()
	require.NoError(t, bus.PublishSync(context.Background(), &events.TradeSucceededEvent{
		BaseEvent: events.NewBase(events.TradeSucceeded), Side: model.Sell, Hash: hash,
	}))
	assert.NotContains(t, out.String(), "confirmed")
}
