package executor

import (
	"context"
	"errors"
	"math/big"
	"sync"
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
	"github.com/rovshanmuradov/origin-trader/internal/dex"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/dex/router"
	"github.com/rovshanmuradov/origin-trader/internal/events"
	"github.com/rovshanmuradov/origin-trader/internal/quote"
)

var (
	owner     = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	mint      = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	contracts = dex.Contracts{
		TokenFactory: common.HexToAddress("0x17de68f0b56896C604B042daeecF22e1Ea022fe2"),
		SwapRouter:   common.HexToAddress("0x7623c9d6385bae0c8bc24da6862e202bfdddec72"),
		BaseToken:    common.HexToAddress("0x7048FaCAee7Dd8198AC4F7A390d3333741D8aA19"),
	}

	oneTenth  = mustBig("100000000000000000")
	twoTokens = mustBig("2000000000000000000")
)

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

type session struct {
	addr common.Address
	ok   bool
}

func (s session) Address() (common.Address, bool) { return s.addr, s.ok }

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) PublishWait(_ context.Context, e events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBus) types() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.EventType
	for _, e := range b.events {
		out = append(out, e.Type())
	}
	return out
}

type notifications struct {
	mu        sync.Mutex
	submitted []common.Hash
	succeeded []common.Hash
	failed    []Reason
}

func (n *notifications) callbacks() Callbacks {
	return Callbacks{
		OnSubmitted: func(h common.Hash, _ model.Side) {
			n.mu.Lock()
			n.submitted = append(n.submitted, h)
			n.mu.Unlock()
		},
		OnSucceeded: func(h common.Hash, _ model.Side) {
			n.mu.Lock()
			n.succeeded = append(n.succeeded, h)
			n.mu.Unlock()
		},
		OnFailed: func(_ model.Side, r Reason) {
			n.mu.Lock()
			n.failed = append(n.failed, r)
			n.mu.Unlock()
		},
	}
}

type harness struct {
	chain *evmtest.FakeChain
	bus   *recordingBus
	exec  *Executor
}

// newHarness answers every quote with quoted and every allowance read with
// allowanceOf.
func newHarness(t *testing.T, quoted, allowanceOf *big.Int) *harness {
	t.Helper()
	chain := &evmtest.FakeChain{
		ReadFn: func(_ context.Context, call evm.Call) ([]interface{}, error) {
			switch call.Method {
			case "getBuyAmountOut", "getSellAmountOut", "getAmountOut":
				if quoted == nil {
					return nil, errors.New("execution reverted")
				}
				return evmtest.BigUint(quoted), nil
			case "allowance":
				return evmtest.BigUint(allowanceOf), nil
			}
			return nil, errors.New("unexpected read " + call.Method)
		},
	}
	return newHarnessWith(t, chain, session{addr: owner, ok: true})
}

func newHarnessWith(t *testing.T, chain *evmtest.FakeChain, s session) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	bus := &recordingBus{}
	exec, err := New(Dependencies{
		Session:   s,
		Chain:     chain,
		Quotes:    quote.NewSource(chain, log),
		Allowance: allowance.NewManager(chain, log),
		Bus:       bus,
	}, log)
	require.NoError(t, err)
	return &harness{chain: chain, bus: bus, exec: exec}
}

func market(t *testing.T, phase model.Phase) model.Market {
	t.Helper()
	m, err := dex.NewMarket(phase, contracts, mint)
	require.NoError(t, err)
	return m
}

func TestBondingCurveBuy(t *testing.T) {
	h := newHarness(t, twoTokens, big.NewInt(0))
	var n notifications

	out, err := h.exec.Execute(context.Background(), Request{
		Side:      model.Buy,
		Amount:    oneTenth,
		Market:    market(t, model.PhaseBonding),
		Tolerance: 1,
		Callbacks: n.callbacks(),
	})
	require.NoError(t, err)

	assert.Equal(t, Succeeded, out.State)
	assert.Equal(t, FlowTrade, out.Flow)
	assert.Equal(t, mustBig("1980000000000000000"), out.MinOut)
	assert.True(t, out.ClearInput)
	assert.Equal(t, big.NewInt(21000*3_000_000_000), out.FeeWei)

	writes := h.chain.Writes()
	require.Len(t, writes, 1, "native buy must not approve")
	assert.Equal(t, "buyToken", writes[0].Method)
	assert.Equal(t, contracts.TokenFactory, writes[0].To)
	assert.Equal(t, oneTenth, writes[0].Value, "native value is the input amount")
	assert.Equal(t, mustBig("1980000000000000000"), writes[0].Args[2])

	for _, r := range h.chain.Reads() {
		assert.NotEqual(t, "allowance", r.Method)
	}

	assert.Equal(t, []common.Hash{out.Hash}, n.submitted)
	assert.Equal(t, []common.Hash{out.Hash}, n.succeeded)
	assert.Empty(t, n.failed)
	assert.Equal(t, []events.EventType{events.TradeSubmitted, events.TradeSucceeded}, h.bus.types())
	assert.Equal(t, Succeeded, h.exec.State(owner, model.Buy))
}

func TestBondingCurveSellApprovesExactAmountFirst(t *testing.T) {
	h := newHarness(t, twoTokens, big.NewInt(0))

	out, err := h.exec.Execute(context.Background(), Request{
		Side:      model.Sell,
		Amount:    oneTenth,
		Market:    market(t, model.PhaseBonding),
		Tolerance: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, Succeeded, out.State)
	assert.NotEqual(t, common.Hash{}, out.ApprovalHash)

	writes := h.chain.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "approve", writes[0].Method)
	assert.Equal(t, mint, writes[0].To)
	assert.Equal(t, contracts.TokenFactory, writes[0].Args[0])
	assert.Equal(t, oneTenth, writes[0].Args[1])
	assert.Equal(t, "sellToken", writes[1].Method)
	assert.Nil(t, writes[1].Value)

	waited := h.chain.Waited()
	require.Len(t, waited, 2)
	assert.Equal(t, out.ApprovalHash, waited[0], "approval must confirm before the trade")
}

func TestRouterBuySpendsBaseToken(t *testing.T) {
	h := newHarness(t, twoTokens, twoTokens)

	out, err := h.exec.Execute(context.Background(), Request{
		Side:      model.Buy,
		Amount:    oneTenth,
		Market:    market(t, model.PhaseGraduated),
		Tolerance: 3,
		Flow:      FlowMining,
	})
	require.NoError(t, err)
	assert.Equal(t, FlowMining, out.Flow)
	assert.Equal(t, mustBig("1940000000000000000"), out.MinOut)

	writes := h.chain.Writes()
	require.Len(t, writes, 1, "allowance already covers the amount")
	assert.Equal(t, "swapFixedTokenForMeme", writes[0].Method)
	assert.Nil(t, writes[0].Value)

	var allowanceReads []evm.Call
	for _, r := range h.chain.Reads() {
		if r.Method == "allowance" {
			allowanceReads = append(allowanceReads, r)
		}
	}
	require.Len(t, allowanceReads, 1)
	assert.Equal(t, contracts.BaseToken, allowanceReads[0].To)
}

func TestApprovalFailure(t *testing.T) {
	h := newHarness(t, twoTokens, big.NewInt(0))
	h.chain.WriteFn = func(_ context.Context, call evm.Call) (common.Hash, error) {
		if call.Method == "approve" {
			return common.Hash{}, errors.New("insufficient funds for gas")
		}
		return common.HexToHash("0x01"), nil
	}
	var n notifications

	out, err := h.exec.Execute(context.Background(), Request{
		Side:      model.Sell,
		Amount:    oneTenth,
		Market:    market(t, model.PhaseGraduated),
		Tolerance: 1,
		Callbacks: n.callbacks(),
	})

	var tradeErr *TradeError
	require.ErrorAs(t, err, &tradeErr)
	assert.Equal(t, ReasonApprovalFailed, tradeErr.Reason)
	assert.ErrorIs(t, err, allowance.ErrSubmit)
	assert.False(t, IsRejection(err))
	assert.Equal(t, "sell approval_failed", Summary(err), "the cause stays in the log")

	assert.Equal(t, Failed, out.State)
	assert.Equal(t, ReasonApprovalFailed, out.Reason)
	assert.Zero(t, h.chain.WritesTo("swapMemeForFixedToken"), "no trade after a failed approval")
	assert.Equal(t, []Reason{ReasonApprovalFailed}, n.failed)
	assert.Empty(t, n.submitted)
	assert.Equal(t, []events.EventType{events.TradeFailed}, h.bus.types())
}

func TestTradeReverted(t *testing.T) {
	h := newHarness(t, twoTokens, big.NewInt(0))
	h.chain.ReceiptFn = func(_ context.Context, hash common.Hash) (*types.Receipt, error) {
		return evmtest.Reverted(hash), nil
	}
	var n notifications

	out, err := h.exec.Execute(context.Background(), Request{
		Side:      model.Buy,
		Amount:    oneTenth,
		Market:    market(t, model.PhaseBonding),
		Tolerance: 1,
		Callbacks: n.callbacks(),
	})

	var tradeErr *TradeError
	require.ErrorAs(t, err, &tradeErr)
	assert.Equal(t, ReasonActionFailed, tradeErr.Reason)
	assert.Equal(t, model.Buy, tradeErr.Side)
	assert.Equal(t, Failed, out.State)
	assert.NotEqual(t, common.Hash{}, out.Hash)
	assert.False(t, out.ClearInput)
	assert.Equal(t, []Reason{ReasonActionFailed}, n.failed)
	assert.Len(t, n.submitted, 1)
	assert.Empty(t, n.succeeded)
}

func TestConfirmationWaitError(t *testing.T) {
	h := newHarness(t, twoTokens, big.NewInt(0))
	h.chain.ReceiptFn = func(context.Context, common.Hash) (*types.Receipt, error) {
		return nil, errors.New("connection reset")
	}

	out, err := h.exec.Execute(context.Background(), Request{
		Side: model.Buy, Amount: oneTenth, Market: market(t, model.PhaseBonding), Tolerance: 1,
	})
	var tradeErr *TradeError
	require.ErrorAs(t, err, &tradeErr)
	assert.Equal(t, ReasonActionFailed, tradeErr.Reason)
	assert.Equal(t, Failed, out.State)
}

func TestRejectionsNeverTouchTheChain(t *testing.T) {
	unresolved := router.New(common.Address{}, mint, contracts.BaseToken)

	tests := []struct {
		name    string
		quoted  *big.Int
		session session
		req     Request
		wantErr error
	}{
		{
			name:    "logged out",
			quoted:  twoTokens,
			session: session{},
			req:     Request{Side: model.Buy, Amount: oneTenth, Tolerance: 1},
			wantErr: ErrLoginRequired,
		},
		{
			name:    "zero amount",
			quoted:  twoTokens,
			session: session{addr: owner, ok: true},
			req:     Request{Side: model.Buy, Amount: big.NewInt(0), Tolerance: 1},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "nil amount",
			quoted:  twoTokens,
			session: session{addr: owner, ok: true},
			req:     Request{Side: model.Buy, Tolerance: 1},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "unresolved market",
			quoted:  twoTokens,
			session: session{addr: owner, ok: true},
			req:     Request{Side: model.Buy, Amount: oneTenth, Market: unresolved, Tolerance: 1},
			wantErr: ErrMarketUnresolved,
		},
		{
			name:    "quote unavailable",
			quoted:  nil,
			session: session{addr: owner, ok: true},
			req:     Request{Side: model.Buy, Amount: oneTenth, Tolerance: 1},
			wantErr: ErrQuoteUnavailable,
		},
		{
			name:    "min output rounds to zero",
			quoted:  big.NewInt(1),
			session: session{addr: owner, ok: true},
			req:     Request{Side: model.Buy, Amount: oneTenth, Tolerance: 5},
			wantErr: ErrZeroMinOutput,
		},
		{
			name:    "invalid tolerance",
			quoted:  twoTokens,
			session: session{addr: owner, ok: true},
			req:     Request{Side: model.Buy, Amount: oneTenth, Tolerance: 150},
			wantErr: ErrZeroMinOutput,
		},
		{
			name:    "mining sell",
			quoted:  twoTokens,
			session: session{addr: owner, ok: true},
			req:     Request{Side: model.Sell, Amount: oneTenth, Tolerance: 1, Flow: FlowMining},
			wantErr: ErrInvalidFlow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quoted := tt.quoted
			chain := &evmtest.FakeChain{
				ReadFn: func(context.Context, evm.Call) ([]interface{}, error) {
					if quoted == nil {
						return nil, errors.New("execution reverted")
					}
					return evmtest.BigUint(quoted), nil
				},
			}
			h := newHarnessWith(t, chain, tt.session)
			var n notifications
			req := tt.req
			if req.Market == nil && tt.name != "logged out" {
				req.Market = market(t, model.PhaseGraduated)
			}
			req.Callbacks = n.callbacks()

			out, err := h.exec.Execute(context.Background(), req)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsRejection(err))
			assert.Empty(t, h.chain.Writes())
			assert.Empty(t, n.failed, "a rejection is not a failed trade")
			assert.Empty(t, h.bus.types())
			assert.Equal(t, Idle, h.exec.State(owner, req.Side))
		})
	}
}

func TestDoubleSubmissionRejected(t *testing.T) {
	h := newHarness(t, twoTokens, big.NewInt(0))
	release := make(chan struct{})
	h.chain.ReceiptFn = func(_ context.Context, hash common.Hash) (*types.Receipt, error) {
		<-release
		return evmtest.Success(hash), nil
	}
	req := Request{Side: model.Buy, Amount: oneTenth, Market: market(t, model.PhaseBonding), Tolerance: 1}

	submitted := make(chan struct{})
	first := req
	first.Callbacks.OnSubmitted = func(common.Hash, model.Side) { close(submitted) }

	done := make(chan error, 1)
	go func() {
		_, err := h.exec.Execute(context.Background(), first)
		done <- err
	}()

	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("first attempt never submitted")
	}
	assert.Equal(t, Confirming, h.exec.State(owner, model.Buy))

	_, err := h.exec.Execute(context.Background(), req)
	assert.ErrorIs(t, err, ErrAttemptInFlight)
	assert.ErrorIs(t, h.exec.Reset(owner, model.Buy), ErrAttemptInFlight)

	// The other side is independent.
	assert.Equal(t, Idle, h.exec.State(owner, model.Sell))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.chain.WritesTo("buyToken"), "only one trade transaction")

	require.NoError(t, h.exec.Reset(owner, model.Buy))
	assert.Equal(t, Idle, h.exec.State(owner, model.Buy))
}

func TestWaitDrainsRunningAttempts(t *testing.T) {
	h := newHarness(t, twoTokens, big.NewInt(0))
	require.NoError(t, h.exec.Wait(context.Background()), "nothing running")

	release := make(chan struct{})
	h.chain.ReceiptFn = func(_ context.Context, hash common.Hash) (*types.Receipt, error) {
		<-release
		return evmtest.Success(hash), nil
	}
	submitted := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := h.exec.Execute(context.Background(), Request{
			Side: model.Buy, Amount: oneTenth, Market: market(t, model.PhaseBonding), Tolerance: 1,
			Callbacks: Callbacks{OnSubmitted: func(common.Hash, model.Side) { close(submitted) }},
		})
		done <- err
	}()
	<-submitted

	short, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.exec.Wait(short), context.DeadlineExceeded)

	close(release)
	require.NoError(t, h.exec.Wait(context.Background()))
	require.NoError(t, <-done)
	assert.Equal(t, []events.EventType{events.TradeSubmitted, events.TradeSucceeded}, h.bus.types(),
		"events are published before Wait returns")
}

func TestNewAttemptAfterTerminalState(t *testing.T) {
	h := newHarness(t, twoTokens, big.NewInt(0))
	req := Request{Side: model.Buy, Amount: oneTenth, Market: market(t, model.PhaseBonding), Tolerance: 1}

	_, err := h.exec.Execute(context.Background(), req)
	require.NoError(t, err)
	_, err = h.exec.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, h.chain.WritesTo("buyToken"))
}

func TestCallerCancellationDoesNotAbortSubmittedTrade(t *testing.T) {
	h := newHarness(t, twoTokens, big.NewInt(0))
	ctx, cancel := context.WithCancel(context.Background())
	h.chain.ReceiptFn = func(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return evmtest.Success(hash), nil
	}

	out, err := h.exec.Execute(ctx, Request{
		Side:      model.Buy,
		Amount:    oneTenth,
		Market:    market(t, model.PhaseBonding),
		Tolerance: 1,
		Callbacks: Callbacks{OnSubmitted: func(common.Hash, model.Side) { cancel() }},
	})
	require.NoError(t, err)
	assert.Equal(t, Succeeded, out.State)
}

func TestAmountIsCopied(t *testing.T) {
	h := newHarness(t, twoTokens, big.NewInt(0))
	amount := new(big.Int).Set(oneTenth)
	h.chain.WriteFn = func(_ context.Context, call evm.Call) (common.Hash, error) {
		amount.SetInt64(0)
		return common.HexToHash("0x02"), nil
	}

	_, err := h.exec.Execute(context.Background(), Request{
		Side: model.Buy, Amount: amount, Market: market(t, model.PhaseBonding), Tolerance: 1,
	})
	require.NoError(t, err)
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, canTransition(Idle, Quoting))
	assert.True(t, canTransition(Quoting, Submitting))
	assert.True(t, canTransition(Quoting, Idle))
	assert.False(t, canTransition(Idle, Submitting))
	assert.False(t, canTransition(Quoting, Confirming))
	assert.False(t, canTransition(Approving, Confirming))
	assert.False(t, canTransition(Confirming, Idle), "an in-flight attempt cannot be reset")
	assert.False(t, canTransition(Succeeded, Failed))

	for s := Idle; s <= Failed; s++ {
		assert.Equal(t, s == Succeeded || s == Failed, s.Terminal(), s.String())
	}
}

func TestTransitionRejectsZeroAmount(t *testing.T) {
	h := newHarness(t, twoTokens, big.NewInt(0))
	a := &attempt{
		key:    slotKey{owner, model.Buy},
		market: market(t, model.PhaseBonding),
		amount: big.NewInt(0),
		state:  Quoting,
		out:    &Outcome{},
		log:    h.exec.logger,
	}
	for _, to := range []State{Approving, Submitting} {
		assert.ErrorIs(t, h.exec.transition(context.Background(), a, to), ErrInvalidAmount)
	}
	assert.Equal(t, Quoting, a.state)
}
