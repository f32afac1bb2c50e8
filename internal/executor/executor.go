// internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/origin-trader/internal/allowance"
	"github.com/rovshanmuradov/origin-trader/internal/blockchain/evm"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/events"
	"github.com/rovshanmuradov/origin-trader/internal/quote"
	"github.com/rovshanmuradov/origin-trader/internal/slippage"
	"github.com/rovshanmuradov/origin-trader/internal/storage"
	"github.com/rovshanmuradov/origin-trader/internal/utils/logger"
	"github.com/rovshanmuradov/origin-trader/internal/wallet"
)

// QuoteSource is the synchronous quote read used at submission time.
type QuoteSource interface {
	GetQuote(ctx context.Context, side model.Side, amountIn *big.Int, market model.Market) (quote.Quote, error)
}

// AllowanceEnsurer approves a spender when the current allowance is short.
type AllowanceEnsurer interface {
	EnsureAllowance(ctx context.Context, token, owner, spender common.Address, required *big.Int) (allowance.Result, error)
}

// Publisher receives trade lifecycle events. PublishWait may block until
// ctx is done; lifecycle events are not dropped on a full queue.
type Publisher interface {
	PublishWait(ctx context.Context, event events.Event) error
}

// publishTimeout bounds how long an attempt waits for room on the bus.
const publishTimeout = 5 * time.Second

// Callbacks are per-request notifications. Any of them may be nil. They run on
// the executing goroutine.
type Callbacks struct {
	OnSubmitted func(hash common.Hash, side model.Side)
	OnSucceeded func(hash common.Hash, side model.Side)
	OnFailed    func(side model.Side, reason Reason)
}

// Request is one user submission.
type Request struct {
	Side   model.Side
	Amount *big.Int
	Market model.Market
	// Tolerance is the slippage percent captured when the user submitted.
	Tolerance float64
	Flow      Flow
	Callbacks Callbacks
}

// Outcome of an attempt that reached the chain.
type Outcome struct {
	AttemptID    string
	Side         model.Side
	Flow         Flow
	State        State
	Quote        quote.Quote
	MinOut       *big.Int
	ApprovalHash common.Hash
	Hash         common.Hash
	Reason       Reason
	// FeeWei is gasUsed * effectiveGasPrice of the trade transaction.
	FeeWei *big.Int
	// ClearInput tells the front-end to reset the amount field.
	ClearInput bool
}

// Dependencies wires the executor to its collaborators. Bus and Journal are optional.
type Dependencies struct {
	Session   wallet.Session
	Chain     evm.Chain
	Quotes    QuoteSource
	Allowance AllowanceEnsurer
	Bus       Publisher
	Journal   storage.Journal
}

type slotKey struct {
	owner common.Address
	side  model.Side
}

// Executor runs trade attempts. At most one attempt per (owner, side) is in
// flight; a second submission is rejected, never queued.
type Executor struct {
	session   wallet.Session
	chain     evm.Chain
	quotes    QuoteSource
	allowance AllowanceEnsurer
	bus       Publisher
	journal   storage.Journal
	logger    *zap.Logger

	mu      sync.Mutex
	slots   map[slotKey]State
	running int
}

// New creates an executor.
func New(deps Dependencies, logger *zap.Logger) (*Executor, error) {
	switch {
	case deps.Session == nil:
		return nil, errors.New("executor: session is required")
	case deps.Chain == nil:
		return nil, errors.New("executor: chain is required")
	case deps.Quotes == nil:
		return nil, errors.New("executor: quote source is required")
	case deps.Allowance == nil:
		return nil, errors.New("executor: allowance manager is required")
	}
	return &Executor{
		session:   deps.Session,
		chain:     deps.Chain,
		quotes:    deps.Quotes,
		allowance: deps.Allowance,
		bus:       deps.Bus,
		journal:   deps.Journal,
		logger:    logger.Named("executor"),
		slots:     make(map[slotKey]State),
	}, nil
}

// State returns the current state for owner and side (Idle when unknown).
func (e *Executor) State(owner common.Address, side model.Side) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slots[slotKey{owner, side}]
}

// Reset returns a finished attempt to Idle. In-flight attempts cannot be
// reset: their transactions cannot be taken back.
func (e *Executor) Reset(owner common.Address, side model.Side) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := slotKey{owner, side}
	if e.slots[key].InFlight() {
		return ErrAttemptInFlight
	}
	delete(e.slots, key)
	return nil
}

// Wait blocks until no Execute call is running or ctx is done. Callers close
// the chain client and the journal only after it returns.
func (e *Executor) Wait(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	logged := false
	for {
		e.mu.Lock()
		n := e.running
		e.mu.Unlock()
		if n == 0 {
			return nil
		}
		if !logged {
			e.logger.Info("Waiting for trades in flight", zap.Int("attempts", n))
			logged = true
		}
		select {
		case <-ctx.Done():
			e.logger.Warn("Trades still in flight at shutdown", zap.Int("attempts", n))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Executor) finish() {
	e.mu.Lock()
	e.running--
	e.mu.Unlock()
}

// attempt is the per-execution record threaded through the steps.
type attempt struct {
	id        string
	key       slotKey
	flow      Flow
	market    model.Market
	amount    *big.Int
	tolerance float64
	callbacks Callbacks
	state     State
	out       *Outcome
	errMsg    string
	log       *zap.Logger
}

// Execute runs quote → min output → (approve) → submit → confirm.
//
// Rejections (login, amount, market, in-flight, quote, zero min output) return
// a nil Outcome and one of the Err* sentinels; nothing is sent on chain. Once
// the attempt has left Quoting it is detached from ctx cancellation and
// always ends in Succeeded or Failed; a Failed attempt returns a *TradeError.
func (e *Executor) Execute(ctx context.Context, req Request) (*Outcome, error) {
	a, err := e.begin(req)
	if err != nil {
		return nil, err
	}
	defer e.finish()

	q, err := e.quotes.GetQuote(ctx, req.Side, a.amount, a.market)
	if err == nil && !q.ValidFor(req.Side, a.amount) {
		err = errors.New("quote computed for a different request")
	}
	if err != nil {
		a.log.Info("Trade rejected: quote unavailable", zap.Error(err))
		e.reject(ctx, a, err)
		return nil, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	a.out.Quote = q

	minOut := slippage.ComputeMinOutput(q.OutputAmount, a.tolerance)
	if minOut.Sign() <= 0 {
		a.log.Info("Trade rejected: zero minimum output",
			zap.String("quoted_out", q.OutputAmount.String()),
			zap.Float64("tolerance", a.tolerance))
		e.reject(ctx, a, ErrZeroMinOutput)
		return nil, ErrZeroMinOutput
	}
	a.out.MinOut = minOut
	a.log.Info("Quote fixed for submission",
		zap.String("quoted_out", q.OutputAmount.String()),
		zap.String("min_out", minOut.String()),
		zap.Float64("tolerance", a.tolerance))

	// Past this point a transaction may be sent; the attempt must run to a
	// terminal state regardless of the caller.
	ctx = context.WithoutCancel(ctx)

	if spend := a.market.Spend(req.Side); !spend.Native {
		if err := e.approve(ctx, a, spend.Token); err != nil {
			return a.out, err
		}
	}

	return e.submit(ctx, a)
}

func (e *Executor) begin(req Request) (*attempt, error) {
	owner, ok := e.session.Address()
	if !ok {
		return nil, ErrLoginRequired
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !req.Side.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, model.ErrUnknownSide)
	}
	if req.Market == nil {
		return nil, ErrMarketUnresolved
	}
	if err := req.Market.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarketUnresolved, err)
	}

	flow := req.Flow
	if flow == "" {
		flow = defaultFlow(req.Market.Phase())
	}
	if flow == FlowMining && (req.Side != model.Buy || req.Market.Phase() != model.PhaseGraduated) {
		return nil, ErrInvalidFlow
	}

	key := slotKey{owner: owner, side: req.Side}
	id := uuid.New().String()

	e.mu.Lock()
	prev := e.slots[key]
	if prev.InFlight() {
		e.mu.Unlock()
		e.logger.Warn("Trade rejected: attempt in flight",
			zap.String("owner", owner.Hex()),
			zap.String("side", req.Side.String()),
			zap.String("state", prev.String()))
		return nil, ErrAttemptInFlight
	}
	e.slots[key] = Quoting
	e.running++
	e.mu.Unlock()

	a := &attempt{
		id:        id,
		key:       key,
		flow:      flow,
		market:    req.Market,
		amount:    new(big.Int).Set(req.Amount),
		tolerance: req.Tolerance,
		callbacks: req.Callbacks,
		state:     Quoting,
		out: &Outcome{
			AttemptID: id,
			Side:      req.Side,
			Flow:      flow,
			State:     Quoting,
		},
	}
	a.log = logger.WithCorrelation(e.logger, "trade", id).With(
		zap.String("owner", owner.Hex()),
		zap.String("side", req.Side.String()),
		zap.String("flow", string(flow)),
		zap.String("phase", req.Market.Phase().String()),
		zap.String("mint", req.Market.Mint().Hex()),
		zap.String("amount_in", a.amount.String()))
	a.log.Info("Trade attempt started")
	e.record(context.Background(), a)
	return a, nil
}

// transition moves a to the next state under the table and the positive
// amount guard.
func (e *Executor) transition(ctx context.Context, a *attempt, to State) error {
	if !canTransition(a.state, to) {
		a.log.Error("Illegal state transition",
			zap.String("from", a.state.String()),
			zap.String("to", to.String()))
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.state, to)
	}
	if to.InFlight() && (a.amount == nil || a.amount.Sign() <= 0) {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	e.slots[a.key] = to
	e.mu.Unlock()

	a.log.Debug("Trade state changed",
		zap.String("from", a.state.String()),
		zap.String("to", to.String()))
	a.state = to
	a.out.State = to
	e.record(ctx, a)
	return nil
}

// reject sends a Quoting attempt back to Idle without a failure notification.
func (e *Executor) reject(ctx context.Context, a *attempt, cause error) {
	a.errMsg = cause.Error()
	_ = e.transition(ctx, a, Idle)
}

func (e *Executor) approve(ctx context.Context, a *attempt, token common.Address) error {
	if err := e.transition(ctx, a, Approving); err != nil {
		return e.fail(ctx, a, ReasonApprovalFailed, err)
	}

	res, err := e.allowance.EnsureAllowance(ctx, token, a.key.owner, a.market.Spender(), a.amount)
	a.out.ApprovalHash = res.ApprovalHash
	if err != nil {
		return e.fail(ctx, a, ReasonApprovalFailed, err)
	}
	if !res.AlreadySufficient {
		a.log.Info("Approval confirmed", zap.String("approval_hash", res.ApprovalHash.Hex()))
	}
	return nil
}

func (e *Executor) submit(ctx context.Context, a *attempt) (*Outcome, error) {
	side := a.key.side
	if err := e.transition(ctx, a, Submitting); err != nil {
		return a.out, e.fail(ctx, a, ReasonActionFailed, err)
	}

	call, err := a.market.TradeCall(side, a.amount, a.out.MinOut)
	if err != nil {
		return a.out, e.fail(ctx, a, ReasonActionFailed, err)
	}

	hash, err := e.chain.WriteContract(ctx, call)
	if err != nil {
		return a.out, e.fail(ctx, a, ReasonActionFailed, err)
	}
	a.out.Hash = hash
	a.log = logger.WithTransaction(a.log, hash.Hex())

	if err := e.transition(ctx, a, Confirming); err != nil {
		return a.out, e.fail(ctx, a, ReasonActionFailed, err)
	}
	a.log.Info("Trade submitted")
	if a.callbacks.OnSubmitted != nil {
		a.callbacks.OnSubmitted(hash, side)
	}
	e.publish(&events.TradeSubmittedEvent{
		BaseEvent: events.NewBase(events.TradeSubmitted),
		Owner:     a.key.owner,
		Side:      side,
		Flow:      string(a.flow),
		Mint:      a.market.Mint(),
		Hash:      hash,
	})

	receipt, err := e.chain.WaitForReceipt(ctx, hash)
	if err != nil {
		return a.out, e.fail(ctx, a, ReasonActionFailed, err)
	}
	a.out.FeeWei = fee(receipt)
	if receipt.Status != types.ReceiptStatusSuccessful {
		return a.out, e.fail(ctx, a, ReasonActionFailed,
			fmt.Errorf("transaction reverted in block %v", receipt.BlockNumber))
	}

	if err := e.transition(ctx, a, Succeeded); err != nil {
		return a.out, e.fail(ctx, a, ReasonActionFailed, err)
	}
	a.out.ClearInput = true
	a.log.Info("Trade succeeded",
		zap.Uint64("gas_used", receipt.GasUsed),
		zap.String("fee_wei", a.out.FeeWei.String()))
	if a.callbacks.OnSucceeded != nil {
		a.callbacks.OnSucceeded(hash, side)
	}
	e.publish(&events.TradeSucceededEvent{
		BaseEvent: events.NewBase(events.TradeSucceeded),
		Owner:     a.key.owner,
		Side:      side,
		Flow:      string(a.flow),
		Mint:      a.market.Mint(),
		Hash:      hash,
		FeeWei:    new(big.Int).Set(a.out.FeeWei),
	})
	return a.out, nil
}

// fail ends the attempt in Failed. The raw cause is logged and wrapped in the
// returned *TradeError; callbacks and events only carry the reason.
func (e *Executor) fail(ctx context.Context, a *attempt, reason Reason, cause error) error {
	side := a.key.side
	a.out.Reason = reason
	a.errMsg = cause.Error()
	a.log.Error("Trade failed", zap.String("reason", string(reason)), zap.Error(cause))

	if canTransition(a.state, Failed) {
		_ = e.transition(ctx, a, Failed)
	} else {
		// Unreachable by the table; force the slot out of flight anyway.
		e.mu.Lock()
		e.slots[a.key] = Failed
		e.mu.Unlock()
		a.state = Failed
		a.out.State = Failed
		e.record(ctx, a)
	}

	if a.callbacks.OnFailed != nil {
		a.callbacks.OnFailed(side, reason)
	}
	e.publish(&events.TradeFailedEvent{
		BaseEvent: events.NewBase(events.TradeFailed),
		Owner:     a.key.owner,
		Side:      side,
		Flow:      string(a.flow),
		Mint:      a.market.Mint(),
		Hash:      a.out.Hash,
		Reason:    string(reason),
	})
	return &TradeError{Side: side, Reason: reason, Hash: a.out.Hash, Err: cause}
}

func (e *Executor) publish(ev events.Event) {
	if e.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := e.bus.PublishWait(ctx, ev); err != nil {
		e.logger.Warn("Failed to publish trade event",
			zap.String("event_type", string(ev.Type())),
			zap.Error(err))
	}
}

func fee(r *types.Receipt) *big.Int {
	if r == nil || r.EffectiveGasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
}
