// internal/balance/coordinator.go
package balance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rovshanmuradov/origin-trader/internal/blockchain/evm"
	"github.com/rovshanmuradov/origin-trader/internal/events"
	"github.com/rovshanmuradov/origin-trader/internal/wallet"
)

// Options tune the refresh cadence.
type Options struct {
	// TokenInterval polls tracked token balances.
	TokenInterval time.Duration
	// NativeInterval polls the native balance.
	NativeInterval time.Duration
	// Settle is how long a trade-triggered refresh waits for more trades
	// before fetching.
	Settle time.Duration
	// MaxTries per balance read within one cycle.
	MaxTries uint
	// BaseToken is the router base asset; it is invalidated after every trade.
	BaseToken common.Address
}

// DefaultOptions: tokens every 3s, native every 10s.
func DefaultOptions() Options {
	return Options{
		TokenInterval:  3 * time.Second,
		NativeInterval: 10 * time.Second,
		Settle:         250 * time.Millisecond,
		MaxTries:       3,
	}
}

type scope int

const (
	scopeAll scope = iota
	scopeTokens
	scopeNative
)

func (s scope) String() string {
	switch s {
	case scopeTokens:
		return "tokens"
	case scopeNative:
		return "native"
	default:
		return "all"
	}
}

// Coordinator is the only writer of balance snapshots. Trade success events
// invalidate entries; refreshes re-fetch them from chain.
type Coordinator struct {
	reader  evm.BalanceReader
	session wallet.Session
	prices  PriceSource
	opts    Options
	logger  *zap.Logger

	cache   *Cache
	trigger chan struct{}
	group   singleflight.Group

	mu      sync.RWMutex
	tracked map[common.Address]struct{}
	bus     *events.Bus

	cycles uint64
}

// NewCoordinator creates a coordinator. prices may be nil.
func NewCoordinator(reader evm.BalanceReader, session wallet.Session, prices PriceSource, opts Options, logger *zap.Logger) *Coordinator {
	def := DefaultOptions()
	if opts.TokenInterval <= 0 {
		opts.TokenInterval = def.TokenInterval
	}
	if opts.NativeInterval <= 0 {
		opts.NativeInterval = def.NativeInterval
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = def.MaxTries
	}
	c := &Coordinator{
		reader:  reader,
		session: session,
		prices:  prices,
		opts:    opts,
		logger:  logger.Named("balance"),
		cache:   newCache(),
		trigger: make(chan struct{}, 1),
		tracked: make(map[common.Address]struct{}),
	}
	if opts.BaseToken != (common.Address{}) {
		c.tracked[opts.BaseToken] = struct{}{}
	}
	return c
}

// Cache exposes the read side.
func (c *Coordinator) Cache() *Cache {
	return c.cache
}

// Track adds tokens to the polled set.
func (c *Coordinator) Track(tokens ...common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tokens {
		if t != (common.Address{}) {
			c.tracked[t] = struct{}{}
		}
	}
}

// Attach subscribes to trade success events and publishes BalancesRefreshed
// on bus after every cycle.
func (c *Coordinator) Attach(bus *events.Bus) events.Subscription {
	c.mu.Lock()
	c.bus = bus
	c.mu.Unlock()
	return events.On(bus, events.TradeSucceeded, func(_ context.Context, e *events.TradeSucceededEvent) error {
		c.OnTradeSucceeded(e.Owner, e.Mint)
		return nil
	})
}

// OnTradeSucceeded invalidates the native, traded token, base token and
// aggregate entries of owner and schedules one refresh. Bursts collapse.
func (c *Coordinator) OnTradeSucceeded(owner, mint common.Address) {
	c.Track(mint)
	stale := []common.Address{Native, mint}
	if c.opts.BaseToken != (common.Address{}) {
		stale = append(stale, c.opts.BaseToken)
	}
	c.cache.invalidate(owner, stale...)
	c.logger.Debug("Balances invalidated",
		zap.String("owner", owner.Hex()),
		zap.String("mint", mint.Hex()))
	c.Notify()
}

// Notify schedules a full refresh without blocking.
func (c *Coordinator) Notify() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Cycles returns how many refresh cycles ran.
func (c *Coordinator) Cycles() uint64 {
	return atomic.LoadUint64(&c.cycles)
}

// Run polls and serves refresh triggers until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	tokenTicker := time.NewTicker(c.opts.TokenInterval)
	defer tokenTicker.Stop()
	nativeTicker := time.NewTicker(c.opts.NativeInterval)
	defer nativeTicker.Stop()

	c.logger.Info("Balance coordinator started",
		zap.Duration("token_interval", c.opts.TokenInterval),
		zap.Duration("native_interval", c.opts.NativeInterval))
	c.refreshLogged(ctx, scopeAll)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Balance coordinator stopped")
			return nil
		case <-c.trigger:
			if !c.settle(ctx) {
				return nil
			}
			c.refreshLogged(ctx, scopeAll)
		case <-tokenTicker.C:
			c.refreshLogged(ctx, scopeTokens)
		case <-nativeTicker.C:
			c.refreshLogged(ctx, scopeNative)
		}
	}
}

// settle waits opts.Settle and swallows triggers that arrive meanwhile.
func (c *Coordinator) settle(ctx context.Context) bool {
	if c.opts.Settle <= 0 {
		return true
	}
	timer := time.NewTimer(c.opts.Settle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-c.trigger:
		case <-timer.C:
			return true
		}
	}
}

func (c *Coordinator) refreshLogged(ctx context.Context, s scope) {
	if err := c.refresh(ctx, s); err != nil && ctx.Err() == nil {
		// Non-fatal: entries stay stale until the next cycle.
		c.logger.Warn("Balance refresh incomplete", zap.String("scope", s.String()), zap.Error(err))
	}
}

// Refresh fetches every balance now. Concurrent calls share one fetch.
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.refresh(ctx, scopeAll)
}

func (c *Coordinator) refresh(ctx context.Context, s scope) error {
	owner, ok := c.session.Address()
	if !ok {
		return nil
	}
	_, err, _ := c.group.Do(owner.Hex()+"/"+s.String(), func() (interface{}, error) {
		return nil, c.fetch(ctx, owner, s)
	})
	return err
}

type fetched struct {
	token common.Address
	value *big.Int
	err   error
}

func (c *Coordinator) fetch(ctx context.Context, owner common.Address, s scope) error {
	atomic.AddUint64(&c.cycles, 1)

	var targets []common.Address
	if s != scopeTokens {
		targets = append(targets, Native)
	}
	if s != scopeNative {
		c.mu.RLock()
		for t := range c.tracked {
			targets = append(targets, t)
		}
		c.mu.RUnlock()
	}

	results := make([]fetched, len(targets))
	var g errgroup.Group
	g.SetLimit(4)
	for i, token := range targets {
		g.Go(func() error {
			v, err := c.read(ctx, owner, token)
			results[i] = fetched{token: token, value: v, err: err}
			return nil
		})
	}
	_ = g.Wait()

	now := time.Now()
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.token.Hex(), r.err))
			continue
		}
		c.cache.set(owner, r.token, r.value, now)
	}

	c.updateAggregate(owner, now)
	return errors.Join(errs...)
}

func (c *Coordinator) read(ctx context.Context, owner, token common.Address) (*big.Int, error) {
	op := func() (*big.Int, error) {
		if token == Native {
			return c.reader.NativeBalance(ctx, owner)
		}
		return c.reader.TokenBalance(ctx, token, owner)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.opts.MaxTries))
}

func (c *Coordinator) updateAggregate(owner common.Address, now time.Time) {
	snap := c.cache.Snapshot(owner)
	balances := make(map[common.Address]*big.Int, len(snap.Tokens)+1)
	stale := false
	if snap.Native.Value != nil {
		balances[Native] = snap.Native.Value
		stale = snap.Native.Stale
	}
	for t, e := range snap.Tokens {
		balances[t] = e.Value
		stale = stale || e.Stale
	}

	v := Estimate(owner, balances, c.prices, now)
	v.Stale = stale
	c.cache.setAggregate(owner, v)

	c.mu.RLock()
	bus := c.bus
	c.mu.RUnlock()
	if bus == nil {
		return
	}
	ev := &events.BalancesRefreshedEvent{
		BaseEvent: events.NewBase(events.BalancesRefreshed),
		Owner:     owner,
		Tokens:    make(map[common.Address]*big.Int, len(snap.Tokens)),
	}
	if snap.Native.Value != nil {
		ev.Native = snap.Native.Value
	}
	for t, e := range snap.Tokens {
		ev.Tokens[t] = e.Value
	}
	if err := bus.Publish(ev); err != nil {
		c.logger.Debug("BalancesRefreshed not published", zap.Error(err))
	}
}
