// internal/quote/poller.go
package quote

import (
	"context"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
)

// DefaultInterval is the display quote refresh period.
const DefaultInterval = 3 * time.Second

// Result is one poll outcome. Seq identifies the request it answers.
type Result struct {
	Seq   uint64
	Quote Quote
	Err   error
}

// Poller keeps a display-only quote fresh while the input amount is non-zero.
// Submission never reads from it; the executor takes its own quote.
type Poller struct {
	mu       sync.Mutex
	source   *Source
	market   model.Market
	interval time.Duration
	onUpdate func(Result)
	logger   *zap.Logger

	seq    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats for monitoring
	delivered uint64
	dropped   uint64
}

// NewPoller creates an idle poller for market. onUpdate may be nil; it runs
// on the polling goroutine and must not call Stop.
func NewPoller(source *Source, market model.Market, interval time.Duration, onUpdate func(Result), logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:   source,
		market:   market,
		interval: interval,
		onUpdate: onUpdate,
		logger:   logger.Named("quote-poller"),
	}
}

// Update supersedes the current request. A zero amount stops polling.
// It returns the sequence number of the new request.
func (p *Poller) Update(side model.Side, amountIn *big.Int) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}

	if amountIn == nil || amountIn.Sign() <= 0 {
		p.logger.Debug("Quote polling stopped: zero amount")
		return p.seq
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go p.run(ctx, p.seq, side, new(big.Int).Set(amountIn))
	return p.seq
}

// Stop ends polling; used when the consuming view goes away.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.seq++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// GetStats returns how many results were delivered and dropped as stale.
func (p *Poller) GetStats() (delivered, dropped uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delivered, p.dropped
}

func (p *Poller) run(ctx context.Context, seq uint64, side model.Side, amountIn *big.Int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		q, err := p.source.GetQuote(ctx, side, amountIn, p.market)
		if ctx.Err() != nil {
			p.drop(seq)
			return
		}
		p.deliver(Result{Seq: seq, Quote: q, Err: err})

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) deliver(res Result) {
	p.mu.Lock()
	if res.Seq != p.seq {
		p.dropped++
		p.mu.Unlock()
		p.logger.Debug("Dropped stale quote", zap.Uint64("seq", res.Seq))
		return
	}
	p.delivered++
	fn := p.onUpdate
	p.mu.Unlock()

	if fn != nil {
		fn(res)
	}
}

func (p *Poller) drop(seq uint64) {
	p.mu.Lock()
	p.dropped++
	p.mu.Unlock()
	p.logger.Debug("Dropped cancelled quote", zap.Uint64("seq", seq))
}
