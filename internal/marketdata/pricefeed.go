// internal/marketdata/pricefeed.go
package marketdata

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceFetcher is the part of Client the feed needs.
type PriceFetcher interface {
	Prices(ctx context.Context) ([]AssetPrice, error)
}

// PriceFeed keeps the latest chain asset prices. The entry whose
// aux_contract_addr equals nativeAux is also served under the zero address,
// which is how balances look up the native coin.
type PriceFeed struct {
	fetcher   PriceFetcher
	nativeAux common.Address
	interval  time.Duration
	maxTries  uint
	logger    *zap.Logger

	mu        sync.RWMutex
	prices    map[common.Address]decimal.Decimal
	updatedAt time.Time
}

// NewPriceFeed creates a feed; interval defaults to 10s.
func NewPriceFeed(fetcher PriceFetcher, nativeAux common.Address, interval time.Duration, logger *zap.Logger) *PriceFeed {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &PriceFeed{
		fetcher:   fetcher,
		nativeAux: nativeAux,
		interval:  interval,
		maxTries:  4,
		logger:    logger.Named("pricefeed"),
		prices:    make(map[common.Address]decimal.Decimal),
	}
}

// Price implements balance.PriceSource.
func (f *PriceFeed) Price(token common.Address) (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[token]
	return p, ok
}

// UpdatedAt returns when prices were last stored.
func (f *PriceFeed) UpdatedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.updatedAt
}

// Refresh fetches prices once, retrying with exponential backoff.
func (f *PriceFeed) Refresh(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	list, err := backoff.Retry(ctx, func() ([]AssetPrice, error) {
		return f.fetcher.Prices(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(f.maxTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			f.logger.Debug("Price fetch retry", zap.Error(err), zap.Duration("backoff", d))
		}))
	if err != nil {
		return err
	}

	next := make(map[common.Address]decimal.Decimal, len(list)+1)
	for _, p := range list {
		addr := strings.TrimSpace(p.AuxContractAddr)
		if !common.IsHexAddress(addr) {
			continue
		}
		a := common.HexToAddress(addr)
		next[a] = p.Price
		if f.nativeAux != (common.Address{}) && a == f.nativeAux {
			next[common.Address{}] = p.Price
		}
	}

	f.mu.Lock()
	f.prices = next
	f.updatedAt = time.Now()
	f.mu.Unlock()
	return nil
}

// Run refreshes on the interval until ctx is done. Failures keep the last
// known prices.
func (f *PriceFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		if err := f.Refresh(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("Price refresh failed, keeping last prices", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
