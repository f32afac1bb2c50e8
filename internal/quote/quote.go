// internal/quote/quote.go
package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/origin-trader/internal/blockchain/evm"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
)

// ErrUnavailable means no quote could be produced. It is never a zero quote.
var ErrUnavailable = errors.New("quote unavailable")

// Quote is an expected output for one exact (side, input) pair.
type Quote struct {
	Side         model.Side
	Phase        model.Phase
	Mint         common.Address
	InputAmount  *big.Int
	OutputAmount *big.Int
	ObservedAt   time.Time
}

// ValidFor reports whether q was computed for side and amountIn.
func (q Quote) ValidFor(side model.Side, amountIn *big.Int) bool {
	if q.InputAmount == nil || amountIn == nil {
		return false
	}
	return q.Side == side && q.InputAmount.Cmp(amountIn) == 0
}

// Source reads expected outputs from the market contracts.
type Source struct {
	chain  evm.Chain
	logger *zap.Logger
	now    func() time.Time
}

// NewSource creates a quote source over chain.
func NewSource(chain evm.Chain, logger *zap.Logger) *Source {
	return &Source{
		chain:  chain,
		logger: logger.Named("quote"),
		now:    time.Now,
	}
}

// GetQuote performs the read-only quote call for market. The market variant
// decides which contract answers; Source never inspects the phase.
func (s *Source) GetQuote(ctx context.Context, side model.Side, amountIn *big.Int, market model.Market) (Quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: zero input amount", ErrUnavailable)
	}
	if market == nil {
		return Quote{}, fmt.Errorf("%w: market not resolved", ErrUnavailable)
	}
	if err := market.Validate(); err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	call, err := market.QuoteCall(side, amountIn)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out, err := evm.ReadBigInt(ctx, s.chain, call)
	if err != nil {
		s.logger.Debug("Quote read failed",
			zap.String("side", side.String()),
			zap.String("phase", market.Phase().String()),
			zap.String("mint", market.Mint().Hex()),
			zap.String("amount_in", amountIn.String()),
			zap.Error(err))
		return Quote{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return Quote{
		Side:         side,
		Phase:        market.Phase(),
		Mint:         market.Mint(),
		InputAmount:  new(big.Int).Set(amountIn),
		OutputAmount: out,
		ObservedAt:   s.now(),
	}, nil
}
