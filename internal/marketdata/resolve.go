// internal/marketdata/resolve.go
package marketdata

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/origin-trader/internal/dex"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
)

// Phase maps the coin's phase flag.
func (c Coin) Phase() model.Phase {
	if c.IsGraduated == 1 {
		return model.PhaseGraduated
	}
	return model.PhaseBonding
}

// ResolveMarket turns a coin record into the market variant. This is the only
// place the phase flag is read.
func ResolveMarket(coin Coin, contracts dex.Contracts) (model.Market, error) {
	mint := coin.Address()
	if mint == (common.Address{}) {
		return nil, fmt.Errorf("%w: mint %q", model.ErrUnresolved, coin.Mint)
	}
	return dex.NewMarket(coin.Phase(), contracts, mint)
}

// FetchMarket loads the coin and resolves its market in one step.
func (c *Client) FetchMarket(ctx context.Context, mint common.Address, contracts dex.Contracts) (Coin, model.Market, error) {
	coin, err := c.CoinShow(ctx, mint)
	if err != nil {
		return Coin{}, nil, err
	}
	m, err := ResolveMarket(coin, contracts)
	if err != nil {
		return coin, nil, err
	}
	return coin, m, nil
}
