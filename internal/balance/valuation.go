// internal/balance/valuation.go
package balance

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/origin-trader/internal/amount"
)

// PriceSource returns the quote-currency price of one whole token. Native
// is looked up under the Native key.
type PriceSource interface {
	Price(token common.Address) (decimal.Decimal, bool)
}

// Holding is one valued balance.
type Holding struct {
	Token   common.Address
	Balance *big.Int
	// Human is Balance divided by 10^decimals.
	Human decimal.Decimal
	Price decimal.Decimal
	// Value is Human * Price; zero when Priced is false.
	Value  decimal.Decimal
	Priced bool
}

// Valuation is the aggregate wallet value of one owner.
type Valuation struct {
	Owner     common.Address
	Holdings  []Holding
	Total     decimal.Decimal
	Unpriced  int
	UpdatedAt time.Time
	Stale     bool
}

func (v Valuation) clone() Valuation {
	out := v
	out.Holdings = make([]Holding, len(v.Holdings))
	for i, h := range v.Holdings {
		if h.Balance != nil {
			h.Balance = new(big.Int).Set(h.Balance)
		}
		out.Holdings[i] = h
	}
	return out
}

// Estimate values balances with prices. Every platform token uses 18 decimals.
// Tokens without a price count towards Unpriced and add nothing to Total.
func Estimate(owner common.Address, balances map[common.Address]*big.Int, prices PriceSource, at time.Time) Valuation {
	v := Valuation{Owner: owner, Total: decimal.Zero, UpdatedAt: at}
	for token, bal := range balances {
		if bal == nil {
			continue
		}
		h := Holding{
			Token:   token,
			Balance: new(big.Int).Set(bal),
			Human:   decimal.NewFromBigInt(bal, -amount.DefaultDecimals),
			Value:   decimal.Zero,
		}
		if prices != nil {
			if p, ok := prices.Price(token); ok {
				h.Price = p
				h.Value = h.Human.Mul(p)
				h.Priced = true
			}
		}
		if !h.Priced {
			v.Unpriced++
		}
		v.Total = v.Total.Add(h.Value)
		v.Holdings = append(v.Holdings, h)
	}
	sortHoldings(v.Holdings)
	return v
}

// sortHoldings orders by value, then by address, so output is stable.
func sortHoldings(hs []Holding) {
	sort.Slice(hs, func(i, j int) bool {
		if c := hs[i].Value.Cmp(hs[j].Value); c != 0 {
			return c > 0
		}
		return hs[i].Token.Cmp(hs[j].Token) < 0
	})
}
