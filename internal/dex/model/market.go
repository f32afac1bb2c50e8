// internal/dex/model/market.go
package model

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/origin-trader/internal/blockchain/evm"
)

var (
	// ErrUnresolved means a contract or token address is still unknown.
	ErrUnresolved = errors.New("market address not resolved")
	// ErrUnknownSide is returned for a Side outside Buy/Sell.
	ErrUnknownSide = errors.New("unknown trade side")
)

// Side is the direction of a trade relative to the listed token.
type Side int

const (
	// Buy spends the base asset for the token.
	Buy Side = iota
	// Sell spends the token for the base asset.
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Valid reports whether s is Buy or Sell.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// ParseSide accepts "buy" or "sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSide, s)
	}
}

// Phase tells which venue a token currently trades on.
type Phase int

const (
	// PhaseBonding: pre-graduation, traded against the bonding curve.
	PhaseBonding Phase = iota
	// PhaseGraduated: listed on the swap router.
	PhaseGraduated
)

func (p Phase) String() string {
	if p == PhaseGraduated {
		return "graduated"
	}
	return "bonding"
}

// Spend identifies what a side pays with.
type Spend struct {
	Token  common.Address
	Native bool
}

// Market is the tagged market variant decided once when coin data is fetched.
// Implementations build every call the trading core needs, so callers never
// branch on the phase themselves.
type Market interface {
	Phase() Phase
	Mint() common.Address
	// Spender is the contract that pulls ERC20 input on trade.
	Spender() common.Address
	Spend(side Side) Spend
	// Output is the token received for side; zero address means native.
	Output(side Side) common.Address
	QuoteCall(side Side, amountIn *big.Int) (evm.Call, error)
	TradeCall(side Side, amountIn, minOut *big.Int) (evm.Call, error)
	// Validate returns ErrUnresolved when any required address is zero.
	Validate() error
}

// NamedAddress labels an address in validation errors.
type NamedAddress struct {
	Name string
	Addr common.Address
}

// RequireAddresses returns ErrUnresolved naming the first zero address.
func RequireAddresses(named ...NamedAddress) error {
	for _, n := range named {
		if n.Addr == (common.Address{}) {
			return fmt.Errorf("%w: %s", ErrUnresolved, n.Name)
		}
	}
	return nil
}
