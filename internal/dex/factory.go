// =============================
// File: internal/dex/factory.go
// =============================
package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/origin-trader/internal/dex/bondingcurve"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/dex/router"
)

// Contracts holds the platform contract addresses for one chain.
type Contracts struct {
	TokenFactory common.Address
	SwapRouter   common.Address
	BaseToken    common.Address
}

// NewMarket создаёт вариант рынка для фазы токена.
// The result is validated, so a returned market always has every address it needs.
func NewMarket(phase model.Phase, contracts Contracts, mint common.Address) (model.Market, error) {
	var m model.Market
	switch phase {
	case model.PhaseBonding:
		m = bondingcurve.New(contracts.TokenFactory, mint)
	case model.PhaseGraduated:
		m = router.New(contracts.SwapRouter, mint, contracts.BaseToken)
	default:
		return nil, fmt.Errorf("phase %d is not supported", int(phase))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
