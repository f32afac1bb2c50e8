// internal/bot/market.go
package bot

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/origin-trader/internal/amount"
	"github.com/rovshanmuradov/origin-trader/internal/config"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/executor"
	"github.com/rovshanmuradov/origin-trader/internal/marketdata"
	"github.com/rovshanmuradov/origin-trader/internal/quote"
	"github.com/rovshanmuradov/origin-trader/internal/storage/models"
)

// Side re-exported for command code.
type Side = model.Side

// Market is a resolved token: the API record plus its market variant.
type Market struct {
	Coin   marketdata.Coin
	Market model.Market
}

// Symbol returns the token ticker, falling back to the short address.
func (m Market) Symbol() string {
	if m.Coin.Symbol != "" {
		return m.Coin.Symbol
	}
	hex := m.Market.Mint().Hex()
	return hex[:6] + "…" + hex[len(hex)-4:]
}

// Graduated reports whether the token trades on the router.
func (m Market) Graduated() bool {
	return m.Market.Phase() == model.PhaseGraduated
}

// Flow maps a command choice to an executor flow. Mining is only valid
// for graduated buys; the executor rejects anything else.
func (m Market) Flow(mining bool) executor.Flow {
	if mining {
		return executor.FlowMining
	}
	return ""
}

// QuoteView is a quote with the minimum output at the stored tolerance.
type QuoteView struct {
	Quote     quote.Quote
	MinOut    *big.Int
	Tolerance float64
}

// HistoryEntry is a journalled attempt prepared for display.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Side      string    `json:"side"`
	Flow      string    `json:"flow"`
	Phase     string    `json:"phase"`
	Mint      string    `json:"token"`
	AmountIn  string    `json:"amount_in"`
	MinOut    string    `json:"min_out"`
	Tolerance float64   `json:"slippage"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	TxHash    string    `json:"tx_hash,omitempty"`
	TxURL     string    `json:"tx_url,omitempty"`
	FeeBNB    string    `json:"fee,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newHistoryEntry(a *models.Attempt, chain config.Chain) *HistoryEntry {
	e := &HistoryEntry{
		ID:        a.ID,
		Side:      a.Side,
		Flow:      a.Flow,
		Phase:     a.Phase,
		Mint:      a.Mint,
		AmountIn:  formatDecimalString(a.AmountIn),
		MinOut:    formatDecimalString(a.MinOut),
		Tolerance: a.Tolerance,
		State:     a.State,
		Reason:    a.Reason,
		TxHash:    a.TxHash,
		FeeBNB:    formatDecimalString(a.FeeWei),
		CreatedAt: a.CreatedAt,
	}
	if a.TxHash != "" {
		e.TxURL = chain.TxURL(common.HexToHash(a.TxHash))
	}
	return e
}

// parseAmount converts a typed display amount to base units.
func parseAmount(display string) (*big.Int, error) {
	if !amount.ValidateInput(display) {
		return nil, fmt.Errorf("%w: %q (up to %d decimals)", executor.ErrInvalidAmount, display, amount.MaxInputDecimals)
	}
	a := amount.Parse(display, amount.DefaultDecimals)
	if a.IsZero() {
		return nil, executor.ErrInvalidAmount
	}
	return a.Scaled, nil
}

func formatUnits(v *big.Int) string {
	return amount.Format(v, amount.DefaultDecimals)
}

func formatDecimalString(s string) string {
	if s == "" {
		return ""
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return s
	}
	return formatUnits(v)
}
