// internal/amount/amount.go
package amount

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxInputDecimals is the number of fractional digits a user may type.
	MaxInputDecimals = 6
	// DefaultDecimals is the base-unit scale of the platform tokens and BNB.
	DefaultDecimals int32 = 18
	// DefaultPrecision is the number of fractional digits shown for balances.
	DefaultPrecision int32 = 6
)

var inputPattern = regexp.MustCompile(`^\d*\.?\d{0,6}$`)

// Amount pairs what the user typed with its base-unit value.
type Amount struct {
	Display string
	Scaled  *big.Int
}

// Parse builds an Amount. Scaled is zero when display is empty, zero or invalid.
func Parse(display string, decimals int32) Amount {
	return Amount{
		Display: display,
		Scaled:  ToBaseUnits(display, decimals),
	}
}

// IsZero reports whether the amount carries no base units.
func (a Amount) IsZero() bool {
	return a.Scaled == nil || a.Scaled.Sign() <= 0
}

// ValidateInput is the keystroke check applied before a string reaches
// ToBaseUnits: digits, at most one point, at most six fractional digits.
func ValidateInput(s string) bool {
	return inputPattern.MatchString(normalizeInput(s))
}

// ToBaseUnits scales a decimal string by 10^decimals, truncating toward zero.
// Anything that is not a positive number in the accepted pattern yields 0.
func ToBaseUnits(display string, decimals int32) *big.Int {
	s := normalizeInput(display)
	if s == "" || !inputPattern.MatchString(s) {
		return new(big.Int)
	}
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return new(big.Int)
	}

	d, err := decimal.NewFromString(s)
	if err != nil || d.Sign() <= 0 {
		return new(big.Int)
	}
	return d.Shift(decimals).Truncate(0).BigInt()
}

func normalizeInput(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	return s
}
