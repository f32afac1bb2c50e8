// internal/amount/format.go
package amount

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatOptions controls FromBaseUnits output.
type FormatOptions struct {
	Precision int32
	Grouped   bool
	// Fallback is returned for nil, zero or negative values.
	Fallback string
}

// DefaultFormat shows up to six fractional digits without grouping.
var DefaultFormat = FormatOptions{Precision: DefaultPrecision, Fallback: "0"}

// FromBaseUnits renders a base-unit integer as a trimmed decimal string.
// The value is truncated, never rounded, to opts.Precision fractional digits.
func FromBaseUnits(value *big.Int, decimals int32, opts FormatOptions) string {
	fallback := opts.Fallback
	if fallback == "" {
		fallback = "0"
	}
	if value == nil || value.Sign() <= 0 {
		return fallback
	}

	precision := opts.Precision
	if precision < 0 {
		precision = 0
	}

	s := decimal.NewFromBigInt(value, -decimals).Truncate(precision).String()
	if opts.Grouped {
		s = groupDigits(s)
	}
	return s
}

// Format is FromBaseUnits with DefaultFormat.
func Format(value *big.Int, decimals int32) string {
	return FromBaseUnits(value, decimals, DefaultFormat)
}

func groupDigits(s string) string {
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if len(intPart) <= 3 {
		return s
	}

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}
	return b.String()
}
