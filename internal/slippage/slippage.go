// internal/slippage/slippage.go
package slippage

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeMinOutput returns floor(output * (100 - tolerance) / 100).
//
// The result is zero when output is nil or not positive, or when tolerance is
// not a finite number in [0, 100]. A tolerance of 0 returns output unchanged.
func ComputeMinOutput(output *big.Int, tolerance float64) *big.Int {
	if output == nil || output.Sign() <= 0 {
		return new(big.Int)
	}
	if math.IsNaN(tolerance) || math.IsInf(tolerance, 0) || tolerance < 0 || tolerance > 100 {
		return new(big.Int)
	}

	keep := hundred.Sub(decimal.NewFromFloat(tolerance))
	// Mul is exact and Shift(-2) divides by 100 without rounding.
	minOut := decimal.NewFromBigInt(output, 0).Mul(keep).Shift(-2).Floor()
	return minOut.BigInt()
}
