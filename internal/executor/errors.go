// internal/executor/errors.go
package executor

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
)

// Rejections. Nothing reached the chain and the attempt is back in Idle.
var (
	ErrLoginRequired    = errors.New("wallet not connected")
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrMarketUnresolved = errors.New("market contracts not resolved")
	ErrAttemptInFlight  = errors.New("a trade for this side is already in progress")
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrZeroMinOutput    = errors.New("minimum output is zero")
	ErrInvalidFlow      = errors.New("flow not supported for this market and side")
)

// ErrIllegalTransition means the state table was violated; it indicates a bug.
var ErrIllegalTransition = errors.New("illegal trade state transition")

// TradeError is returned for attempts that ended in Failed.
type TradeError struct {
	Side   model.Side
	Reason Reason
	Hash   common.Hash
	Err    error
}

func (e *TradeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Side, e.Reason, e.Err)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

var rejections = []error{
	ErrLoginRequired, ErrInvalidAmount, ErrMarketUnresolved, ErrAttemptInFlight,
	ErrQuoteUnavailable, ErrZeroMinOutput, ErrInvalidFlow,
}

// IsRejection reports whether err was a pre-chain rejection rather than a
// failed attempt.
func IsRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Summary is the text shown to the user for err: "<side> <reason>" for a
// failed attempt, the bare rejection otherwise. Wrapped transport and revert
// causes stay in the log.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	var tradeErr *TradeError
	if errors.As(err, &tradeErr) {
		return fmt.Sprintf("%s %s", tradeErr.Side, tradeErr.Reason)
	}
	for _, target := range rejections {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}
