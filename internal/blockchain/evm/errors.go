// internal/blockchain/evm/errors.go
package evm

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSigner is returned by WriteContract when the client is read-only.
	ErrNoSigner = errors.New("no signer configured")

	// ErrEmptyResult is returned when a read returns no data (missing code or revert).
	ErrEmptyResult = errors.New("empty call result")

	// ErrUnexpectedResult is returned when a read result has the wrong shape.
	ErrUnexpectedResult = errors.New("unexpected call result")

	// ErrInvalidCall is returned for a Call without ABI or method.
	ErrInvalidCall = errors.New("invalid contract call")
)

// CallError carries the contract and method of a failed RPC interaction.
type CallError struct {
	Err      error
	Contract string
	Method   string
}

// Error реализует интерфейс error
func (e *CallError) Error() string {
	return fmt.Sprintf("evm call [%s] at %s: %v", e.Method, e.Contract, e.Err)
}

// Unwrap возвращает оригинальную ошибку
func (e *CallError) Unwrap() error {
	return e.Err
}

func newCallError(err error, call Call) error {
	return &CallError{
		Err:      err,
		Contract: call.To.Hex(),
		Method:   call.Method,
	}
}
