// internal/storage/models/attempt.go
package models

import "time"

// Attempt is one journalled trade attempt. Amounts are base-unit integers
// stored as decimal strings so nothing is lost to float rounding.
type Attempt struct {
	ID           string
	Owner        string
	Side         string
	Flow         string
	Phase        string
	Mint         string
	AmountIn     string
	QuotedOut    string
	MinOut       string
	Tolerance    float64
	ApprovalHash string
	TxHash       string
	State        string
	Reason       string
	ErrorMessage string
	FeeWei       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Settled reports whether the attempt reached a terminal state.
func (a *Attempt) Settled() bool {
	return a.State == "succeeded" || a.State == "failed"
}
