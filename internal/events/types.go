// internal/events/types.go
package events

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
)

// EventType represents the type of event.
type EventType string

const (
	// Trade lifecycle
	TradeSubmitted EventType = "trade.submitted"
	TradeSucceeded EventType = "trade.succeeded"
	TradeFailed    EventType = "trade.failed"

	// Market data
	QuoteUpdated EventType = "quote.updated"

	// Wallet
	BalancesRefreshed EventType = "balance.refreshed"

	// Settings
	SlippageChanged EventType = "settings.slippage_changed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// NewBase stamps an event of type t with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// TradeSubmittedEvent: the trade transaction was accepted by the node.
type TradeSubmittedEvent struct {
	BaseEvent
	Owner common.Address
	Side  model.Side
	Flow  string
	Mint  common.Address
	Hash  common.Hash
}

// TradeSucceededEvent: the trade transaction was mined with success status.
type TradeSucceededEvent struct {
	BaseEvent
	Owner  common.Address
	Side   model.Side
	Flow   string
	Mint   common.Address
	Hash   common.Hash
	FeeWei *big.Int
}

// TradeFailedEvent: the attempt ended in Failed. Hash is zero when nothing
// reached the chain.
type TradeFailedEvent struct {
	BaseEvent
	Owner  common.Address
	Side   model.Side
	Flow   string
	Mint   common.Address
	Hash   common.Hash
	Reason string
}

// QuoteUpdatedEvent carries the latest non-stale quote.
type QuoteUpdatedEvent struct {
	BaseEvent
	Side         model.Side
	Mint         common.Address
	InputAmount  *big.Int
	OutputAmount *big.Int
}

// BalancesRefreshedEvent is emitted after a fresh balance snapshot is stored.
type BalancesRefreshedEvent struct {
	BaseEvent
	Owner  common.Address
	Native *big.Int
	Tokens map[common.Address]*big.Int
}

// SlippageChangedEvent is emitted when the user stores a new tolerance.
type SlippageChangedEvent struct {
	BaseEvent
	Tolerance float64
}
