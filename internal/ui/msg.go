package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/events"
	"github.com/rovshanmuradov/origin-trader/internal/executor"
	"github.com/rovshanmuradov/origin-trader/internal/quote"
)

// Tea message types for UI communication

// QuoteMsg carries a display quote from the poller.
type QuoteMsg struct {
	Result quote.Result
}

// TradeEventMsg wraps trade lifecycle events from the bus.
type TradeEventMsg struct {
	Event events.Event
}

// BalancesMsg signals that the balance cache has fresh values.
type BalancesMsg struct {
	Event *events.BalancesRefreshedEvent
}

// SlippageMsg reports a stored tolerance change.
type SlippageMsg struct {
	Tolerance float64
}

// ExecutedMsg is the result of one Execute call for Side.
type ExecutedMsg struct {
	Side    model.Side
	Outcome *executor.Outcome
	Err     error
}

// Listen returns a tea.Cmd that waits for the next message on ch.
// A closed channel ends listening.
func Listen(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}
