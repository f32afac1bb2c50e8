// internal/executor/state.go
package executor

import (
	"fmt"

	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
)

// State of a trade attempt.
type State int

const (
	Idle State = iota
	Quoting
	Approving
	Submitting
	Confirming
	Succeeded
	Failed
)

var stateNames = [...]string{"idle", "quoting", "approving", "submitting", "confirming", "succeeded", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports Succeeded or Failed.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

// InFlight reports whether an attempt in s blocks a new attempt for the same
// owner and side.
func (s State) InFlight() bool {
	return s != Idle && !s.Terminal()
}

// transitions is the only legal way through an attempt. Quoting may fall back
// to Idle when the attempt is rejected before anything reached the chain.
var transitions = map[State][]State{
	Idle:       {Quoting},
	Quoting:    {Approving, Submitting, Idle},
	Approving:  {Submitting, Failed},
	Submitting: {Confirming, Failed},
	Confirming: {Succeeded, Failed},
	Succeeded:  {Idle, Quoting},
	Failed:     {Idle, Quoting},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Flow labels which user flow started an attempt.
type Flow string

const (
	FlowTrade  Flow = "trade"  // bonding-curve buy/sell
	FlowSwap   Flow = "swap"   // router buy/sell
	FlowMining Flow = "mining" // router buy that accrues mining share
)

// defaultFlow picks the flow from the market phase when the caller gave none.
func defaultFlow(phase model.Phase) Flow {
	if phase == model.PhaseGraduated {
		return FlowSwap
	}
	return FlowTrade
}

// Reason is the categorised failure a user sees. Raw errors stay in logs.
type Reason string

const (
	ReasonApprovalFailed Reason = "approval_failed"
	ReasonActionFailed   Reason = "action_failed"
)
