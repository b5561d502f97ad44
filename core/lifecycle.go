package core

import "time"

var transitions = map[State][]State{
	StateDraft:     {StateScheduled, StateActive, StateCancelled},
	StateScheduled: {StateActive, StateCancelled},
	StateActive:    {StateExtended, StateSold, StateEnded, StateNoBids},
	StateExtended:  {StateSold, StateEnded, StateNoBids},
}

// CanTransition reports whether the lifecycle permits moving from one state to another.
// EXTENDED→EXTENDED is allowed so repeated extensions stay a no-op transition.
func CanTransition(from, to State) bool {
	if from == StateExtended && to == StateExtended {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves a to the next state or returns NOT_ACTIVE when the lifecycle forbids it.
func (a *Auction) Transition(to State) error {
	if !CanTransition(a.State, to) {
		return Errorf(CodeNotActive, "cannot move auction from %s to %s", a.State, to)
	}
	a.State = to
	return nil
}

// IsTerminal reports whether no further bids, extensions or buy-nows are admissible.
func (s State) IsTerminal() bool {
	switch s {
	case StateSold, StateEnded, StateNoBids, StateCancelled:
		return true
	}
	return false
}

// IsBiddable reports whether the state accepts bids, ignoring the clock.
func (s State) IsBiddable() bool {
	return s == StateActive || s == StateExtended
}

// IsOpenAt is the single closing rule shared by admission and the sweep:
// a bid at instant now is admissible only strictly before EndTime.
func (a *Auction) IsOpenAt(now time.Time) bool {
	return a.State.IsBiddable() && now.Before(a.EndTime)
}

// IsExpiredAt reports whether the sweep should settle a at now.
func (a *Auction) IsExpiredAt(now time.Time) bool {
	return (a.State.IsBiddable() || a.State == StateScheduled) && !now.Before(a.EndTime)
}

// ActivateIfDue moves a SCHEDULED auction to ACTIVE once now reaches StartTime.
// Returns true when the state changed; calling it again is a no-op.
func (a *Auction) ActivateIfDue(now time.Time) bool {
	if a.State != StateScheduled || now.Before(a.StartTime) {
		return false
	}
	a.State = StateActive
	return true
}

// TimeRemaining is display-only; it never feeds an admission decision.
func (a *Auction) TimeRemaining(now time.Time) time.Duration {
	if a.State.IsTerminal() || !now.Before(a.EndTime) {
		return 0
	}
	return a.EndTime.Sub(now)
}
