package core

import "time"

// ApplyAutoExtension evaluates the soft-close rule for a bid admitted at now.
// now must come from the engine clock; no client-supplied time is ever passed here.
// Returns true when the rule fired. EndTime becomes max(EndTime, now+ExtensionLength)
// so it never moves backward.
func ApplyAutoExtension(a *Auction, now time.Time) bool {
	if !a.AutoExtendEnabled {
		return false
	}
	remaining := a.EndTime.Sub(now)
	if remaining > a.ExtensionWindow {
		return false
	}

	if newEnd := now.Add(a.ExtensionLength); newEnd.After(a.EndTime) {
		a.EndTime = newEnd
	}
	if a.State == StateActive {
		a.State = StateExtended
	}
	a.ExtensionCount++
	return true
}
