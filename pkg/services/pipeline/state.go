// Package pipeline turns one question into one persisted outcome.
//
// An invocation walks INIT, RETRIEVING, GENERATING, VALIDATING, EXECUTING and
// SUMMARIZING in order and ends in DONE, ERROR or CANCELLED. Cancellation is
// polled before every state; a superseded attempt leaves no trace.
package pipeline

// State is a step of the ask state machine.
type State string

const (
	StateInit        State = "INIT"
	StateRetrieving  State = "RETRIEVING"
	StateGenerating  State = "GENERATING"
	StateValidating  State = "VALIDATING"
	StateExecuting   State = "EXECUTING"
	StateSummarizing State = "SUMMARIZING"
	StateDone        State = "DONE"
	StateError       State = "ERROR"
	StateCancelled   State = "CANCELLED"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateError, StateCancelled:
		return true
	default:
		return false
	}
}
