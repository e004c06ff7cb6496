// Package session orchestrates one phone call end to end: transport join,
// memory lookup, greeting, the converse loop, teardown, and the background
// summary write.
package session

import "fmt"

// State is the call lifecycle position. Transitions are closed: a session can
// only move along the edges below, and Closed is final.
type State int

const (
	StateConnecting State = iota
	StateMemoryLookup
	StateGreeting
	StateConversing
	StateTerminating
	StateSummaryPending
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateMemoryLookup:
		return "memory_lookup"
	case StateGreeting:
		return "greeting"
	case StateConversing:
		return "conversing"
	case StateTerminating:
		return "terminating"
	case StateSummaryPending:
		return "summary_pending"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var stateEdges = map[State][]State{
	StateConnecting:     {StateMemoryLookup, StateTerminating},
	StateMemoryLookup:   {StateGreeting, StateTerminating},
	StateGreeting:       {StateConversing, StateTerminating},
	StateConversing:     {StateTerminating},
	StateTerminating:    {StateSummaryPending},
	StateSummaryPending: {StateClosed},
	StateClosed:         nil,
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range stateEdges[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
