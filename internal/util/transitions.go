package util

import "cmp"

// StateTransitions lists, per state, the states it may move to. A state
// mapped to an empty set is terminal; an unmapped state is unknown
type StateTransitions[T comparable] map[T]Set[T]

func (t StateTransitions[T]) CanTransition(from, to T) bool {
	return t[from].Contains(to)
}

func (t StateTransitions[T]) IsTerminal(state T) bool {
	next, ok := t[state]
	return ok && next.IsEmpty()
}

// NextStates returns the sorted states reachable from state in one step
func NextStates[T cmp.Ordered](t StateTransitions[T], state T) []T {
	return Sorted(t[state])
}
