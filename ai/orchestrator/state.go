package orchestrator

// State is a node in the per-turn handoff state machine.
type State string

const (
	// StateRouting loads the session and classifies the request.
	StateRouting State = "ROUTING"
	// StateDelegated invokes the capability agent for the intent.
	StateDelegated State = "DELEGATED"
	// StateValidating runs the output validator on the agent response.
	StateValidating State = "VALIDATING"
	// StateDone is the successful terminal state.
	StateDone State = "DONE"
	// StateRejected terminates with a refusal or clarification request,
	// without any agent invocation.
	StateRejected State = "REJECTED"
	// StateFallback terminates with the fixed safe response after the
	// regeneration budget is exhausted.
	StateFallback State = "FALLBACK"
	// StateError terminates a turn no other state could absorb. The
	// session is left untouched.
	StateError State = "ERROR"
)

// transitions is the machine as data, so each edge is testable without
// standing up the pipeline.
var transitions = map[State][]State{
	StateRouting:    {StateDelegated, StateRejected, StateError},
	StateDelegated:  {StateValidating, StateError},
	StateValidating: {StateDone, StateDelegated, StateFallback, StateError},
}

// Terminal reports whether the state ends the turn.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateRejected, StateFallback, StateError:
		return true
	}
	return false
}

// CanTransition reports whether the machine may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}
