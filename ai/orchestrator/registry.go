package orchestrator

import (
	"fmt"

	"github.com/hrygo/civicsense/ai/agents"
	"github.com/hrygo/civicsense/ai/classifier"
)

// Registry maps intents to capability agents. It is assembled once at
// startup and read-only afterwards; no runtime registration.
type Registry struct {
	byIntent map[classifier.Intent]agents.Agent
}

// NewRegistry builds the static intent map. Every routable intent must
// have an agent; PROHIBITED and AMBIGUOUS are handled by the
// orchestrator itself and must not be mapped.
func NewRegistry(mapping map[classifier.Intent]agents.Agent) (*Registry, error) {
	required := []classifier.Intent{
		classifier.IntentKnowledge,
		classifier.IntentGuidance,
		classifier.IntentComplaint,
		classifier.IntentFactCheck,
	}
	for _, intent := range required {
		if mapping[intent] == nil {
			return nil, fmt.Errorf("registry: no agent for intent %s", intent)
		}
	}
	for _, intent := range []classifier.Intent{classifier.IntentProhibited, classifier.IntentAmbiguous} {
		if mapping[intent] != nil {
			return nil, fmt.Errorf("registry: intent %s is not routable", intent)
		}
	}

	byIntent := make(map[classifier.Intent]agents.Agent, len(mapping))
	for intent, agent := range mapping {
		byIntent[intent] = agent
	}
	return &Registry{byIntent: byIntent}, nil
}

// Lookup returns the agent for an intent.
func (r *Registry) Lookup(intent classifier.Intent) (agents.Agent, bool) {
	a, ok := r.byIntent[intent]
	return a, ok
}
