// Package agents defines the capability agent contract and its concrete
// variants. Each agent handles one class of citizen request behind a
// shared shape, so the orchestrator can delegate without knowing which
// variant it is talking to.
package agents

import (
	"context"

	"github.com/hrygo/civicsense/store"
)

// Request is the read-only view an agent receives for one turn.
// Agents must not mutate the session; durable facts are proposed via
// the ProfileUpdates return and applied by the orchestrator.
type Request struct {
	// Text is the citizen's message for this turn.
	Text string

	// Session is a snapshot of conversation state. Read-only.
	Session *store.Session

	// Profile holds merged durable facts about the user, nil when the
	// user is anonymous or has no profile yet.
	Profile *store.UserProfile

	// Instruction augments the prompt on regeneration attempts, naming
	// the violation categories the previous output tripped.
	Instruction string

	// Language is the response language, "en" or "es".
	Language string
}

// Source is one citation attached to a response.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Response is an agent's answer for one turn. Immutable once returned.
type Response struct {
	Text       string   `json:"text"`
	Sources    []Source `json:"sources,omitempty"`
	Capability string   `json:"capability"`
	TokensUsed int      `json:"tokens_used"`

	// Scratch carries proposed updates to the session's turn-scoped
	// scratch state. The orchestrator commits them only when the turn
	// succeeds. A nil map means no changes.
	Scratch map[string]string `json:"-"`
}

// Agent is the capability contract shared by all variants.
type Agent interface {
	// Name identifies the agent in logs and metrics.
	Name() string

	// CacheEligible reports whether this agent's validated responses
	// may be served from the response cache on identical requests.
	CacheEligible() bool

	// Handle processes one turn. Errors are always typed (*Error);
	// an agent never signals failure with a silently empty response.
	Handle(ctx context.Context, req *Request) (*Response, store.ProfileUpdates, error)
}
