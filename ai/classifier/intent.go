// Package classifier assigns an intent to each incoming citizen request.
// A rule layer handles the unambiguous cases at zero latency; everything
// else falls through to a model-backed classification.
package classifier

// Intent is the routing category assigned to a request.
type Intent string

const (
	// IntentKnowledge asks for factual civic information.
	IntentKnowledge Intent = "KNOWLEDGE"
	// IntentGuidance asks how to complete a procedure.
	IntentGuidance Intent = "GUIDANCE"
	// IntentComplaint reports a problem to be registered and routed.
	IntentComplaint Intent = "COMPLAINT"
	// IntentFactCheck asks whether a claim is true.
	IntentFactCheck Intent = "FACT_CHECK"
	// IntentProhibited requests content the service must refuse.
	IntentProhibited Intent = "PROHIBITED"
	// IntentAmbiguous means no confident category could be assigned.
	IntentAmbiguous Intent = "AMBIGUOUS"
)

// Valid reports whether s names a known intent.
func (i Intent) Valid() bool {
	switch i {
	case IntentKnowledge, IntentGuidance, IntentComplaint,
		IntentFactCheck, IntentProhibited, IntentAmbiguous:
		return true
	}
	return false
}

// Classification is the outcome of classifying one request.
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float32 `json:"confidence"`
	// MatchedRule names the rule that produced the result, or "llm"
	// when the model fallback decided. Used for logging and metrics.
	MatchedRule string `json:"matched_rule,omitempty"`
}
