// Package validator enforces the output policy: safety, political
// neutrality, and sourcing. Every response passes through here before
// the orchestrator returns it.
package validator

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hrygo/civicsense/ai/agents"
	"github.com/hrygo/civicsense/ai/classifier"
	"github.com/hrygo/civicsense/ai/core/llm"
)

// Violation categories.
const (
	CategorySafety          = "safety"
	CategoryBias            = "bias"
	CategoryCitationSource  = "citation_source"
	CategoryCitationMissing = "citation_missing"
)

// minAssertionLength is the response length below which a factual
// answer without citations is tolerated (short deflections, greetings).
const minAssertionLength = 80

// Violation is one failed policy check.
type Violation struct {
	Category string `json:"category"`
	Detail   string `json:"detail"`
}

// Result is the outcome of validating one response.
type Result struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
}

// Categories returns the distinct violation categories, for building
// regeneration instructions.
func (r *Result) Categories() []string {
	seen := make(map[string]bool, len(r.Violations))
	var out []string
	for _, v := range r.Violations {
		if !seen[v.Category] {
			seen[v.Category] = true
			out = append(out, v.Category)
		}
	}
	return out
}

// Validator runs all policy checks against an agent response.
type Validator struct {
	safety         llm.SafetyClassifier
	allowedDomains []string
}

// New creates a validator. The safety classifier may be nil (check
// skipped, the local scans still run). Domains are matched as suffixes
// of the citation host, so "usa.gov" also admits "www.usa.gov".
func New(safety llm.SafetyClassifier, allowedDomains []string) *Validator {
	normalized := make([]string, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			normalized = append(normalized, d)
		}
	}
	return &Validator{safety: safety, allowedDomains: normalized}
}

// Validate runs every check and collects one violation per failure.
// Checks are not short-circuited so a regeneration instruction can
// address all problems at once.
func (v *Validator) Validate(ctx context.Context, resp *agents.Response, intent classifier.Intent) *Result {
	result := &Result{Passed: true}

	if v.safety != nil {
		flagged, category, err := v.safety.Flagged(ctx, resp.Text)
		switch {
		case err != nil:
			// The local scans still run; a safety outage must not turn
			// into a validation pass for content they would catch.
			slog.Warn("validator: safety classifier unavailable", "error", err)
		case flagged:
			result.Violations = append(result.Violations, Violation{
				Category: CategorySafety,
				Detail:   "content flagged by safety classifier: " + category,
			})
		}
	}

	lower := strings.ToLower(resp.Text)
	for _, keyword := range biasKeywords {
		if strings.Contains(lower, keyword) {
			result.Violations = append(result.Violations, Violation{
				Category: CategoryBias,
				Detail:   "contains bias phrasing: " + keyword,
			})
			break
		}
	}

	for _, src := range resp.Sources {
		if !v.domainAllowed(src.URL) {
			result.Violations = append(result.Violations, Violation{
				Category: CategoryCitationSource,
				Detail:   "citation not on an allow-listed domain: " + src.URL,
			})
		}
	}

	if factBearing(intent) && len(resp.Sources) == 0 && assertsFacts(lower) {
		result.Violations = append(result.Violations, Violation{
			Category: CategoryCitationMissing,
			Detail:   "factual response carries no citations",
		})
	}

	result.Passed = len(result.Violations) == 0
	return result
}

// CitationRulesHold reports whether a cached response still satisfies
// the sourcing checks under the current configuration. The response
// cache consults this before serving an entry.
func (v *Validator) CitationRulesHold(resp *agents.Response, intent classifier.Intent) bool {
	for _, src := range resp.Sources {
		if !v.domainAllowed(src.URL) {
			return false
		}
	}
	if factBearing(intent) && len(resp.Sources) == 0 && assertsFacts(strings.ToLower(resp.Text)) {
		return false
	}
	return true
}

func (v *Validator) domainAllowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range v.allowedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func factBearing(intent classifier.Intent) bool {
	return intent == classifier.IntentKnowledge || intent == classifier.IntentFactCheck
}

// assertsFacts is the heuristic for "makes a factual assertion": long
// enough to be substantive and free of hedging markers.
func assertsFacts(lower string) bool {
	if len(lower) <= minAssertionLength {
		return false
	}
	for _, marker := range hedgingMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}
