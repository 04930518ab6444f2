package validator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/civicsense/ai/agents"
	"github.com/hrygo/civicsense/ai/classifier"
)

type stubSafety struct {
	flagged  bool
	category string
	err      error
}

func (s *stubSafety) Flagged(_ context.Context, _ string) (bool, string, error) {
	return s.flagged, s.category, s.err
}

func factualResponse() *agents.Response {
	return &agents.Response{
		Text: "A city comptroller audits municipal finances, reviews contracts, " +
			"and reports on the budget to the council and the public.",
		Sources:    []agents.Source{{URL: "https://www.usa.gov/local-governments", Title: "Local governments"}},
		Capability: "knowledge",
	}
}

func TestValidatePasses(t *testing.T) {
	v := New(&stubSafety{}, []string{"usa.gov"})
	result := v.Validate(context.Background(), factualResponse(), classifier.IntentKnowledge)
	assert.True(t, result.Passed)
	assert.Empty(t, result.Violations)
}

func TestValidateSafetyViolation(t *testing.T) {
	v := New(&stubSafety{flagged: true, category: "hate"}, []string{"usa.gov"})
	result := v.Validate(context.Background(), factualResponse(), classifier.IntentKnowledge)
	require.False(t, result.Passed)
	assert.Equal(t, CategorySafety, result.Violations[0].Category)
}

func TestValidateSafetyErrorDoesNotFail(t *testing.T) {
	v := New(&stubSafety{err: errors.New("unavailable")}, []string{"usa.gov"})
	result := v.Validate(context.Background(), factualResponse(), classifier.IntentKnowledge)
	assert.True(t, result.Passed)
}

func TestValidateBiasKeywords(t *testing.T) {
	v := New(nil, []string{"usa.gov"})

	tests := []string{
		"Honestly, they are the best candidate for the job this year in the city.",
		"En mi opinión, es el mejor partido para gobernar la ciudad este período.",
	}
	for _, text := range tests {
		resp := &agents.Response{Text: text, Sources: factualResponse().Sources}
		result := v.Validate(context.Background(), resp, classifier.IntentGuidance)
		require.False(t, result.Passed, text)
		assert.Equal(t, CategoryBias, result.Violations[0].Category, text)
	}
}

func TestValidateCitationDomains(t *testing.T) {
	v := New(nil, []string{"usa.gov", "vote.gov"})

	resp := factualResponse()
	resp.Sources = append(resp.Sources, agents.Source{URL: "https://blog.example.com/post", Title: "Blog"})

	result := v.Validate(context.Background(), resp, classifier.IntentKnowledge)
	require.False(t, result.Passed)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, CategoryCitationSource, result.Violations[0].Category)
}

func TestValidateCitationMissingForFactBearing(t *testing.T) {
	v := New(nil, []string{"usa.gov"})

	resp := factualResponse()
	resp.Sources = nil

	for _, intent := range []classifier.Intent{classifier.IntentKnowledge, classifier.IntentFactCheck} {
		result := v.Validate(context.Background(), resp, intent)
		require.False(t, result.Passed, intent)
		assert.Equal(t, CategoryCitationMissing, result.Violations[0].Category)
	}

	// Guidance is not fact-bearing; no citation requirement.
	result := v.Validate(context.Background(), resp, classifier.IntentGuidance)
	assert.True(t, result.Passed)
}

func TestValidateHedgedResponseNeedsNoCitation(t *testing.T) {
	v := New(nil, []string{"usa.gov"})

	resp := &agents.Response{
		Text: "I'm not sure about the current schedule; it may be worth checking with " +
			"your local election office for the authoritative dates and locations.",
	}
	result := v.Validate(context.Background(), resp, classifier.IntentKnowledge)
	assert.True(t, result.Passed)
}

func TestValidateShortResponseNeedsNoCitation(t *testing.T) {
	v := New(nil, []string{"usa.gov"})
	resp := &agents.Response{Text: "Could you share which city you are in?"}
	result := v.Validate(context.Background(), resp, classifier.IntentKnowledge)
	assert.True(t, result.Passed)
}

func TestValidateCollectsAllViolations(t *testing.T) {
	v := New(&stubSafety{flagged: true, category: "hate"}, []string{"usa.gov"})

	resp := &agents.Response{
		Text: strings.Repeat("The incumbent is clearly the best candidate and the right choice. ", 3),
		Sources: []agents.Source{
			{URL: "https://partisan.example.org/why", Title: "Opinion"},
		},
	}
	result := v.Validate(context.Background(), resp, classifier.IntentKnowledge)
	require.False(t, result.Passed)

	categories := result.Categories()
	assert.Contains(t, categories, CategorySafety)
	assert.Contains(t, categories, CategoryBias)
	assert.Contains(t, categories, CategoryCitationSource)
}

func TestCitationRulesHold(t *testing.T) {
	v := New(nil, []string{"usa.gov"})

	assert.True(t, v.CitationRulesHold(factualResponse(), classifier.IntentKnowledge))

	stale := factualResponse()
	stale.Sources = []agents.Source{{URL: "https://old.example.com", Title: "Old"}}
	assert.False(t, v.CitationRulesHold(stale, classifier.IntentKnowledge))

	uncited := factualResponse()
	uncited.Sources = nil
	assert.False(t, v.CitationRulesHold(uncited, classifier.IntentFactCheck))
	assert.True(t, v.CitationRulesHold(uncited, classifier.IntentGuidance))
}

func TestDomainSuffixMatching(t *testing.T) {
	v := New(nil, []string{"usa.gov"})

	assert.True(t, v.domainAllowed("https://www.usa.gov/how-to-vote"))
	assert.True(t, v.domainAllowed("https://usa.gov"))
	assert.False(t, v.domainAllowed("https://notusa.gov"))
	assert.False(t, v.domainAllowed("https://usa.gov.evil.com"))
	assert.False(t, v.domainAllowed("not a url"))
}
