package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/civicsense/ai/core/llm"
)

type stubGenerator struct {
	content string
	err     error
	calls   int
}

func (s *stubGenerator) Chat(_ context.Context, _ []llm.Message) (string, *llm.CallStats, error) {
	s.calls++
	if s.err != nil {
		return "", nil, s.err
	}
	return s.content, &llm.CallStats{TotalTokens: 10}, nil
}

func (s *stubGenerator) Warmup(_ context.Context) {}

func TestClassifyDenyPatternsFirst(t *testing.T) {
	gen := &stubGenerator{content: `{"intent":"KNOWLEDGE","confidence":0.99}`}
	c := New(gen, 0.6)

	tests := []string{
		"Who should I vote for?",
		"Which candidate should I vote for in the mayoral race?",
		"¿Por quién debo votar en las elecciones?",
		"Who is the best candidate for mayor?",
		"¿Cuál es el mejor partido?",
	}
	for _, text := range tests {
		got := c.Classify(context.Background(), text)
		assert.Equal(t, IntentProhibited, got.Intent, text)
		assert.Equal(t, float32(1.0), got.Confidence, text)
		assert.NotEmpty(t, got.MatchedRule, text)
	}
	// Prohibition is rule-based; the model must never be consulted.
	assert.Zero(t, gen.calls)
}

func TestClassifyCategoryRules(t *testing.T) {
	c := New(nil, 0.6)

	tests := []struct {
		text string
		want Intent
	}{
		{"I want to report a pothole on Main St, Springfield", IntentComplaint},
		{"Quiero hacer una denuncia sobre corrupción", IntentComplaint},
		{"Is it true that the council raised taxes?", IntentFactCheck},
		{"¿Es cierto que cerraron la oficina municipal?", IntentFactCheck},
		{"How do I renew my passport?", IntentGuidance},
		{"¿Cómo puedo registrarme para votar?", IntentGuidance},
		{"What does a city comptroller do?", IntentKnowledge},
		{"¿Qué es el Senado?", IntentKnowledge},
	}
	for _, tt := range tests {
		got := c.Classify(context.Background(), tt.text)
		assert.Equal(t, tt.want, got.Intent, tt.text)
		assert.Equal(t, float32(1.0), got.Confidence, tt.text)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := New(nil, 0.6)
	first := c.Classify(context.Background(), "How do I renew my passport?")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.Classify(context.Background(), "How do I renew my passport?"))
	}
}

func TestClassifyModelFallback(t *testing.T) {
	gen := &stubGenerator{content: "```json\n{\"intent\": \"guidance\", \"confidence\": 0.8}\n```"}
	c := New(gen, 0.6)

	got := c.Classify(context.Background(), "necesito ayuda con algo de la ciudad")
	assert.Equal(t, IntentGuidance, got.Intent)
	assert.Equal(t, float32(0.8), got.Confidence)
	assert.Equal(t, "llm", got.MatchedRule)
	assert.Equal(t, 1, gen.calls)
}

func TestClassifyLowConfidenceCoercedToAmbiguous(t *testing.T) {
	gen := &stubGenerator{content: `{"intent":"KNOWLEDGE","confidence":0.4}`}
	c := New(gen, 0.6)

	got := c.Classify(context.Background(), "hmm, about the thing yesterday")
	assert.Equal(t, IntentAmbiguous, got.Intent)
}

func TestClassifyModelErrorDefaultsToAmbiguous(t *testing.T) {
	gen := &stubGenerator{err: errors.New("timeout")}
	c := New(gen, 0.6)

	got := c.Classify(context.Background(), "hmm, about the thing yesterday")
	assert.Equal(t, IntentAmbiguous, got.Intent)
	// Transient failures are retried before defaulting.
	assert.Equal(t, 3, gen.calls)
}

// flakyGenerator fails the first failFirst calls, then answers.
type flakyGenerator struct {
	failFirst int
	content   string
	calls     int
}

func (g *flakyGenerator) Chat(_ context.Context, _ []llm.Message) (string, *llm.CallStats, error) {
	g.calls++
	if g.calls <= g.failFirst {
		return "", nil, errors.New("connection reset")
	}
	return g.content, &llm.CallStats{TotalTokens: 10}, nil
}

func (g *flakyGenerator) Warmup(_ context.Context) {}

func TestClassifyModelFallbackRecoversFromTransientError(t *testing.T) {
	gen := &flakyGenerator{failFirst: 1, content: `{"intent":"GUIDANCE","confidence":0.8}`}
	c := New(gen, 0.6)

	got := c.Classify(context.Background(), "necesito ayuda con algo de la ciudad")
	assert.Equal(t, IntentGuidance, got.Intent)
	assert.Equal(t, 2, gen.calls)
}

func TestClassifyPermanentModelErrorNotRetried(t *testing.T) {
	gen := &stubGenerator{err: errors.New("invalid api key")}
	c := New(gen, 0.6)

	got := c.Classify(context.Background(), "hmm, about the thing yesterday")
	assert.Equal(t, IntentAmbiguous, got.Intent)
	assert.Equal(t, 1, gen.calls)
}

func TestClassifyUnparseableModelOutput(t *testing.T) {
	gen := &stubGenerator{content: "I think this is a knowledge question."}
	c := New(gen, 0.6)

	got := c.Classify(context.Background(), "hmm, about the thing yesterday")
	assert.Equal(t, IntentAmbiguous, got.Intent)
}

func TestClassifyNilGenerator(t *testing.T) {
	c := New(nil, 0.6)
	got := c.Classify(context.Background(), "hmm, about the thing yesterday")
	assert.Equal(t, IntentAmbiguous, got.Intent)
}
