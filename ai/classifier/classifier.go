package classifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/hrygo/civicsense/ai/agents"
	"github.com/hrygo/civicsense/ai/core/llm"
)

// Deny patterns are evaluated before everything else. A missed
// prohibition is a safety failure; a missed benign match is only a
// quality defect, so prohibition detection never yields to other rules.
var denyPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"deny.vote_recommendation.en", regexp.MustCompile(`(?i)\b(who|whom|which\s+(candidate|party))\b.{0,40}\b(should|do)\s+i\s+vote\b|\bshould\s+i\s+vote\s+for\b`)},
	{"deny.vote_recommendation.es", regexp.MustCompile(`(?i)\b(por|a)\s+qui[eé]n\b.{0,30}\bvot(ar|o)\b|\bqu[eé]\s+(candidato|partido)\b.{0,30}\b(votar|elegir|mejor)\b`)},
	{"deny.candidate_opinion.en", regexp.MustCompile(`(?i)\b(best|worst)\s+(candidate|party)\b|\brecommend\b.{0,30}\b(candidate|party|voting)\b`)},
	{"deny.candidate_opinion.es", regexp.MustCompile(`(?i)\bmejor\s+(candidato|partido)\b|\brecom(ienda|endar)\b.{0,30}\b(candidato|partido|votar)\b`)},
}

// Category rules run in order after the deny list; first match wins
// with confidence 1.0.
var categoryRules = []struct {
	name    string
	intent  Intent
	pattern *regexp.Regexp
}{
	{"rule.complaint", IntentComplaint, regexp.MustCompile(`(?i)\b(report|complain|complaint|broken|pothole|denunci\w*|queja\w*|reportar|reclamo)\b`)},
	{"rule.fact_check", IntentFactCheck, regexp.MustCompile(`(?i)\b(is\s+it\s+true|fact[\s-]?check|really\s+true|es\s+(cierto|verdad)|verdad\s+que)\b`)},
	{"rule.guidance", IntentGuidance, regexp.MustCompile(`(?i)\b(how\s+(do|can)\s+i|where\s+(do|can)\s+i|what\s+documents|requirements?|c[oó]mo\s+(puedo|hago|me)|d[oó]nde\s+puedo|requisitos|tr[aá]mite\w*)\b`)},
	{"rule.knowledge", IntentKnowledge, regexp.MustCompile(`(?i)\b(what\s+(is|are|does)|who\s+(is|are)|when\s+(is|are)|explain|qu[eé]\s+(es|son|hace)|qui[eé]n\s+es|cu[aá]ndo\s+(es|son)|expl[ií]ca)\b`)},
}

const fallbackPrompt = `You classify citizen requests for a civic information service.
Reply with a single JSON object, no prose:
{"intent": "<KNOWLEDGE|GUIDANCE|COMPLAINT|FACT_CHECK|PROHIBITED|AMBIGUOUS>", "confidence": <0.0-1.0>}

KNOWLEDGE: factual questions about government, elections, civic processes.
GUIDANCE: how-to questions about procedures, documents, city services.
COMPLAINT: reporting a problem (infrastructure, services, safety, corruption).
FACT_CHECK: asking whether a specific claim is true.
PROHIBITED: asking for voting recommendations or political opinions.
AMBIGUOUS: anything else or unclear.`

// Classifier assigns intents with a rule layer and a model fallback.
type Classifier struct {
	generator llm.Generator
	threshold float32
}

// New creates a classifier. The generator may be nil, in which case
// unmatched input classifies as AMBIGUOUS.
func New(generator llm.Generator, threshold float32) *Classifier {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6
	}
	return &Classifier{generator: generator, threshold: threshold}
}

// Classify assigns an intent to the request text. Rule evaluation is
// deterministic; the generator is consulted only when no rule matches.
func (c *Classifier) Classify(ctx context.Context, text string) Classification {
	normalized := normalize(text)

	for _, d := range denyPatterns {
		if d.pattern.MatchString(normalized) {
			return Classification{Intent: IntentProhibited, Confidence: 1.0, MatchedRule: d.name}
		}
	}

	for _, r := range categoryRules {
		if r.pattern.MatchString(normalized) {
			return Classification{Intent: r.intent, Confidence: 1.0, MatchedRule: r.name}
		}
	}

	return c.classifyWithModel(ctx, text)
}

func (c *Classifier) classifyWithModel(ctx context.Context, text string) Classification {
	ambiguous := Classification{Intent: IntentAmbiguous, Confidence: 0, MatchedRule: "llm"}
	if c.generator == nil {
		return ambiguous
	}

	// The fallback is an external call like any other: transient
	// failures get the standard backoff before defaulting to AMBIGUOUS.
	content, err := agents.WithRetry(ctx, "classifier", agents.DefaultRetryAttempts, func(ctx context.Context) (string, error) {
		content, _, err := c.generator.Chat(ctx, []llm.Message{
			llm.SystemPrompt(fallbackPrompt),
			llm.UserMessage(text),
		})
		return content, err
	})
	if err != nil {
		slog.Warn("classifier: model fallback failed", "error", err)
		return ambiguous
	}

	var parsed struct {
		Intent     string  `json:"intent"`
		Confidence float32 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		slog.Warn("classifier: unparseable model output", "content_length", len(content))
		return ambiguous
	}

	intent := Intent(strings.ToUpper(strings.TrimSpace(parsed.Intent)))
	if !intent.Valid() || parsed.Confidence < c.threshold {
		return Classification{Intent: IntentAmbiguous, Confidence: parsed.Confidence, MatchedRule: "llm"}
	}
	return Classification{Intent: intent, Confidence: parsed.Confidence, MatchedRule: "llm"}
}

// normalize lowercases and collapses whitespace so rule patterns see a
// stable form. Accented letters are preserved for the Spanish rules.
func normalize(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	lastSpace := false
	for _, r := range strings.TrimSpace(input) {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// extractJSON pulls the first JSON object out of model output that may
// wrap it in markdown fences or prose.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
