package agents

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/hrygo/civicsense/ai/core/llm"
	"github.com/hrygo/civicsense/store"
)

const profileExtractionPrompt = `Extract durable personal facts from the citizen's message.
Only extract what is explicitly stated: location, profession, language preference,
procedures the user is pursuing, documents they mention.
Reply with a single JSON object mapping fact keys to string values.
Return {} when the message carries no durable facts.

Examples:
"I work as a teacher in Madrid" -> {"profession": "teacher", "location": "Madrid"}
"como puedo votar en new york?" -> {"procedure": "voting in New York"}
"How are you?" -> {}`

// extractedFactConfidence is assigned to model-extracted facts. Below
// 1.0 so explicit corrections from later turns can override them.
const extractedFactConfidence = 0.7

// extractProfileFacts asks the generator for durable facts in the
// message. Extraction is best-effort: any failure yields nil updates,
// never an error, because losing a profile fact must not fail a turn.
func extractProfileFacts(ctx context.Context, gen llm.Generator, text string) store.ProfileUpdates {
	if gen == nil || len(strings.TrimSpace(text)) < 3 {
		return nil
	}

	content, _, err := gen.Chat(ctx, []llm.Message{
		llm.SystemPrompt(profileExtractionPrompt),
		llm.UserMessage(text),
	})
	if err != nil {
		slog.Debug("profile extraction skipped", "error", err)
		return nil
	}

	var facts map[string]string
	if err := json.Unmarshal([]byte(jsonBody(content)), &facts); err != nil || len(facts) == 0 {
		return nil
	}

	updates := make(store.ProfileUpdates, len(facts))
	for key, value := range facts {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		updates[key] = store.Fact{Value: value, Confidence: extractedFactConfidence}
	}
	if len(updates) == 0 {
		return nil
	}
	return updates
}

// jsonBody pulls the first JSON object out of model output that may be
// wrapped in markdown fences or prose.
func jsonBody(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
