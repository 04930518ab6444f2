package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hrygo/civicsense/ai/core/llm"
)

const languageAgentName = "language"

const translateSystemPrompt = `You translate citizen messages for a civic information
service. Translate faithfully, preserve names, addresses, and tracking numbers
verbatim, and add nothing. Reply with the translation only.`

const detectSystemPrompt = `Identify the language of the message.
Reply with a two-letter ISO 639-1 code only, e.g. "en" or "es".`

// spanishHint catches common Spanish function words and punctuation so
// most detection resolves locally without a model call.
var spanishHint = regexp.MustCompile(`[¿¡]|á|é|í|ó|ú|ñ|\b(el|la|los|las|que|cómo|dónde|quiero|denuncia|por favor|gracias)\b`)

// LanguageAgent detects request language and translates inbound text
// into the session language. The orchestrator consults Detect when a
// session arrives without a language and Translate when the inbound
// text disagrees with the established session language.
type LanguageAgent struct {
	generator   llm.Generator
	defaultLang string
	retries     int
}

// NewLanguageAgent creates the language agent.
func NewLanguageAgent(gen llm.Generator, defaultLang string, retries int) *LanguageAgent {
	if defaultLang == "" {
		defaultLang = "en"
	}
	return &LanguageAgent{generator: gen, defaultLang: defaultLang, retries: retries}
}

// Translate renders text into the target language.
func (a *LanguageAgent) Translate(ctx context.Context, text, language string) (string, error) {
	if a.generator == nil {
		return "", NewError(languageAgentName, ErrorKindUnavailable, nil)
	}

	prompt := fmt.Sprintf("Translate into %s:\n\n%s", languageName(language), text)
	translated, err := WithRetry(ctx, languageAgentName, a.retries, func(ctx context.Context) (string, error) {
		content, _, err := a.generator.Chat(ctx, []llm.Message{
			llm.SystemPrompt(translateSystemPrompt),
			llm.UserMessage(prompt),
		})
		return content, err
	})
	if err != nil {
		return "", AsAgentError(languageAgentName, err)
	}
	return strings.TrimSpace(translated), nil
}

// Detect returns the language code for the text. The local heuristic
// answers first; the model is consulted only for text neither rule
// recognizes, and failures fall back to the configured default.
func (a *LanguageAgent) Detect(ctx context.Context, text string) string {
	lower := strings.ToLower(text)
	if spanishHint.MatchString(lower) {
		return "es"
	}
	if looksEnglish(lower) {
		return "en"
	}
	if a.generator == nil {
		return a.defaultLang
	}

	content, _, err := a.generator.Chat(ctx, []llm.Message{
		llm.SystemPrompt(detectSystemPrompt),
		llm.UserMessage(text),
	})
	if err != nil {
		return a.defaultLang
	}
	code := strings.ToLower(strings.Trim(strings.TrimSpace(content), `"'.`))
	if len(code) != 2 {
		return a.defaultLang
	}
	return code
}

var englishHint = regexp.MustCompile(`\b(the|is|are|what|how|where|who|i|you|my|to|of|and|report|please)\b`)

func looksEnglish(lower string) bool {
	return englishHint.MatchString(lower)
}
