package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/hrygo/civicsense/ai/core/llm"
	"github.com/hrygo/civicsense/store"
)

const guideAgentName = "guide"

const guideSystemPrompt = `You help citizens complete civic and municipal procedures:
registrations, permits, document renewals, office locations, required paperwork.
Give practical step-by-step guidance. Stay strictly politically neutral: never
recommend candidates, parties, or how to vote. When you are unsure of a local
detail, say so and point to the official channel instead of guessing.
Answer in %s.`

// GuideAgent walks citizens through procedures. Guidance is personal
// (it folds in profile facts like location), so it is not cacheable.
type GuideAgent struct {
	generator llm.Generator
	retries   int
}

// NewGuideAgent creates the guide agent.
func NewGuideAgent(gen llm.Generator, retries int) *GuideAgent {
	return &GuideAgent{generator: gen, retries: retries}
}

func (a *GuideAgent) Name() string { return guideAgentName }

func (a *GuideAgent) CacheEligible() bool { return false }

func (a *GuideAgent) Handle(ctx context.Context, req *Request) (*Response, store.ProfileUpdates, error) {
	var b strings.Builder
	if req.Instruction != "" {
		b.WriteString(req.Instruction)
		b.WriteString("\n\n")
	}
	if profile := profileSummary(req.Profile); profile != "" {
		b.WriteString("Known about the citizen: ")
		b.WriteString(profile)
		b.WriteString("\n\n")
	}
	b.WriteString(req.Text)

	messages := []llm.Message{
		llm.SystemPrompt(fmt.Sprintf(guideSystemPrompt, languageName(req.Language))),
		llm.UserMessage(b.String()),
	}

	text, err := WithRetry(ctx, guideAgentName, a.retries, func(ctx context.Context) (chatResult, error) {
		content, st, err := a.generator.Chat(ctx, messages)
		return chatResult{content, st}, err
	})
	if err != nil {
		return nil, nil, AsAgentError(guideAgentName, err)
	}

	return &Response{
		Text:       text.content,
		Capability: guideAgentName,
		TokensUsed: text.tokens(),
	}, extractProfileFacts(ctx, a.generator, req.Text), nil
}
