package agents

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/civicsense/ai/core/llm"
	"github.com/hrygo/civicsense/ai/retrieval"
	"github.com/hrygo/civicsense/store"
)

const factCheckAgentName = "fact_check"

const factCheckSystemPrompt = `You verify claims about civic and government matters.
Compare the claim against the reference snippets and state whether it is supported,
contradicted, or unverifiable from the available sources. Never speculate beyond the
snippets and never express political opinions. Answer in %s.`

// FactCheckAgent verdicts claims against the knowledge sources. It has
// no secondary agent dependency, which keeps the knowledge chain at
// depth one.
type FactCheckAgent struct {
	generator     llm.Generator
	sources       []retrieval.KnowledgeSource
	lookupTimeout time.Duration
	lookupLimit   int
	retries       int
}

// NewFactCheckAgent creates the fact-check agent.
func NewFactCheckAgent(gen llm.Generator, sources []retrieval.KnowledgeSource, lookupTimeout time.Duration, retries int) *FactCheckAgent {
	if lookupTimeout <= 0 {
		lookupTimeout = 3 * time.Second
	}
	return &FactCheckAgent{
		generator:     gen,
		sources:       sources,
		lookupTimeout: lookupTimeout,
		lookupLimit:   5,
		retries:       retries,
	}
}

func (a *FactCheckAgent) Name() string { return factCheckAgentName }

// CacheEligible is true: the same claim verdicts the same way until
// the corpus changes, and the cache TTL bounds staleness.
func (a *FactCheckAgent) CacheEligible() bool { return true }

func (a *FactCheckAgent) Handle(ctx context.Context, req *Request) (*Response, store.ProfileUpdates, error) {
	resp, err := a.verifyClaim(ctx, claimText(req), req.Language)
	if err != nil {
		return nil, nil, AsAgentError(factCheckAgentName, err)
	}
	return resp, extractProfileFacts(ctx, a.generator, req.Text), nil
}

// verifyClaim is the single-hop entry point shared with the knowledge
// agent's chained consultation.
func (a *FactCheckAgent) verifyClaim(ctx context.Context, claim, language string) (*Response, error) {
	snippets, err := a.lookup(ctx, claim, language)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Claim to verify: %s\n\n", claim)
	if len(snippets) == 0 {
		prompt += "Reference snippets: none found."
	} else {
		prompt += "Reference snippets:\n"
		for i, sn := range snippets {
			prompt += fmt.Sprintf("%d. %s (%s)\n", i+1, sn.Text, sn.URL)
		}
	}

	messages := []llm.Message{
		llm.SystemPrompt(fmt.Sprintf(factCheckSystemPrompt, languageName(language))),
		llm.UserMessage(prompt),
	}

	text, err := WithRetry(ctx, factCheckAgentName, a.retries, func(ctx context.Context) (chatResult, error) {
		content, st, err := a.generator.Chat(ctx, messages)
		return chatResult{content, st}, err
	})
	if err != nil {
		return nil, err
	}

	return &Response{
		Text:       text.content,
		Sources:    dedupeSources(snippets),
		Capability: factCheckAgentName,
		TokensUsed: text.tokens(),
	}, nil
}

func (a *FactCheckAgent) lookup(ctx context.Context, claim, language string) ([]retrieval.Snippet, error) {
	if len(a.sources) == 0 {
		return nil, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
	defer cancel()

	results := make([][]retrieval.Snippet, len(a.sources))
	g, gctx := errgroup.WithContext(lookupCtx)
	for i, src := range a.sources {
		g.Go(func() error {
			snippets, err := WithRetry(gctx, factCheckAgentName, a.retries, func(ctx context.Context) ([]retrieval.Snippet, error) {
				return src.Lookup(ctx, claim, language, a.lookupLimit)
			})
			if err != nil {
				return err
			}
			results[i] = snippets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []retrieval.Snippet
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}

func claimText(req *Request) string {
	if req.Instruction != "" {
		return req.Instruction + "\n\n" + req.Text
	}
	return req.Text
}
