package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/civicsense/ai/core/llm"
	"github.com/hrygo/civicsense/ai/retrieval"
	"github.com/hrygo/civicsense/store"
)

const knowledgeAgentName = "knowledge"

const knowledgeSystemPrompt = `You are a civic information assistant. Answer the citizen's
question using ONLY the reference snippets provided. Stay strictly politically neutral:
never recommend candidates, parties, or how to vote. If the snippets do not cover the
question, say you could not find the information rather than guessing.
Answer in %s.`

// claimPattern spots questions that embed a third-party claim worth a
// verification pass before answering.
var claimPattern = regexp.MustCompile(`(?i)\b(i\s+heard|they\s+say|is\s+it\s+true|rumor|escuch[eé]\s+que|dicen\s+que|es\s+cierto)\b`)

// KnowledgeAgent answers factual civic questions from the configured
// knowledge sources. It may consult the fact-check agent for embedded
// claims; the dependency is a concrete type, so the chain cannot grow
// past one hop.
type KnowledgeAgent struct {
	generator     llm.Generator
	sources       []retrieval.KnowledgeSource
	factCheck     *FactCheckAgent
	lookupTimeout time.Duration
	lookupLimit   int
	retries       int
}

// NewKnowledgeAgent creates the knowledge agent. factCheck may be nil.
func NewKnowledgeAgent(gen llm.Generator, sources []retrieval.KnowledgeSource, factCheck *FactCheckAgent, lookupTimeout time.Duration, retries int) *KnowledgeAgent {
	if lookupTimeout <= 0 {
		lookupTimeout = 3 * time.Second
	}
	return &KnowledgeAgent{
		generator:     gen,
		sources:       sources,
		factCheck:     factCheck,
		lookupTimeout: lookupTimeout,
		lookupLimit:   5,
		retries:       retries,
	}
}

func (a *KnowledgeAgent) Name() string { return knowledgeAgentName }

// CacheEligible is true: static civic facts repeat across users.
func (a *KnowledgeAgent) CacheEligible() bool { return true }

func (a *KnowledgeAgent) Handle(ctx context.Context, req *Request) (*Response, store.ProfileUpdates, error) {
	snippets, err := a.lookup(ctx, req.Text, req.Language)
	if err != nil {
		return nil, nil, AsAgentError(knowledgeAgentName, err)
	}

	messages := []llm.Message{
		llm.SystemPrompt(fmt.Sprintf(knowledgeSystemPrompt, languageName(req.Language))),
		llm.UserMessage(buildKnowledgePrompt(req, snippets)),
	}

	text, err := WithRetry(ctx, knowledgeAgentName, a.retries, func(ctx context.Context) (chatResult, error) {
		content, st, err := a.generator.Chat(ctx, messages)
		return chatResult{content, st}, err
	})
	if err != nil {
		return nil, nil, AsAgentError(knowledgeAgentName, err)
	}

	resp := &Response{
		Text:       text.content,
		Sources:    dedupeSources(snippets),
		Capability: knowledgeAgentName,
		TokensUsed: text.tokens(),
	}

	if a.factCheck != nil && claimPattern.MatchString(req.Text) {
		verdict, vErr := a.factCheck.verifyClaim(ctx, req.Text, req.Language)
		if vErr != nil {
			// The base answer stands; verification is best-effort.
			return resp, extractProfileFacts(ctx, a.generator, req.Text), nil
		}
		resp.Text += "\n\n" + verdict.Text
		resp.Sources = append(resp.Sources, verdict.Sources...)
		resp.TokensUsed += verdict.TokensUsed
	}

	return resp, extractProfileFacts(ctx, a.generator, req.Text), nil
}

// lookup fans out to every source concurrently under a shared timeout
// and waits for all of them; there is no partial fan-in.
func (a *KnowledgeAgent) lookup(ctx context.Context, query, language string) ([]retrieval.Snippet, error) {
	if len(a.sources) == 0 {
		return nil, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
	defer cancel()

	results := make([][]retrieval.Snippet, len(a.sources))
	g, gctx := errgroup.WithContext(lookupCtx)
	for i, src := range a.sources {
		g.Go(func() error {
			snippets, err := WithRetry(gctx, knowledgeAgentName, a.retries, func(ctx context.Context) ([]retrieval.Snippet, error) {
				return src.Lookup(ctx, query, language, a.lookupLimit)
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

func buildKnowledgePrompt(req *Request, snippets []retrieval.Snippet) string {
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
	if len(snippets) == 0 {
		b.WriteString("Reference snippets: none found.\n\n")
	} else {
		b.WriteString("Reference snippets:\n")
		for i, sn := range snippets {
			fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, sn.Text, sn.URL)
		}
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(req.Text)
	return b.String()
}

func dedupeSources(snippets []retrieval.Snippet) []Source {
	seen := make(map[string]bool, len(snippets))
	var sources []Source
	for _, sn := range snippets {
		if sn.URL == "" || seen[sn.URL] {
			continue
		}
		seen[sn.URL] = true
		sources = append(sources, Source{URL: sn.URL, Title: sn.Title})
	}
	return sources
}

func profileSummary(p *store.UserProfile) string {
	if p == nil || len(p.Attributes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(p.Attributes))
	for key, fact := range p.Attributes {
		parts = append(parts, key+"="+fact.Value)
	}
	return strings.Join(parts, ", ")
}

func languageName(code string) string {
	if strings.HasPrefix(strings.ToLower(code), "es") {
		return "Spanish"
	}
	return "English"
}

// chatResult pairs generated text with its call stats for retry plumbing.
type chatResult struct {
	content string
	stats   *llm.CallStats
}

func (c chatResult) tokens() int {
	if c.stats == nil {
		return 0
	}
	return c.stats.TotalTokens
}
