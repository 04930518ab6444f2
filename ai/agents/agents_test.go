package agents

import (
	"context"
	"errors"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/civicsense/ai/core/llm"
	"github.com/hrygo/civicsense/ai/retrieval"
	"github.com/hrygo/civicsense/store"
)

// scriptedGenerator replays canned responses in order, then keeps
// returning the last one. "{}" responses satisfy the extraction calls.
type scriptedGenerator struct {
	responses []string
	err       error
	calls     int
}

func (g *scriptedGenerator) Chat(_ context.Context, _ []llm.Message) (string, *llm.CallStats, error) {
	g.calls++
	if g.err != nil {
		return "", nil, g.err
	}
	idx := g.calls - 1
	if idx >= len(g.responses) {
		idx = len(g.responses) - 1
	}
	if idx < 0 {
		return "{}", &llm.CallStats{}, nil
	}
	return g.responses[idx], &llm.CallStats{TotalTokens: 7}, nil
}

func (g *scriptedGenerator) Warmup(_ context.Context) {}

type stubSource struct {
	snippets []retrieval.Snippet
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func (s *stubSource) Lookup(ctx context.Context, _, _ string, _ int) ([]retrieval.Snippet, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.snippets, s.err
}

func newRequest(text string) *Request {
	return &Request{
		Text:     text,
		Session:  store.NewSession("s1", "u1", "en"),
		Language: "en",
	}
}

func TestKnowledgeAgentMergesConcurrentLookups(t *testing.T) {
	src1 := &stubSource{snippets: []retrieval.Snippet{
		{Text: "Comptrollers audit city finances.", URL: "https://www.usa.gov/local", Title: "Local gov"},
	}}
	src2 := &stubSource{snippets: []retrieval.Snippet{
		{Text: "Budgets are reviewed annually.", URL: "https://vote.gov/budget", Title: "Budget"},
		{Text: "Duplicate citation.", URL: "https://www.usa.gov/local", Title: "Local gov"},
	}}
	gen := &scriptedGenerator{responses: []string{"A comptroller audits municipal finances.", "{}"}}

	agent := NewKnowledgeAgent(gen, []retrieval.KnowledgeSource{src1, src2}, nil, time.Second, 0)
	resp, _, err := agent.Handle(context.Background(), newRequest("What does a city comptroller do?"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), src1.calls.Load())
	assert.Equal(t, int32(1), src2.calls.Load())
	// Duplicate URLs collapse to one citation.
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "knowledge", resp.Capability)
	assert.Equal(t, 7, resp.TokensUsed)
}

func TestKnowledgeAgentEmptyLookupStillAnswers(t *testing.T) {
	src := &stubSource{}
	gen := &scriptedGenerator{responses: []string{"I could not find that information.", "{}"}}

	agent := NewKnowledgeAgent(gen, []retrieval.KnowledgeSource{src}, nil, time.Second, 0)
	resp, _, err := agent.Handle(context.Background(), newRequest("What does a city comptroller do?"))
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
}

func TestKnowledgeAgentLookupErrorIsTyped(t *testing.T) {
	src := &stubSource{err: errors.New("connection refused")}
	gen := &scriptedGenerator{responses: []string{"unused"}}

	agent := NewKnowledgeAgent(gen, []retrieval.KnowledgeSource{src}, nil, 50*time.Millisecond, 0)
	_, _, err := agent.Handle(context.Background(), newRequest("anything at all here"))
	require.Error(t, err)

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrorKindUnavailable, ae.Kind)
}

func TestComplaintAgentMultiTurnIntake(t *testing.T) {
	st := store.New(store.NewMemoryDriver())
	ctx := context.Background()

	// Turn 1: description, category, and city extracted; severity missing.
	gen := &scriptedGenerator{responses: []string{
		`{"description": "pothole on Main St", "category": "infraestructura", "city": "Springfield"}`,
		"{}",
	}}
	agent := NewComplaintAgent(gen, st, time.Second, 0)

	req := newRequest("I want to report a pothole on Main St, Springfield")
	resp, _, err := agent.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, fieldQuestions[scratchSeverity]["en"], resp.Text)
	assert.Equal(t, "pothole on Main St", resp.Scratch[scratchDescription])

	// The orchestrator commits scratch between turns.
	if req.Session.Scratch == nil {
		req.Session.Scratch = make(map[string]string, len(resp.Scratch))
	}
	for k, v := range resp.Scratch {
		req.Session.Scratch[k] = v
	}

	// Turn 2: bare "high" answers the pending severity question.
	gen.responses = []string{"{}", "{}"}
	gen.calls = 0
	req.Text = "high"
	resp, _, err = agent.Handle(ctx, req)
	require.NoError(t, err)

	trackingID := regexp.MustCompile(`[0-9A-Za-z]{16,}`).FindString(resp.Text)
	require.NotEmpty(t, trackingID, resp.Text)
	assert.Regexp(t, `^[A-Za-z0-9-]+$`, trackingID)

	// Submission clears the intake scratch.
	for _, field := range requiredFields {
		assert.Equal(t, "", resp.Scratch[field])
	}

	// Exactly one record, routed to the municipality.
	saved, err := st.GetComplaint(ctx, trackingID)
	require.NoError(t, err)
	assert.Equal(t, "Springfield", saved.City)
	assert.Equal(t, "high", saved.Severity)
	assert.Equal(t, "municipio", saved.Entity)
	assert.Equal(t, store.ComplaintStatusPending, saved.Status)
}

func TestComplaintAgentStatusQuery(t *testing.T) {
	st := store.New(store.NewMemoryDriver())
	ctx := context.Background()

	complaint := &store.Complaint{
		TrackingID:  "AbCdEfGhJkLmNpQrStUv",
		Category:    "seguridad",
		Description: "broken streetlight",
		Severity:    "medium",
		City:        "Springfield",
	}
	require.NoError(t, st.PutComplaint(ctx, complaint))

	agent := NewComplaintAgent(&scriptedGenerator{}, st, time.Second, 0)
	resp, _, err := agent.Handle(ctx, newRequest("What is the status of AbCdEfGhJkLmNpQrStUv?"))
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "AbCdEfGhJkLmNpQrStUv")
	assert.Contains(t, resp.Text, store.ComplaintStatusPending)
}

func TestComplaintAgentStatusQueryUnknownID(t *testing.T) {
	st := store.New(store.NewMemoryDriver())
	agent := NewComplaintAgent(&scriptedGenerator{}, st, time.Second, 0)

	resp, _, err := agent.Handle(context.Background(), newRequest("status of AbCdEfGhJkLmNpQrXXXX please"))
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "AbCdEfGhJkLmNpQrXXXX")
}

func TestComplaintAgentSpanishPrompts(t *testing.T) {
	st := store.New(store.NewMemoryDriver())
	gen := &scriptedGenerator{responses: []string{"{}"}}
	agent := NewComplaintAgent(gen, st, time.Second, 0)

	req := newRequest("quiero hacer una denuncia")
	req.Language = "es"
	resp, _, err := agent.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, fieldQuestions[scratchDescription]["es"], resp.Text)
}

// blockingDriver hangs on every operation until the call's context
// expires, imitating a stalled storage backend.
type blockingDriver struct{}

func (blockingDriver) Get(ctx context.Context, _, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingDriver) Put(ctx context.Context, _, _ string, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingDriver) Query(ctx context.Context, _, _ string) ([][]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingDriver) Close() error { return nil }

func TestComplaintAgentSubmissionHonorsStoreTimeout(t *testing.T) {
	st := store.New(blockingDriver{})
	gen := &scriptedGenerator{responses: []string{
		`{"description": "pothole on Main St", "category": "infraestructura", "city": "Springfield", "severity": "high"}`,
	}}
	agent := NewComplaintAgent(gen, st, 30*time.Millisecond, 0)

	start := time.Now()
	_, _, err := agent.Handle(context.Background(), newRequest("Urgent pothole on Main St in Springfield, fix it."))
	require.Error(t, err)
	// The write is cut off by its own deadline, not the caller's.
	assert.Less(t, time.Since(start), time.Second)

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrorKindTimeout, ae.Kind)
}

func TestComplaintAgentStatusQueryHonorsStoreTimeout(t *testing.T) {
	st := store.New(blockingDriver{})
	agent := NewComplaintAgent(&scriptedGenerator{}, st, 30*time.Millisecond, 0)

	start := time.Now()
	_, _, err := agent.Handle(context.Background(), newRequest("status of AbCdEfGhJkLmNpQrStUv please"))
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrorKindTimeout, ae.Kind)
}

func TestWithRetryBacksOffOnTransientErrors(t *testing.T) {
	attempts := 0
	start := time.Now()
	_, err := WithRetry(context.Background(), "test", 2, func(context.Context) (int, error) {
		attempts++
		return 0, errors.New("context deadline exceeded")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	// 200ms + 800ms of backoff.
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrorKindTimeout, ae.Kind)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	_, err := WithRetry(context.Background(), "test", 2, func(context.Context) (int, error) {
		attempts++
		return 0, errors.New("invalid input")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	v, err := WithRetry(context.Background(), "test", 2, func(context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("connection reset")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, attempts)
}

func TestWithRetryCancellationIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	start := time.Now()
	_, err := WithRetry(ctx, "test", 2, func(context.Context) (int, error) {
		attempts++
		return 0, errors.New("connection reset")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	// Cancellation interrupts the backoff instead of waiting it out.
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.NotEqual(t, ErrorKindTimeout, ae.Kind)
	assert.False(t, ae.Retryable())
}

func TestLanguageAgentTranslate(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"quiero reportar un bache"}}
	agent := NewLanguageAgent(gen, "en", 0)

	translated, err := agent.Translate(context.Background(), "I want to report a pothole", "es")
	require.NoError(t, err)
	assert.Equal(t, "quiero reportar un bache", translated)
	assert.Equal(t, 1, gen.calls)
}

func TestLanguageAgentTranslateWithoutGenerator(t *testing.T) {
	agent := NewLanguageAgent(nil, "en", 0)

	_, err := agent.Translate(context.Background(), "anything", "es")
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrorKindUnavailable, ae.Kind)
}

func TestLanguageDetectHeuristics(t *testing.T) {
	agent := NewLanguageAgent(nil, "en", 0)
	ctx := context.Background()

	assert.Equal(t, "es", agent.Detect(ctx, "¿Cómo puedo votar?"))
	assert.Equal(t, "es", agent.Detect(ctx, "quiero hacer una denuncia"))
	assert.Equal(t, "en", agent.Detect(ctx, "How do I renew my passport?"))
	// No generator and no hint: configured default.
	assert.Equal(t, "en", agent.Detect(ctx, "xyzzy"))
}

func TestGuideAgentTypedErrorOnGenerationFailure(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("service unavailable")}
	agent := NewGuideAgent(gen, 0)

	_, _, err := agent.Handle(context.Background(), newRequest("How do I get a permit?"))
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrorKindUnavailable, ae.Kind)
	assert.Equal(t, "guide", ae.Agent)
}
