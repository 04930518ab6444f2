// Package orchestrator owns the per-turn handoff state machine: it
// classifies the request, delegates to the mapped capability agent,
// validates the output, and commits session state atomically with the
// response.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hrygo/civicsense/ai/agents"
	"github.com/hrygo/civicsense/ai/classifier"
	"github.com/hrygo/civicsense/ai/metrics"
	"github.com/hrygo/civicsense/ai/validator"
	"github.com/hrygo/civicsense/store"
)

// Policy holds the orchestration knobs.
type Policy struct {
	// RegenBudget is how many times a failing response may be
	// regenerated before falling back. The agent runs at most
	// 1 + RegenBudget times per turn.
	RegenBudget int

	// MaxClarifications caps clarification requests per session. Once
	// reached, ambiguous turns proceed with a best-guess intent. This
	// counter is independent of RegenBudget.
	MaxClarifications int

	// CacheTTL bounds response cache staleness.
	CacheTTL time.Duration

	// StoreTimeout bounds every session/profile store call.
	StoreTimeout time.Duration

	// DefaultLanguage is used when detection yields nothing.
	DefaultLanguage string
}

// DefaultPolicy returns the standard policy values.
func DefaultPolicy() Policy {
	return Policy{
		RegenBudget:       2,
		MaxClarifications: 2,
		CacheTTL:          24 * time.Hour,
		StoreTimeout:      2 * time.Second,
		DefaultLanguage:   "en",
	}
}

// bestGuessIntent is used when clarification retries are exhausted and
// the classifier still reports AMBIGUOUS.
const bestGuessIntent = classifier.IntentKnowledge

// intentClassifier is the classification dependency.
type intentClassifier interface {
	Classify(ctx context.Context, text string) classifier.Classification
}

// outputValidator is the validation dependency.
type outputValidator interface {
	Validate(ctx context.Context, resp *agents.Response, intent classifier.Intent) *validator.Result
	CitationRulesHold(resp *agents.Response, intent classifier.Intent) bool
}

// languageService resolves the language of a first-contact message and
// normalizes inbound text that arrives in a different language than the
// established session.
type languageService interface {
	Detect(ctx context.Context, text string) string
	Translate(ctx context.Context, text, language string) (string, error)
}

// TurnRequest is one inbound citizen message.
type TurnRequest struct {
	SessionID string
	UserID    string
	Text      string
	// Language is the caller-requested locale; empty means use the
	// session's language or detect it.
	Language string
}

// TurnResult is the orchestration outcome for one turn. UserError is a
// policy-reviewed message set only when State is ERROR; diagnostic
// detail stays in the log.
type TurnResult struct {
	SessionID     string
	CorrelationID string
	State         State
	Intent        classifier.Intent
	Text          string
	Sources       []agents.Source
	TokensUsed    int
	Language      string
	UserError     string
}

// Orchestrator composes the classifier, registry, validator, and store
// into the per-turn pipeline.
type Orchestrator struct {
	store      *store.Store
	classifier intentClassifier
	validator  outputValidator
	registry   *Registry
	language   languageService
	cache      *responseCache
	metrics    *metrics.PrometheusExporter
	policy     Policy
}

// New creates an orchestrator. language may be nil (the default
// language is used for sessions that arrive without one); exporter may
// be nil (a private registry is created).
func New(st *store.Store, cls intentClassifier, val outputValidator, registry *Registry, language languageService, exporter *metrics.PrometheusExporter, policy Policy) *Orchestrator {
	if policy.RegenBudget <= 0 {
		policy.RegenBudget = DefaultPolicy().RegenBudget
	}
	if policy.MaxClarifications <= 0 {
		policy.MaxClarifications = DefaultPolicy().MaxClarifications
	}
	if policy.StoreTimeout <= 0 {
		policy.StoreTimeout = DefaultPolicy().StoreTimeout
	}
	if policy.DefaultLanguage == "" {
		policy.DefaultLanguage = DefaultPolicy().DefaultLanguage
	}
	if exporter == nil {
		exporter = metrics.NewPrometheusExporter(metrics.DefaultConfig())
	}
	return &Orchestrator{
		store:      st,
		classifier: cls,
		validator:  val,
		registry:   registry,
		language:   language,
		cache:      newResponseCache(policy.CacheTTL),
		metrics:    exporter,
		policy:     policy,
	}
}

// HandleTurn runs one turn through the state machine. It always
// returns a result; orchestration failures surface in-band through
// State and UserError, never as raw error text.
func (o *Orchestrator) HandleTurn(ctx context.Context, req *TurnRequest) *TurnResult {
	start := time.Now()
	result := &TurnResult{
		SessionID:     req.SessionID,
		CorrelationID: uuid.NewString(),
		Language:      req.Language,
	}
	logger := slog.With("correlation_id", result.CorrelationID, "session_id", req.SessionID)

	defer func() {
		o.metrics.RecordTurn(string(result.Intent), string(result.State), time.Since(start))
		logger.Info("turn finished",
			"state", result.State,
			"intent", result.Intent,
			"tokens", result.TokensUsed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	// Empty input is recovered locally: clarification, no state mutation.
	if strings.TrimSpace(req.Text) == "" {
		result.State = StateRejected
		result.Intent = classifier.IntentAmbiguous
		result.Language = o.fallbackLanguage(req.Language)
		result.Text = template(clarificationTemplates, result.Language)
		return result
	}

	sess, err := o.loadSession(ctx, req)
	if err != nil {
		logger.Error("session load failed", "error", err)
		return o.errorResult(result, o.fallbackLanguage(req.Language))
	}

	// All mutation happens on a clone; the stored session changes only
	// when the turn commits.
	work := sess.Clone()
	result.Language = o.resolveLanguage(ctx, req, work)
	work.Language = result.Language
	text := o.normalizeInput(ctx, req.Text, result.Language, logger)

	profile := o.loadProfile(ctx, req.UserID, logger)

	// ROUTING
	classifyStart := time.Now()
	cls := o.classifier.Classify(ctx, text)
	o.metrics.RecordStage("classify", time.Since(classifyStart))
	result.Intent = cls.Intent
	logger = logger.With("intent", cls.Intent)
	logger.Debug("request classified", "confidence", cls.Confidence, "matched_rule", cls.MatchedRule)

	switch cls.Intent {
	case classifier.IntentProhibited:
		// Terminal refusal. No agent runs, no tokens are spent.
		logger.Warn("prohibited request refused", "matched_rule", cls.MatchedRule)
		result.State = StateRejected
		result.Text = template(refusalTemplates, result.Language)
		o.commitSession(ctx, work, logger)
		return result

	case classifier.IntentAmbiguous:
		if work.Clarifications < o.policy.MaxClarifications {
			work.Clarifications++
			result.State = StateRejected
			result.Text = template(clarificationTemplates, result.Language)
			o.commitSession(ctx, work, logger)
			return result
		}
		logger.Debug("clarification retries exhausted, proceeding with best guess")
		result.Intent = bestGuessIntent
	}

	agent, ok := o.registry.Lookup(result.Intent)
	if !ok {
		logger.Error("no agent registered for intent")
		return o.errorResult(result, result.Language)
	}

	// DELEGATED — cache short-circuit for eligible agents.
	if agent.CacheEligible() {
		if resp, ok := o.cachedResponse(ctx, text, result.Intent, result.Language); ok {
			o.metrics.RecordCacheHit(string(result.Intent))
			logger.Debug("served from response cache")
			return o.commitTurn(ctx, result, work, resp, nil, req.UserID, logger)
		}
		o.metrics.RecordCacheMiss(string(result.Intent))
	}

	resp, updates, vres := o.delegate(ctx, result, work, profile, agent, text, logger)
	if result.State == StateError {
		return o.errorResult(result, result.Language)
	}
	if result.State == StateFallback {
		result.Text = template(fallbackTemplates, result.Language)
		o.metrics.RecordValidationFallback()
		logger.Error("regeneration budget exhausted, serving fallback",
			"attempts", 1+o.policy.RegenBudget,
			"violations", vres.Violations,
		)
		work.TurnCount++
		work.LastActivity = time.Now()
		o.commitSession(ctx, work, logger)
		return result
	}

	if agent.CacheEligible() {
		o.cache.put(text, result.Intent, result.Language, resp)
	}
	return o.commitTurn(ctx, result, work, resp, updates, req.UserID, logger)
}

// delegate runs the DELEGATED/VALIDATING loop under the regeneration
// budget. It sets result.State to DONE, FALLBACK, or ERROR.
func (o *Orchestrator) delegate(ctx context.Context, result *TurnResult, work *store.Session, profile *store.UserProfile, agent agents.Agent, text string, logger *slog.Logger) (*agents.Response, store.ProfileUpdates, *validator.Result) {
	instruction := ""
	maxAttempts := 1 + o.policy.RegenBudget

	var lastValidation *validator.Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.State = StateDelegated
		delegateStart := time.Now()
		resp, updates, err := agent.Handle(ctx, &agents.Request{
			Text:        text,
			Session:     work,
			Profile:     profile,
			Instruction: instruction,
			Language:    result.Language,
		})
		o.metrics.RecordStage("delegate", time.Since(delegateStart))
		if err != nil {
			ae := agents.AsAgentError(agent.Name(), err)
			o.metrics.RecordAgentError(ae.Agent, ae.Kind.String())
			logger.Error("agent failed", "agent", ae.Agent, "kind", ae.Kind.String(), "error", err)
			result.State = StateError
			return nil, nil, nil
		}
		result.TokensUsed += resp.TokensUsed
		o.metrics.RecordTokens(agent.Name(), resp.TokensUsed)

		result.State = StateValidating
		validateStart := time.Now()
		lastValidation = o.validator.Validate(ctx, resp, result.Intent)
		o.metrics.RecordStage("validate", time.Since(validateStart))
		if lastValidation.Passed {
			result.State = StateDone
			return resp, updates, lastValidation
		}

		categories := lastValidation.Categories()
		logger.Warn("validation failed",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"violations", categories,
		)
		instruction = fmt.Sprintf(
			"Your previous answer was rejected by policy checks (%s). Regenerate the answer and fix every listed issue.",
			strings.Join(categories, ", "),
		)
	}

	result.State = StateFallback
	return nil, nil, lastValidation
}

// commitTurn applies the successful turn: session increment, scratch
// merge, and profile merge, committed before the caller sees the
// response. A session write failure voids the whole turn.
func (o *Orchestrator) commitTurn(ctx context.Context, result *TurnResult, work *store.Session, resp *agents.Response, updates store.ProfileUpdates, userID string, logger *slog.Logger) *TurnResult {
	work.TurnCount++
	work.LastActivity = time.Now()
	work.Clarifications = 0
	applyScratch(work, resp.Scratch)

	if err := o.upsertSession(ctx, work); err != nil {
		logger.Error("session commit failed, voiding turn", "error", err)
		return o.errorResult(result, result.Language)
	}

	if len(updates) > 0 && userID != "" {
		if _, err := o.mergeProfile(ctx, userID, updates); err != nil {
			// Best effort: the response still stands, the facts are dropped.
			logger.Error("profile merge dropped", "user_id", userID, "error", err)
		}
	}

	result.State = StateDone
	result.Text = resp.Text
	result.Sources = resp.Sources
	return result
}

// cachedResponse returns a cache entry that still passes the current
// sourcing rules. An entry validated under a different intent gets a
// full re-validation instead of being trusted.
func (o *Orchestrator) cachedResponse(ctx context.Context, text string, intent classifier.Intent, language string) (*agents.Response, bool) {
	entry, ok := o.cache.get(text, language)
	if !ok {
		return nil, false
	}
	if entry.intent != intent {
		if vres := o.validator.Validate(ctx, entry.response, intent); !vres.Passed {
			return nil, false
		}
		return entry.response, true
	}
	if !o.validator.CitationRulesHold(entry.response, intent) {
		return nil, false
	}
	return entry.response, true
}

func (o *Orchestrator) loadSession(ctx context.Context, req *TurnRequest) (*store.Session, error) {
	sctx, cancel := context.WithTimeout(ctx, o.policy.StoreTimeout)
	defer cancel()

	sess, err := o.store.GetSession(sctx, req.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return store.NewSession(req.SessionID, req.UserID, req.Language), nil
	}
	return sess, err
}

func (o *Orchestrator) loadProfile(ctx context.Context, userID string, logger *slog.Logger) *store.UserProfile {
	if userID == "" {
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, o.policy.StoreTimeout)
	defer cancel()

	profile, err := o.store.GetUserProfile(pctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("profile load failed, proceeding without", "error", err)
		}
		return nil
	}
	return profile
}

func (o *Orchestrator) upsertSession(ctx context.Context, sess *store.Session) error {
	sctx, cancel := context.WithTimeout(ctx, o.policy.StoreTimeout)
	defer cancel()
	return o.store.UpsertSession(sctx, sess)
}

func (o *Orchestrator) mergeProfile(ctx context.Context, userID string, updates store.ProfileUpdates) (*store.UserProfile, error) {
	pctx, cancel := context.WithTimeout(ctx, o.policy.StoreTimeout)
	defer cancel()
	return o.store.MergeProfile(pctx, userID, updates)
}

// commitSession persists non-DONE session changes (clarification
// counters, first-contact creation). Failures only log: these turns
// carry no state the caller depends on.
func (o *Orchestrator) commitSession(ctx context.Context, sess *store.Session, logger *slog.Logger) {
	sess.LastActivity = time.Now()
	if err := o.upsertSession(ctx, sess); err != nil {
		logger.Warn("session update failed", "error", err)
	}
}

// normalizeInput translates inbound text into the session language when
// detection disagrees with it, so the classifier, the agents, and the
// response cache see one language per session. Translation failure is
// never fatal: the original text proceeds.
func (o *Orchestrator) normalizeInput(ctx context.Context, text, language string, logger *slog.Logger) string {
	if o.language == nil {
		return text
	}
	detected := o.language.Detect(ctx, text)
	if detected == "" || strings.EqualFold(detected, language) {
		return text
	}
	translated, err := o.language.Translate(ctx, text, language)
	if err != nil || strings.TrimSpace(translated) == "" {
		logger.Warn("input translation skipped", "detected", detected, "language", language, "error", err)
		return text
	}
	logger.Debug("input translated", "from", detected, "to", language)
	return translated
}

func (o *Orchestrator) resolveLanguage(ctx context.Context, req *TurnRequest, sess *store.Session) string {
	if req.Language != "" {
		return req.Language
	}
	if sess.Language != "" {
		return sess.Language
	}
	if o.language != nil {
		if detected := o.language.Detect(ctx, req.Text); detected != "" {
			return detected
		}
	}
	return o.policy.DefaultLanguage
}

func (o *Orchestrator) fallbackLanguage(requested string) string {
	if requested != "" {
		return requested
	}
	return o.policy.DefaultLanguage
}

func (o *Orchestrator) errorResult(result *TurnResult, language string) *TurnResult {
	result.State = StateError
	result.Language = language
	result.Text = template(serviceUnavailableTemplates, language)
	result.UserError = result.Text
	return result
}

// applyScratch merges proposed scratch updates into the session; an
// empty value clears the key.
func applyScratch(sess *store.Session, scratch map[string]string) {
	if len(scratch) == 0 {
		return
	}
	if sess.Scratch == nil {
		sess.Scratch = make(map[string]string, len(scratch))
	}
	for key, value := range scratch {
		if value == "" {
			delete(sess.Scratch, key)
			continue
		}
		sess.Scratch[key] = value
	}
}
