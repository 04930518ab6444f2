package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/civicsense/ai/core/llm"
	"github.com/hrygo/civicsense/store"
)

const complaintAgentName = "complaint"

// Scratch keys for the multi-turn intake. An empty-string value in the
// proposed Scratch map clears the key on commit.
const (
	scratchCategory    = "complaint.category"
	scratchCity        = "complaint.city"
	scratchDescription = "complaint.description"
	scratchSeverity    = "complaint.severity"
	scratchAddress     = "complaint.address"
)

// requiredFields is the intake order: the agent asks for exactly the
// first missing field each turn.
var requiredFields = []string{scratchDescription, scratchCategory, scratchCity, scratchSeverity}

const complaintExtractionPrompt = `Extract complaint information from the citizen's message.
Extract ONLY explicitly mentioned information:
- description: what the problem is
- category: one of infraestructura, seguridad, servicios, corrupcion, otro (infer from context)
- city: city name, only if mentioned
- address: street or location detail, only if mentioned
- severity: high, medium, or low, only if the citizen indicates urgency

Omit fields with no information. Reply with a single JSON object, no prose.
Example: {"description": "dangerous pothole", "category": "infraestructura", "city": "Springfield", "severity": "high"}`

var fieldQuestions = map[string]map[string]string{
	scratchDescription: {
		"en": "Could you describe the problem you want to report?",
		"es": "¿Podría describir el problema que desea reportar?",
	},
	scratchCategory: {
		"en": "What kind of issue is this: infrastructure, safety, public services, corruption, or other?",
		"es": "¿Qué tipo de problema es: infraestructura, seguridad, servicios, corrupción u otro?",
	},
	scratchCity: {
		"en": "Which city is this complaint about?",
		"es": "¿En qué ciudad ocurre el problema?",
	},
	scratchSeverity: {
		"en": "How urgent is this: high, medium, or low?",
		"es": "¿Qué tan urgente es: alta, media o baja?",
	},
}

var submissionConfirmation = map[string]string{
	"en": "Your complaint has been registered and routed to %s. Tracking number: %s. You can ask for its status at any time with that number.",
	"es": "Su denuncia ha sido registrada y derivada a %s. Número de seguimiento: %s. Puede consultar su estado en cualquier momento con ese número.",
}

var statusReport = map[string]string{
	"en": "Complaint %s (%s, %s) is currently: %s.",
	"es": "La denuncia %s (%s, %s) se encuentra: %s.",
}

var statusNotFound = map[string]string{
	"en": "I could not find a complaint with tracking number %s. Please check the number and try again.",
	"es": "No encontré ninguna denuncia con el número de seguimiento %s. Por favor verifique el número e intente de nuevo.",
}

var (
	statusQueryPattern = regexp.MustCompile(`(?i)\b(status|estado|seguimiento|tracking)\b`)
	trackingIDPattern  = regexp.MustCompile(`\b[0-9A-Za-z]{16,32}\b`)
)

// severityAliases normalizes extracted urgency to the stored values.
var severityAliases = map[string]string{
	"high": "high", "alta": "high", "urgent": "high", "urgente": "high",
	"medium": "medium", "media": "medium", "moderate": "medium",
	"low": "low", "baja": "low",
}

// ComplaintAgent runs the multi-turn complaint intake. Each turn it
// extracts whatever fields the message carries into the session
// scratch, asks for exactly the next missing field, and writes the
// complaint to the store once — only when every required field is
// present.
type ComplaintAgent struct {
	generator    llm.Generator
	store        *store.Store
	storeTimeout time.Duration
	retries      int
}

// NewComplaintAgent creates the complaint agent. storeTimeout bounds
// each complaint read and write.
func NewComplaintAgent(gen llm.Generator, st *store.Store, storeTimeout time.Duration, retries int) *ComplaintAgent {
	if storeTimeout <= 0 {
		storeTimeout = 2 * time.Second
	}
	return &ComplaintAgent{generator: gen, store: st, storeTimeout: storeTimeout, retries: retries}
}

func (a *ComplaintAgent) Name() string { return complaintAgentName }

// CacheEligible is false: every intake turn mutates scratch state and
// every submission must reach the store.
func (a *ComplaintAgent) CacheEligible() bool { return false }

func (a *ComplaintAgent) Handle(ctx context.Context, req *Request) (*Response, store.ProfileUpdates, error) {
	lang := normalizeLang(req.Language)

	if id, ok := statusQuery(req.Text); ok {
		resp, err := a.reportStatus(ctx, id, lang)
		if err != nil {
			return nil, nil, err
		}
		return resp, nil, nil
	}

	fields := a.mergeExtracted(ctx, req)

	if missing := nextMissingField(fields); missing != "" {
		return &Response{
			Text:       fieldQuestions[missing][lang],
			Capability: complaintAgentName,
			Scratch:    fields,
		}, extractProfileFacts(ctx, a.generator, req.Text), nil
	}

	resp, err := a.submit(ctx, req, fields, lang)
	if err != nil {
		return nil, nil, err
	}
	return resp, extractProfileFacts(ctx, a.generator, req.Text), nil
}

// mergeExtracted folds this turn's extracted fields over the scratch
// state accumulated on previous turns.
func (a *ComplaintAgent) mergeExtracted(ctx context.Context, req *Request) map[string]string {
	fields := make(map[string]string)
	if req.Session != nil {
		for key, value := range req.Session.Scratch {
			if strings.HasPrefix(key, "complaint.") {
				fields[key] = value
			}
		}
	}

	extracted := a.extractFields(ctx, req.Text)

	// Mid-intake, a bare short reply answers the field we just asked for.
	if len(extracted) == 0 && len(fields) > 0 {
		if missing := nextMissingField(fields); missing != "" && isBareAnswer(req.Text) {
			extracted = map[string]string{missing: strings.TrimSpace(req.Text)}
		}
	}

	for key, value := range extracted {
		if key == scratchSeverity {
			if normalized, ok := severityAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
				value = normalized
			} else {
				continue
			}
		}
		fields[key] = value
	}
	return fields
}

func (a *ComplaintAgent) extractFields(ctx context.Context, text string) map[string]string {
	if a.generator == nil || len(strings.TrimSpace(text)) < 3 {
		return nil
	}

	content, _, err := a.generator.Chat(ctx, []llm.Message{
		llm.SystemPrompt(complaintExtractionPrompt),
		llm.UserMessage(text),
	})
	if err != nil {
		slog.Debug("complaint field extraction skipped", "error", err)
		return nil
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(jsonBody(content)), &raw); err != nil {
		return nil
	}

	keyMap := map[string]string{
		"description": scratchDescription,
		"category":    scratchCategory,
		"city":        scratchCity,
		"address":     scratchAddress,
		"severity":    scratchSeverity,
	}
	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		scratch, ok := keyMap[strings.ToLower(strings.TrimSpace(key))]
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			continue
		}
		fields[scratch] = value
	}
	return fields
}

// submit writes the complaint exactly once and clears the intake
// scratch so the next complaint starts fresh.
func (a *ComplaintAgent) submit(ctx context.Context, req *Request, fields map[string]string, lang string) (*Response, error) {
	complaint := &store.Complaint{
		TrackingID:  shortuuid.New(),
		Category:    fields[scratchCategory],
		Description: fields[scratchDescription],
		Severity:    fields[scratchSeverity],
		City:        fields[scratchCity],
		Address:     fields[scratchAddress],
	}
	if req.Session != nil {
		complaint.UserID = req.Session.UserID
	}

	_, err := WithRetry(ctx, complaintAgentName, a.retries, func(ctx context.Context) (struct{}, error) {
		sctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
		defer cancel()
		return struct{}{}, a.store.PutComplaint(sctx, complaint)
	})
	if err != nil {
		return nil, AsAgentError(complaintAgentName, err)
	}

	slog.Info("complaint registered",
		"tracking_id", complaint.TrackingID,
		"city", complaint.City,
		"category", complaint.Category,
		"entity", store.ResponsibleEntity(complaint.Category),
	)

	cleared := make(map[string]string, len(fields))
	for key := range fields {
		cleared[key] = ""
	}

	return &Response{
		Text:       fmt.Sprintf(submissionConfirmation[lang], store.ResponsibleEntity(complaint.Category), complaint.TrackingID),
		Capability: complaintAgentName,
		Scratch:    cleared,
	}, nil
}

func (a *ComplaintAgent) reportStatus(ctx context.Context, trackingID, lang string) (*Response, error) {
	complaint, err := WithRetry(ctx, complaintAgentName, a.retries, func(ctx context.Context) (*store.Complaint, error) {
		sctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
		defer cancel()
		return a.store.GetComplaint(sctx, trackingID)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &Response{
				Text:       fmt.Sprintf(statusNotFound[lang], trackingID),
				Capability: complaintAgentName,
			}, nil
		}
		return nil, AsAgentError(complaintAgentName, err)
	}

	return &Response{
		Text:       fmt.Sprintf(statusReport[lang], complaint.TrackingID, complaint.Category, complaint.City, complaint.Status),
		Capability: complaintAgentName,
	}, nil
}

// statusQuery detects a status lookup: status phrasing plus a token
// shaped like a tracking number.
func statusQuery(text string) (string, bool) {
	if !statusQueryPattern.MatchString(text) {
		return "", false
	}
	id := trackingIDPattern.FindString(text)
	return id, id != ""
}

func nextMissingField(fields map[string]string) string {
	for _, field := range requiredFields {
		if fields[field] == "" {
			return field
		}
	}
	return ""
}

// isBareAnswer spots short replies like "high" or "Springfield" that
// carry no extractable structure but answer the pending question.
func isBareAnswer(text string) bool {
	trimmed := strings.TrimSpace(text)
	return trimmed != "" && len(trimmed) <= 40 && !strings.ContainsAny(trimmed, ".?!")
}

func normalizeLang(code string) string {
	if strings.HasPrefix(strings.ToLower(code), "es") {
		return "es"
	}
	return "en"
}
