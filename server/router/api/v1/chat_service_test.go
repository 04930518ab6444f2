package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/civicsense/ai/agents"
	"github.com/hrygo/civicsense/ai/classifier"
	"github.com/hrygo/civicsense/ai/metrics"
	"github.com/hrygo/civicsense/ai/orchestrator"
)

type fakeTurnHandler struct {
	lastRequest *orchestrator.TurnRequest
	result      *orchestrator.TurnResult
}

func (f *fakeTurnHandler) HandleTurn(_ context.Context, req *orchestrator.TurnRequest) *orchestrator.TurnResult {
	f.lastRequest = req
	result := *f.result
	result.SessionID = req.SessionID
	return &result
}

func newChatService(handler turnHandler) *APIV1Service {
	return &APIV1Service{
		Metrics:      metrics.NewPrometheusExporter(metrics.DefaultConfig()),
		orchestrator: handler,
	}
}

func performChat(t *testing.T, service *APIV1Service, body string) (*httptest.ResponseRecorder, *ChatResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	err := service.Chat(e.NewContext(req, rec))
	if err != nil {
		e.HTTPErrorHandler(err, e.NewContext(req, rec))
		return rec, nil
	}

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, &resp
}

func TestChatGeneratesThreadID(t *testing.T) {
	handler := &fakeTurnHandler{result: &orchestrator.TurnResult{
		State:  orchestrator.StateDone,
		Intent: classifier.IntentKnowledge,
		Text:   "Voter registration closes 30 days before the election.",
		Sources: []agents.Source{
			{URL: "https://vote.gov/register", Title: "Register to vote"},
		},
	}}
	service := newChatService(handler)

	rec, resp := performChat(t, service, `{"message": "when does registration close?", "user_id": "u1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, resp.ThreadID)
	assert.Equal(t, resp.ThreadID, handler.lastRequest.SessionID)
	assert.Equal(t, "u1", handler.lastRequest.UserID)
	assert.Equal(t, "KNOWLEDGE", resp.Intent)
	assert.Empty(t, resp.Error)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "https://vote.gov/register", resp.Sources[0].URL)
}

func TestChatPreservesThreadIDAndLocale(t *testing.T) {
	handler := &fakeTurnHandler{result: &orchestrator.TurnResult{
		State: orchestrator.StateDone,
		Text:  "ok",
	}}
	service := newChatService(handler)

	rec, resp := performChat(t, service, `{"message": "hola", "thread_id": "thread-7", "locale": "es", "channel": "web"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "thread-7", resp.ThreadID)
	assert.Equal(t, "thread-7", handler.lastRequest.SessionID)
	assert.Equal(t, "es", handler.lastRequest.Language)
}

func TestChatDegradedTurnStaysInBand(t *testing.T) {
	handler := &fakeTurnHandler{result: &orchestrator.TurnResult{
		State:     orchestrator.StateError,
		Text:      "The service is temporarily unavailable. Please try again shortly.",
		UserError: "The service is temporarily unavailable. Please try again shortly.",
	}}
	service := newChatService(handler)

	rec, resp := performChat(t, service, `{"message": "anything"}`)

	// Orchestration failures are not transport failures.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, resp.Error)
	assert.NotEmpty(t, resp.Reply)
}

func TestChatMalformedBodyIsBadRequest(t *testing.T) {
	service := newChatService(&fakeTurnHandler{result: &orchestrator.TurnResult{}})

	rec, _ := performChat(t, service, `{"message": `)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatUnavailableWithoutPipeline(t *testing.T) {
	service := newChatService(nil)

	rec, _ := performChat(t, service, `{"message": "hello"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
