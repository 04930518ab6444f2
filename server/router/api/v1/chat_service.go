package v1

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/civicsense/ai/orchestrator"
)

// ChatRequest is one citizen message. ThreadID groups turns into a
// session; a missing thread id starts a new one.
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Locale   string `json:"locale,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

// ChatResponse always carries the thread id so the client can continue
// the conversation. Error is set when orchestration degraded; the reply
// is still a usable citizen-facing message.
type ChatResponse struct {
	ThreadID string       `json:"thread_id"`
	Reply    string       `json:"reply"`
	Sources  []ChatSource `json:"sources,omitempty"`
	Intent   string       `json:"intent,omitempty"`
	Error    string       `json:"error,omitempty"`
}

type ChatSource struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Chat handles POST /api/v1/chat. Non-2xx status codes mean transport
// failures only; orchestration outcomes, including degraded ones,
// travel in the response body.
func (s *APIV1Service) Chat(c echo.Context) error {
	if s.orchestrator == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "assistant features are disabled")
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	result := s.orchestrator.HandleTurn(c.Request().Context(), &orchestrator.TurnRequest{
		SessionID: threadID,
		UserID:    req.UserID,
		Text:      req.Message,
		Language:  req.Locale,
	})
	slog.Debug("chat turn handled",
		"thread_id", threadID,
		"channel", req.Channel,
		"state", result.State,
		"correlation_id", result.CorrelationID,
	)

	resp := &ChatResponse{
		ThreadID: threadID,
		Reply:    result.Text,
		Intent:   string(result.Intent),
		Error:    result.UserError,
	}
	for _, src := range result.Sources {
		resp.Sources = append(resp.Sources, ChatSource{URL: src.URL, Title: src.Title})
	}
	return c.JSON(http.StatusOK, resp)
}
