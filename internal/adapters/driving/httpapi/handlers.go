package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/core/ports/driving"
	"github.com/northwind-labs/atlas/internal/logger"
)

// chatRequest is the body of POST /api/chat and /api/chat/stream.
type chatRequest struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message" binding:"required"`
}

// chatResponse mirrors driving.TurnResult with guaranteed non-null lists.
type chatResponse struct {
	ChatID    string            `json:"chat_id"`
	MessageID string            `json:"message_id"`
	Answer    string            `json:"answer"`
	ToolCalls []domain.ToolCall `json:"tool_calls"`
	Sources   []domain.Source   `json:"sources"`
}

// chatSummaryResponse is one entry of GET /api/chats.
type chatSummaryResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// messageResponse is one entry of GET /api/chats/:id/messages.
type messageResponse struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	ToolCalls []domain.ToolCall `json:"tool_calls"`
	Sources   []domain.Source   `json:"sources"`
	Model     string            `json:"model,omitempty"`
	LatencyMS int64             `json:"latency_ms,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// titleResponse is the body of POST /api/chats/:id/title.
type titleResponse struct {
	ChatID string `json:"chat_id"`
	Title  string `json:"title"`
}

func toChatResponse(result driving.TurnResult) chatResponse {
	resp := chatResponse{
		ChatID:    result.ChatID,
		MessageID: result.MessageID,
		Answer:    result.Answer,
		ToolCalls: result.ToolCalls,
		Sources:   result.Sources,
	}
	if resp.ToolCalls == nil {
		resp.ToolCalls = []domain.ToolCall{}
	}
	if resp.Sources == nil {
		resp.Sources = []domain.Source{}
	}
	return resp
}

// writeError maps domain errors to HTTP statuses with generic bodies.
// Upstream failure detail never reaches the client verbatim.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrChatBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "chat has a turn in progress"})
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request"})
	case errors.Is(err, domain.ErrUpstream), errors.Is(err, domain.ErrLLMUnavailable):
		logger.Error("Upstream failure: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream service failure"})
	default:
		logger.Error("Turn failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// handleHealth is a liveness and readiness check.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleChat runs one non-streaming chat turn.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request"})
		return
	}
	user := currentUser(c)
	logger.Info("POST /chat user=%s chat=%s", user.ID, req.ChatID)

	result, err := s.chat.Send(c.Request.Context(), user.ID, req.ChatID, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toChatResponse(*result))
}

// streamMetadata is the single metadata frame of the streaming protocol.
// It carries the non-streaming response fields minus the answer text,
// which the client has already assembled from the fragments.
type streamMetadata struct {
	ChatID    string            `json:"chat_id"`
	MessageID string            `json:"message_id"`
	ToolCalls []domain.ToolCall `json:"tool_calls"`
	Sources   []domain.Source   `json:"sources"`
}

// lineSink writes the line-framed streaming protocol: "0:<json string>"
// per text fragment, one "2:[<metadata>]" frame, one "d:{finishReason}"
// terminal frame. Every line is flushed so fragments reach the client as
// they are produced.
type lineSink struct {
	w gin.ResponseWriter
}

var _ driving.StreamSink = (*lineSink)(nil)

func (s *lineSink) writeLine(prefix string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling stream frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "%s:%s\n", prefix, data); err != nil {
		return fmt.Errorf("writing stream frame: %w", err)
	}
	s.w.Flush()
	return nil
}

func (s *lineSink) Fragment(text string) error {
	return s.writeLine("0", text)
}

func (s *lineSink) Metadata(result driving.TurnResult) error {
	resp := toChatResponse(result)
	return s.writeLine("2", []streamMetadata{{
		ChatID:    resp.ChatID,
		MessageID: resp.MessageID,
		ToolCalls: resp.ToolCalls,
		Sources:   resp.Sources,
	}})
}

func (s *lineSink) Done(finishReason string) error {
	return s.writeLine("d", gin.H{"finishReason": finishReason})
}

// handleChatStream runs one streaming chat turn. A client disconnect
// cancels the turn through the request context; nothing is persisted for
// a cancelled turn.
func (s *Server) handleChatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request"})
		return
	}
	user := currentUser(c)
	logger.Info("POST /chat/stream user=%s chat=%s", user.ID, req.ChatID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	sink := &lineSink{w: c.Writer}
	if err := s.chat.Stream(c.Request.Context(), user.ID, req.ChatID, req.Message, sink); err != nil {
		// Headers are already out once streaming starts; the best we can
		// do is stop the stream and log.
		if c.Writer.Written() {
			logger.Error("Stream aborted: %v", err)
			return
		}
		writeError(c, err)
	}
}

// handleListChats lists the user's chats, newest first.
func (s *Server) handleListChats(c *gin.Context) {
	user := currentUser(c)

	summaries, err := s.chat.ListChats(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]chatSummaryResponse, len(summaries))
	for i, sum := range summaries {
		resp[i] = chatSummaryResponse{
			ID:           sum.ID,
			Title:        sum.Title,
			MessageCount: sum.MessageCount,
			CreatedAt:    sum.CreatedAt,
			UpdatedAt:    sum.UpdatedAt,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetMessages returns a chat's messages, oldest first.
func (s *Server) handleGetMessages(c *gin.Context) {
	user := currentUser(c)
	chatID := c.Param("id")

	messages, err := s.chat.GetMessages(c.Request.Context(), user.ID, chatID)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]messageResponse, len(messages))
	for i, msg := range messages {
		resp[i] = messageResponse{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
			Sources:   msg.Sources,
			Model:     msg.Model,
			LatencyMS: msg.LatencyMS,
			CreatedAt: msg.CreatedAt,
		}
		if resp[i].ToolCalls == nil {
			resp[i].ToolCalls = []domain.ToolCall{}
		}
		if resp[i].Sources == nil {
			resp[i].Sources = []domain.Source{}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleGenerateTitle generates (or returns the existing) chat title.
func (s *Server) handleGenerateTitle(c *gin.Context) {
	user := currentUser(c)
	chatID := c.Param("id")

	title, err := s.chat.GenerateTitle(c.Request.Context(), user.ID, chatID)
	if err != nil {
		writeError(c, err)
		return
	}

	logger.Info("POST /chats/%s/title user=%s title=%q", chatID, user.ID, title)
	c.JSON(http.StatusOK, titleResponse{ChatID: chatID, Title: title})
}
