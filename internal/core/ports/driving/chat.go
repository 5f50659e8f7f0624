package driving

import (
	"context"

	"github.com/northwind-labs/atlas/internal/core/domain"
)

// TurnResult is the outcome of one finalized chat turn.
type TurnResult struct {
	// ChatID is the session the turn belongs to (created when the caller
	// supplied none).
	ChatID string `json:"chat_id"`

	// MessageID is the persisted assistant message id.
	MessageID string `json:"message_id"`

	// Answer is the full assistant answer text.
	Answer string `json:"answer"`

	// ToolCalls records the tool invocations made during the turn.
	ToolCalls []domain.ToolCall `json:"tool_calls"`

	// Sources records the de-duplicated citations for the turn.
	Sources []domain.Source `json:"sources"`
}

// StreamSink receives the line-framed streaming protocol for one turn:
// any number of text fragments, then exactly one metadata frame, then
// exactly one terminal frame.
type StreamSink interface {
	// Fragment delivers one text fragment. The concatenation of all
	// fragments equals the persisted message content.
	Fragment(text string) error

	// Metadata delivers the single metadata frame once the turn finalizes.
	Metadata(result TurnResult) error

	// Done delivers the terminal frame with the finish reason.
	Done(finishReason string) error
}

// ChatService owns chat turns: session resolution, agent orchestration,
// persistence and streaming.
type ChatService interface {
	// Send runs one non-streaming turn. Returns domain.ErrChatBusy when
	// the chat already has an in-flight turn.
	Send(ctx context.Context, userID, chatID, message string) (*TurnResult, error)

	// Stream runs one streaming turn, emitting frames to sink. The
	// assistant message is persisted only when the turn reaches its
	// finalizing step; a cancelled stream persists nothing.
	Stream(ctx context.Context, userID, chatID, message string, sink StreamSink) error

	// ListChats returns the user's chats, most recently updated first.
	ListChats(ctx context.Context, userID string) ([]domain.ChatSummary, error)

	// GetMessages returns a chat's messages, oldest first. Returns
	// domain.ErrNotFound for an unknown chat id.
	GetMessages(ctx context.Context, userID, chatID string) ([]domain.Message, error)

	// GenerateTitle derives a short session title from the first exchange,
	// at most once per chat; repeated calls return the existing title.
	GenerateTitle(ctx context.Context, userID, chatID string) (string, error)
}
