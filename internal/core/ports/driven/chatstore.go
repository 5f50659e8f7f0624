package driven

import (
	"context"

	"github.com/northwind-labs/atlas/internal/core/domain"
)

// ChatStore persists chats and their append-only message logs.
type ChatStore interface {
	// GetChat retrieves a chat by id. Returns domain.ErrNotFound when the
	// chat does not exist or belongs to another user.
	GetChat(ctx context.Context, chatID, userID string) (*domain.Chat, error)

	// GetOrCreateChat retrieves the chat or creates it for the user when
	// it does not exist yet.
	GetOrCreateChat(ctx context.Context, chatID, userID string) (*domain.Chat, error)

	// AppendMessage appends one message to a chat's log and bumps the
	// chat's updated timestamp. The message id is assigned by the store
	// when empty. A placeholder title is derived from the first user
	// message of an untitled chat.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// GetMessages returns a chat's messages, oldest first.
	GetMessages(ctx context.Context, chatID string) ([]domain.Message, error)

	// ListChats returns the user's chats, most recently updated first.
	ListChats(ctx context.Context, userID string) ([]domain.ChatSummary, error)

	// SetTitle stores a title. When generated is true the chat is marked
	// so that no further generated title overwrites it.
	SetTitle(ctx context.Context, chatID, title string, generated bool) error

	// Close releases resources.
	Close() error
}
