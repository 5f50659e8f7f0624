package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/core/ports/driven"
)

// Ensure ChatStore implements the interface.
var _ driven.ChatStore = (*ChatStore)(nil)

// placeholderTitleLimit bounds the title derived from the first message.
const placeholderTitleLimit = 80

// ChatStore persists chats and their append-only message logs.
type ChatStore struct {
	db   *sql.DB
	path string
}

// NewChatStore opens (creating if needed) the chat database under dataDir.
func NewChatStore(dataDir string) (*ChatStore, error) {
	db, path, err := openDB(dataDir, "chat.db", "chat")
	if err != nil {
		return nil, err
	}
	return &ChatStore{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *ChatStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *ChatStore) Path() string {
	return s.path
}

// GetChat retrieves a chat by id, scoped to its owner.
func (s *ChatStore) GetChat(ctx context.Context, chatID, userID string) (*domain.Chat, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, title_generated, created_at, updated_at
		FROM chats WHERE id = ? AND user_id = ?
	`, chatID, userID)
	return scanChat(row)
}

// GetOrCreateChat retrieves the chat or creates it for the user.
func (s *ChatStore) GetOrCreateChat(ctx context.Context, chatID, userID string) (*domain.Chat, error) {
	chat, err := s.GetChat(ctx, chatID, userID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chats (id, user_id, title, title_generated, created_at, updated_at)
		VALUES (?, ?, NULL, 0, ?, ?)
	`, chatID, userID, now, now)
	if err != nil {
		// The id already exists under another user. The scoped lookup above
		// missed it, so to this caller the chat does not exist.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("creating chat: %w", err)
	}

	return &domain.Chat{ID: chatID, UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
}

// AppendMessage appends one message and bumps the chat's updated timestamp.
// The first user message of an untitled chat also sets a placeholder title.
func (s *ChatStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	toolCallsJSON, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshalling tool calls: %w", err)
	}
	sourcesJSON, err := json.Marshal(msg.Sources)
	if err != nil {
		return fmt.Errorf("marshalling sources: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, role, content, tool_calls, sources, model, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ChatID, msg.Role, msg.Content, string(toolCallsJSON), string(sourcesJSON),
		msg.Model, msg.LatencyMS, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chats SET updated_at = ? WHERE id = ?`, msg.CreatedAt, msg.ChatID); err != nil {
		return fmt.Errorf("touching chat: %w", err)
	}

	if msg.Role == domain.RoleUser {
		// Placeholder title so listings are never blank before a generated
		// title exists.
		if _, err := tx.ExecContext(ctx, `
			UPDATE chats SET title = ? WHERE id = ? AND title IS NULL
		`, placeholderTitle(msg.Content), msg.ChatID); err != nil {
			return fmt.Errorf("setting placeholder title: %w", err)
		}
	}

	return tx.Commit()
}

// GetMessages returns a chat's messages, oldest first.
func (s *ChatStore) GetMessages(ctx context.Context, chatID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, role, content, tool_calls, sources, model, latency_ms, created_at
		FROM messages WHERE chat_id = ? ORDER BY created_at, id
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var toolCallsJSON, sourcesJSON, model sql.NullString
		var createdAt sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content,
			&toolCallsJSON, &sourcesJSON, &model, &msg.LatencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}

		msg.Model = model.String
		if createdAt.Valid {
			msg.CreatedAt = createdAt.Time
		}
		if toolCallsJSON.Valid && toolCallsJSON.String != "" && toolCallsJSON.String != "null" {
			if err := json.Unmarshal([]byte(toolCallsJSON.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshaling tool calls: %w", err)
			}
		}
		if sourcesJSON.Valid && sourcesJSON.String != "" && sourcesJSON.String != "null" {
			if err := json.Unmarshal([]byte(sourcesJSON.String), &msg.Sources); err != nil {
				return nil, fmt.Errorf("unmarshaling sources: %w", err)
			}
		}

		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ListChats returns the user's chats, most recently updated first.
func (s *ChatStore) ListChats(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, COALESCE(c.title, ''),
			(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id),
			c.created_at, c.updated_at
		FROM chats c WHERE c.user_id = ? ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer rows.Close()

	var chats []domain.ChatSummary
	for rows.Next() {
		var c domain.ChatSummary
		var createdAt, updatedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.Title, &c.MessageCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		if createdAt.Valid {
			c.CreatedAt = createdAt.Time
		}
		if updatedAt.Valid {
			c.UpdatedAt = updatedAt.Time
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// SetTitle stores a title, marking it generated when requested.
func (s *ChatStore) SetTitle(ctx context.Context, chatID, title string, generated bool) error {
	flag := 0
	if generated {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET title = ?, title_generated = ? WHERE id = ?`, title, flag, chatID)
	if err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking title update: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanChat reads one chat row.
func scanChat(row *sql.Row) (*domain.Chat, error) {
	var chat domain.Chat
	var title sql.NullString
	var generated int
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(&chat.ID, &chat.UserID, &title, &generated, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chat: %w", err)
	}

	chat.Title = title.String
	chat.TitleGenerated = generated != 0
	if createdAt.Valid {
		chat.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		chat.UpdatedAt = updatedAt.Time
	}
	return &chat, nil
}

// placeholderTitle truncates the first user message for display.
func placeholderTitle(content string) string {
	content = strings.TrimSpace(content)
	if len(content) > placeholderTitleLimit {
		content = content[:placeholderTitleLimit] + "..."
	}
	return content
}
