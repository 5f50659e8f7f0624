package sqlite

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northwind-labs/atlas/internal/core/domain"
)

func newTestChatStore(t *testing.T) *ChatStore {
	t.Helper()
	store, err := NewChatStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestChatStore_GetOrCreateChat(t *testing.T) {
	store := newTestChatStore(t)
	ctx := context.Background()

	created, err := store.GetOrCreateChat(ctx, "chat-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "chat-1", created.ID)
	assert.Equal(t, "user-1", created.UserID)
	assert.False(t, created.TitleGenerated)

	// Second call resolves the existing chat.
	again, err := store.GetOrCreateChat(ctx, "chat-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
}

func TestChatStore_GetChat_ScopedToOwner(t *testing.T) {
	store := newTestChatStore(t)
	ctx := context.Background()

	_, err := store.GetOrCreateChat(ctx, "chat-1", "user-1")
	require.NoError(t, err)

	_, err = store.GetChat(ctx, "chat-1", "user-2")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChatStore_GetOrCreateChat_ForeignChatID(t *testing.T) {
	store := newTestChatStore(t)
	ctx := context.Background()

	_, err := store.GetOrCreateChat(ctx, "chat-1", "user-1")
	require.NoError(t, err)

	// Claiming another user's chat id neither resolves nor recreates it.
	_, err = store.GetOrCreateChat(ctx, "chat-1", "user-2")
	require.ErrorIs(t, err, domain.ErrNotFound)

	chat, err := store.GetChat(ctx, "chat-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", chat.UserID)
}

func TestChatStore_AppendMessage_RoundTrip(t *testing.T) {
	store := newTestChatStore(t)
	ctx := context.Background()
	_, err := store.GetOrCreateChat(ctx, "chat-1", "user-1")
	require.NoError(t, err)

	userMsg := &domain.Message{ChatID: "chat-1", Role: domain.RoleUser, Content: "when is payday?"}
	require.NoError(t, store.AppendMessage(ctx, userMsg))
	assert.NotEmpty(t, userMsg.ID, "append assigns an id")

	assistantMsg := &domain.Message{
		ChatID:  "chat-1",
		Role:    domain.RoleAssistant,
		Content: "Payday is the 25th.",
		ToolCalls: []domain.ToolCall{
			{Tool: "search_knowledge_base", Arguments: `{"query":"payday"}`, Result: "[Result 1] faq/payroll.md"},
		},
		Sources: []domain.Source{
			{Document: "faq/payroll.md", Section: "Payday", Date: "2025-01-15"},
		},
		Model:     "gpt-4o-mini",
		LatencyMS: 1200,
	}
	require.NoError(t, store.AppendMessage(ctx, assistantMsg))

	messages, err := store.GetMessages(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Empty(t, messages[0].ToolCalls)

	got := messages[1]
	assert.Equal(t, "Payday is the 25th.", got.Content)
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, "search_knowledge_base", got.ToolCalls[0].Tool)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "faq/payroll.md", got.Sources[0].Document)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.EqualValues(t, 1200, got.LatencyMS)
}

func TestChatStore_AppendMessage_PlaceholderTitle(t *testing.T) {
	store := newTestChatStore(t)
	ctx := context.Background()
	_, err := store.GetOrCreateChat(ctx, "chat-1", "user-1")
	require.NoError(t, err)

	long := strings.Repeat("where is the parking policy ", 5)
	require.NoError(t, store.AppendMessage(ctx, &domain.Message{
		ChatID: "chat-1", Role: domain.RoleUser, Content: long,
	}))

	chat, err := store.GetChat(ctx, "chat-1", "user-1")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(chat.Title, "..."))
	assert.LessOrEqual(t, len(chat.Title), placeholderTitleLimit+len("..."))

	// A later user message never overwrites the existing title.
	require.NoError(t, store.AppendMessage(ctx, &domain.Message{
		ChatID: "chat-1", Role: domain.RoleUser, Content: "second question",
	}))
	chat, err = store.GetChat(ctx, "chat-1", "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, "second question", chat.Title)
}

func TestChatStore_SetTitle(t *testing.T) {
	store := newTestChatStore(t)
	ctx := context.Background()
	_, err := store.GetOrCreateChat(ctx, "chat-1", "user-1")
	require.NoError(t, err)

	require.NoError(t, store.SetTitle(ctx, "chat-1", "Parking Policy", true))

	chat, err := store.GetChat(ctx, "chat-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Parking Policy", chat.Title)
	assert.True(t, chat.TitleGenerated)
}

func TestChatStore_SetTitle_UnknownChat(t *testing.T) {
	store := newTestChatStore(t)

	err := store.SetTitle(context.Background(), "no-such-chat", "Title", true)

	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChatStore_ListChats(t *testing.T) {
	store := newTestChatStore(t)
	ctx := context.Background()

	for _, chatID := range []string{"chat-a", "chat-b"} {
		_, err := store.GetOrCreateChat(ctx, chatID, "user-1")
		require.NoError(t, err)
	}
	_, err := store.GetOrCreateChat(ctx, "chat-other", "user-2")
	require.NoError(t, err)

	// Touch chat-a last so it lists first, with distinct timestamps.
	base := time.Now().UTC()
	require.NoError(t, store.AppendMessage(ctx, &domain.Message{
		ChatID: "chat-b", Role: domain.RoleUser, Content: "older", CreatedAt: base,
	}))
	require.NoError(t, store.AppendMessage(ctx, &domain.Message{
		ChatID: "chat-a", Role: domain.RoleUser, Content: "newer", CreatedAt: base.Add(time.Second),
	}))
	require.NoError(t, store.AppendMessage(ctx, &domain.Message{
		ChatID: "chat-a", Role: domain.RoleAssistant, Content: "answer", CreatedAt: base.Add(2 * time.Second),
	}))

	chats, err := store.ListChats(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "chat-a", chats[0].ID)
	assert.Equal(t, 2, chats[0].MessageCount)
	assert.Equal(t, "chat-b", chats[1].ID)
	assert.Equal(t, 1, chats[1].MessageCount)
	assert.Equal(t, "newer", chats[0].Title)
}

func TestChatStore_GetMessages_EmptyChat(t *testing.T) {
	store := newTestChatStore(t)

	messages, err := store.GetMessages(context.Background(), "chat-1")

	require.NoError(t, err)
	assert.Empty(t, messages)
}
