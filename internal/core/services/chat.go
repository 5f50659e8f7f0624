package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/core/ports/driven"
	"github.com/northwind-labs/atlas/internal/core/ports/driving"
	"github.com/northwind-labs/atlas/internal/logger"
)

// Ensure ChatManager implements the interface.
var _ driving.ChatService = (*ChatManager)(nil)

// titlePrompt asks for a short session title from the first exchange.
const titlePrompt = `Write a short title (at most six words) for a conversation that starts with the messages below. Return only the title, no quotes.`

// placeholderTitleLimit bounds the fallback title derived from the first
// user message.
const placeholderTitleLimit = 80

// ChatManager owns chat turns: session resolution, transcript assembly,
// agent orchestration, persistence and streaming. Writes for a given chat
// are serialized; a second in-flight turn fails fast with ErrChatBusy.
type ChatManager struct {
	store driven.ChatStore
	agent *Agent
	llm   driven.LLMService

	mu     sync.Mutex
	active map[string]struct{}
}

// NewChatManager creates the chat session manager. The llm is used only
// for title generation; turns go through the agent.
func NewChatManager(store driven.ChatStore, agent *Agent, llm driven.LLMService) *ChatManager {
	return &ChatManager{
		store:  store,
		agent:  agent,
		llm:    llm,
		active: make(map[string]struct{}),
	}
}

// acquire marks the chat as having an in-flight turn.
func (m *ChatManager) acquire(chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[chatID]; busy {
		return domain.ErrChatBusy
	}
	m.active[chatID] = struct{}{}
	return nil
}

func (m *ChatManager) release(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, chatID)
}

// Send runs one non-streaming turn.
func (m *ChatManager) Send(ctx context.Context, userID, chatID, message string) (*driving.TurnResult, error) {
	return m.turn(ctx, userID, chatID, message, nil)
}

// Stream runs one streaming turn. Frames go to sink in protocol order:
// text fragments, one metadata frame, one terminal frame. Persistence
// happens only once the turn finalizes; a cancelled stream persists no
// assistant message.
func (m *ChatManager) Stream(ctx context.Context, userID, chatID, message string, sink driving.StreamSink) error {
	result, err := m.turn(ctx, userID, chatID, message, sink.Fragment)
	if err != nil {
		return err
	}
	if err := sink.Metadata(*result); err != nil {
		return err
	}
	return sink.Done("stop")
}

// turn is the shared implementation of Send and Stream.
func (m *ChatManager) turn(
	ctx context.Context, userID, chatID, message string, onFragment func(string) error,
) (*driving.TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrInvalidInput)
	}
	if chatID == "" {
		chatID = uuid.New().String()
	}

	if err := m.acquire(chatID); err != nil {
		return nil, err
	}
	defer m.release(chatID)

	started := time.Now()
	logger.Section("Chat Turn")
	logger.Debug("chat=%s user=%s", chatID, userID)

	chat, err := m.store.GetOrCreateChat(ctx, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve chat: %w", err)
	}

	userMsg := &domain.Message{
		ChatID:  chat.ID,
		Role:    domain.RoleUser,
		Content: message,
	}
	if err := m.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	// Transcript: prior messages oldest first, ending with the new user
	// message just appended.
	history, err := m.store.GetMessages(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	agentResult, err := m.agent.RunStream(ctx, history, onFragment)
	if err != nil {
		return nil, err
	}

	// All-or-nothing persistence of the assistant message.
	assistantMsg := &domain.Message{
		ChatID:    chat.ID,
		Role:      domain.RoleAssistant,
		Content:   agentResult.Answer,
		ToolCalls: agentResult.ToolCalls,
		Sources:   agentResult.Sources,
		Model:     agentResult.Model,
		LatencyMS: time.Since(started).Milliseconds(),
	}
	if err := m.store.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	logger.Info("Turn complete: chat=%s latency=%dms tools=%d sources=%d",
		chat.ID, assistantMsg.LatencyMS, len(assistantMsg.ToolCalls), len(assistantMsg.Sources))

	return &driving.TurnResult{
		ChatID:    chat.ID,
		MessageID: assistantMsg.ID,
		Answer:    agentResult.Answer,
		ToolCalls: agentResult.ToolCalls,
		Sources:   agentResult.Sources,
	}, nil
}

// ListChats returns the user's chats, most recently updated first.
func (m *ChatManager) ListChats(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	return m.store.ListChats(ctx, userID)
}

// GetMessages returns a chat's messages, oldest first.
func (m *ChatManager) GetMessages(ctx context.Context, userID, chatID string) ([]domain.Message, error) {
	if _, err := m.store.GetChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return m.store.GetMessages(ctx, chatID)
}

// GenerateTitle derives a short title from the first exchange, at most once
// per chat. Repeated calls return the stored title unchanged.
func (m *ChatManager) GenerateTitle(ctx context.Context, userID, chatID string) (string, error) {
	chat, err := m.store.GetChat(ctx, chatID, userID)
	if err != nil {
		return "", err
	}
	if chat.TitleGenerated {
		return chat.Title, nil
	}

	messages, err := m.store.GetMessages(ctx, chatID)
	if err != nil {
		return "", err
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: chat has no messages to derive a title from", domain.ErrInvalidInput)
	}

	title := m.modelTitle(ctx, messages)
	if title == "" {
		title = placeholderTitle(messages[0].Content)
	}

	if err := m.store.SetTitle(ctx, chatID, title, true); err != nil {
		return "", fmt.Errorf("store title: %w", err)
	}
	return title, nil
}

// modelTitle asks the completion model for a title using the first
// exchange. Failure degrades to the placeholder, never to an error.
func (m *ChatManager) modelTitle(ctx context.Context, messages []domain.Message) string {
	if m.llm == nil {
		return ""
	}

	// First user message plus first assistant answer, when present.
	transcript := []driven.ChatMessage{{Role: "system", Content: titlePrompt}}
	for _, msg := range messages {
		transcript = append(transcript, driven.ChatMessage{Role: msg.Role, Content: msg.Content})
		if len(transcript) == 3 {
			break
		}
	}

	resp, err := m.llm.ChatWithTools(ctx, transcript, nil)
	if err != nil {
		logger.Warn("Title generation failed, using placeholder: %v", err)
		return ""
	}
	return strings.Trim(strings.TrimSpace(resp.Content), `"`)
}

// placeholderTitle truncates the first user message for display.
func placeholderTitle(content string) string {
	content = strings.TrimSpace(content)
	if len(content) > placeholderTitleLimit {
		content = content[:placeholderTitleLimit] + "..."
	}
	return content
}
