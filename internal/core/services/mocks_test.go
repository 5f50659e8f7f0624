package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/core/ports/driven"
)

// --- Mock implementations shared across the service tests ---

// mockIndexStore implements driven.IndexStore for testing.
type mockIndexStore struct {
	vectorHits  []driven.SearchHit
	keywordHits []driven.SearchHit
	chunks      map[string]*domain.Chunk

	vectorErr  error
	keywordErr error

	replaced map[string][]domain.Chunk
}

func (m *mockIndexStore) ReplaceDocument(_ context.Context, documentName string, chunks []domain.Chunk) error {
	if m.replaced == nil {
		m.replaced = make(map[string][]domain.Chunk)
	}
	m.replaced[documentName] = chunks
	return nil
}

func (m *mockIndexStore) VectorSearch(_ context.Context, _ []float32, limit int, _ string) ([]driven.SearchHit, error) {
	if m.vectorErr != nil {
		return nil, m.vectorErr
	}
	if limit > len(m.vectorHits) {
		return m.vectorHits, nil
	}
	return m.vectorHits[:limit], nil
}

func (m *mockIndexStore) KeywordSearch(_ context.Context, _ string, limit int, _ string) ([]driven.SearchHit, error) {
	if m.keywordErr != nil {
		return nil, m.keywordErr
	}
	if limit > len(m.keywordHits) {
		return m.keywordHits, nil
	}
	return m.keywordHits[:limit], nil
}

func (m *mockIndexStore) GetChunk(_ context.Context, chunkID string) (*domain.Chunk, error) {
	chunk, ok := m.chunks[chunkID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return chunk, nil
}

func (m *mockIndexStore) Stats(_ context.Context) (*driven.IndexStats, error) {
	return &driven.IndexStats{TotalChunks: len(m.chunks)}, nil
}

func (m *mockIndexStore) Close() error {
	return nil
}

// mockEmbeddingService implements driven.EmbeddingService for testing.
type mockEmbeddingService struct {
	embedding []float32
	embedErr  error
}

func (m *mockEmbeddingService) Embed(_ context.Context, _ string) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.embedding != nil {
		return m.embedding, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{0.1, 0.2, 0.3}
	}
	return result, nil
}

func (m *mockEmbeddingService) Dimensions() int {
	return 3
}

func (m *mockEmbeddingService) ModelName() string {
	return "mock-embed"
}

func (m *mockEmbeddingService) Ping(_ context.Context) error {
	return nil
}

func (m *mockEmbeddingService) Close() error {
	return nil
}

// mockRerankService implements driven.RerankService for testing.
type mockRerankService struct {
	hits      []driven.RerankHit
	rerankErr error

	// waitForCtx makes Rerank block until the context deadline, simulating
	// a collaborator timeout.
	waitForCtx bool

	calls int
}

func (m *mockRerankService) Rerank(ctx context.Context, _ string, _ []string) ([]driven.RerankHit, error) {
	m.calls++
	if m.waitForCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.rerankErr != nil {
		return nil, m.rerankErr
	}
	return m.hits, nil
}

func (m *mockRerankService) ModelName() string {
	return "mock-rerank"
}

func (m *mockRerankService) Close() error {
	return nil
}

// scriptedResponse is one step of a mockLLMService script.
type scriptedResponse struct {
	resp *driven.ChatResponse
	err  error
}

// mockLLMService implements driven.LLMService, replaying a script of
// responses. Each call consumes one step; streaming calls deliver the
// content through onDelta in two fragments to exercise accumulation.
type mockLLMService struct {
	script []scriptedResponse
	calls  int

	// transcripts records the messages of every call for assertions.
	transcripts [][]driven.ChatMessage
	// declaredTools records the tool specs of every call.
	declaredTools [][]driven.ToolSpec
}

func (m *mockLLMService) next() (*driven.ChatResponse, error) {
	if m.calls >= len(m.script) {
		return nil, fmt.Errorf("mock llm: unexpected call %d", m.calls+1)
	}
	step := m.script[m.calls]
	m.calls++
	return step.resp, step.err
}

func (m *mockLLMService) ChatWithTools(_ context.Context, messages []driven.ChatMessage, tools []driven.ToolSpec) (*driven.ChatResponse, error) {
	m.transcripts = append(m.transcripts, messages)
	m.declaredTools = append(m.declaredTools, tools)
	return m.next()
}

func (m *mockLLMService) StreamChatWithTools(_ context.Context, messages []driven.ChatMessage, tools []driven.ToolSpec, onDelta func(string) error) (*driven.ChatResponse, error) {
	m.transcripts = append(m.transcripts, messages)
	m.declaredTools = append(m.declaredTools, tools)

	resp, err := m.next()
	if err != nil {
		return nil, err
	}
	if resp.Content != "" && onDelta != nil {
		half := len(resp.Content) / 2
		if err := onDelta(resp.Content[:half]); err != nil {
			return nil, err
		}
		if err := onDelta(resp.Content[half:]); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (m *mockLLMService) ModelName() string {
	return "mock-llm"
}

func (m *mockLLMService) Ping(_ context.Context) error {
	return nil
}

func (m *mockLLMService) Close() error {
	return nil
}

// mockRetrievalService implements driving.RetrievalService for agent tests.
type mockRetrievalService struct {
	results   []domain.RetrievalResult
	searchErr error
	queries   []string
	lastOpts  domain.RetrievalOptions
}

func (m *mockRetrievalService) Search(_ context.Context, query string, opts domain.RetrievalOptions) ([]domain.RetrievalResult, error) {
	m.queries = append(m.queries, query)
	m.lastOpts = opts
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.results, nil
}

// mockStructuredStore implements driven.StructuredStore for testing.
type mockStructuredStore struct {
	columns  []string
	rows     [][]string
	queryErr error

	queries []string

	kpis   []domain.KPIRecord
	people []domain.DirectoryRecord
}

func (m *mockStructuredStore) UpsertKPIs(_ context.Context, records []domain.KPIRecord) error {
	m.kpis = append(m.kpis, records...)
	return nil
}

func (m *mockStructuredStore) UpsertDirectory(_ context.Context, records []domain.DirectoryRecord) error {
	m.people = append(m.people, records...)
	return nil
}

func (m *mockStructuredStore) ReadOnlyQuery(_ context.Context, query string, maxRows int) ([]string, [][]string, error) {
	m.queries = append(m.queries, query)
	if m.queryErr != nil {
		return nil, nil, m.queryErr
	}
	rows := m.rows
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	return m.columns, rows, nil
}

func (m *mockStructuredStore) Close() error {
	return nil
}

// mockChatStore implements driven.ChatStore in memory for testing.
type mockChatStore struct {
	mu       sync.Mutex
	chats    map[string]*domain.Chat
	messages map[string][]domain.Message

	appendErr error
}

func newMockChatStore() *mockChatStore {
	return &mockChatStore{
		chats:    make(map[string]*domain.Chat),
		messages: make(map[string][]domain.Message),
	}
}

func (m *mockChatStore) GetChat(_ context.Context, chatID, userID string) (*domain.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok || chat.UserID != userID {
		return nil, domain.ErrNotFound
	}
	copied := *chat
	return &copied, nil
}

func (m *mockChatStore) GetOrCreateChat(_ context.Context, chatID, userID string) (*domain.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if chat, ok := m.chats[chatID]; ok && chat.UserID == userID {
		copied := *chat
		return &copied, nil
	}
	chat := &domain.Chat{ID: chatID, UserID: userID}
	m.chats[chatID] = chat
	copied := *chat
	return &copied, nil
}

func (m *mockChatStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("msg-%d", len(m.messages[msg.ChatID])+1)
	}
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], *msg)
	return nil
}

func (m *mockChatStore) GetMessages(_ context.Context, chatID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message(nil), m.messages[chatID]...), nil
}

func (m *mockChatStore) ListChats(_ context.Context, userID string) ([]domain.ChatSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var summaries []domain.ChatSummary
	for _, chat := range m.chats {
		if chat.UserID == userID {
			summaries = append(summaries, domain.ChatSummary{
				ID:           chat.ID,
				Title:        chat.Title,
				MessageCount: len(m.messages[chat.ID]),
			})
		}
	}
	return summaries, nil
}

func (m *mockChatStore) SetTitle(_ context.Context, chatID, title string, generated bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return domain.ErrNotFound
	}
	chat.Title = title
	chat.TitleGenerated = generated
	return nil
}

func (m *mockChatStore) Close() error {
	return nil
}
