package domain

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chat is a conversation session owned by a single user.
// It is created on the first message when the caller supplies no id.
type Chat struct {
	// ID is the unique identifier for the chat.
	ID string

	// UserID is the owning user.
	UserID string

	// Title is a short display title. A placeholder is derived from the
	// first user message; a generated title replaces it at most once.
	Title string

	// TitleGenerated is true once a model-derived title has been stored.
	// Further title requests return the existing title unchanged.
	TitleGenerated bool

	// CreatedAt is when the chat was created.
	CreatedAt time.Time

	// UpdatedAt is when the chat last received a message.
	UpdatedAt time.Time
}

// Message is one entry in a chat's append-only log. Messages are never
// mutated after creation; the in-flight assistant message is finalized
// exactly once when the agent loop terminates.
type Message struct {
	// ID is the unique identifier for the message.
	ID string

	// ChatID links to the parent Chat.
	ChatID string

	// Role is either RoleUser or RoleAssistant.
	Role string

	// Content is the message text.
	Content string

	// ToolCalls records the tool invocations made while producing an
	// assistant message. Empty for user messages.
	ToolCalls []ToolCall

	// Sources records the chunks cited by an assistant message.
	Sources []Source

	// Model is the completion model that produced an assistant message.
	Model string

	// LatencyMS is the wall-clock duration of the turn in milliseconds.
	LatencyMS int64

	// CreatedAt is when the message was persisted.
	CreatedAt time.Time
}

// Tool names declared to the completion model.
const (
	ToolSearchKnowledgeBase  = "search_knowledge_base"
	ToolLookupStructuredData = "lookup_structured_data"
)

// ToolCall records a single tool invocation inside a Message.
// It is embedded in the message, not a standalone entity.
type ToolCall struct {
	// Tool is the tool name (ToolSearchKnowledgeBase or
	// ToolLookupStructuredData).
	Tool string `json:"tool"`

	// Arguments is the raw JSON argument object the model supplied.
	Arguments string `json:"arguments"`

	// Result is the tool result text handed back to the model,
	// truncated for storage.
	Result string `json:"result"`
}

// Source is a citation derived from the chunks a retrieval tool call
// returned, embedded in an assistant Message.
type Source struct {
	// Document is the source document name.
	Document string `json:"document"`

	// Section is the section header of the cited chunk.
	Section string `json:"section"`

	// Date is the document's last-updated date, empty when unknown.
	Date string `json:"date,omitempty"`
}

// ChatSummary is the listing projection of a Chat.
type ChatSummary struct {
	ID           string
	Title        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
