package driven

import "context"

// ChatMessage is one entry of the transcript handed to the completion model.
type ChatMessage struct {
	// Role is "system", "user", "assistant" or "tool".
	Role string

	// Content is the message text. Empty for assistant messages that only
	// carry tool invocations.
	Content string

	// ToolCalls carries the invocations an assistant message requested.
	ToolCalls []ToolInvocation

	// ToolCallID links a tool-role message back to the invocation it answers.
	ToolCallID string
}

// ToolInvocation is a model-requested call to a declared tool.
// It is a typed value, never parsed out of answer text.
type ToolInvocation struct {
	// ID is the provider-assigned invocation id.
	ID string

	// Name is the declared tool name.
	Name string

	// Arguments is the raw JSON argument object.
	Arguments string
}

// ToolSpec declares a callable tool to the completion model.
type ToolSpec struct {
	// Name is the tool name the model uses to invoke it.
	Name string

	// Description tells the model when to use the tool.
	Description string

	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
}

// ChatResponse is one completion from the model: either a final answer
// (Content set, no ToolCalls) or a tool request (ToolCalls set).
type ChatResponse struct {
	// Content is the answer text.
	Content string

	// ToolCalls is the list of requested tool invocations.
	ToolCalls []ToolInvocation

	// FinishReason is the provider finish reason ("stop", "tool_calls", ...).
	FinishReason string
}

// LLMService is the completion collaborator. It is essential: errors
// propagate and fail the turn, except content-filter rejections which are
// surfaced as domain.ErrContentFiltered for the agent to convert into a
// fixed refusal.
type LLMService interface {
	// ChatWithTools runs one completion over the transcript with the given
	// tools declared. A nil or empty tools slice forces a plain answer.
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (*ChatResponse, error)

	// StreamChatWithTools runs one completion like ChatWithTools but
	// invokes onDelta for every text fragment as it arrives. The returned
	// Content equals the concatenation of all delivered fragments.
	StreamChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolSpec, onDelta func(fragment string) error) (*ChatResponse, error)

	// ModelName returns the name of the completion model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
