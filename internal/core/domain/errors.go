package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrChatBusy indicates a chat already has an in-flight turn.
	// Writes for a given chat are serialized; the later caller fails fast.
	ErrChatBusy = errors.New("chat has a turn in progress")

	// ErrUpstream indicates an external collaborator (embedding, completion,
	// rerank) failed. Essential-path occurrences fail the operation.
	ErrUpstream = errors.New("upstream service error")

	// ErrContentFiltered indicates the completion provider rejected the
	// request as a jailbreak or secret-extraction attempt. The agent converts
	// this into a fixed refusal answer rather than treating it as a failure.
	ErrContentFiltered = errors.New("content filtered")

	// ErrQueryRejected indicates a structured query failed read-only
	// validation. Reported as tool result text, never as a turn failure.
	ErrQueryRejected = errors.New("query rejected")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Vector/semantic search is disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLLMUnavailable indicates the completion service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")
)
