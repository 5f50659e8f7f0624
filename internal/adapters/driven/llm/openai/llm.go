// Package openai provides a completion service adapter using the OpenAI
// chat completions API, with tool calling and SSE streaming.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/core/ports/driven"
)

// Ensure LLMService implements the interface.
var _ driven.LLMService = (*LLMService)(nil)

// Default configuration values.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultLLMModel   = "gpt-4o-mini"
	DefaultLLMTimeout = 120 * time.Second
)

// LLMConfig holds configuration for the OpenAI LLM service.
type LLMConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the LLM model to use (default: gpt-4o-mini).
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// LLMService provides completions using OpenAI API.
type LLMService struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// chatCompletionRequest is the OpenAI /chat/completions request format.
type chatCompletionRequest struct {
	Model    string              `json:"model"`
	Messages []chatCompletionMsg `json:"messages"`
	Tools    []toolDef           `json:"tools,omitempty"`
	Stream   bool                `json:"stream,omitempty"`
}

// chatCompletionMsg is the OpenAI chat message format.
type chatCompletionMsg struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// toolDef declares a function tool.
type toolDef struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// toolCall is one model-requested invocation.
type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// apiError is the OpenAI/Azure error envelope. Azure content filtering
// reports the triggering category under innererror.
type apiError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	InnerError *struct {
		Code                string `json:"code"`
		ContentFilterResult map[string]struct {
			Filtered bool `json:"filtered"`
			Detected bool `json:"detected"`
		} `json:"content_filter_result"`
	} `json:"innererror,omitempty"`
}

// chatCompletionResponse is the OpenAI /chat/completions response format.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// streamChunk is one SSE data event of a streaming completion.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// NewLLMService creates a new OpenAI LLM service.
func NewLLMService(cfg LLMConfig) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultLLMTimeout
	}

	return &LLMService{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

// ChatWithTools runs one completion over the transcript.
func (s *LLMService) ChatWithTools(
	ctx context.Context, messages []driven.ChatMessage, tools []driven.ToolSpec,
) (*driven.ChatResponse, error) {
	body, err := s.send(ctx, buildRequest(s.model, messages, tools, false))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(raw, &chatResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if chatResp.Error != nil {
		return nil, classifyError(chatResp.Error)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no response choices returned")
	}

	choice := chatResp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, fmt.Errorf("openai: %w", domain.ErrContentFiltered)
	}

	return &driven.ChatResponse{
		Content:      choice.Message.Content,
		ToolCalls:    convertToolCalls(choice.Message.ToolCalls),
		FinishReason: choice.FinishReason,
	}, nil
}

// StreamChatWithTools runs one streaming completion, delivering content
// fragments to onDelta as they arrive. Tool-call deltas are accumulated and
// returned whole.
func (s *LLMService) StreamChatWithTools(
	ctx context.Context,
	messages []driven.ChatMessage,
	tools []driven.ToolSpec,
	onDelta func(string) error,
) (*driven.ChatResponse, error) {
	body, err := s.send(ctx, buildRequest(s.model, messages, tools, true))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var content strings.Builder
	var finishReason string
	calls := make(map[int]*toolCall)
	maxIndex := -1

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return nil, classifyError(chunk.Error)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}

		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if onDelta != nil {
				if err := onDelta(choice.Delta.Content); err != nil {
					return nil, err
				}
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			call, ok := calls[tc.Index]
			if !ok {
				call = &toolCall{Type: "function"}
				calls[tc.Index] = call
				if tc.Index > maxIndex {
					maxIndex = tc.Index
				}
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Function.Name = tc.Function.Name
			}
			call.Function.Arguments += tc.Function.Arguments
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	if finishReason == "content_filter" {
		return nil, fmt.Errorf("openai: %w", domain.ErrContentFiltered)
	}

	ordered := make([]toolCall, 0, len(calls))
	for i := 0; i <= maxIndex; i++ {
		if call, ok := calls[i]; ok {
			ordered = append(ordered, *call)
		}
	}

	return &driven.ChatResponse{
		Content:      content.String(),
		ToolCalls:    convertToolCalls(ordered),
		FinishReason: finishReason,
	}, nil
}

// send posts the request and returns the response body, classifying
// HTTP-level errors first.
func (s *LLMService) send(ctx context.Context, reqBody chatCompletionRequest) (io.ReadCloser, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.baseURL+"/chat/completions",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("openai error (status %d): failed to read body: %w", resp.StatusCode, readErr)
		}

		var envelope struct {
			Error *apiError `json:"error"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
			return nil, classifyError(envelope.Error)
		}
		return nil, fmt.Errorf("openai error (status %d): %s", resp.StatusCode, string(body))
	}

	return resp.Body, nil
}

// classifyError maps provider errors to domain errors. A jailbreak content
// filter becomes domain.ErrContentFiltered; everything else is a plain
// upstream failure.
func classifyError(apiErr *apiError) error {
	if apiErr.InnerError != nil {
		for category, result := range apiErr.InnerError.ContentFilterResult {
			if category == "jailbreak" && (result.Filtered || result.Detected) {
				return fmt.Errorf("openai: %s: %w", apiErr.Message, domain.ErrContentFiltered)
			}
		}
	}
	if apiErr.Code == "content_filter" {
		return fmt.Errorf("openai: %s: %w", apiErr.Message, domain.ErrContentFiltered)
	}
	return fmt.Errorf("openai error: %s", apiErr.Message)
}

func buildRequest(
	model string, messages []driven.ChatMessage, tools []driven.ToolSpec, stream bool,
) chatCompletionRequest {
	chatMessages := make([]chatCompletionMsg, len(messages))
	for i, msg := range messages {
		chatMessages[i] = chatCompletionMsg{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, inv := range msg.ToolCalls {
			tc := toolCall{ID: inv.ID, Type: "function"}
			tc.Function.Name = inv.Name
			tc.Function.Arguments = inv.Arguments
			chatMessages[i].ToolCalls = append(chatMessages[i].ToolCalls, tc)
		}
	}

	req := chatCompletionRequest{
		Model:    model,
		Messages: chatMessages,
		Stream:   stream,
	}
	for _, spec := range tools {
		req.Tools = append(req.Tools, toolDef{
			Type: "function",
			Function: toolFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	return req
}

func convertToolCalls(calls []toolCall) []driven.ToolInvocation {
	if len(calls) == 0 {
		return nil
	}
	out := make([]driven.ToolInvocation, len(calls))
	for i, tc := range calls {
		out[i] = driven.ToolInvocation{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}
	}
	return out
}

// ModelName returns the name of the completion model being used.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping validates the service is reachable by checking the /models endpoint.
// This is a lightweight check that validates the API key without running inference.
func (s *LLMService) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("openai: failed to create ping request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("openai: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("openai: API returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("openai: API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close releases resources.
func (s *LLMService) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}
