// Package cohere provides a rerank service adapter using the Cohere API.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/northwind-labs/atlas/internal/core/ports/driven"
)

// Ensure RerankService implements the interface.
var _ driven.RerankService = (*RerankService)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.cohere.com/v1"
	DefaultModel   = "rerank-v3.5"
	DefaultTimeout = 10 * time.Second
)

// Config holds configuration for the Cohere rerank service.
type Config struct {
	// APIKey is the Cohere API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.cohere.com/v1).
	BaseURL string

	// Model is the rerank model to use (default: rerank-v3.5).
	Model string

	// Timeout is the request timeout (default: 10s). Callers typically
	// apply a tighter per-call deadline on top; rerank is fail-open.
	Timeout time.Duration
}

// RerankService re-scores candidate documents against a query.
type RerankService struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// rerankRequest is the Cohere /rerank request format.
type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

// rerankResponse is the Cohere /rerank response format.
type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
	Message string `json:"message,omitempty"`
}

// NewRerankService creates a new Cohere rerank service.
func NewRerankService(cfg Config) (*RerankService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cohere: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &RerankService{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

// Rerank scores documents against the query, ordered by descending
// relevance.
func (s *RerankService) Rerank(ctx context.Context, query string, documents []string) ([]driven.RerankHit, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	reqBody := rerankRequest{
		Model:     s.model,
		Query:     query,
		Documents: documents,
		TopN:      len(documents),
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.baseURL+"/rerank",
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
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rerankResp rerankResponse
	if err := json.Unmarshal(body, &rerankResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if rerankResp.Message != "" {
			return nil, fmt.Errorf("cohere error (status %d): %s", resp.StatusCode, rerankResp.Message)
		}
		return nil, fmt.Errorf("cohere error (status %d): %s", resp.StatusCode, string(body))
	}

	hits := make([]driven.RerankHit, len(rerankResp.Results))
	for i, r := range rerankResp.Results {
		hits[i] = driven.RerankHit{Index: r.Index, Score: r.RelevanceScore}
	}
	return hits, nil
}

// ModelName returns the name of the rerank model being used.
func (s *RerankService) ModelName() string {
	return s.model
}

// Close releases resources.
func (s *RerankService) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}
