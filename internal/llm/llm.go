// Package llm wraps an OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brahma2024/agentic-ledger/internal/retry"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Completer produces a completion for a system+user prompt pair.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is a single chat completion call.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSONObject  bool
}

// Config configures the completions client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is an HTTP chat completions client with retry.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	policy  retry.Policy
}

// NewClient creates a completions client. The API key is required.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		policy:  retry.Default(),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	status int
	body   string
	cause  error
}

func (e *apiError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("completions request: %v", e.cause)
	}
	return fmt.Sprintf("completions request: status %d: %s", e.status, e.body)
}

func (e *apiError) Unwrap() error { return e.cause }

func (e *apiError) Transient() bool {
	return e.status == 0 || e.status == http.StatusTooManyRequests || e.status >= 500
}

// Complete runs one chat completion and returns the assistant text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	var content string
	err := c.policy.Do(ctx, func() error {
		out, err := c.completeOnce(ctx, req)
		if err != nil {
			return err
		}
		content = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) completeOnce(ctx context.Context, req Request) (string, error) {
	cr := chatRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}
	if req.System == "" {
		cr.Messages = cr.Messages[1:]
	}
	if req.JSONObject {
		cr.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(cr)
	if err != nil {
		return "", fmt.Errorf("encoding completions request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", &apiError{cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &apiError{status: resp.StatusCode, body: string(b)}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding completions response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("empty completions response")
	}
	return out.Choices[0].Message.Content, nil
}
