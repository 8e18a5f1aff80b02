// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultAnthropicModel is the default Claude model.
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
	// DefaultAnthropicEndpoint is the default Anthropic API endpoint.
	DefaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	// DefaultMaxTokens is the default maximum tokens per request.
	DefaultMaxTokens = 4096
	// DefaultHTTPTimeout is the default HTTP timeout.
	DefaultHTTPTimeout = 60 * time.Second

	anthropicVersion = "2023-06-01"
)

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey    string
	Model     string // Default: claude-sonnet-4-5-20250929
	Endpoint  string // Default: https://api.anthropic.com/v1/messages
	Timeout   time.Duration
	MaxTokens int
}

// AnthropicClient implements Provider against the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	model      string
	endpoint   string
	maxTokens  int
	httpClient *http.Client
}

// NewAnthropicClient creates a client for the Anthropic Messages API.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Model == "" {
		if envModel := os.Getenv("ANTHROPIC_DEFAULT_MODEL"); envModel != "" {
			cfg.Model = envModel
		} else {
			cfg.Model = DefaultAnthropicModel
		}
	}
	if cfg.Endpoint == "" {
		if envEndpoint := os.Getenv("ANTHROPIC_API_ENDPOINT"); envEndpoint != "" {
			cfg.Endpoint = envEndpoint
		} else {
			cfg.Endpoint = DefaultAnthropicEndpoint
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &AnthropicClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		endpoint:   cfg.Endpoint,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string { return "anthropic" }

// Model returns the default model identifier.
func (c *AnthropicClient) Model() string { return c.model }

// messagesRequest is the Anthropic Messages API request body.
type messagesRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	Tools       []ToolSpec   `json:"tools,omitempty"`
	System      string       `json:"system,omitempty"`
}

// messagesResponse is the Anthropic Messages API response body.
type messagesResponse struct {
	ID         string         `json:"id"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
	Error      *apiError      `json:"error,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type apiMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

// contentBlock is one block in a message. Custom marshaling keeps "input"
// present on tool_use blocks even when empty, which the API requires.
type contentBlock struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	Content   string                 `json:"content,omitempty"`
}

func (cb contentBlock) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{"type": cb.Type}
	if cb.Text != "" {
		m["text"] = cb.Text
	}
	if cb.ID != "" {
		m["id"] = cb.ID
	}
	if cb.Name != "" {
		m["name"] = cb.Name
	}
	if cb.Type == "tool_use" {
		if len(cb.Input) == 0 {
			m["input"] = map[string]interface{}{}
		} else {
			m["input"] = cb.Input
		}
	} else if len(cb.Input) > 0 {
		m["input"] = cb.Input
	}
	if cb.ToolUseID != "" {
		m["tool_use_id"] = cb.ToolUseID
	}
	if cb.Content != "" {
		m["content"] = cb.Content
	}
	return json.Marshal(m)
}

// Invoke sends the envelope to the Messages API and returns the response.
// Throttling (429) and server errors are retried with exponential backoff.
func (c *AnthropicClient) Invoke(ctx context.Context, env *Envelope) (*Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is not configured")
	}
	model := env.Model
	if model == "" {
		model = c.model
	}
	maxTokens := env.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	req := &messagesRequest{
		Model:     model,
		Messages:  convertMessages(env.Messages),
		MaxTokens: maxTokens,
		System:    env.System,
		Tools:     env.Tools,
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no valid messages to send")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var apiResp *messagesResponse
	operation := func() error {
		resp, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		apiResp = resp
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	return convertResponse(apiResp), nil
}

func (c *AnthropicClient) post(ctx context.Context, body []byte) (*messagesResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case httpResp.StatusCode == http.StatusOK:
	case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500:
		return nil, fmt.Errorf("anthropic API status %d: %s", httpResp.StatusCode, string(respBody))
	default:
		return nil, backoff.Permanent(
			fmt.Errorf("anthropic API status %d: %s", httpResp.StatusCode, string(respBody)))
	}

	var apiResp messagesResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("malformed API response: %w", err))
	}
	if apiResp.Error != nil {
		return nil, backoff.Permanent(
			fmt.Errorf("anthropic API error %s: %s", apiResp.Error.Type, apiResp.Error.Message))
	}
	return &apiResp, nil
}

// convertMessages maps provider-agnostic messages to API messages. System
// messages are carried in the envelope's System field, never in the array.
func convertMessages(messages []Message) []apiMessage {
	var out []apiMessage
	for _, msg := range messages {
		switch msg.Role {
		case "user", "assistant":
			if msg.Content == "" {
				continue
			}
			out = append(out, apiMessage{
				Role:    msg.Role,
				Content: []contentBlock{{Type: "text", Text: msg.Content}},
			})
		case "tool":
			out = append(out, apiMessage{
				Role: "user",
				Content: []contentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolUseID,
					Content:   msg.Content,
				}},
			})
		}
	}
	return out
}

func convertResponse(resp *messagesResponse) *Response {
	out := &Response{
		FinishReason: resp.StopReason,
		Usage:        resp.Usage,
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			input := block.Input
			if input == nil {
				input = map[string]interface{}{}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: input,
			})
		}
	}
	return out
}
