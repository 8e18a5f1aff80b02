// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package llm is the opaque agent-invocation boundary. The kernel controls
// which model is used and routes every tool call through the hook pipeline;
// everything else about inference is behind the Provider interface.
package llm

import "context"

// Message is one turn of an agent conversation.
type Message struct {
	Role      string `json:"role"` // system | user | assistant | tool
	Content   string `json:"content"`
	ToolUseID string `json:"tool_use_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// Usage reports token consumption for one invocation.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the provider-agnostic result of one invocation.
type Response struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Usage        Usage      `json:"usage"`
	FinishReason string     `json:"finish_reason"`
}

// ToolSpec describes a tool offered to the model.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Envelope is the full invocation request.
type Envelope struct {
	Model     string     `json:"model"`
	System    string     `json:"system,omitempty"`
	Messages  []Message  `json:"messages"`
	Tools     []ToolSpec `json:"tools,omitempty"`
	MaxTokens int        `json:"max_tokens,omitempty"`
}

// Provider invokes an agent model. Implementations exist for the Anthropic
// API and AWS Bedrock; tests use a scripted fake.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Model returns the default model identifier.
	Model() string

	// Invoke sends the envelope and returns the model response.
	Invoke(ctx context.Context, env *Envelope) (*Response, error)
}
