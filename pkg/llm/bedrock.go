// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

const (
	// DefaultBedrockModelID is the default Claude model on Bedrock.
	DefaultBedrockModelID = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
	// DefaultBedrockRegion is the default AWS region.
	DefaultBedrockRegion = "us-west-2"
)

// BedrockConfig holds configuration for the Bedrock client.
type BedrockConfig struct {
	ModelID         string
	Region          string
	MaxTokens       int
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Profile         string
}

// BedrockClient implements Provider using the Anthropic SDK with a Bedrock
// backend. The SDK handles AWS request signing and endpoint selection.
type BedrockClient struct {
	client    anthropic.Client
	modelID   string
	region    string
	maxTokens int64
}

// NewBedrockClient creates a Bedrock-backed Anthropic client.
func NewBedrockClient(ctx context.Context, cfg BedrockConfig) (*BedrockClient, error) {
	if cfg.ModelID == "" {
		if envModel := os.Getenv("AWS_BEDROCK_MODEL_ID"); envModel != "" {
			cfg.ModelID = envModel
		} else {
			cfg.ModelID = DefaultBedrockModelID
		}
	}
	if cfg.Region == "" {
		if envRegion := os.Getenv("AWS_DEFAULT_REGION"); envRegion != "" {
			cfg.Region = envRegion
		} else {
			cfg.Region = DefaultBedrockRegion
		}
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	var awsCfg aws.Config
	var err error
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)),
		)
	case cfg.Profile != "":
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithSharedConfigProfile(cfg.Profile),
		)
	default:
		// Default credentials chain: IAM role, env vars, shared profile.
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &BedrockClient{
		client:    anthropic.NewClient(bedrock.WithConfig(awsCfg)),
		modelID:   cfg.ModelID,
		region:    cfg.Region,
		maxTokens: int64(cfg.MaxTokens),
	}, nil
}

// Name returns the provider name.
func (c *BedrockClient) Name() string { return "bedrock" }

// Model returns the default model identifier.
func (c *BedrockClient) Model() string { return c.modelID }

// Invoke sends the envelope through the SDK and returns the response.
func (c *BedrockClient) Invoke(ctx context.Context, env *Envelope) (*Response, error) {
	model := env.Model
	if model == "" {
		model = c.modelID
	}
	maxTokens := int64(env.MaxTokens)
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	sdkMessages := convertMessagesToSDK(env.Messages)
	if len(sdkMessages) == 0 {
		return nil, fmt.Errorf("no valid messages to send")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  sdkMessages,
		MaxTokens: maxTokens,
	}
	if env.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: env.System}}
	}
	if len(env.Tools) > 0 {
		params.Tools = convertToolsToSDK(env.Tools)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("bedrock invocation failed: %w", err)
	}
	return convertResponseFromSDK(message), nil
}

func convertMessagesToSDK(messages []Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			if msg.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		case "assistant":
			if msg.Content != "" {
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			}
		case "tool":
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolUseID, msg.Content, false)))
		}
	}
	return out
}

func convertToolsToSDK(tools []ToolSpec) []anthropic.ToolUnionParam {
	sdkTools := make([]anthropic.ToolParam, len(tools))
	for i, tool := range tools {
		sdkTools[i] = anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
		}
		if tool.InputSchema != nil {
			schemaJSON, _ := json.Marshal(tool.InputSchema)
			var inputSchema anthropic.ToolInputSchemaParam
			_ = json.Unmarshal(schemaJSON, &inputSchema)
			sdkTools[i].InputSchema = inputSchema
		}
	}
	unions := make([]anthropic.ToolUnionParam, len(sdkTools))
	for i := range sdkTools {
		unions[i] = anthropic.ToolUnionParam{OfTool: &sdkTools[i]}
	}
	return unions
}

func convertResponseFromSDK(message *anthropic.Message) *Response {
	out := &Response{
		FinishReason: string(message.StopReason),
		Usage: Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			var input map[string]interface{}
			if block.Input != nil {
				_ = json.Unmarshal(block.Input, &input)
			}
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
