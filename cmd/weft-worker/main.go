// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// weft-worker is the ephemeral worker executable spawned by the supervisor.
// It reads one task frame from stdin, runs it against the configured LLM
// provider, and reports progress, memory, and the final result as JSON
// frames on stdout.
package main

import (
	"context"
	"fmt"

	"github.com/teradata-labs/weft/pkg/config"
	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/supervisor"
)

func main() {
	supervisor.RunWorkerMain(handleTask)
}

func handleTask(ctx context.Context, env *supervisor.TaskEnvelope, reporter *supervisor.Reporter) (string, error) {
	cfg, err := config.Load("")
	if err != nil {
		return "", fmt.Errorf("worker config: %w", err)
	}

	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "bedrock":
		provider, err = llm.NewBedrockClient(ctx, llm.BedrockConfig{
			ModelID:   cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
		})
		if err != nil {
			return "", err
		}
	default:
		provider = llm.NewAnthropicClient(llm.AnthropicConfig{
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
		})
	}

	resp, err := provider.Invoke(ctx, &llm.Envelope{
		Messages: []llm.Message{{Role: "user", Content: env.Prompt}},
	})
	if err != nil {
		return "", err
	}
	reporter.Progress(1, "llm_invoke", 0)
	return resp.Content, nil
}
