// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package hooks is the policy enforcement pipeline around every tool call.
// Hooks run as independent subprocesses speaking a JSON envelope on stdin
// and a JSON decision on stdout (exit code 2 is the only way to block), or
// as in-process validators called through the same envelope contract.
//
// Every hook carries four layers of recursion prevention: meta-tool
// exclusions, a per-hook environment guard, explicit matcher registration,
// and a hard timeout.
package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Event names in the hook lifecycle.
const (
	EventUserPromptSubmit = "UserPromptSubmit"
	EventPreToolUse       = "PreToolUse"
	EventPostToolUse      = "PostToolUse"
	EventSessionEnd       = "SessionEnd"
)

// Decisions a hook may return.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
	DecisionWarn  = "warn"
)

// Exit codes carrying the hook contract.
const (
	ExitAllow = 0
	ExitError = 1
	ExitBlock = 2 // the only way to block
)

// Meta-tools excluded from tool-event hooks so a hook's own side effects
// never re-trigger enforcement (recursion layer 1).
var metaTools = map[string]bool{
	"task_delegate": true,
	"todo_list":     true,
}

// IsMetaTool reports whether tool-event hooks must skip this tool.
func IsMetaTool(tool string) bool {
	return metaTools[tool]
}

// Envelope is the JSON input every hook receives.
type Envelope struct {
	Event      string                 `json:"event"`
	ToolName   string                 `json:"tool_name,omitempty"`
	ToolInput  map[string]interface{} `json:"tool_input,omitempty"`
	ToolResult map[string]interface{} `json:"tool_result,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Decision is the JSON output a hook may write to stdout.
type Decision struct {
	Decision string                 `json:"decision"`
	Reason   string                 `json:"reason,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

const decisionSchema = `{
	"type": "object",
	"required": ["decision"],
	"properties": {
		"decision": {"enum": ["allow", "block", "warn"]},
		"reason": {"type": "string"},
		"metadata": {"type": "object"}
	}
}`

// ErrMalformedDecision is returned when hook stdout fails the decision schema.
var ErrMalformedDecision = errors.New("malformed hook decision output")

// ParseDecision validates and parses hook stdout. Empty output yields nil
// (the exit code alone carries the verdict).
func ParseDecision(stdout []byte) (*Decision, error) {
	trimmed := strings.TrimSpace(string(stdout))
	if trimmed == "" {
		return nil, nil
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(decisionSchema),
		gojsonschema.NewStringLoader(trimmed),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedDecision, strings.Join(msgs, "; "))
	}
	var d Decision
	if err := json.Unmarshal([]byte(trimmed), &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}
	return &d, nil
}

// stdinReadTimeout bounds how long ParseEnvelope waits for piped input.
const stdinReadTimeout = 500 * time.Millisecond

// ParseEnvelope is the common input parser every hook uses: it accepts an
// argv-passed JSON blob or reads stdin with a small timeout, and normalizes
// both carriers into one envelope shape.
func ParseEnvelope(args []string, stdin io.Reader) (*Envelope, error) {
	var raw []byte
	if len(args) > 0 && strings.HasPrefix(strings.TrimSpace(args[0]), "{") {
		raw = []byte(args[0])
	} else {
		ch := make(chan []byte, 1)
		errCh := make(chan error, 1)
		go func() {
			data, err := io.ReadAll(stdin)
			if err != nil {
				errCh <- err
				return
			}
			ch <- data
		}()
		select {
		case data := <-ch:
			raw = data
		case err := <-errCh:
			return nil, fmt.Errorf("failed to read hook input: %w", err)
		case <-time.After(stdinReadTimeout):
			return nil, errors.New("timed out reading hook input from stdin")
		}
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed hook envelope: %w", err)
	}
	if env.Event == "" {
		return nil, errors.New("hook envelope missing event")
	}
	return &env, nil
}
