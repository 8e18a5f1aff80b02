// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package party

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/teradata-labs/weft/pkg/hooks"
)

// forbiddenContextKeys never cross the isolation boundary into an agent's
// context.
var forbiddenContextKeys = []string{
	"_orchestratorState",
	"_sessionSecrets",
	"_coordinationState",
	"_internalNotes",
	"_apiKeys",
}

// sanitizedResponseKeys is the whitelist of fields a sibling's response
// keeps when shared. Raw reasoning, tool calls, and memory access are
// dropped.
var sanitizedResponseKeys = []string{
	"agentName", "displayName", "icon", "content", "hash", "timestamp",
}

// Isolation stamps.
const (
	KeyIsolationBoundary = "_isolationBoundary"
	KeyAgentID           = "_agentId"
)

// deepClone copies a context tree so mutations in one agent's view can
// never leak into another's.
func deepClone(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = deepClone(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = deepClone(item)
		}
		return out
	default:
		return v
	}
}

// IsolateContext builds the context delivered to one agent for a round:
// a deep clone of the shared context with orchestrator-only keys stripped,
// sibling responses sanitized to the whitelist, and the isolation boundary
// stamped.
func IsolateContext(shared map[string]interface{}, responses []ChainEntry, team *Team, agentID string) map[string]interface{} {
	cloned, _ := deepClone(shared).(map[string]interface{})
	if cloned == nil {
		cloned = map[string]interface{}{}
	}
	for _, key := range forbiddenContextKeys {
		delete(cloned, key)
	}

	sanitized := make([]map[string]interface{}, 0, len(responses))
	for _, r := range responses {
		entry := map[string]interface{}{
			"agentName": r.AgentID,
			"content":   r.Content,
			"hash":      r.Hash,
			"timestamp": r.Timestamp,
		}
		if member, ok := team.Member(r.AgentID); ok {
			entry["displayName"] = member.DisplayName
			entry["icon"] = member.Icon
		}
		sanitized = append(sanitized, entry)
	}
	cloned["previousResponses"] = sanitized

	cloned[KeyIsolationBoundary] = true
	cloned[KeyAgentID] = agentID
	return cloned
}

// CheckIsolation verifies a delivered context carries no forbidden keys and
// no unsanitized response fields. Used by tests and the coordinator's
// defense-in-depth check before each invoke.
func CheckIsolation(ctx map[string]interface{}) error {
	for _, key := range forbiddenContextKeys {
		if _, present := ctx[key]; present {
			return fmt.Errorf("forbidden key %q crossed the isolation boundary", key)
		}
	}
	responses, _ := ctx["previousResponses"].([]map[string]interface{})
	allowed := make(map[string]bool, len(sanitizedResponseKeys))
	for _, k := range sanitizedResponseKeys {
		allowed[k] = true
	}
	for _, r := range responses {
		for k := range r {
			if !allowed[k] {
				return fmt.Errorf("unsanitized response field %q in agent context", k)
			}
		}
	}
	return nil
}

// NewMemoryBoundaryHook blocks file tool calls that reach into another
// agent's sidecar directory. The owning agent is taken from the hook
// context; paths are normalized before comparison so traversal cannot
// escape the check.
func NewMemoryBoundaryHook(sidecarRoot string) *hooks.Hook {
	return &hooks.Hook{
		Name:     "party-memory-boundary",
		Events:   []string{hooks.EventPreToolUse},
		Matcher:  []string{"file_read", "file_write", "file_edit"},
		Security: true,
		Handler: func(env *hooks.Envelope) (*hooks.Decision, error) {
			target, _ := env.ToolInput["path"].(string)
			if target == "" {
				return nil, fmt.Errorf("file tool call without a path")
			}
			normalized := filepath.Clean(target)
			root := filepath.Clean(sidecarRoot)
			if !strings.HasPrefix(normalized, root+string(filepath.Separator)) {
				// Outside the sidecar tree entirely; not this hook's concern.
				return &hooks.Decision{Decision: hooks.DecisionAllow}, nil
			}

			agentID, _ := env.Context[KeyAgentID].(string)
			if agentID == "" {
				return &hooks.Decision{
					Decision: hooks.DecisionBlock,
					Reason:   "sidecar access without an agent identity",
				}, nil
			}
			owned := filepath.Join(root, agentID)
			if normalized != owned && !strings.HasPrefix(normalized, owned+string(filepath.Separator)) {
				return &hooks.Decision{
					Decision: hooks.DecisionBlock,
					Reason: fmt.Sprintf("agent %s may not access sidecar path %s",
						agentID, target),
				}, nil
			}
			return &hooks.Decision{Decision: hooks.DecisionAllow}, nil
		},
	}
}
