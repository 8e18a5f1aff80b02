// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package hooks

import (
	"fmt"
	"strings"

	"github.com/teradata-labs/weft/pkg/paths"
	"github.com/teradata-labs/weft/pkg/safety"
)

// Builtin hooks are in-process validators registered through the same
// envelope contract as subprocess hooks. They exist for latency: command
// validation runs on every shell tool call and cannot afford process spawn
// overhead.

// NewShellSafetyHook validates shell commands through the safety registry
// before execution. Security-critical: fails closed.
func NewShellSafetyHook(registry *safety.Registry) *Hook {
	return &Hook{
		Name:     "shell-safety",
		Events:   []string{EventPreToolUse},
		Matcher:  []string{"shell_execute", "bash"},
		Security: true,
		Handler: func(env *Envelope) (*Decision, error) {
			command, _ := env.ToolInput["command"].(string)
			if strings.TrimSpace(command) == "" {
				return nil, fmt.Errorf("shell tool call without a command")
			}
			verdict := registry.Validate(command)
			if !verdict.Valid {
				return &Decision{Decision: DecisionBlock, Reason: verdict.Error}, nil
			}
			return &Decision{Decision: DecisionAllow}, nil
		},
	}
}

// NewPathSafetyHook blocks file tool calls whose target escapes the
// project root. Security-critical: fails closed.
func NewPathSafetyHook(resolver *paths.Resolver) *Hook {
	return &Hook{
		Name:     "path-safety",
		Events:   []string{EventPreToolUse},
		Matcher:  []string{"file_read", "file_write", "file_edit"},
		Security: true,
		Handler: func(env *Envelope) (*Decision, error) {
			target, _ := env.ToolInput["path"].(string)
			if target == "" {
				return nil, fmt.Errorf("file tool call without a path")
			}
			if _, err := resolver.ValidatePathWithinProject(target); err != nil {
				return &Decision{Decision: DecisionBlock, Reason: err.Error()}, nil
			}
			return &Decision{Decision: DecisionAllow}, nil
		},
	}
}

// NewRoleRestrictionHook enforces role-based tool restrictions: an
// orchestrator role may not write files directly and must delegate.
func NewRoleRestrictionHook(forbidden map[string][]string) *Hook {
	return &Hook{
		Name:     "role-restriction",
		Events:   []string{EventPreToolUse},
		Matcher:  []string{"file_write", "file_edit", "shell_execute"},
		Security: true,
		Handler: func(env *Envelope) (*Decision, error) {
			role, _ := env.Context["agent_role"].(string)
			for _, tool := range forbidden[role] {
				if tool == env.ToolName {
					return &Decision{
						Decision: DecisionBlock,
						Reason: fmt.Sprintf("role %q may not call %s directly; delegate instead",
							role, env.ToolName),
					}, nil
				}
			}
			return &Decision{Decision: DecisionAllow}, nil
		},
	}
}

// NewTemplateEnforcementHook blocks agent-delegation tool calls whose
// input does not conform to the Agent Task Schema. Freeform prompts are
// the classic failure mode this guards against.
func NewTemplateEnforcementHook() *Hook {
	return &Hook{
		Name:     "template-enforcement",
		Events:   []string{EventPreToolUse},
		Matcher:  []string{"agent_dispatch"},
		Security: true,
		Handler: func(env *Envelope) (*Decision, error) {
			if err := paths.ValidateSchema("task-envelope", env.ToolInput); err != nil {
				return &Decision{
					Decision: DecisionBlock,
					Reason:   "AGENT TASK TEMPLATE VIOLATION: " + err.Error(),
				}, nil
			}
			return &Decision{Decision: DecisionAllow}, nil
		},
	}
}

// NewSecurityTriggerHook requires a security-capable agent on tasks whose
// description matches the security trigger table.
func NewSecurityTriggerHook(triggers []string, securityAgents []string) *Hook {
	return &Hook{
		Name:     "security-trigger",
		Events:   []string{EventPreToolUse},
		Matcher:  []string{"agent_dispatch"},
		Security: true,
		Handler: func(env *Envelope) (*Decision, error) {
			description, _ := env.ToolInput["description"].(string)
			lower := strings.ToLower(description)
			matched := ""
			for _, trigger := range triggers {
				if strings.Contains(lower, strings.ToLower(trigger)) {
					matched = trigger
					break
				}
			}
			if matched == "" {
				return &Decision{Decision: DecisionAllow}, nil
			}
			agentType, _ := env.ToolInput["agent_type"].(string)
			for _, sec := range securityAgents {
				if agentType == sec {
					return &Decision{Decision: DecisionAllow}, nil
				}
			}
			return &Decision{
				Decision: DecisionBlock,
				Reason: fmt.Sprintf("task matches security trigger %q but agent %q is not security-capable",
					matched, agentType),
			}, nil
		},
	}
}
