// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package dispatch is the agent invocation boundary: schema-validated task
// envelopes in, verified outcomes out. Every tool call an agent makes flows
// through the hook pipeline.
package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teradata-labs/weft/pkg/paths"
	"github.com/teradata-labs/weft/pkg/supervisor"
)

// Verification is the post-dispatch check contract of a task.
type Verification struct {
	MustProduce     []string `json:"must_produce"`
	MustNotError    bool     `json:"must_not_error,omitempty"`
	SummaryRequired bool     `json:"summary_required"`
}

// AgentTask is the delegation payload. It must satisfy the task envelope
// schema before dispatch; freeform prompts are rejected by the template
// enforcement hook.
type AgentTask struct {
	AgentType         string                     `json:"agent_type"`
	TaskID            string                     `json:"task_id,omitempty"`
	Description       string                     `json:"description"`
	AssignedSkills    []string                   `json:"assigned_skills"`
	RequiredArtifacts []string                   `json:"required_artifacts,omitempty"`
	OutputArtifacts   []string                   `json:"output_artifacts"`
	ExecutionLimits   supervisor.ExecutionLimits `json:"execution_limits"`
	Model             string                     `json:"model,omitempty"`
	ToolsAllowed      []string                   `json:"tools_allowed,omitempty"`
	PromptTemplateID  string                     `json:"prompt_template_id,omitempty"`
	Verification      Verification               `json:"verification"`
}

// ToMap renders the task for schema validation and hook envelopes. Nil
// slices are normalized so required array keys serialize as [] rather than
// null.
func (t *AgentTask) ToMap() (map[string]interface{}, error) {
	if t.AssignedSkills == nil {
		t.AssignedSkills = []string{}
	}
	if t.OutputArtifacts == nil {
		t.OutputArtifacts = []string{}
	}
	if t.Verification.MustProduce == nil {
		t.Verification.MustProduce = []string{}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the task against the envelope schema.
func (t *AgentTask) Validate() error {
	m, err := t.ToMap()
	if err != nil {
		return err
	}
	if err := paths.ValidateSchema("task-envelope", m); err != nil {
		return fmt.Errorf("invalid agent task: %w", err)
	}
	return nil
}

// BuildPrompt renders the delegation prompt from the task, including the
// assigned skills so the agent knows which capabilities to apply.
func (t *AgentTask) BuildPrompt() string {
	var b strings.Builder
	b.WriteString(t.Description)
	if len(t.AssignedSkills) > 0 {
		b.WriteString("\n\nApply these skills:\n")
		for _, skill := range t.AssignedSkills {
			b.WriteString("- " + skill + "\n")
		}
	}
	if len(t.RequiredArtifacts) > 0 {
		b.WriteString("\nRequired input artifacts:\n")
		for _, a := range t.RequiredArtifacts {
			b.WriteString("- " + a + "\n")
		}
	}
	if len(t.OutputArtifacts) > 0 {
		b.WriteString("\nYou must produce:\n")
		for _, a := range t.OutputArtifacts {
			b.WriteString("- " + a + "\n")
		}
	}
	b.WriteString("\nRespond with a JSON report: " +
		`{"completed": bool, "artifacts": [paths], "errors": [strings], "summary": "..."}`)
	return b.String()
}
