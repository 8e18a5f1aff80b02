// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/hooks"
	"github.com/teradata-labs/weft/pkg/knowledge"
	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/paths"
	"github.com/teradata-labs/weft/pkg/state"
	"github.com/teradata-labs/weft/pkg/supervisor"
)

// ErrBlocked is returned when a pre-dispatch hook blocks the delegation.
type ErrBlocked struct {
	Reason string
}

func (e *ErrBlocked) Error() string {
	return "dispatch blocked: " + e.Reason
}

// Dispatcher validates, hooks, executes, and verifies agent tasks.
type Dispatcher struct {
	provider   llm.Provider
	supervisor *supervisor.Supervisor
	pipeline   *hooks.Pipeline
	store      *state.Store
	resolver   *paths.Resolver
	index      *knowledge.Index
	tracer     observability.Tracer
	logger     *zap.Logger
}

// Config configures the dispatcher. Supervisor is optional; without it all
// tasks run through the provider directly.
type Config struct {
	Provider   llm.Provider
	Supervisor *supervisor.Supervisor
	Pipeline   *hooks.Pipeline
	Store      *state.Store
	Resolver   *paths.Resolver
	Index      *knowledge.Index
	Tracer     observability.Tracer
	Logger     *zap.Logger
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	return &Dispatcher{
		provider:   cfg.Provider,
		supervisor: cfg.Supervisor,
		pipeline:   cfg.Pipeline,
		store:      cfg.Store,
		resolver:   cfg.Resolver,
		index:      cfg.Index,
		tracer:     cfg.Tracer,
		logger:     cfg.Logger.With(zap.String("component", "dispatch")),
	}
}

// Dispatch runs one agent task end to end: schema validation, pre-dispatch
// hooks, skill injection, execution, post-dispatch verification.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, runID string, task *AgentTask) (*VerifiedResult, error) {
	ctx, span := d.tracer.StartSpan(ctx, observability.SpanAgentInvoke,
		observability.WithAttribute(observability.AttrAgentName, task.AgentType),
	)
	defer d.tracer.EndSpan(span)
	if task.TaskID != "" {
		span.SetAttribute(observability.AttrTaskID, task.TaskID)
	}
	if runID != "" {
		span.SetAttribute(observability.AttrRunID, runID)
	}

	if err := task.Validate(); err != nil {
		span.SetStatus(observability.StatusError, err.Error())
		return nil, err
	}

	if d.pipeline != nil {
		envelope, err := d.hookEnvelope(hooks.EventPreToolUse, task, nil)
		if err != nil {
			return nil, err
		}
		res := d.pipeline.Evaluate(ctx, envelope)
		if res.Blocked() {
			span.SetStatus(observability.StatusError, res.Reason)
			return nil, &ErrBlocked{Reason: res.Reason}
		}
		for _, warning := range res.Warnings {
			d.logger.Warn("pre-dispatch hook warning", zap.String("warning", warning))
		}
	}

	d.injectSkills(task)

	output, err := d.execute(ctx, sessionID, task)
	if err != nil {
		span.SetStatus(observability.StatusError, err.Error())
		return nil, err
	}

	if d.pipeline != nil {
		envelope, envErr := d.hookEnvelope(hooks.EventPostToolUse, task, map[string]interface{}{
			"output": output,
		})
		if envErr == nil {
			// Post hooks are recording-only; the tool effect stands.
			res := d.pipeline.Evaluate(ctx, envelope)
			for _, warning := range res.Warnings {
				d.logger.Warn("post-dispatch hook warning", zap.String("warning", warning))
			}
		}
	}

	result := d.verify(task, runID, output)
	d.auditOutcome(task, runID, result)
	span.SetAttribute(observability.AttrResultStatus, result.Outcome)
	return result, nil
}

// injectSkills augments the task with the skills the knowledge index maps
// to the agent role, deduplicated against the caller's assignments.
func (d *Dispatcher) injectSkills(task *AgentTask) {
	if d.index == nil {
		return
	}
	skills, err := d.index.SkillsForAgent(task.AgentType)
	if err != nil {
		d.logger.Warn("skill injection lookup failed", zap.Error(err))
		return
	}
	have := make(map[string]bool, len(task.AssignedSkills))
	for _, s := range task.AssignedSkills {
		have[s] = true
	}
	for _, skill := range skills {
		if !have[skill.Name] {
			task.AssignedSkills = append(task.AssignedSkills, skill.Name)
			if err := d.index.RecordUsage(skill.Name); err != nil {
				d.logger.Debug("failed to record skill usage",
					zap.String("skill", skill.Name), zap.Error(err))
			}
		}
	}
}

// execute runs the task through the supervisor when available, otherwise
// through the provider directly.
func (d *Dispatcher) execute(ctx context.Context, sessionID string, task *AgentTask) (string, error) {
	if d.supervisor != nil {
		env := &supervisor.TaskEnvelope{
			SessionID:    sessionID,
			AgentKind:    task.AgentType,
			Prompt:       task.BuildPrompt(),
			ToolsAllowed: task.ToolsAllowed,
			Limits:       task.ExecutionLimits,
		}
		result, err := d.supervisor.Execute(ctx, env, 0)
		if err != nil {
			return "", err
		}
		if result.Paused {
			return "", fmt.Errorf("task paused at duration limit (worker session %s)", result.WorkerSessionID)
		}
		return result.Output, nil
	}

	if d.provider == nil {
		return "", fmt.Errorf("no provider configured")
	}
	resp, err := d.provider.Invoke(ctx, &llm.Envelope{
		Model:    task.Model,
		Messages: []llm.Message{{Role: "user", Content: task.BuildPrompt()}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (d *Dispatcher) hookEnvelope(event string, task *AgentTask, toolResult map[string]interface{}) (*hooks.Envelope, error) {
	input, err := task.ToMap()
	if err != nil {
		return nil, err
	}
	return &hooks.Envelope{
		Event:      event,
		ToolName:   "agent_dispatch",
		ToolInput:  input,
		ToolResult: toolResult,
	}, nil
}
