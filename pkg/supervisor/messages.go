// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package supervisor provides bounded, isolated execution for agent
// sessions. A single long-lived supervisor owns a task queue; each task runs
// either in-process (legacy) or in an ephemeral worker subprocess that is
// discarded after the task, so coordinator memory never grows per task.
package supervisor

import "time"

// Worker message types on the line-delimited JSON channel.
const (
	MsgTask         = "task"
	MsgMemoryReport = "memory_report"
	MsgProgress     = "progress"
	MsgResult       = "result"
	MsgFailure      = "failure"
)

// Timeout actions on execution-limit breach.
const (
	ActionTerminate = "terminate"
	ActionPause     = "pause"
	ActionWarn      = "warn"
)

// ExecutionLimits bounds one worker run. Fields outside their bounds are
// clamped at admission.
type ExecutionLimits struct {
	MaxTurns      int     `json:"max_turns"`       // 1-100, default 25
	MaxDurationMs int64   `json:"max_duration_ms"` // 1000-3600000, default 600000
	MaxCostUSD    float64 `json:"max_cost_usd"`    // 0.01-100.0, default 1.0
	TimeoutAction string  `json:"timeout_action"`  // terminate | pause | warn
}

// DefaultLimits returns the default execution limits.
func DefaultLimits() ExecutionLimits {
	return ExecutionLimits{
		MaxTurns:      25,
		MaxDurationMs: 600_000,
		MaxCostUSD:    1.0,
		TimeoutAction: ActionTerminate,
	}
}

// Clamp forces every limit into its allowed range and defaults zero values.
func (l ExecutionLimits) Clamp() ExecutionLimits {
	d := DefaultLimits()
	if l.MaxTurns == 0 {
		l.MaxTurns = d.MaxTurns
	}
	if l.MaxTurns < 1 {
		l.MaxTurns = 1
	}
	if l.MaxTurns > 100 {
		l.MaxTurns = 100
	}
	if l.MaxDurationMs == 0 {
		l.MaxDurationMs = d.MaxDurationMs
	}
	if l.MaxDurationMs < 1000 {
		l.MaxDurationMs = 1000
	}
	if l.MaxDurationMs > 3_600_000 {
		l.MaxDurationMs = 3_600_000
	}
	if l.MaxCostUSD == 0 {
		l.MaxCostUSD = d.MaxCostUSD
	}
	if l.MaxCostUSD < 0.01 {
		l.MaxCostUSD = 0.01
	}
	if l.MaxCostUSD > 100 {
		l.MaxCostUSD = 100
	}
	switch l.TimeoutAction {
	case ActionTerminate, ActionPause, ActionWarn:
	default:
		l.TimeoutAction = d.TimeoutAction
	}
	return l
}

// TaskEnvelope is the work unit passed to a worker.
type TaskEnvelope struct {
	SessionID    string          `json:"session_id"`
	AgentKind    string          `json:"agent_kind"`
	Prompt       string          `json:"prompt"`
	ToolsAllowed []string        `json:"tools_allowed,omitempty"`
	Limits       ExecutionLimits `json:"execution_limits"`
	ContextRefs  []string        `json:"context_refs,omitempty"`
}

// Message is one frame on the worker channel. Exactly one payload field is
// set, selected by Type.
type Message struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	Task *TaskEnvelope `json:"task,omitempty"`

	// memory_report
	HeapUsed  int64 `json:"heap_used,omitempty"`
	HeapTotal int64 `json:"heap_total,omitempty"`
	RSS       int64 `json:"rss,omitempty"`

	// progress
	Turn    int     `json:"turn,omitempty"`
	Tool    string  `json:"tool,omitempty"`
	CostUSD float64 `json:"cost_usd,omitempty"`

	// result / failure
	ExecutionTimeMs int64  `json:"execution_time_ms,omitempty"`
	MemoryPeak      int64  `json:"memory_peak,omitempty"`
	Output          string `json:"output,omitempty"`
	Error           string `json:"error,omitempty"`
}

// TaskResult is the supervisor-side outcome of one executed task.
type TaskResult struct {
	SessionID       string        `json:"session_id"`
	Mode            string        `json:"mode"` // legacy | worker
	Output          string        `json:"output"`
	ExecutionTime   time.Duration `json:"execution_time"`
	MemoryPeak      int64         `json:"memory_peak"`
	TurnsUsed       int           `json:"turns_used"`
	CostUSD         float64       `json:"cost_usd"`
	Paused          bool          `json:"paused,omitempty"`
	WorkerSessionID string        `json:"worker_session_id,omitempty"`
}
