// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package state is the durable substrate for workflow runs, task graphs,
// artifact registries, gate records, and the append-only audit log. All
// persistence goes through the path resolver's atomic writes; crash
// recovery rebuilds run position from gates and registered artifacts.
package state

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunCreated    RunStatus = "created"
	RunInProgress RunStatus = "in_progress"
	RunPaused     RunStatus = "paused"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// runStatusRank orders statuses for the forward-only transition rule.
// paused -> in_progress is the single allowed backward edge.
var runStatusRank = map[RunStatus]int{
	RunCreated:    0,
	RunInProgress: 1,
	RunPaused:     2,
	RunCompleted:  3,
	RunFailed:     3,
}

// Run is a single invocation of a workflow.
type Run struct {
	ID               string                 `json:"id"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	Status           RunStatus              `json:"status"`
	Workflow         string                 `json:"workflow"`
	SelectedWorkflow string                 `json:"selected_workflow,omitempty"`
	CurrentStep      int                    `json:"current_step"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CostUSD          float64                `json:"cost_usd"`
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is a durable unit of work, possibly spanning multiple agent
// invocations. Tasks form a DAG via Dependencies.
type Task struct {
	ID           string                 `json:"id"`
	Subject      string                 `json:"subject"`
	Description  string                 `json:"description"`
	Status       TaskStatus             `json:"status"`
	Owner        string                 `json:"owner"`
	Dependencies []string               `json:"dependencies,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// Summary returns the completion summary, or "" when absent.
func (t *Task) Summary() string {
	if t.Metadata == nil {
		return ""
	}
	if s, ok := t.Metadata["summary"].(string); ok {
		return s
	}
	return ""
}

// ArtifactEntry is one row of a run's artifact registry. The registry
// stores metadata only, never embedded content.
type ArtifactEntry struct {
	Path        string    `json:"path"`
	Kind        string    `json:"kind"` // generated | reference
	Schema      string    `json:"schema,omitempty"`
	CreatedBy   string    `json:"created_by"`
	Step        int       `json:"step"`
	CreatedAt   time.Time `json:"created_at"`
	ContentHash string    `json:"content_hash,omitempty"`
	Invalidated bool      `json:"invalidated,omitempty"`
}

// ArtifactStateChange is one record in the append-only artifact state log.
type ArtifactStateChange struct {
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	Change    string    `json:"change"` // registered | invalidated
	Reason    string    `json:"reason,omitempty"`
}

// ArtifactRegistry is the per-run registry document.
type ArtifactRegistry struct {
	Entries []ArtifactEntry       `json:"entries"`
	Log     []ArtifactStateChange `json:"log"`
}

// GateOutcome records the result of a validation gate at a step boundary.
type GateOutcome struct {
	Step      int                    `json:"step"`
	Name      string                 `json:"name"`
	Passed    bool                   `json:"passed"`
	Reason    string                 `json:"reason,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// WorkerSessionStatus is the lifecycle state of an ephemeral worker.
type WorkerSessionStatus string

const (
	WorkerSpawning       WorkerSessionStatus = "spawning"
	WorkerRunning        WorkerSessionStatus = "running"
	WorkerCompleted      WorkerSessionStatus = "completed"
	WorkerFailed         WorkerSessionStatus = "failed"
	WorkerTimedOut       WorkerSessionStatus = "timed_out"
	WorkerMemoryExceeded WorkerSessionStatus = "memory_exceeded"
	WorkerPaused         WorkerSessionStatus = "paused"
)

// WorkerSession is the supervisor-tracked record of an ephemeral worker.
type WorkerSession struct {
	ID              string                 `json:"id"`
	SupervisorID    string                 `json:"supervisor_id"`
	AgentKind       string                 `json:"agent_kind"`
	Status          WorkerSessionStatus    `json:"status"`
	StartedAt       time.Time              `json:"started_at"`
	EndedAt         *time.Time             `json:"ended_at,omitempty"`
	PeakMemoryBytes int64                  `json:"peak_memory"`
	TurnsUsed       int                    `json:"turns_used"`
	CostAccumulated float64                `json:"cost_accumulated"`
	Reason          string                 `json:"reason,omitempty"`
	Envelope        map[string]interface{} `json:"envelope,omitempty"` // persisted for pause/resume
}

// AuditRecord is one line of the append-only audit log.
type AuditRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"` // decision | error | security
	Hook      string    `json:"hook,omitempty"`
	Event     string    `json:"event,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Decision  string    `json:"decision,omitempty"` // allow | block | warn
	Reason    string    `json:"reason,omitempty"`
	AgentRole string    `json:"agent_role,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Critical  bool      `json:"critical,omitempty"`
}
