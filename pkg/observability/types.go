// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package observability provides distributed tracing, metrics, and cost
// accounting for the orchestration kernel.
//
// Every operation is instrumented: worker executions, tool calls, hook
// invocations, and memory operations. Traces are exported over OTLP (or
// dropped by the no-op tracer in tests).
//
// Example usage:
//
//	tracer := observability.NewOTLPTracer(cfg)
//	ctx, span := tracer.StartSpan(ctx, observability.SpanWorkerExecute)
//	defer tracer.EndSpan(span)
//	span.SetAttribute(observability.AttrResultStatus, "success")
package observability

import (
	"time"
)

// Well-known span names.
const (
	SpanWorkerExecute  = "worker.execute"
	SpanToolCall       = "tool.call"
	SpanHookInvocation = "hook.invocation"
	SpanMemoryOp       = "memory.operation"
	SpanAgentInvoke    = "agent.invoke"
	SpanRouterClassify = "router.classify"
	SpanWorkflowStep   = "workflow.step"
	SpanPartyRound     = "party.round"
)

// Well-known attribute keys.
const (
	AttrOperationType = "operation.type"
	AttrAgentName     = "agent.name"
	AttrTaskID        = "task.id"
	AttrRunID         = "run.id"
	AttrResultStatus  = "result.status"
	AttrModel         = "llm.model"
)

// StatusCode represents the final status of a span.
type StatusCode int

const (
	// StatusUnset indicates status was not explicitly set.
	StatusUnset StatusCode = iota
	// StatusOK indicates successful completion.
	StatusOK
	// StatusError indicates an error occurred.
	StatusError
)

func (s StatusCode) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Status represents the final status of a span with optional message.
type Status struct {
	Code    StatusCode
	Message string
}

// Event represents a point-in-time occurrence within a span.
type Event struct {
	Timestamp  time.Time
	Name       string
	Attributes map[string]interface{}
}

// Span represents a unit of work with timing and metadata.
// Spans form a tree structure via ParentID references.
type Span struct {
	TraceID  string
	SpanID   string
	ParentID string

	Name       string
	Attributes map[string]interface{}

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Events []Event
	Status Status
}

// SetAttribute sets a key-value attribute on the span.
func (s *Span) SetAttribute(key string, value interface{}) {
	if s == nil {
		return
	}
	if s.Attributes == nil {
		s.Attributes = make(map[string]interface{})
	}
	s.Attributes[key] = value
}

// AddEvent records an event within the span's lifetime.
func (s *Span) AddEvent(name string, attributes map[string]interface{}) {
	if s == nil {
		return
	}
	s.Events = append(s.Events, Event{
		Timestamp:  time.Now(),
		Name:       name,
		Attributes: attributes,
	})
}

// SetStatus sets the final status of the span.
func (s *Span) SetStatus(code StatusCode, message string) {
	if s == nil {
		return
	}
	s.Status = Status{Code: code, Message: message}
}
