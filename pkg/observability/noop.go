// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package observability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NoOpTracer implements Tracer with minimal overhead for testing and for
// deployments with telemetry disabled. Spans are still created (so callers
// can set attributes without nil checks) but nothing is exported.
type NoOpTracer struct{}

// NewNoOpTracer creates a tracer that discards all telemetry.
func NewNoOpTracer() *NoOpTracer {
	return &NoOpTracer{}
}

// StartSpan creates an in-memory span that will never be exported.
func (t *NoOpTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := &Span{
		TraceID:    uuid.New().String(),
		SpanID:     uuid.New().String()[:16],
		Name:       name,
		StartTime:  time.Now(),
		Attributes: make(map[string]interface{}),
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	}
	for _, opt := range opts {
		opt(span)
	}
	return ContextWithSpan(ctx, span), span
}

// EndSpan records timing and drops the span.
func (t *NoOpTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
}

// RecordMetric discards the metric.
func (t *NoOpTracer) RecordMetric(name string, value float64, labels map[string]string) {}

// RecordEvent discards the event.
func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

// Flush is a no-op.
func (t *NoOpTracer) Flush(ctx context.Context) error {
	return nil
}
