// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package observability

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OTLPConfig configures the OTLP tracer.
type OTLPConfig struct {
	Endpoint       string        // OTLP gRPC endpoint (default: localhost:4317)
	ServiceName    string        // default: weft
	BatchSize      int           // max export batch size (default: 512)
	BatchTimeout   time.Duration // batch timeout (default: 5s)
	MaxQueueSize   int           // max queued spans (default: 4096)
	Insecure       bool
	Logger         *zap.Logger
}

// OTLPConfigFromEnv builds a config from OTEL_* environment variables.
// Returns enabled=false when OTEL_ENABLED is unset or false.
func OTLPConfigFromEnv() (OTLPConfig, bool) {
	enabled, _ := strconv.ParseBool(os.Getenv("OTEL_ENABLED"))
	cfg := OTLPConfig{
		Endpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure: true,
	}
	if v := os.Getenv("OTEL_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("OTEL_BATCH_TIMEOUT"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.BatchTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	return cfg, enabled
}

// OTLPTracer exports spans over OTLP gRPC through a batch processor.
type OTLPTracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	logger   *zap.Logger

	mu      sync.Mutex
	metrics map[string]float64 // running counters, exported as span events on flush
	active  map[string]trace.Span
}

// NewOTLPTracer creates a tracer exporting to the configured OTLP endpoint.
func NewOTLPTracer(ctx context.Context, cfg OTLPConfig) (*OTLPTracer, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "weft"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 512
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 5 * time.Second
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 4096
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(cfg.BatchSize),
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
		),
		sdktrace.WithResource(res),
	)

	return &OTLPTracer{
		provider: provider,
		tracer:   provider.Tracer("weft"),
		logger:   cfg.Logger,
		metrics:  make(map[string]float64),
		active:   make(map[string]trace.Span),
	}, nil
}

// StartSpan creates a kernel span backed by an OTLP span.
func (t *OTLPTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	otelCtx, otelSpan := t.tracer.Start(ctx, name)

	span := &Span{
		TraceID:    otelSpan.SpanContext().TraceID().String(),
		SpanID:     otelSpan.SpanContext().SpanID().String(),
		Name:       name,
		StartTime:  time.Now(),
		Attributes: make(map[string]interface{}),
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.ParentID = parent.SpanID
	}
	for _, opt := range opts {
		opt(span)
	}

	t.mu.Lock()
	t.active[span.SpanID] = otelSpan
	t.mu.Unlock()

	return ContextWithSpan(otelCtx, span), span
}

// EndSpan flushes attributes and events onto the backing OTLP span and ends it.
func (t *OTLPTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)

	t.mu.Lock()
	otelSpan, ok := t.active[span.SpanID]
	delete(t.active, span.SpanID)
	t.mu.Unlock()
	if !ok {
		return
	}

	for k, v := range span.Attributes {
		otelSpan.SetAttributes(attribute.String(k, fmt.Sprintf("%v", v)))
	}
	for _, ev := range span.Events {
		attrs := make([]attribute.KeyValue, 0, len(ev.Attributes))
		for k, v := range ev.Attributes {
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", v)))
		}
		otelSpan.AddEvent(ev.Name, trace.WithTimestamp(ev.Timestamp), trace.WithAttributes(attrs...))
	}
	switch span.Status.Code {
	case StatusError:
		otelSpan.SetStatus(codes.Error, span.Status.Message)
	case StatusOK:
		otelSpan.SetStatus(codes.Ok, span.Status.Message)
	}
	otelSpan.End()
}

// RecordMetric accumulates a counter; exported as attributes on a synthetic
// metrics span at flush time (the OTLP metrics pipeline is not wired).
func (t *OTLPTracer) RecordMetric(name string, value float64, labels map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := name
	for k, v := range labels {
		key += "|" + k + "=" + v
	}
	t.metrics[key] += value
}

// RecordEvent records a standalone event as a zero-duration span.
func (t *OTLPTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	_, span := t.StartSpan(ctx, name)
	for k, v := range attributes {
		span.SetAttribute(k, v)
	}
	span.SetAttribute("event.id", uuid.New().String())
	t.EndSpan(span)
}

// Flush exports buffered spans and shuts down cleanly on context cancel.
func (t *OTLPTracer) Flush(ctx context.Context) error {
	t.mu.Lock()
	if len(t.metrics) > 0 {
		_, span := t.tracer.Start(ctx, "weft.metrics")
		for k, v := range t.metrics {
			span.SetAttributes(attribute.Float64(k, v))
		}
		span.End()
		t.metrics = make(map[string]float64)
	}
	t.mu.Unlock()

	if err := t.provider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("failed to flush spans: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the exporter.
func (t *OTLPTracer) Shutdown(ctx context.Context) error {
	if err := t.Flush(ctx); err != nil {
		t.logger.Warn("flush on shutdown failed", zap.Error(err))
	}
	return t.provider.Shutdown(ctx)
}
