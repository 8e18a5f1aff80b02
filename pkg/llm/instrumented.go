// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"context"
	"time"

	"github.com/teradata-labs/weft/pkg/observability"
)

// InstrumentedProvider wraps a Provider with tracing and cost accounting.
// Every invocation produces a span and a usage record attributed to the
// session, so aggregate cost survives router handoffs.
type InstrumentedProvider struct {
	provider Provider
	tracer   observability.Tracer
	costs    *observability.CostTracker
	agent    string
	session  string
}

// NewInstrumentedProvider wraps provider. tracer and costs may be nil.
func NewInstrumentedProvider(provider Provider, tracer observability.Tracer,
	costs *observability.CostTracker, agent, session string) *InstrumentedProvider {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return &InstrumentedProvider{
		provider: provider,
		tracer:   tracer,
		costs:    costs,
		agent:    agent,
		session:  session,
	}
}

// Name returns the wrapped provider's name.
func (p *InstrumentedProvider) Name() string { return p.provider.Name() }

// Model returns the wrapped provider's default model.
func (p *InstrumentedProvider) Model() string { return p.provider.Model() }

// Invoke delegates to the wrapped provider and records span, latency and
// token cost for the call.
func (p *InstrumentedProvider) Invoke(ctx context.Context, env *Envelope) (*Response, error) {
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanAgentInvoke,
		observability.WithAttribute(observability.AttrAgentName, p.agent),
	)
	defer p.tracer.EndSpan(span)

	model := env.Model
	if model == "" {
		model = p.provider.Model()
	}
	span.SetAttribute(observability.AttrModel, model)
	span.SetAttribute("llm.provider", p.provider.Name())
	span.SetAttribute("llm.message_count", len(env.Messages))

	start := time.Now()
	resp, err := p.provider.Invoke(ctx, env)
	elapsed := time.Since(start)

	p.tracer.RecordMetric("llm.invoke.duration_ms", float64(elapsed.Milliseconds()),
		map[string]string{"provider": p.provider.Name(), "model": model})

	if err != nil {
		span.SetStatus(observability.StatusError, err.Error())
		p.tracer.RecordMetric("llm.invoke.errors", 1,
			map[string]string{"provider": p.provider.Name()})
		return nil, err
	}

	span.SetAttribute("llm.input_tokens", resp.Usage.InputTokens)
	span.SetAttribute("llm.output_tokens", resp.Usage.OutputTokens)
	span.SetAttribute("llm.finish_reason", resp.FinishReason)
	span.SetStatus(observability.StatusOK, "")

	if p.costs != nil {
		p.costs.Record(p.session, model, p.agent,
			resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	return resp, nil
}
