// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/observability"
)

// DefaultRoutingThreshold is the complexity score above which prompts are
// handed off to the workflow executor.
const DefaultRoutingThreshold = 0.5

// Complexity buckets.
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

// RoutingDecision is the stage-1 classification output.
type RoutingDecision struct {
	Intent          string  `json:"intent"`
	Complexity      string  `json:"complexity"`
	ComplexityScore float64 `json:"complexity_score"`
	ShouldRoute     bool    `json:"should_route"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning"`
	Workflow        string  `json:"workflow,omitempty"`
	CUJID           string  `json:"cuj_id,omitempty"`
	CloudProvider   string  `json:"cloud_provider,omitempty"`
}

// Handoff is the contract carried into a run's metadata when the router
// routes to the executor. The executor must not re-classify when Workflow
// is already set.
type Handoff struct {
	Timestamp        time.Time                   `json:"timestamp"`
	RouterSessionID  string                      `json:"routerSessionId"`
	RouterModel      string                      `json:"routerModel"`
	RoutingDecision  RoutingDecision             `json:"routingDecision"`
	AccumulatedCosts *observability.SessionCosts `json:"accumulatedCosts,omitempty"`
}

// MetadataKey is where the handoff lives in run metadata.
const MetadataKey = "routerHandoff"

// ToMetadata renders the handoff as run metadata.
func (h *Handoff) ToMetadata() (map[string]interface{}, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return map[string]interface{}{MetadataKey: m}, nil
}

// HandoffFromMetadata extracts a handoff from run metadata, or nil when the
// run was started by a legacy caller without routing.
func HandoffFromMetadata(metadata map[string]interface{}) (*Handoff, error) {
	raw, ok := metadata[MetadataKey]
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var h Handoff
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("corrupt router handoff: %w", err)
	}
	return &h, nil
}

// Outcome is the result of routing one prompt.
type Outcome struct {
	// Handled is true when the router answered directly on the cheap model.
	Handled  bool
	Response string
	Decision RoutingDecision
	Handoff  *Handoff
}

// Router classifies prompts on a cheap model and routes complex ones.
type Router struct {
	provider  llm.Provider
	sessions  *Sessions
	registry  *Registry
	costs     *observability.CostTracker
	tracer    observability.Tracer
	logger    *zap.Logger
	threshold float64
}

// Config configures the router.
type Config struct {
	Provider  llm.Provider // cheap-tier model
	Sessions  *Sessions
	Registry  *Registry
	Costs     *observability.CostTracker
	Tracer    observability.Tracer
	Logger    *zap.Logger
	Threshold float64
}

// New creates a router.
func New(cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultRoutingThreshold
	}
	return &Router{
		provider:  cfg.Provider,
		sessions:  cfg.Sessions,
		registry:  cfg.Registry,
		costs:     cfg.Costs,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger.With(zap.String("component", "router")),
		threshold: cfg.Threshold,
	}
}

const classifyPrompt = `Classify the user prompt for routing. Respond with a single JSON object and nothing else:
{"intent": "<one word>", "complexity": "low|medium|high", "complexity_score": <0..1>, "should_route": <bool>, "confidence": <0..1>, "reasoning": "<short>", "workflow": "<optional>", "cuj_id": "<optional>", "cloud_provider": "<optional>"}

User prompt:
`

// Classify runs stage-1 classification on the cheap model. Routing rules
// are applied on top of the model's own verdict: high complexity, a score
// at or past the threshold, or an intent with a mapped workflow all route.
func (r *Router) Classify(ctx context.Context, sessionID, prompt string) (RoutingDecision, error) {
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanRouterClassify)
	defer r.tracer.EndSpan(span)

	resp, err := r.provider.Invoke(ctx, &llm.Envelope{
		Messages: []llm.Message{{Role: "user", Content: classifyPrompt + prompt}},
	})
	if err != nil {
		return RoutingDecision{}, fmt.Errorf("classification call failed: %w", err)
	}

	decision, err := parseDecision(resp.Content)
	if err != nil {
		// A broken classifier must not strand the user: route everything.
		r.logger.Warn("unparseable classification, routing by default",
			zap.String("session", sessionID), zap.Error(err))
		decision = RoutingDecision{
			Intent:          "unknown",
			Complexity:      ComplexityHigh,
			ComplexityScore: 1.0,
			ShouldRoute:     true,
			Confidence:      0,
			Reasoning:       "classifier output unparseable",
		}
	}

	if decision.Complexity == ComplexityHigh || decision.ComplexityScore >= r.threshold {
		decision.ShouldRoute = true
	}
	if r.registry != nil && r.registry.HasWorkflow(decision.Intent) {
		decision.ShouldRoute = true
		if decision.Workflow == "" {
			decision.Workflow = r.registry.WorkflowFor(decision.Intent)
		}
	}

	span.SetAttribute("router.intent", decision.Intent)
	span.SetAttribute("router.complexity_score", decision.ComplexityScore)
	span.SetAttribute("router.should_route", decision.ShouldRoute)

	if r.costs != nil {
		r.costs.RecordRouting(sessionID, decision.ShouldRoute,
			decision.ComplexityScore, decision.Confidence)
	}
	return decision, nil
}

// Route classifies the prompt and either answers it directly on the cheap
// model or builds the handoff for the workflow executor.
func (r *Router) Route(ctx context.Context, sessionID, prompt string) (*Outcome, error) {
	if r.sessions != nil {
		if _, err := r.sessions.Init(sessionID, "router"); err != nil {
			return nil, err
		}
		if err := r.sessions.RecordModel(sessionID, r.provider.Model()); err != nil {
			r.logger.Warn("failed to record router model", zap.Error(err))
		}
	}

	decision, err := r.Classify(ctx, sessionID, prompt)
	if err != nil {
		return nil, err
	}

	if !decision.ShouldRoute {
		resp, err := r.provider.Invoke(ctx, &llm.Envelope{
			Messages: []llm.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return nil, fmt.Errorf("direct answer failed: %w", err)
		}
		r.logger.Info("prompt handled directly",
			zap.String("session", sessionID),
			zap.String("intent", decision.Intent))
		r.persistSessionMetrics(sessionID)
		return &Outcome{Handled: true, Response: resp.Content, Decision: decision}, nil
	}

	handoff := &Handoff{
		Timestamp:       time.Now(),
		RouterSessionID: sessionID,
		RouterModel:     r.provider.Model(),
		RoutingDecision: decision,
	}
	if r.costs != nil {
		if costs, err := r.costs.GetSessionCosts(sessionID); err == nil {
			handoff.AccumulatedCosts = costs
		}
	}
	r.logger.Info("prompt routed to executor",
		zap.String("session", sessionID),
		zap.String("intent", decision.Intent),
		zap.String("workflow", decision.Workflow),
		zap.Float64("complexity_score", decision.ComplexityScore))
	r.persistSessionMetrics(sessionID)
	return &Outcome{Decision: decision, Handoff: handoff}, nil
}

// persistSessionMetrics copies the in-memory cost and routing counters into
// the durable session record so they survive context losses.
func (r *Router) persistSessionMetrics(sessionID string) {
	if r.sessions == nil || r.costs == nil {
		return
	}
	st, err := r.sessions.Load(sessionID)
	if err != nil || st == nil {
		return
	}
	if costs, err := r.costs.GetSessionCosts(sessionID); err == nil {
		st.Costs = costs
	}
	if metrics, err := r.costs.GetRoutingMetrics(sessionID); err == nil {
		st.RoutingDecisions = &metrics
	}
	if err := r.sessions.Save(st); err != nil {
		r.logger.Warn("failed to persist session metrics",
			zap.String("session", sessionID), zap.Error(err))
	}
}

// parseDecision extracts the JSON decision from model output, tolerating
// code fences and surrounding prose.
func parseDecision(content string) (RoutingDecision, error) {
	text := strings.TrimSpace(content)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}
	var decision RoutingDecision
	if err := json.Unmarshal([]byte(text), &decision); err != nil {
		return RoutingDecision{}, err
	}
	switch decision.Complexity {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
	default:
		return RoutingDecision{}, fmt.Errorf("unknown complexity %q", decision.Complexity)
	}
	if decision.ComplexityScore < 0 || decision.ComplexityScore > 1 {
		return RoutingDecision{}, fmt.Errorf("complexity_score %v out of range", decision.ComplexityScore)
	}
	return decision, nil
}
