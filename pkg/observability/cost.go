// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package observability

import (
	"fmt"
	"sync"
	"time"
)

// ModelPricing holds per-token pricing for a model, in USD per million tokens.
type ModelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
	Tier          string // cheap, mid, expensive
}

// defaultPricing is the single pricing table keyed by model id. Totals are
// always computed from persisted per-model accumulators, never from
// transient state.
var defaultPricing = map[string]ModelPricing{
	"claude-3-5-haiku-20241022":  {InputPerMTok: 0.80, OutputPerMTok: 4.00, Tier: "cheap"},
	"claude-sonnet-4-5-20250929": {InputPerMTok: 3.00, OutputPerMTok: 15.00, Tier: "mid"},
	"claude-opus-4-1-20250805":   {InputPerMTok: 15.00, OutputPerMTok: 75.00, Tier: "expensive"},
}

// ModelCost accumulates usage for a single model.
type ModelCost struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// UsageRecord is one entry in the model usage timeline.
type UsageRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Operation    string    `json:"operation,omitempty"`
}

// SessionCosts is the per-session cost aggregate. The invariant
// Total == Σ PerModel[*].CostUSD holds after every update.
type SessionCosts struct {
	PerModel map[string]*ModelCost `json:"per_model"`
	Total    float64               `json:"total"`
	Timeline []UsageRecord         `json:"model_usage"`
}

// RoutingMetrics summarizes router activity for a session.
type RoutingMetrics struct {
	Total                int     `json:"total"`
	SimpleHandled        int     `json:"simple_handled"`
	RoutedToOrchestrator int     `json:"routed_to_orchestrator"`
	AvgComplexity        float64 `json:"avg_complexity"`
	AvgConfidence        float64 `json:"avg_confidence"`
}

// CostTracker aggregates per-session, per-model costs.
// Thread-safe: all methods can be called concurrently.
type CostTracker struct {
	mu       sync.Mutex
	pricing  map[string]ModelPricing
	sessions map[string]*SessionCosts
	routing  map[string]*routingAccum
}

type routingAccum struct {
	metrics       RoutingMetrics
	sumComplexity float64
	sumConfidence float64
}

// NewCostTracker creates a tracker with the default pricing table.
func NewCostTracker() *CostTracker {
	return &CostTracker{
		pricing:  defaultPricing,
		sessions: make(map[string]*SessionCosts),
		routing:  make(map[string]*routingAccum),
	}
}

// Price returns the cost in USD for a single call against a model.
// Unknown models price at zero (and should be flagged upstream).
func (c *CostTracker) Price(model string, inputTokens, outputTokens int) float64 {
	p, ok := c.pricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*p.InputPerMTok + float64(outputTokens)/1e6*p.OutputPerMTok
}

// Tier returns the pricing tier for a model (cheap/mid/expensive),
// or "unknown" for unpriced models.
func (c *CostTracker) Tier(model string) string {
	if p, ok := c.pricing[model]; ok {
		return p.Tier
	}
	return "unknown"
}

// Record accumulates one model invocation into the session totals.
func (c *CostTracker) Record(sessionID, model, operation string, inputTokens, outputTokens int) float64 {
	cost := c.Price(model, inputTokens, outputTokens)

	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.sessions[sessionID]
	if sess == nil {
		sess = &SessionCosts{PerModel: make(map[string]*ModelCost)}
		c.sessions[sessionID] = sess
	}
	mc := sess.PerModel[model]
	if mc == nil {
		mc = &ModelCost{}
		sess.PerModel[model] = mc
	}
	mc.InputTokens += inputTokens
	mc.OutputTokens += outputTokens
	mc.CostUSD += cost
	sess.Timeline = append(sess.Timeline, UsageRecord{
		Timestamp:    time.Now(),
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Operation:    operation,
	})

	// Recompute from per-model accumulators so the sum invariant holds.
	sess.Total = 0
	for _, m := range sess.PerModel {
		sess.Total += m.CostUSD
	}
	return cost
}

// Merge folds previously accumulated costs (e.g. carried through a router
// handoff) into a session.
func (c *CostTracker) Merge(sessionID string, other *SessionCosts) {
	if other == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.sessions[sessionID]
	if sess == nil {
		sess = &SessionCosts{PerModel: make(map[string]*ModelCost)}
		c.sessions[sessionID] = sess
	}
	for model, mc := range other.PerModel {
		dst := sess.PerModel[model]
		if dst == nil {
			dst = &ModelCost{}
			sess.PerModel[model] = dst
		}
		dst.InputTokens += mc.InputTokens
		dst.OutputTokens += mc.OutputTokens
		dst.CostUSD += mc.CostUSD
	}
	sess.Timeline = append(sess.Timeline, other.Timeline...)
	sess.Total = 0
	for _, m := range sess.PerModel {
		sess.Total += m.CostUSD
	}
}

// RecordRouting accumulates a routing decision into the session metrics.
func (c *CostTracker) RecordRouting(sessionID string, routed bool, complexityScore, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	acc := c.routing[sessionID]
	if acc == nil {
		acc = &routingAccum{}
		c.routing[sessionID] = acc
	}
	acc.metrics.Total++
	if routed {
		acc.metrics.RoutedToOrchestrator++
	} else {
		acc.metrics.SimpleHandled++
	}
	acc.sumComplexity += complexityScore
	acc.sumConfidence += confidence
	acc.metrics.AvgComplexity = acc.sumComplexity / float64(acc.metrics.Total)
	acc.metrics.AvgConfidence = acc.sumConfidence / float64(acc.metrics.Total)
}

// GetSessionCosts returns a copy of the session's cost aggregate.
func (c *CostTracker) GetSessionCosts(sessionID string) (*SessionCosts, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no cost record for session %s", sessionID)
	}
	out := &SessionCosts{
		PerModel: make(map[string]*ModelCost, len(sess.PerModel)),
		Total:    sess.Total,
		Timeline: append([]UsageRecord(nil), sess.Timeline...),
	}
	for model, mc := range sess.PerModel {
		cp := *mc
		out.PerModel[model] = &cp
	}
	return out, nil
}

// GetRoutingMetrics returns the routing metrics for a session.
func (c *CostTracker) GetRoutingMetrics(sessionID string) (RoutingMetrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	acc, ok := c.routing[sessionID]
	if !ok {
		return RoutingMetrics{}, fmt.Errorf("no routing metrics for session %s", sessionID)
	}
	return acc.metrics, nil
}
