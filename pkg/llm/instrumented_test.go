// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/observability"
)

// TestInstrumentedProviderRecordsCosts verifies every invocation lands in
// the session cost aggregate, attributed to the envelope's model.
func TestInstrumentedProviderRecordsCosts(t *testing.T) {
	fake := NewFakeProvider("claude-3-5-haiku-20241022", &Response{
		Content: "answer",
		Usage:   Usage{InputTokens: 1000, OutputTokens: 500},
	})
	costs := observability.NewCostTracker()
	p := NewInstrumentedProvider(fake, nil, costs, "router", "session-1")

	resp, err := p.Invoke(context.Background(), &Envelope{
		Messages: []Message{{Role: "user", Content: "q"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Content)

	sc, err := costs.GetSessionCosts("session-1")
	require.NoError(t, err)
	mc := sc.PerModel["claude-3-5-haiku-20241022"]
	require.NotNil(t, mc)
	assert.Equal(t, 1000, mc.InputTokens)
	assert.Equal(t, 500, mc.OutputTokens)
	assert.InDelta(t, 1000.0/1e6*0.80+500.0/1e6*4.00, sc.Total, 1e-9)
	require.Len(t, sc.Timeline, 1)
	assert.Equal(t, "router", sc.Timeline[0].Operation)
}

// TestInstrumentedProviderEnvelopeModelWins verifies an explicit envelope
// model overrides the provider default for attribution.
func TestInstrumentedProviderEnvelopeModelWins(t *testing.T) {
	fake := NewFakeProvider("default-model", &Response{
		Usage: Usage{InputTokens: 10, OutputTokens: 10},
	})
	costs := observability.NewCostTracker()
	p := NewInstrumentedProvider(fake, nil, costs, "agent", "session-2")

	_, err := p.Invoke(context.Background(), &Envelope{
		Model:    "claude-sonnet-4-5-20250929",
		Messages: []Message{{Role: "user", Content: "q"}},
	})
	require.NoError(t, err)

	sc, err := costs.GetSessionCosts("session-2")
	require.NoError(t, err)
	assert.Contains(t, sc.PerModel, "claude-sonnet-4-5-20250929")
	assert.NotContains(t, sc.PerModel, "default-model")
}

// TestInstrumentedProviderErrorPassthrough verifies provider errors surface
// unchanged and record no cost.
func TestInstrumentedProviderErrorPassthrough(t *testing.T) {
	fake := NewFakeProvider("m") // no script: every call errors
	costs := observability.NewCostTracker()
	p := NewInstrumentedProvider(fake, nil, costs, "agent", "session-3")

	_, err := p.Invoke(context.Background(), &Envelope{})
	assert.Error(t, err)
	_, err = costs.GetSessionCosts("session-3")
	assert.Error(t, err, "failed invocations record nothing")
}
