// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestClassify verifies the legacy-vs-worker heuristic: long-running
// keywords and high complexity pick workers, everything else stays legacy.
func TestClassify(t *testing.T) {
	cases := []struct {
		name        string
		description string
		complexity  float64
		wantMode    string
	}{
		{"implement keyword", "Implement the billing service", 0.1, ModeWorker},
		{"refactor keyword", "refactor the storage layer", 0.0, ModeWorker},
		{"migration keyword", "migrate all sessions to the new schema", 0.2, ModeWorker},
		{"comprehensive keyword", "comprehensive audit of hook coverage", 0.0, ModeWorker},
		{"high complexity", "polish the docs", 0.8, ModeWorker},
		{"complexity just below", "polish the docs", 0.79, ModeLegacy},
		{"fix keyword", "fix the off-by-one in pagination", 0.5, ModeLegacy},
		{"rename keyword", "rename the config field", 0.3, ModeLegacy},
		{"no signal", "investigate flaky pipeline", 0.4, ModeLegacy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.description, tc.complexity)
			assert.Equal(t, tc.wantMode, got.Mode)
			assert.Equal(t, tc.complexity, got.ComplexityScore)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

// TestClassifyKeywordBeatsComplexity verifies a long-running keyword wins
// even at low complexity, and is checked before the short keywords.
func TestClassifyKeywordBeatsComplexity(t *testing.T) {
	// "fix" and "refactor" both present; the long-running keyword decides.
	got := Classify("fix tests while we refactor the parser", 0.0)
	assert.Equal(t, ModeWorker, got.Mode)
}

// TestLimitsClamp verifies out-of-range execution limits are forced into
// bounds and zero values take defaults.
func TestLimitsClamp(t *testing.T) {
	def := ExecutionLimits{}.Clamp()
	assert.Equal(t, DefaultLimits(), def)

	low := ExecutionLimits{MaxTurns: -5, MaxDurationMs: 10, MaxCostUSD: 0.001, TimeoutAction: "explode"}.Clamp()
	assert.Equal(t, 1, low.MaxTurns)
	assert.Equal(t, int64(1000), low.MaxDurationMs)
	assert.Equal(t, 0.01, low.MaxCostUSD)
	assert.Equal(t, ActionTerminate, low.TimeoutAction)

	high := ExecutionLimits{MaxTurns: 500, MaxDurationMs: 7_200_000, MaxCostUSD: 1000, TimeoutAction: ActionPause}.Clamp()
	assert.Equal(t, 100, high.MaxTurns)
	assert.Equal(t, int64(3_600_000), high.MaxDurationMs)
	assert.Equal(t, 100.0, high.MaxCostUSD)
	assert.Equal(t, ActionPause, high.TimeoutAction)
}
