// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package party

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/hooks"
)

// TestIsolateContextStripsForbiddenKeys verifies orchestrator-only keys
// never reach an agent and the boundary is stamped.
func TestIsolateContextStripsForbiddenKeys(t *testing.T) {
	shared := map[string]interface{}{
		"topic":              "storage design",
		"_orchestratorState": map[string]interface{}{"secret": true},
		"_apiKeys":           "sk-xxx",
	}
	team := &Team{Members: []Member{{AgentID: "agent_a"}}}

	isolated := IsolateContext(shared, nil, team, "agent_a")
	assert.Equal(t, "storage design", isolated["topic"])
	assert.NotContains(t, isolated, "_orchestratorState")
	assert.NotContains(t, isolated, "_apiKeys")
	assert.Equal(t, true, isolated[KeyIsolationBoundary])
	assert.Equal(t, "agent_a", isolated[KeyAgentID])
	require.NoError(t, CheckIsolation(isolated))
}

// TestIsolateContextDeepClones verifies an agent mutating its view cannot
// touch the shared context.
func TestIsolateContextDeepClones(t *testing.T) {
	shared := map[string]interface{}{
		"nested": map[string]interface{}{"value": "original"},
	}
	team := &Team{}
	isolated := IsolateContext(shared, nil, team, "agent_a")

	isolated["nested"].(map[string]interface{})["value"] = "mutated"
	assert.Equal(t, "original", shared["nested"].(map[string]interface{})["value"])
}

// TestIsolateContextSanitizesResponses verifies sibling responses carry only
// whitelisted fields plus team display metadata.
func TestIsolateContextSanitizesResponses(t *testing.T) {
	team := &Team{Members: []Member{{AgentID: "agent_b", DisplayName: "reviewer", Icon: "R"}}}
	responses := []ChainEntry{
		{AgentID: "agent_b", Content: "ship it", Timestamp: "t1", Hash: "abc"},
	}

	isolated := IsolateContext(map[string]interface{}{}, responses, team, "agent_a")
	sanitized, ok := isolated["previousResponses"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, sanitized, 1)
	assert.Equal(t, "agent_b", sanitized[0]["agentName"])
	assert.Equal(t, "ship it", sanitized[0]["content"])
	assert.Equal(t, "reviewer", sanitized[0]["displayName"])
	require.NoError(t, CheckIsolation(isolated))
}

// TestCheckIsolationFlagsViolations verifies the defense-in-depth check
// catches forbidden keys and unsanitized fields.
func TestCheckIsolationFlagsViolations(t *testing.T) {
	assert.Error(t, CheckIsolation(map[string]interface{}{
		"_sessionSecrets": "leak",
	}))
	assert.Error(t, CheckIsolation(map[string]interface{}{
		"previousResponses": []map[string]interface{}{
			{"content": "fine", "rawReasoning": "should have been dropped"},
		},
	}))
}

// TestMemoryBoundaryHook verifies sidecar writes are confined to the owning
// agent's directory.
func TestMemoryBoundaryHook(t *testing.T) {
	sidecar := t.TempDir()
	hook := NewMemoryBoundaryHook(sidecar)

	invoke := func(path, agentID string) *hooks.Decision {
		env := &hooks.Envelope{
			Event:     hooks.EventPreToolUse,
			ToolName:  "file_write",
			ToolInput: map[string]interface{}{"path": path},
			Context:   map[string]interface{}{KeyAgentID: agentID},
		}
		d, err := hook.Handler(env)
		require.NoError(t, err)
		return d
	}

	// Own directory allowed, sibling directory blocked.
	own := invoke(filepath.Join(sidecar, "agent_a", "notes.md"), "agent_a")
	assert.Equal(t, hooks.DecisionAllow, own.Decision)

	cross := invoke(filepath.Join(sidecar, "agent_b", "notes.md"), "agent_a")
	assert.Equal(t, hooks.DecisionBlock, cross.Decision)

	// Traversal back into a sibling is normalized before the check.
	sneaky := invoke(filepath.Join(sidecar, "agent_a", "..", "agent_b", "notes.md"), "agent_a")
	assert.Equal(t, hooks.DecisionBlock, sneaky.Decision)

	// Paths outside the sidecar tree are another hook's concern.
	outside := invoke("/tmp/elsewhere.md", "agent_a")
	assert.Equal(t, hooks.DecisionAllow, outside.Decision)

	// No identity means no sidecar access at all.
	anon := invoke(filepath.Join(sidecar, "agent_a", "notes.md"), "")
	assert.Equal(t, hooks.DecisionBlock, anon.Decision)
}
