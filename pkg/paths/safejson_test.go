// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSafeReadJSONMissingFile verifies that a missing file reads as
// (nil, nil) rather than an error.
func TestSafeReadJSONMissingFile(t *testing.T) {
	r := newTestResolver(t)
	v, err := r.SafeReadJSON(filepath.Join(r.Root(), "nope.json"), "")
	require.NoError(t, err)
	assert.Nil(t, v)
}

// TestSafeReadJSONForbiddenKeys verifies prototype-pollution keys are
// rejected at any nesting depth.
func TestSafeReadJSONForbiddenKeys(t *testing.T) {
	r := newTestResolver(t)
	cases := map[string]string{
		"top-level":       `{"__proto__": {"polluted": true}}`,
		"nested":          `{"outer": {"constructor": {}}}`,
		"inside-array":    `{"items": [{"prototype": 1}]}`,
		"deeply-nested":   `{"a": {"b": {"c": {"__proto__": null}}}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(r.Root(), name+".json")
			require.NoError(t, os.WriteFile(path, []byte(doc), 0o640))
			_, err := r.SafeReadJSON(path, "")
			assert.ErrorIs(t, err, ErrForbiddenKey)
		})
	}
}

// TestSafeReadJSONSchemaValidation verifies documents are checked against
// their registered schema and that extra fields remain allowed.
func TestSafeReadJSONSchemaValidation(t *testing.T) {
	r := newTestResolver(t)

	valid := filepath.Join(r.Root(), "session.json")
	require.NoError(t, os.WriteFile(valid,
		[]byte(`{"session_id": "s1", "agent_role": "router", "read_count": 3, "future_field": true}`), 0o640))
	_, err := r.SafeReadJSON(valid, "router-state")
	assert.NoError(t, err, "extra fields must not violate the schema")

	invalid := filepath.Join(r.Root(), "bad.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"agent_role": "router"}`), 0o640))
	_, err = r.SafeReadJSON(invalid, "router-state")
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

// TestValidateSchemaUnknownName verifies unregistered schema names error.
func TestValidateSchemaUnknownName(t *testing.T) {
	err := ValidateSchema("not-a-schema", map[string]interface{}{})
	assert.ErrorIs(t, err, ErrUnknownSchema)
}

// TestValidateSchemaTaskEnvelope exercises the task envelope schema with a
// complete document and with the required keys stripped.
func TestValidateSchemaTaskEnvelope(t *testing.T) {
	doc := map[string]interface{}{
		"agent_type":       "implementer",
		"description":      "build the feature",
		"assigned_skills":  []interface{}{"go-style"},
		"output_artifacts": []interface{}{"artifacts/generated/out.md"},
		"execution_limits": map[string]interface{}{
			"max_turns":       25,
			"max_duration_ms": 600000,
			"max_cost_usd":    1.0,
			"timeout_action":  "terminate",
		},
		"verification": map[string]interface{}{
			"must_produce":     []interface{}{},
			"summary_required": true,
		},
	}
	assert.NoError(t, ValidateSchema("task-envelope", doc))

	delete(doc, "verification")
	assert.ErrorIs(t, ValidateSchema("task-envelope", doc), ErrSchemaViolation)
}

// TestValidateSchemaRunState verifies the run status enum is enforced.
func TestValidateSchemaRunState(t *testing.T) {
	ok := map[string]interface{}{"id": "run-1", "status": "in_progress"}
	assert.NoError(t, ValidateSchema("run-state", ok))

	bad := map[string]interface{}{"id": "run-1", "status": "exploded"}
	assert.ErrorIs(t, ValidateSchema("run-state", bad), ErrSchemaViolation)
}
