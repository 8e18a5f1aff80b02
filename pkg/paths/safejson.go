// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package paths

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrForbiddenKey is returned when parsed JSON contains a
	// prototype-pollution key.
	ErrForbiddenKey = errors.New("forbidden key in JSON document")
	// ErrSchemaViolation is returned when a document fails its registered schema.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrUnknownSchema is returned for a schema name outside the registry.
	ErrUnknownSchema = errors.New("unknown schema")
)

// Keys that must never appear in parsed state documents, at any depth.
var forbiddenKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// registeredSchemas holds the JSON Schema set for state documents.
// Validation goes through gojsonschema; the schemas are intentionally
// permissive about extra fields so state can evolve forward-compatibly.
var registeredSchemas = map[string]string{
	"router-state": `{
		"type": "object",
		"required": ["session_id", "agent_role"],
		"properties": {
			"session_id": {"type": "string", "minLength": 1},
			"agent_role": {"type": "string"},
			"read_count": {"type": "integer", "minimum": 0},
			"violations": {"type": "array"},
			"files_read": {"type": "array", "items": {"type": "string"}},
			"model": {"type": "string"},
			"model_history": {"type": "array"}
		}
	}`,
	"loop-state": `{
		"type": "object",
		"required": ["iteration"],
		"properties": {
			"iteration": {"type": "integer", "minimum": 0},
			"max_iterations": {"type": "integer", "minimum": 1}
		}
	}`,
	"evolution-state": `{
		"type": "object",
		"properties": {
			"generation": {"type": "integer", "minimum": 0},
			"history": {"type": "array"}
		}
	}`,
	"run-state": `{
		"type": "object",
		"required": ["id", "status"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"status": {"enum": ["created", "in_progress", "paused", "completed", "failed"]},
			"current_step": {"type": "integer", "minimum": 0},
			"workflow": {"type": "string"},
			"metadata": {"type": "object"}
		}
	}`,
	"plan": `{
		"type": "object",
		"required": ["phases"],
		"properties": {
			"phases": {"type": "array", "minItems": 1},
			"risks": {"type": "array"},
			"success_criteria": {"type": "array"}
		}
	}`,
	"task-envelope": `{
		"type": "object",
		"required": ["agent_type", "description", "assigned_skills", "output_artifacts", "execution_limits", "verification"],
		"properties": {
			"agent_type": {"type": "string", "minLength": 1},
			"description": {"type": "string", "minLength": 1},
			"assigned_skills": {"type": "array", "items": {"type": "string"}},
			"required_artifacts": {"type": "array", "items": {"type": "string"}},
			"output_artifacts": {"type": "array", "items": {"type": "string"}},
			"task_id": {"type": "string"},
			"model": {"type": "string"},
			"tools_allowed": {"type": "array", "items": {"type": "string"}},
			"prompt_template_id": {"type": "string"},
			"execution_limits": {
				"type": "object",
				"required": ["max_turns", "max_duration_ms", "max_cost_usd", "timeout_action"],
				"properties": {
					"max_turns": {"type": "integer", "minimum": 1, "maximum": 100},
					"max_duration_ms": {"type": "integer", "minimum": 1000, "maximum": 3600000},
					"max_cost_usd": {"type": "number", "minimum": 0.01, "maximum": 100.0},
					"timeout_action": {"enum": ["terminate", "pause", "warn"]}
				}
			},
			"verification": {
				"type": "object",
				"required": ["must_produce", "summary_required"],
				"properties": {
					"must_produce": {"type": "array", "items": {"type": "string"}},
					"must_not_error": {"type": "boolean"},
					"summary_required": {"type": "boolean"}
				}
			}
		}
	}`,
}

// ValidateSchema validates an already-parsed document against a registered
// schema by name.
func ValidateSchema(schemaName string, value interface{}) error {
	schemaSrc, ok := registeredSchemas[schemaName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchema, schemaName)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaSrc),
		gojsonschema.NewGoLoader(value),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", schemaName, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w (%s): %s", ErrSchemaViolation, schemaName, strings.Join(msgs, "; "))
	}
	return nil
}

// SafeReadJSON reads and parses a JSON state file. It returns (nil, nil)
// when the file is missing, rejects prototype-pollution keys at any depth,
// and validates the document against the named schema. Pass an empty schema
// name to skip schema validation.
func (r *Resolver) SafeReadJSON(path, schemaName string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("malformed JSON in %s: %w", path, err)
	}

	if key := findForbiddenKey(value); key != "" {
		return nil, fmt.Errorf("%w: %q in %s", ErrForbiddenKey, key, path)
	}

	if schemaName != "" {
		if err := ValidateSchema(schemaName, value); err != nil {
			return nil, err
		}
	}
	return value, nil
}

// findForbiddenKey walks the document depth-first and returns the first
// prototype-pollution key encountered, or "".
func findForbiddenKey(value interface{}) string {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, child := range v {
			if forbiddenKeys[key] {
				return key
			}
			if found := findForbiddenKey(child); found != "" {
				return found
			}
		}
	case []interface{}:
		for _, child := range v {
			if found := findForbiddenKey(child); found != "" {
				return found
			}
		}
	}
	return ""
}
