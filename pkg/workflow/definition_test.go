// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const featureWorkflowYAML = `apiVersion: weft/v1
kind: Workflow
metadata:
  name: feature
  description: plan and build a feature
spec:
  steps:
    - id: plan
      name: Planning
      tasks:
        - agent: planner
          description: Produce the execution plan
      validation:
        rating: true
    - id: build
      name: Implementation
      tasks:
        - agent: implementer
          description: Build it
          skills: [go-style]
          outputs: [artifacts/generated/feature.md]
          summary_required: true
`

func validDefinition() *Definition {
	def := &Definition{APIVersion: APIVersion, Kind: KindFlow}
	def.Metadata.Name = "feature"
	def.Spec.Steps = []Step{
		{ID: "plan", Name: "Planning", Tasks: []StepTask{
			{Agent: "planner", Description: "Produce the plan"},
		}},
	}
	return def
}

// TestLoadWorkflow verifies YAML parsing of a full definition.
func TestLoadWorkflow(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feature.yaml"),
		[]byte(featureWorkflowYAML), 0o640))

	def, err := LoadByName(dir, "feature")
	require.NoError(t, err)
	assert.Equal(t, "feature", def.Metadata.Name)
	require.Len(t, def.Spec.Steps, 2)
	assert.True(t, def.Spec.Steps[0].Validation.Rating)

	build := def.Spec.Steps[1].Tasks[0]
	assert.Equal(t, "implementer", build.Agent)
	assert.Equal(t, []string{"go-style"}, build.Skills)
	assert.True(t, build.SummaryRequired)

	_, err = LoadByName(dir, "absent")
	assert.Error(t, err)
}

// TestDefinitionValidate verifies each structural invariant.
func TestDefinitionValidate(t *testing.T) {
	require.NoError(t, validDefinition().Validate())

	cases := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"wrong apiVersion", func(d *Definition) { d.APIVersion = "weft/v2" }},
		{"wrong kind", func(d *Definition) { d.Kind = "Pipeline" }},
		{"missing name", func(d *Definition) { d.Metadata.Name = "" }},
		{"no steps", func(d *Definition) { d.Spec.Steps = nil }},
		{"step without id", func(d *Definition) { d.Spec.Steps[0].ID = "" }},
		{"duplicate step ids", func(d *Definition) {
			d.Spec.Steps = append(d.Spec.Steps, d.Spec.Steps[0])
		}},
		{"step without tasks", func(d *Definition) { d.Spec.Steps[0].Tasks = nil }},
		{"task without agent", func(d *Definition) { d.Spec.Steps[0].Tasks[0].Agent = "" }},
		{"task without description", func(d *Definition) { d.Spec.Steps[0].Tasks[0].Description = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := validDefinition()
			tc.mutate(def)
			assert.Error(t, def.Validate())
		})
	}
}

// TestLoadRejectsMalformedYAML verifies parse failures carry the file path.
func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps: [unclosed"), 0o640))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")
}
