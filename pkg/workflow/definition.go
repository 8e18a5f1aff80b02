// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package workflow drives runs to completion: sequential steps with
// optional parallel task fans, enforcement gates between them, and run
// state persisted atomically after every step.
package workflow

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/weft/pkg/supervisor"
)

// Workflow definition file format.
const (
	APIVersion = "weft/v1"
	KindFlow   = "Workflow"
)

// StepTask is one agent task within a step. Steps with multiple tasks fan
// out concurrently and synchronize at the step boundary.
type StepTask struct {
	Agent           string                      `yaml:"agent"`
	Description     string                      `yaml:"description"`
	Skills          []string                    `yaml:"skills,omitempty"`
	Outputs         []string                    `yaml:"outputs,omitempty"`
	Model           string                      `yaml:"model,omitempty"`
	Tools           []string                    `yaml:"tools,omitempty"`
	Limits          *supervisor.ExecutionLimits `yaml:"limits,omitempty"`
	SummaryRequired bool                        `yaml:"summary_required"`
}

// StepValidation configures a step's artifact checks.
type StepValidation struct {
	Schema string `yaml:"schema,omitempty"`
	Rating bool   `yaml:"rating,omitempty"` // plan rating gate
}

// Step is one stage of a workflow. Step 0 is always planning.
type Step struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Tasks      []StepTask     `yaml:"tasks"`
	Inputs     []string       `yaml:"inputs,omitempty"`
	Outputs    []string       `yaml:"outputs,omitempty"`
	Validation StepValidation `yaml:"validation,omitempty"`
}

// Definition is a parsed workflow file.
type Definition struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Metadata   struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description,omitempty"`
	} `yaml:"metadata"`
	Spec struct {
		Steps []Step `yaml:"steps"`
	} `yaml:"spec"`
}

// Load parses and validates a workflow definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", path, err)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("malformed workflow %s: %w", path, err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow %s: %w", path, err)
	}
	return &def, nil
}

// LoadByName loads <dir>/<name>.yaml.
func LoadByName(dir, name string) (*Definition, error) {
	return Load(filepath.Join(dir, name+".yaml"))
}

// Validate checks structural invariants of the definition.
func (d *Definition) Validate() error {
	if d.APIVersion != APIVersion {
		return fmt.Errorf("unsupported apiVersion %q (want %s)", d.APIVersion, APIVersion)
	}
	if d.Kind != KindFlow {
		return fmt.Errorf("unsupported kind %q (want %s)", d.Kind, KindFlow)
	}
	if d.Metadata.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}
	if len(d.Spec.Steps) == 0 {
		return fmt.Errorf("workflow has no steps")
	}
	seen := map[string]bool{}
	for i, step := range d.Spec.Steps {
		if step.ID == "" {
			return fmt.Errorf("step %d has no id", i)
		}
		if seen[step.ID] {
			return fmt.Errorf("duplicate step id %q", step.ID)
		}
		seen[step.ID] = true
		if len(step.Tasks) == 0 {
			return fmt.Errorf("step %q has no tasks", step.ID)
		}
		for j, task := range step.Tasks {
			if task.Agent == "" {
				return fmt.Errorf("step %q task %d has no agent", step.ID, j)
			}
			if task.Description == "" {
				return fmt.Errorf("step %q task %d has no description", step.ID, j)
			}
		}
	}
	return nil
}
