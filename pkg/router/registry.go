// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package router

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/paths"
)

// defaultIntentWorkflows is the built-in intent → workflow map, used when no
// registry config overrides it.
var defaultIntentWorkflows = map[string]string{
	"web_app":        "web-app-development",
	"infrastructure": "infrastructure-provisioning",
	"analysis":       "data-analysis",
	"cuj_execution":  "cuj-execution",
	"migration":      "migration",
	"security":       "security-review",
}

// Registry is the data-driven intent → workflow map the router consults.
type Registry struct {
	workflows map[string]string
}

// LoadRegistry reads the registry config through the resolver and merges it
// over the defaults. A missing file means defaults only.
func LoadRegistry(resolver *paths.Resolver, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	merged := make(map[string]string, len(defaultIntentWorkflows))
	for intent, wf := range defaultIntentWorkflows {
		merged[intent] = wf
	}

	path, err := resolver.ResolveConfig("registry", paths.Read)
	if err != nil {
		return nil, err
	}
	raw, err := resolver.SafeReadJSON(path, "")
	if err != nil {
		return nil, err
	}
	if raw != nil {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		var overlay struct {
			IntentWorkflows map[string]string `json:"intent_workflows"`
		}
		if err := json.Unmarshal(data, &overlay); err == nil {
			for intent, wf := range overlay.IntentWorkflows {
				merged[intent] = wf
			}
		} else {
			logger.Warn("ignoring malformed workflow registry", zap.Error(err))
		}
	}
	return &Registry{workflows: merged}, nil
}

// WorkflowFor returns the workflow for an intent, or "" when the intent has
// no mapped workflow.
func (r *Registry) WorkflowFor(intent string) string {
	return r.workflows[intent]
}

// HasWorkflow reports whether the intent demands a workflow.
func (r *Registry) HasWorkflow(intent string) bool {
	_, ok := r.workflows[intent]
	return ok
}
