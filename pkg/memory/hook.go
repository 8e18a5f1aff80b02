// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"time"

	"github.com/teradata-labs/weft/pkg/hooks"
)

// NewSessionPersistenceHook saves an end-of-session summary into the
// memory store when the SessionEnd event fires. Recording hook: fails
// open, a persistence error never blocks session teardown.
func NewSessionPersistenceHook(store *Store) *hooks.Hook {
	return &hooks.Hook{
		Name:   "session-persistence",
		Events: []string{hooks.EventSessionEnd},
		Handler: func(env *hooks.Envelope) (*hooks.Decision, error) {
			summary, _ := env.Context["summary"].(string)
			if summary == "" {
				return &hooks.Decision{Decision: hooks.DecisionAllow}, nil
			}
			rec := SessionRecord{
				Timestamp:          time.Now().UTC(),
				Summary:            summary,
				TasksCompleted:     stringList(env.Context["tasks_completed"]),
				FilesModified:      stringList(env.Context["files_modified"]),
				PatternsFound:      stringList(env.Context["patterns_found"]),
				GotchasEncountered: stringList(env.Context["gotchas_encountered"]),
				DecisionsMade:      stringList(env.Context["decisions_made"]),
				NextSteps:          stringList(env.Context["next_steps"]),
			}
			if _, err := store.SaveSession(rec); err != nil {
				return nil, err
			}
			return &hooks.Decision{Decision: hooks.DecisionAllow}, nil
		},
	}
}

// stringList coerces a decoded JSON array into []string, dropping
// non-string elements.
func stringList(value interface{}) []string {
	raw, ok := value.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
