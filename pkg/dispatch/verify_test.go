// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package dispatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/paths"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, paths.ProjectMarker), []byte{}, 0o640))
	d := New(Config{Resolver: paths.NewResolver(root, nil)})
	return d, root
}

func touchArtifact(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o640))
}

// TestParseReport verifies report extraction tolerates prose and code
// fences around the JSON object.
func TestParseReport(t *testing.T) {
	report, err := parseReport("Here is my report:\n```json\n" +
		`{"completed": true, "artifacts": ["a.md"], "summary": "done"}` +
		"\n```\nThanks!")
	require.NoError(t, err)
	assert.True(t, report.Completed)
	assert.Equal(t, []string{"a.md"}, report.Artifacts)
	assert.Equal(t, "done", report.Summary)

	_, err = parseReport("no json here at all")
	assert.Error(t, err)

	_, err = parseReport(`{"completed": maybe}`)
	assert.Error(t, err)
}

// TestVerifyClassification verifies the outcome ladder for every terminal
// class.
func TestVerifyClassification(t *testing.T) {
	d, root := newTestDispatcher(t)
	touchArtifact(t, root, "artifacts/generated/cleanup.md")

	cases := []struct {
		name    string
		mutate  func(*AgentTask)
		output  string
		outcome string
	}{
		{
			name:    "success",
			output:  `{"completed": true, "artifacts": ["artifacts/generated/cleanup.md"], "summary": "built it"}`,
			outcome: OutcomeSuccess,
		},
		{
			name:    "unparseable report",
			output:  "I did things but forgot the report.",
			outcome: OutcomeFailed,
		},
		{
			name:    "summary required but absent",
			output:  `{"completed": true, "summary": "  "}`,
			outcome: OutcomeFailed,
		},
		{
			name:    "not completed",
			output:  `{"completed": false, "summary": "ran out of turns"}`,
			outcome: OutcomeFailed,
		},
		{
			name: "must_not_error violation",
			mutate: func(task *AgentTask) {
				task.Verification.MustNotError = true
			},
			output:  `{"completed": true, "errors": ["lint failed"], "summary": "done"}`,
			outcome: OutcomeFailed,
		},
		{
			name: "mandated artifact missing",
			mutate: func(task *AgentTask) {
				task.Verification.MustProduce = []string{"artifacts/generated/absent.md"}
				task.OutputArtifacts = nil
			},
			output:  `{"completed": true, "summary": "done"}`,
			outcome: OutcomeFailed,
		},
		{
			name: "optional declared artifact missing",
			mutate: func(task *AgentTask) {
				task.OutputArtifacts = append(task.OutputArtifacts,
					"artifacts/generated/notes.md")
			},
			output:  `{"completed": true, "summary": "done"}`,
			outcome: OutcomePartial,
		},
		{
			name:    "errors without must_not_error",
			output:  `{"completed": true, "errors": ["flaky test"], "summary": "done"}`,
			outcome: OutcomePartial,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := validTask()
			if tc.mutate != nil {
				tc.mutate(task)
			}
			result := d.verify(task, "", tc.output)
			assert.Equal(t, tc.outcome, result.Outcome)
			if tc.outcome != OutcomeSuccess {
				assert.NotEmpty(t, result.Reasons)
			}
		})
	}
}

// TestVerifyRegistersArtifacts verifies produced artifacts land in the run's
// artifact registry during verification.
func TestVerifyRegistersArtifacts(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, paths.ProjectMarker), []byte{}, 0o640))
	resolver := paths.NewResolver(root, nil)
	store := newStoreForTest(t, resolver)
	d := New(Config{Resolver: resolver, Store: store})

	run, err := store.CreateRun("cleanup", nil)
	require.NoError(t, err)
	touchArtifact(t, root, "artifacts/generated/cleanup.md")

	result := d.verify(validTask(), run.ID,
		`{"completed": true, "summary": "done"}`)
	require.Equal(t, OutcomeSuccess, result.Outcome)

	artifacts, err := store.ListArtifacts(run.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "implementer", artifacts[0].CreatedBy)
}
