// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/dispatch"
	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/paths"
	"github.com/teradata-labs/weft/pkg/state"
)

type executorFixture struct {
	root     string
	resolver *paths.Resolver
	store    *state.Store
	executor *Executor
	provider *llm.FakeProvider
}

func newExecutorFixture(t *testing.T, rater Rater, responses ...*llm.Response) *executorFixture {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, paths.ProjectMarker), []byte{}, 0o640))
	resolver := paths.NewResolver(root, nil)
	store := state.NewStore(resolver, nil)
	gates, err := NewGates(store, resolver, nil)
	require.NoError(t, err)

	provider := llm.NewFakeProvider("test-model", responses...)
	dispatcher := dispatch.New(dispatch.Config{
		Provider: provider,
		Store:    store,
		Resolver: resolver,
	})
	executor := NewExecutor(Config{
		Store:      store,
		Resolver:   resolver,
		Gates:      gates,
		Dispatcher: dispatcher,
		Rater:      rater,
	})
	return &executorFixture{
		root: root, resolver: resolver, store: store,
		executor: executor, provider: provider,
	}
}

func twoStepDefinition() *Definition {
	def := &Definition{APIVersion: APIVersion, Kind: KindFlow}
	def.Metadata.Name = "feature"
	def.Spec.Steps = []Step{
		{ID: "design", Name: "Design", Tasks: []StepTask{
			{Agent: "architect", Description: "Sketch the approach"},
		}},
		{ID: "build", Name: "Implementation", Tasks: []StepTask{
			{Agent: "implementer", Description: "Build it"},
		}},
	}
	return def
}

const okReport = `{"completed": true, "summary": "done"}`

// TestStartCompletesRun verifies a workflow runs every step, records the
// step gates, and lands the run in completed.
func TestStartCompletesRun(t *testing.T) {
	f := newExecutorFixture(t, nil, &llm.Response{Content: okReport})

	run, err := f.executor.Start(context.Background(), twoStepDefinition(), nil)
	require.NoError(t, err)
	assert.Equal(t, state.RunCompleted, run.Status)
	assert.Equal(t, 2, run.CurrentStep)
	assert.Len(t, f.provider.Invocations, 2)

	gates, err := f.store.ListGates(run.ID)
	require.NoError(t, err)
	complete := 0
	for _, g := range gates {
		require.True(t, g.Passed)
		if g.Name == "step-complete" {
			complete++
		}
	}
	assert.Equal(t, 2, complete)
}

// TestStartRatedPlanningStep verifies the rating gate drives plan
// regeneration and persists the accepted plan.
func TestStartRatedPlanningStep(t *testing.T) {
	scores := []int{5, 9}
	rater := func(_ context.Context, _ string) (int, string, error) {
		score := scores[0]
		if len(scores) > 1 {
			scores = scores[1:]
		}
		return score, "too vague", nil
	}
	f := newExecutorFixture(t, rater, &llm.Response{Content: okReport})

	def := twoStepDefinition()
	def.Spec.Steps[0].Validation.Rating = true

	run, err := f.executor.Start(context.Background(), def, nil)
	require.NoError(t, err)
	assert.Equal(t, state.RunCompleted, run.Status)
	// Initial plan, one regeneration, then the build step.
	assert.Len(t, f.provider.Invocations, 3)
	assert.Contains(t, f.provider.Invocations[1].Messages[0].Content, "too vague")

	planPath, err := f.store.RunDir(run.ID, filepath.Join("plans", "plan-design.json"))
	require.NoError(t, err)
	_, statErr := os.Stat(planPath)
	assert.NoError(t, statErr)
}

// TestStartFailsRunOnGateFailure verifies a failed gate marks the run
// failed with the failure recorded in metadata.
func TestStartFailsRunOnGateFailure(t *testing.T) {
	rater := func(_ context.Context, _ string) (int, string, error) {
		return 3, "not a real plan", nil
	}
	f := newExecutorFixture(t, rater, &llm.Response{Content: okReport})

	def := twoStepDefinition()
	def.Spec.Steps[0].Validation.Rating = true

	run, err := f.executor.Start(context.Background(), def, nil)
	require.ErrorIs(t, err, ErrGateFailed)
	require.NotNil(t, run)
	assert.Equal(t, state.RunFailed, run.Status)

	failure, ok := run.Metadata["failure"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(0), failure["step"])
	assert.Contains(t, failure["reason"], "plan-rating")
}

// TestStartFailsRunOnFailedTask verifies a failed dispatch stops the run at
// that step.
func TestStartFailsRunOnFailedTask(t *testing.T) {
	f := newExecutorFixture(t, nil,
		&llm.Response{Content: okReport},
		&llm.Response{Content: `{"completed": false, "summary": "gave up"}`},
	)

	run, err := f.executor.Start(context.Background(), twoStepDefinition(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build")
	assert.Equal(t, state.RunFailed, run.Status)
	assert.Equal(t, 1, run.CurrentStep, "the completed step stays recorded")
}

// TestResumeSkipsCompletedSteps verifies a resumed run restarts at the
// first step whose gates have not all passed.
func TestResumeSkipsCompletedSteps(t *testing.T) {
	f := newExecutorFixture(t, nil, &llm.Response{Content: okReport})
	def := twoStepDefinition()

	run, err := f.store.CreateRun(def.Metadata.Name, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.RecordGate(run.ID, state.GateOutcome{
		Step: 0, Name: "step-complete", Passed: true,
	}))

	resumed, err := f.executor.Resume(context.Background(), def, run.ID)
	require.NoError(t, err)
	assert.Equal(t, state.RunCompleted, resumed.Status)
	assert.Equal(t, 2, resumed.CurrentStep)
	// Only the build step ran.
	require.Len(t, f.provider.Invocations, 1)
	assert.Contains(t, f.provider.Invocations[0].Messages[0].Content, "Build it")
}
