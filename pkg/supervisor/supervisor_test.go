// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package supervisor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExecuteLegacy verifies the in-process path runs the legacy runner and
// reports a legacy-mode result.
func TestExecuteLegacy(t *testing.T) {
	s, err := New(Config{
		Legacy: func(_ context.Context, env *TaskEnvelope) (string, error) {
			return "done: " + env.Prompt, nil
		},
	})
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	result, err := s.Execute(context.Background(), &TaskEnvelope{
		SessionID: "s1",
		AgentKind: "implementer",
		Prompt:    "fix the pagination bug",
	}, 0.2)
	require.NoError(t, err)
	assert.Equal(t, ModeLegacy, result.Mode)
	assert.Equal(t, "done: fix the pagination bug", result.Output)
	assert.Equal(t, "s1", result.SessionID)
}

// TestExecuteFallsBackWithoutWorkerCommand verifies worker-classified tasks
// still run legacy when no worker executable is configured.
func TestExecuteFallsBackWithoutWorkerCommand(t *testing.T) {
	ran := false
	s, err := New(Config{
		UseWorkers: true, // but no WorkerCommand
		Legacy: func(_ context.Context, _ *TaskEnvelope) (string, error) {
			ran = true
			return "ok", nil
		},
	})
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	result, err := s.Execute(context.Background(), &TaskEnvelope{
		SessionID: "s1",
		Prompt:    "implement the full migration", // worker keyword
	}, 0.9)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, ModeLegacy, result.Mode)
}

// TestExecuteEnvGateOverridesConfig verifies USE_WORKERS=false forces the
// legacy path regardless of the config flag.
func TestExecuteEnvGateOverridesConfig(t *testing.T) {
	t.Setenv("USE_WORKERS", "false")
	s, err := New(Config{
		UseWorkers:    true,
		WorkerCommand: "/nonexistent/worker",
		Legacy: func(_ context.Context, _ *TaskEnvelope) (string, error) {
			return "ok", nil
		},
	})
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	result, err := s.Execute(context.Background(), &TaskEnvelope{
		SessionID: "s1",
		Prompt:    "implement everything",
	}, 1.0)
	require.NoError(t, err)
	assert.Equal(t, ModeLegacy, result.Mode)
}

// TestExecuteLegacyErrors verifies runner failures surface wrapped.
func TestExecuteLegacyErrors(t *testing.T) {
	boom := errors.New("boom")
	s, err := New(Config{
		Legacy: func(_ context.Context, _ *TaskEnvelope) (string, error) {
			return "", boom
		},
	})
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	_, err = s.Execute(context.Background(), &TaskEnvelope{Prompt: "fix it"}, 0)
	assert.ErrorIs(t, err, boom)
}

// TestExecuteWithoutLegacyRunner verifies a missing runner is an error, not
// a panic.
func TestExecuteWithoutLegacyRunner(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	_, err = s.Execute(context.Background(), &TaskEnvelope{Prompt: "fix it"}, 0)
	assert.Error(t, err)
}

// TestExecuteAfterShutdown verifies the supervisor refuses work once shut
// down, and shutdown is idempotent.
func TestExecuteAfterShutdown(t *testing.T) {
	s, err := New(Config{
		Legacy: func(_ context.Context, _ *TaskEnvelope) (string, error) {
			return "ok", nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))

	_, err = s.Execute(context.Background(), &TaskEnvelope{Prompt: "fix it"}, 0)
	assert.Error(t, err)
}

// TestExecuteLegacyHonorsDurationLimit verifies the clamped duration limit
// bounds in-process execution through the context deadline.
func TestExecuteLegacyHonorsDurationLimit(t *testing.T) {
	s, err := New(Config{
		Legacy: func(ctx context.Context, _ *TaskEnvelope) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	})
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	_, err = s.Execute(context.Background(), &TaskEnvelope{
		Prompt: "fix it",
		Limits: ExecutionLimits{MaxDurationMs: 1000}, // floor of the range
	}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
