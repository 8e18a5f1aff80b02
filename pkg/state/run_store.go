// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/paths"
)

var (
	// ErrRunNotFound is returned for an unknown run id.
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidTransition is returned for a backward status transition.
	ErrInvalidTransition = errors.New("invalid run status transition")
	// ErrStepRegression is returned when current_step would move backward.
	ErrStepRegression = errors.New("current_step must be monotonic")
)

// Store is the durable state substrate. One Store instance serves runs,
// tasks, artifacts, gates, and the audit log.
type Store struct {
	resolver *paths.Resolver
	logger   *zap.Logger
}

// NewStore creates a state store over the given resolver.
func NewStore(resolver *paths.Resolver, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{resolver: resolver, logger: logger}
}

// runStatePath resolves runtime/runs/<id>/state.json.
func (s *Store) runStatePath(runID string, mode paths.Mode) (string, error) {
	return s.resolver.ResolveRuntime(filepath.Join("runs", runID, "state.json"), mode)
}

// RunDir returns the run's directory for a given subarea (plans, artifacts,
// gates, reasoning).
func (s *Store) RunDir(runID, sub string) (string, error) {
	return s.resolver.ResolveRuntime(filepath.Join("runs", runID, sub), paths.Write)
}

// CreateRun creates a run in the created state and its directory skeleton.
func (s *Store) CreateRun(workflow string, metadata map[string]interface{}) (*Run, error) {
	run := &Run{
		ID:        fmt.Sprintf("run-%s", uuid.New().String()[:8]),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Status:    RunCreated,
		Workflow:  workflow,
		Metadata:  metadata,
	}
	path, err := s.runStatePath(run.ID, paths.Write)
	if err != nil {
		return nil, err
	}
	for _, sub := range []string{"plans", "artifacts/generated", "gates", "reasoning"} {
		dir, err := s.RunDir(run.ID, sub)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
	}
	if err := s.resolver.AtomicWriteJSON(path, run); err != nil {
		return nil, err
	}
	s.logger.Info("run created",
		zap.String("run_id", run.ID), zap.String("workflow", workflow))
	return run, nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(runID string) (*Run, error) {
	path, err := s.runStatePath(runID, paths.Read)
	if err != nil {
		return nil, err
	}
	raw, err := s.resolver.SafeReadJSON(path, "run-state")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("corrupt run state for %s: %w", runID, err)
	}
	return &run, nil
}

// UpdateRun applies a mutation under the transition rules: statuses only
// move forward (except paused -> in_progress) and current_step is
// monotonic. The mutation runs against a fresh copy and the result is
// written atomically.
func (s *Store) UpdateRun(runID string, mutate func(*Run) error) (*Run, error) {
	run, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}
	prevStatus := run.Status
	prevStep := run.CurrentStep

	if err := mutate(run); err != nil {
		return nil, err
	}

	if run.Status != prevStatus {
		allowed := runStatusRank[run.Status] > runStatusRank[prevStatus] ||
			(prevStatus == RunPaused && run.Status == RunInProgress)
		if !allowed {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prevStatus, run.Status)
		}
	}
	if run.CurrentStep < prevStep {
		return nil, fmt.Errorf("%w: %d -> %d", ErrStepRegression, prevStep, run.CurrentStep)
	}

	run.UpdatedAt = time.Now()
	path, err := s.runStatePath(runID, paths.Write)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.AtomicWriteJSON(path, run); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns all run ids, newest directory first.
func (s *Store) ListRuns() ([]string, error) {
	dir, err := s.resolver.ResolveRuntime("runs", paths.Read)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// PurgeRun removes a run and everything under it (artifacts, gates,
// reasoning). Artifact records live under the run directory, so they are
// removed iff the run is purged.
func (s *Store) PurgeRun(runID string) error {
	dir, err := s.resolver.ResolveRuntime(filepath.Join("runs", runID), paths.Write)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to purge run %s: %w", runID, err)
	}
	s.logger.Info("run purged", zap.String("run_id", runID))
	return nil
}
