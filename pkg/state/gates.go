// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/teradata-labs/weft/pkg/paths"
)

// RecordGate persists a gate outcome at <run>/gates/NN-<name>.json.
func (s *Store) RecordGate(runID string, outcome GateOutcome) error {
	if outcome.Timestamp.IsZero() {
		outcome.Timestamp = time.Now()
	}
	path, err := s.resolver.ResolveRuntime(
		filepath.Join("runs", runID, "gates",
			fmt.Sprintf("%02d-%s.json", outcome.Step, outcome.Name)),
		paths.Write)
	if err != nil {
		return err
	}
	return s.resolver.AtomicWriteJSON(path, outcome)
}

// ListGates returns all gate outcomes for a run, ordered by filename
// (step number, then gate name).
func (s *Store) ListGates(runID string) ([]GateOutcome, error) {
	dir, err := s.resolver.ResolveRuntime(filepath.Join("runs", runID, "gates"), paths.Read)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list gates: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var outcomes []GateOutcome
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var outcome GateOutcome
		if err := json.Unmarshal(data, &outcome); err != nil {
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// RecoverStep reconstructs the current step of a run by scanning its gate
// records: the step after the highest step whose gates all passed. No
// re-planning is needed when plan artifacts are intact.
func (s *Store) RecoverStep(runID string) (int, error) {
	gates, err := s.ListGates(runID)
	if err != nil {
		return 0, err
	}
	passedBy := make(map[int]bool)
	failedAt := make(map[int]bool)
	for _, g := range gates {
		if g.Passed {
			passedBy[g.Step] = true
		} else {
			failedAt[g.Step] = true
		}
	}
	step := 0
	for passedBy[step] && !failedAt[step] {
		step++
	}
	return step, nil
}

// SaveWorkerSession persists a worker session record for audit.
func (s *Store) SaveWorkerSession(ws *WorkerSession) error {
	path, err := s.resolver.ResolveRuntime(
		filepath.Join("workers", ws.ID+".json"), paths.Write)
	if err != nil {
		return err
	}
	return s.resolver.AtomicWriteJSON(path, ws)
}

// GetWorkerSession loads a worker session record.
func (s *Store) GetWorkerSession(id string) (*WorkerSession, error) {
	path, err := s.resolver.ResolveRuntime(filepath.Join("workers", id+".json"), paths.Read)
	if err != nil {
		return nil, err
	}
	raw, err := s.resolver.SafeReadJSON(path, "")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("worker session %s not found", id)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var ws WorkerSession
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("corrupt worker session %s: %w", id, err)
	}
	return &ws, nil
}
