// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/paths"
)

func (s *Store) registryPath(runID string, mode paths.Mode) (string, error) {
	return s.resolver.ResolveRuntime(
		filepath.Join("runs", runID, "artifact-registry.json"), mode)
}

func (s *Store) loadRegistry(runID string) (*ArtifactRegistry, error) {
	path, err := s.registryPath(runID, paths.Read)
	if err != nil {
		return nil, err
	}
	raw, err := s.resolver.SafeReadJSON(path, "")
	if err != nil {
		return nil, err
	}
	reg := &ArtifactRegistry{}
	if raw == nil {
		return reg, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("corrupt artifact registry for %s: %w", runID, err)
	}
	return reg, nil
}

func (s *Store) saveRegistry(runID string, reg *ArtifactRegistry) error {
	path, err := s.registryPath(runID, paths.Write)
	if err != nil {
		return err
	}
	return s.resolver.AtomicWriteJSON(path, reg)
}

// HashFile returns the hex SHA-256 of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RegisterArtifact records a produced artifact in the run's registry.
// Idempotent by path+hash: re-registering an identical artifact is a no-op.
// Registration is logged in the append-only state-change log.
func (s *Store) RegisterArtifact(runID string, entry ArtifactEntry) error {
	if entry.Kind != string(paths.KindGenerated) && entry.Kind != string(paths.KindReference) {
		return fmt.Errorf("invalid artifact kind %q", entry.Kind)
	}
	if entry.ContentHash == "" {
		if hash, err := HashFile(entry.Path); err == nil {
			entry.ContentHash = hash
		}
	}

	reg, err := s.loadRegistry(runID)
	if err != nil {
		return err
	}
	for _, existing := range reg.Entries {
		if existing.Path == entry.Path && existing.ContentHash == entry.ContentHash {
			return nil // idempotent re-registration
		}
	}

	entry.CreatedAt = time.Now()
	reg.Entries = append(reg.Entries, entry)
	reg.Log = append(reg.Log, ArtifactStateChange{
		Timestamp: time.Now(),
		Path:      entry.Path,
		Change:    "registered",
	})
	if err := s.saveRegistry(runID, reg); err != nil {
		return err
	}
	s.logger.Debug("artifact registered",
		zap.String("run_id", runID),
		zap.String("path", entry.Path),
		zap.String("kind", entry.Kind))
	return nil
}

// InvalidateArtifact marks an artifact invalid. History is never mutated:
// the change is appended to the state log and the entry flagged.
func (s *Store) InvalidateArtifact(runID, path, reason string) error {
	reg, err := s.loadRegistry(runID)
	if err != nil {
		return err
	}
	found := false
	for i := range reg.Entries {
		if reg.Entries[i].Path == path {
			reg.Entries[i].Invalidated = true
			found = true
		}
	}
	if !found {
		return fmt.Errorf("artifact %s not registered in run %s", path, runID)
	}
	reg.Log = append(reg.Log, ArtifactStateChange{
		Timestamp: time.Now(),
		Path:      path,
		Change:    "invalidated",
		Reason:    reason,
	})
	return s.saveRegistry(runID, reg)
}

// ListArtifacts returns the run's registered artifacts.
func (s *Store) ListArtifacts(runID string) ([]ArtifactEntry, error) {
	reg, err := s.loadRegistry(runID)
	if err != nil {
		return nil, err
	}
	return reg.Entries, nil
}
