// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package paths

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// MigrationPolicy selects how a legacy file is folded into its canonical
// location.
type MigrationPolicy string

const (
	// PreferNewer keeps whichever file has the later mtime.
	PreferNewer MigrationPolicy = "prefer-newer"
	// Append concatenates legacy content after canonical content.
	Append MigrationPolicy = "append"
	// Overwrite always replaces canonical with legacy.
	Overwrite MigrationPolicy = "overwrite"
)

// MigrateIfNeeded folds a legacy state file into its canonical location.
// Idempotent: a second call with the same arguments is a no-op because the
// legacy file is removed after a successful migration.
func (r *Resolver) MigrateIfNeeded(legacy, canonical string, policy MigrationPolicy) error {
	legacyInfo, err := os.Stat(legacy)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat legacy file: %w", err)
	}

	canonicalInfo, canonicalErr := os.Stat(canonical)
	canonicalExists := canonicalErr == nil

	migrate := false
	appendMode := false
	switch policy {
	case Overwrite:
		migrate = true
	case PreferNewer:
		migrate = !canonicalExists || legacyInfo.ModTime().After(canonicalInfo.ModTime())
	case Append:
		migrate = true
		appendMode = canonicalExists
	default:
		return fmt.Errorf("unknown migration policy %q", policy)
	}

	if migrate {
		data, err := os.ReadFile(legacy)
		if err != nil {
			return fmt.Errorf("failed to read legacy file: %w", err)
		}
		if appendMode {
			existing, err := os.ReadFile(canonical)
			if err != nil {
				return fmt.Errorf("failed to read canonical file: %w", err)
			}
			data = append(append(existing, '\n'), data...)
		}
		// Raw bytes rather than AtomicWriteJSON: migrated files may be
		// markdown or JSONL, not JSON documents.
		if err := r.atomicWriteBytes(canonical, data); err != nil {
			return err
		}
		r.logger.Info("migrated legacy state file",
			zap.String("legacy", legacy),
			zap.String("canonical", canonical),
			zap.String("policy", string(policy)))
	}

	if err := os.Remove(legacy); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove legacy file after migration: %w", err)
	}
	return nil
}

func (r *Resolver) atomicWriteBytes(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	r.cache.invalidate(path)
	return nil
}
