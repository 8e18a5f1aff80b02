// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/paths"
)

func newTestMemory(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, paths.ProjectMarker), []byte{}, 0o640))
	return NewStore(paths.NewResolver(root, nil), nil)
}

// TestRecordGotchaDeduplicates verifies case-insensitive deduplication
// preserves the original entry and insertion order.
func TestRecordGotchaDeduplicates(t *testing.T) {
	s := newTestMemory(t)
	require.NoError(t, s.RecordGotcha("The watcher needs absolute paths"))
	require.NoError(t, s.RecordGotcha("the WATCHER needs absolute paths"))
	require.NoError(t, s.RecordGotcha("Second gotcha"))

	entries, err := s.loadEntries("memory/gotchas.json")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "The watcher needs absolute paths", entries[0].Text)
	assert.Equal(t, "Second gotcha", entries[1].Text)
}

// TestRecordEntryRejectsEmpty verifies whitespace-only entries are refused.
func TestRecordEntryRejectsEmpty(t *testing.T) {
	s := newTestMemory(t)
	assert.Error(t, s.RecordGotcha("   "))
	assert.Error(t, s.RecordPattern(""))
}

// TestRecordDiscoveryUpdatesInPlace verifies re-discovering a path replaces
// its description rather than duplicating the entry.
func TestRecordDiscoveryUpdatesInPlace(t *testing.T) {
	s := newTestMemory(t)
	require.NoError(t, s.RecordDiscovery("pkg/state/run_store.go", "run persistence", "state"))
	require.NoError(t, s.RecordDiscovery("pkg/state/run_store.go", "run persistence and recovery", "state"))

	cm, err := s.loadCodebaseMap()
	require.NoError(t, err)
	require.Len(t, cm.DiscoveredFiles, 1)
	assert.Equal(t, "run persistence and recovery",
		cm.DiscoveredFiles["pkg/state/run_store.go"].Description)
}

// TestCorruptMemoryDegradesToEmpty verifies a corrupt category file does not
// block recording or loading.
func TestCorruptMemoryDegradesToEmpty(t *testing.T) {
	s := newTestMemory(t)
	path, err := s.resolver.ResolveRuntime("memory/gotchas.json", paths.Write)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("{corrupt"), 0o640))

	require.NoError(t, s.RecordGotcha("fresh start"))
	entries, err := s.loadEntries("memory/gotchas.json")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh start", entries[0].Text)
}

// TestStats verifies per-category counts.
func TestStats(t *testing.T) {
	s := newTestMemory(t)
	require.NoError(t, s.RecordGotcha("g1"))
	require.NoError(t, s.RecordGotcha("g2"))
	require.NoError(t, s.RecordPattern("p1"))
	require.NoError(t, s.RecordDiscovery("a.go", "desc", "cat"))
	_, err := s.SaveSession(SessionRecord{Summary: "did things"})
	require.NoError(t, err)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats["gotchas"].Count)
	assert.Equal(t, 1, stats["patterns"].Count)
	assert.Equal(t, 1, stats["discoveries"].Count)
	assert.Equal(t, 1, stats["sessions"].Count)
	assert.Greater(t, stats["gotchas"].Bytes, int64(0))
}
