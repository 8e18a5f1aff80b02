// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWatcherDisabled verifies a disabled watcher starts and stops cleanly
// without touching the filesystem.
func TestWatcherDisabled(t *testing.T) {
	idx := newTestIndex(t)
	w, err := NewWatcher(idx, WatcherConfig{Enabled: false})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop()) // idempotent
}

// TestScheduleRebuildDebounce verifies a burst of change notifications
// collapses into a single rebuild that picks up new definitions.
func TestScheduleRebuildDebounce(t *testing.T) {
	idx := newTestIndex(t)
	root := idx.resolver.Root()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "skills"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skills", "go-style.md"),
		[]byte("---\ndescription: Go style guide\n---\nbody"), 0o640))

	w, err := NewWatcher(idx, WatcherConfig{Enabled: true, DebounceMs: 20})
	require.NoError(t, err)
	defer func() {
		_ = w.watcher.Close()
	}()

	w.scheduleRebuild()
	w.scheduleRebuild()
	w.scheduleRebuild()

	require.Eventually(t, func() bool {
		idx.Invalidate()
		rows, err := idx.ListAll()
		return err == nil && len(rows) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rows, err := idx.ListAll()
	require.NoError(t, err)
	assert.Equal(t, "go-style", rows[0].Name)
	assert.Equal(t, DomainSkill, rows[0].Domain)
}
