// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/paths"
)

// TestLoadForContextItemCaps verifies each category honors its item budget,
// keeping the newest entries.
func TestLoadForContextItemCaps(t *testing.T) {
	s := newTestMemory(t)
	for i := 0; i < GotchaItems+10; i++ {
		require.NoError(t, s.RecordGotcha(fmt.Sprintf("gotcha %02d", i)))
	}

	ctx, err := s.LoadForContext()
	require.NoError(t, err)
	assert.Len(t, ctx.Gotchas, GotchaItems)
	// Newest entries survive truncation.
	assert.Contains(t, ctx.Gotchas, fmt.Sprintf("gotcha %02d", GotchaItems+9))
	assert.NotContains(t, ctx.Gotchas, "gotcha 00")
}

// TestLoadForContextCharBudget verifies the character cap stops accumulation
// even before the item cap is reached.
func TestLoadForContextCharBudget(t *testing.T) {
	s := newTestMemory(t)
	big := strings.Repeat("x", 900)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordPattern(fmt.Sprintf("%s-%d", big, i)))
	}

	ctx, err := s.LoadForContext()
	require.NoError(t, err)
	assert.Less(t, len(ctx.Patterns), 5, "char budget must cut before all five items")
	total := 0
	for _, p := range ctx.Patterns {
		total += len(p)
	}
	assert.LessOrEqual(t, total, PatternChars)
}

// TestLoadForContextEmpty verifies an empty store yields an empty context
// without error.
func TestLoadForContextEmpty(t *testing.T) {
	s := newTestMemory(t)
	ctx, err := s.LoadForContext()
	require.NoError(t, err)
	assert.Empty(t, ctx.Gotchas)
	assert.Empty(t, ctx.Patterns)
	assert.Empty(t, ctx.Discoveries)
	assert.Empty(t, ctx.RecentSessions)
	assert.Empty(t, ctx.LegacyNotes)
}

// TestLegacyNotesCapped verifies the archived learnings file is read capped
// at the legacy char limit.
func TestLegacyNotesCapped(t *testing.T) {
	s := newTestMemory(t)
	path, err := s.resolver.ResolveRuntime("memory/learnings.md", paths.Write)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("n", LegacyCharLimit+500)), 0o640))

	ctx, err := s.LoadForContext()
	require.NoError(t, err)
	assert.Len(t, ctx.LegacyNotes, LegacyCharLimit)
}
