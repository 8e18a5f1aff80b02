// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/paths"
)

// TestSaveSessionSequencing verifies monotonic sequence numbers and that the
// record lands under the expected filename.
func TestSaveSessionSequencing(t *testing.T) {
	s := newTestMemory(t)
	seq1, err := s.SaveSession(SessionRecord{Summary: "first"})
	require.NoError(t, err)
	assert.Equal(t, 1, seq1)

	seq2, err := s.SaveSession(SessionRecord{Summary: "second"})
	require.NoError(t, err)
	assert.Equal(t, 2, seq2)

	recent, err := s.loadRecentSessions(5)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Summary, "newest first")
	assert.Equal(t, 2, recent[0].SequenceNumber)
}

// TestSaveSessionExtraction verifies patterns, gotchas, and discoveries in a
// session record are folded into their category files.
func TestSaveSessionExtraction(t *testing.T) {
	s := newTestMemory(t)
	_, err := s.SaveSession(SessionRecord{
		Summary:            "built the parser",
		PatternsFound:      []string{"accept interfaces, return structs"},
		GotchasEncountered: []string{"csv reader needs FieldsPerRecord=-1"},
		Discoveries: []SessionDiscovery{
			{Path: "pkg/knowledge/index.go", Description: "csv index", Category: "knowledge"},
		},
	})
	require.NoError(t, err)

	ctx, err := s.LoadForContext()
	require.NoError(t, err)
	assert.Contains(t, ctx.Patterns, "accept interfaces, return structs")
	assert.Contains(t, ctx.Gotchas, "csv reader needs FieldsPerRecord=-1")
	require.Len(t, ctx.Discoveries, 1)
	assert.Equal(t, "pkg/knowledge/index.go", ctx.Discoveries[0].Path)
}

// TestSessionPruning verifies only the newest DefaultSessionCap session
// files survive.
func TestSessionPruning(t *testing.T) {
	s := newTestMemory(t)
	for i := 0; i < DefaultSessionCap+5; i++ {
		_, err := s.SaveSession(SessionRecord{Summary: fmt.Sprintf("session %d", i)})
		require.NoError(t, err)
	}

	files, err := s.listSessionFiles()
	require.NoError(t, err)
	assert.Len(t, files, DefaultSessionCap)

	// The newest record is still the highest sequence number.
	recent, err := s.loadRecentSessions(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, DefaultSessionCap+5, recent[0].SequenceNumber)
}

// TestSessionOrderingPastThreeDigits verifies recency ordering survives the
// zero-padding width: session_1000 is newer than session_999.
func TestSessionOrderingPastThreeDigits(t *testing.T) {
	s := newTestMemory(t)
	for _, rec := range []SessionRecord{
		{SequenceNumber: 999, Summary: "nine ninety nine"},
		{SequenceNumber: 1000, Summary: "one thousand"},
	} {
		path, err := s.resolver.ResolveRuntime(
			fmt.Sprintf("memory/sessions/session_%03d.json", rec.SequenceNumber), paths.Write)
		require.NoError(t, err)
		require.NoError(t, s.resolver.AtomicWriteJSON(path, rec))
	}

	recent, err := s.loadRecentSessions(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "one thousand", recent[0].Summary)

	seq, err := s.SaveSession(SessionRecord{Summary: "next"})
	require.NoError(t, err)
	assert.Equal(t, 1001, seq)
}
