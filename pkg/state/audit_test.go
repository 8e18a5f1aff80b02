// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package state

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/paths"
)

// TestAuditAppendAndRead verifies records append in order with timestamps
// backfilled, and that the limit returns the newest tail.
func TestAuditAppendAndRead(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Audit(AuditRecord{
			Kind:     "decision",
			Tool:     "bash",
			Decision: "allow",
			Reason:   fmt.Sprintf("record %d", i),
		}))
	}

	all, err := s.ReadAudit(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "record 0", all[0].Reason)
	assert.False(t, all[0].Timestamp.IsZero())

	tail, err := s.ReadAudit(2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "record 3", tail[0].Reason)
	assert.Equal(t, "record 4", tail[1].Reason)
}

// TestReadAuditSkipsMalformedLines verifies a corrupt line does not poison
// the rest of the log.
func TestReadAuditSkipsMalformedLines(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Audit(AuditRecord{Kind: "decision", Reason: "first"}))

	path, err := s.resolver.ResolveRuntime("logs/audit.jsonl", paths.Write)
	require.NoError(t, err)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o640)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.Audit(AuditRecord{Kind: "decision", Reason: "second"}))

	records, err := s.ReadAudit(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "first", records[0].Reason)
	assert.Equal(t, "second", records[1].Reason)
}

// TestReadAuditMissingLog verifies an absent log reads as empty.
func TestReadAuditMissingLog(t *testing.T) {
	s := newTestStore(t)
	records, err := s.ReadAudit(0)
	require.NoError(t, err)
	assert.Nil(t, records)
}
