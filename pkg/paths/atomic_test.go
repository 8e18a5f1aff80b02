// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package paths

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAtomicWriteJSONRoundTrip verifies a write lands intact, creates parent
// directories, and leaves no temp or lock residue.
func TestAtomicWriteJSONRoundTrip(t *testing.T) {
	r := newTestResolver(t)
	path := filepath.Join(r.Root(), "runtime", "deep", "nested", "state.json")

	require.NoError(t, r.AtomicWriteJSON(path, map[string]interface{}{"n": 42}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, float64(42), got["n"])

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive the write")
	_, err = os.Stat(path + ".lock")
	assert.True(t, os.IsNotExist(err), "lock must be released")
}

// TestAtomicWriteJSONConcurrentWriters verifies last-writer-wins visibility:
// after concurrent writes the file is one complete document, never a blend.
func TestAtomicWriteJSONConcurrentWriters(t *testing.T) {
	r := newTestResolver(t)
	path := filepath.Join(r.Root(), "runtime", "contended.json")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = r.AtomicWriteJSON(path, map[string]int{"writer": n, "filler": n * 1000})
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, json.Unmarshal(data, &got), "file must always parse as one document")
	assert.Equal(t, got["writer"]*1000, got["filler"])
}

// TestAtomicWriteJSONBreaksStaleLock verifies a lock older than the stale
// TTL does not wedge writers forever.
func TestAtomicWriteJSONBreaksStaleLock(t *testing.T) {
	r := newTestResolver(t)
	path := filepath.Join(r.Root(), "runtime", "locked.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))

	// Simulate a crashed writer by leaving an old lock behind.
	lock := path + ".lock"
	require.NoError(t, os.WriteFile(lock, []byte("999 stale"), 0o640))
	old := time.Now().Add(-lockStaleTTL - time.Second)
	require.NoError(t, os.Chtimes(lock, old, old))

	require.NoError(t, r.AtomicWriteJSON(path, map[string]string{"ok": "yes"}))
	_, err := os.Stat(lock)
	assert.True(t, os.IsNotExist(err))
}

// TestAppendJSONL verifies append-only log semantics: one record per line,
// existing lines untouched.
func TestAppendJSONL(t *testing.T) {
	r := newTestResolver(t)
	path := filepath.Join(r.Root(), "runtime", "logs", "audit.jsonl")

	for i := 0; i < 3; i++ {
		require.NoError(t, r.AppendJSONL(path, map[string]int{"seq": i}))
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var seqs []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]int
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		seqs = append(seqs, rec["seq"])
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []int{0, 1, 2}, seqs)
}

// TestGetCachedDefaultAndInvalidation verifies the read cache serves the
// default for missing files and never serves stale content after a write.
func TestGetCachedDefaultAndInvalidation(t *testing.T) {
	r := newTestResolver(t)
	path := filepath.Join(r.Root(), "runtime", "cached.json")

	v, err := r.GetCached(path, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	require.NoError(t, r.AtomicWriteJSON(path, map[string]interface{}{"v": "first"}))
	v, err = r.GetCached(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", v.(map[string]interface{})["v"])

	require.NoError(t, r.AtomicWriteJSON(path, map[string]interface{}{"v": "second"}))
	v, err = r.GetCached(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "second", v.(map[string]interface{})["v"])
}
