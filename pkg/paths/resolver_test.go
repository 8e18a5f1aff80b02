// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectMarker), []byte{}, 0o640))
	return NewResolver(root, nil)
}

// TestResolveRuntimeWrite verifies that write resolution always returns the
// canonical path, even when a legacy copy exists.
func TestResolveRuntimeWrite(t *testing.T) {
	r := newTestResolver(t)

	// Plant a legacy copy of the file.
	legacy := filepath.Join(r.Root(), ".weft", "sessions", "s1.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(legacy), 0o750))
	require.NoError(t, os.WriteFile(legacy, []byte("{}"), 0o640))

	path, err := r.ResolveRuntime(filepath.Join("sessions", "s1.json"), Write)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root(), "runtime", "sessions", "s1.json"), path)
}

// TestResolveRuntimeReadFallback verifies the read-side resolution order:
// canonical wins when present, legacy is used only as a fallback.
func TestResolveRuntimeReadFallback(t *testing.T) {
	r := newTestResolver(t)
	sub := filepath.Join("sessions", "s1.json")
	canonical := filepath.Join(r.Root(), "runtime", sub)
	legacy := filepath.Join(r.Root(), ".weft", sub)

	// Neither exists: resolution is canonical.
	path, err := r.ResolveRuntime(sub, Read)
	require.NoError(t, err)
	assert.Equal(t, canonical, path)

	// Only legacy exists: fall back.
	require.NoError(t, os.MkdirAll(filepath.Dir(legacy), 0o750))
	require.NoError(t, os.WriteFile(legacy, []byte("{}"), 0o640))
	path, err = r.ResolveRuntime(sub, Read)
	require.NoError(t, err)
	assert.Equal(t, legacy, path)

	// Both exist: canonical wins.
	require.NoError(t, os.MkdirAll(filepath.Dir(canonical), 0o750))
	require.NoError(t, os.WriteFile(canonical, []byte("{}"), 0o640))
	path, err = r.ResolveRuntime(sub, Read)
	require.NoError(t, err)
	assert.Equal(t, canonical, path)
}

// TestResolveConfigKnownNames verifies that only registered config names
// resolve and that unknown names return ErrUnknownConfig.
func TestResolveConfigKnownNames(t *testing.T) {
	r := newTestResolver(t)

	path, err := r.ResolveConfig("rule-index", Write)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root(), "config", "rule-index.json"), path)

	_, err = r.ResolveConfig("nonexistent", Read)
	assert.ErrorIs(t, err, ErrUnknownConfig)
}

// TestResolveArtifact verifies kind-based artifact resolution and rejection
// of invalid kinds.
func TestResolveArtifact(t *testing.T) {
	r := newTestResolver(t)

	gen, err := r.ResolveArtifact(KindGenerated, "plan.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root(), "runtime", "artifacts", "generated", "plan.json"), gen)

	ref, err := r.ResolveArtifact(KindReference, "design.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root(), "artifacts", "reference", "design.md"), ref)

	_, err = r.ResolveArtifact(ArtifactKind("bogus"), "x")
	assert.Error(t, err)
}

// TestCheckTraversal exercises the traversal rejection matrix: plain
// dot-dot segments, URL-encoded variants, double encoding, and NUL bytes.
func TestCheckTraversal(t *testing.T) {
	rejected := []string{
		"../etc/passwd",
		"sessions/../../secrets",
		"a/b/..\\c",
		"%2e%2e%2fescape",
		"%2e%2e/escape",
		"..%2fescape",
		"%252e%252e/escape",
		"nul\x00byte",
	}
	for _, p := range rejected {
		assert.ErrorIs(t, checkTraversal(p), ErrPathTraversal, "path %q", p)
	}

	allowed := []string{
		"sessions/s1.json",
		"runs/run-abc/state.json",
		"file.with..dots.json", // dots inside a segment are not traversal
	}
	for _, p := range allowed {
		assert.NoError(t, checkTraversal(p), "path %q", p)
	}
}

// TestValidatePathWithinProject verifies absolute paths and escapes are
// rejected and in-project paths normalize under the root.
func TestValidatePathWithinProject(t *testing.T) {
	r := newTestResolver(t)

	resolved, err := r.ValidatePathWithinProject("artifacts/reference/design.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root(), "artifacts", "reference", "design.md"), resolved)

	_, err = r.ValidatePathWithinProject("/etc/passwd")
	assert.ErrorIs(t, err, ErrPathTraversal)

	_, err = r.ValidatePathWithinProject("../outside")
	assert.ErrorIs(t, err, ErrPathTraversal)
}

// TestFindProjectRootFrom verifies marker discovery walks upward and that a
// .git directory serves as fallback.
func TestFindProjectRootFrom(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectMarker), []byte{}, 0o640))

	found, err := FindProjectRootFrom(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)

	// .git fallback when no marker exists anywhere up the tree.
	gitRoot := t.TempDir()
	inner := filepath.Join(gitRoot, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(gitRoot, ".git"), 0o750))
	require.NoError(t, os.MkdirAll(inner, 0o750))
	found, err = FindProjectRootFrom(inner)
	require.NoError(t, err)
	assert.Equal(t, gitRoot, found)
}
