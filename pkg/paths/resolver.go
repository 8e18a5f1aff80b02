// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package paths is the single canonical resolver for all kernel state and
// artifact paths. Every other component resolves paths through this package;
// a mechanical check (see pathcheck_test.go) fails the build when a
// component constructs a state path directly.
//
// The layout is two-tier: config/ is version-controlled, runtime/ is
// ephemeral. Reads prefer the canonical location and fall back to the
// legacy .weft tree; writes always go canonical.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Mode selects read or write resolution semantics.
type Mode int

const (
	// Read resolution prefers canonical and falls back to legacy.
	Read Mode = iota
	// Write resolution always returns the canonical path.
	Write
)

// ArtifactKind classifies artifacts on disk.
type ArtifactKind string

const (
	// KindGenerated artifacts are runtime outputs under runtime/artifacts/generated.
	KindGenerated ArtifactKind = "generated"
	// KindReference artifacts are version-controlled inputs under artifacts/reference.
	KindReference ArtifactKind = "reference"
)

// ProjectMarker is the file that identifies a project root.
const ProjectMarker = ".weftproject"

// Known config files resolvable by name.
var configFiles = map[string]string{
	"rule-index":               "rule-index.json",
	"signoff-matrix":           "signoff-matrix.json",
	"cuj-registry":             "cuj-registry.json",
	"skill-integration-matrix": "skill-integration-matrix.json",
	"security-triggers":        "security-triggers.json",
	"registry":                 "registry.json",
}

var (
	// ErrUnknownConfig is returned for a config name outside the known set.
	ErrUnknownConfig = errors.New("unknown config file")
	// ErrPathOutsideProject is returned when a path escapes the project root.
	ErrPathOutsideProject = errors.New("path escapes project root")
	// ErrPathTraversal is returned for traversal or encoded-traversal attempts.
	ErrPathTraversal = errors.New("path traversal rejected")
)

// Resolver maps logical names to on-disk paths and owns all state I/O.
type Resolver struct {
	root   string
	logger *zap.Logger
	cache  *readCache
}

// NewResolver creates a resolver anchored at the given project root.
func NewResolver(root string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		root:   root,
		logger: logger,
		cache:  newReadCache(),
	}
}

// NewResolverFromCwd locates the project root by walking upward from the
// working directory.
func NewResolverFromCwd(logger *zap.Logger) (*Resolver, error) {
	root, err := FindProjectRoot()
	if err != nil {
		return nil, err
	}
	return NewResolver(root, logger), nil
}

// Root returns the project root directory.
func (r *Resolver) Root() string {
	return r.root
}

// RuntimeDir returns the ephemeral state directory.
func (r *Resolver) RuntimeDir() string {
	return filepath.Join(r.root, "runtime")
}

func (r *Resolver) configDir() string {
	return filepath.Join(r.root, "config")
}

func (r *Resolver) legacyDir() string {
	return filepath.Join(r.root, ".weft")
}

// ResolveConfig resolves a known config file by logical name.
// On read, the canonical path wins when both canonical and legacy exist.
func (r *Resolver) ResolveConfig(name string, mode Mode) (string, error) {
	file, ok := configFiles[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownConfig, name)
	}
	canonical := filepath.Join(r.configDir(), file)
	if mode == Write {
		return canonical, nil
	}
	return r.preferCanonical(canonical, filepath.Join(r.legacyDir(), "config", file)), nil
}

// ResolveRuntime resolves a runtime state subpath (sessions, tasks, logs...).
func (r *Resolver) ResolveRuntime(subpath string, mode Mode) (string, error) {
	if err := checkTraversal(subpath); err != nil {
		return "", err
	}
	canonical := filepath.Join(r.RuntimeDir(), subpath)
	if mode == Write {
		return canonical, nil
	}
	return r.preferCanonical(canonical, filepath.Join(r.legacyDir(), subpath)), nil
}

// ResolveArtifact resolves an artifact path by kind and filename.
func (r *Resolver) ResolveArtifact(kind ArtifactKind, filename string) (string, error) {
	if err := checkTraversal(filename); err != nil {
		return "", err
	}
	switch kind {
	case KindGenerated:
		return filepath.Join(r.RuntimeDir(), "artifacts", "generated", filename), nil
	case KindReference:
		return filepath.Join(r.root, "artifacts", "reference", filename), nil
	default:
		return "", fmt.Errorf("invalid artifact kind %q (want generated or reference)", kind)
	}
}

// preferCanonical implements the read-side legacy fallback.
func (r *Resolver) preferCanonical(canonical, legacy string) string {
	canonicalExists := fileExists(canonical)
	legacyExists := fileExists(legacy)
	switch {
	case canonicalExists && legacyExists:
		r.logger.Debug("both canonical and legacy paths exist, preferring canonical",
			zap.String("canonical", canonical),
			zap.String("legacy", legacy))
		return canonical
	case !canonicalExists && legacyExists:
		return legacy
	default:
		return canonical
	}
}

// FindProjectRoot walks upward from the working directory searching for the
// project marker file. Falls back to a .git directory when no marker exists.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to determine working directory: %w", err)
	}
	return FindProjectRootFrom(dir)
}

// FindProjectRootFrom walks upward from the given directory.
func FindProjectRootFrom(dir string) (string, error) {
	for cur := dir; ; {
		if fileExists(filepath.Join(cur, ProjectMarker)) {
			return cur, nil
		}
		if fi, err := os.Stat(filepath.Join(cur, ".git")); err == nil && fi.IsDir() {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("no project marker found walking up from %s", dir)
		}
		cur = parent
	}
}

// ValidatePathWithinProject rejects traversal, absolute paths, URL-encoded
// traversal, and null bytes, then verifies the normalized result lies under
// the project root.
func (r *Resolver) ValidatePathWithinProject(p string) (string, error) {
	if err := checkTraversal(p); err != nil {
		return "", err
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathTraversal, p)
	}
	resolved := filepath.Clean(filepath.Join(r.root, p))
	rel, err := filepath.Rel(r.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q resolves outside %s", ErrPathOutsideProject, p, r.root)
	}
	return resolved, nil
}

func checkTraversal(p string) error {
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("%w: null byte in path", ErrPathTraversal)
	}
	lower := strings.ToLower(p)
	// Catch single and double URL-encoded traversal before normalization.
	for _, pat := range []string{"%2e%2e%2f", "%2e%2e/", "..%2f", "%252e"} {
		if strings.Contains(lower, pat) {
			return fmt.Errorf("%w: encoded traversal in %q", ErrPathTraversal, p)
		}
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return fmt.Errorf("%w: %q", ErrPathTraversal, p)
		}
	}
	return nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
