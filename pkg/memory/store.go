// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package memory provides session-partitioned persistent memory: gotchas,
// patterns, codebase discoveries, and numbered session summaries. Reads are
// truncated to fixed per-category budgets so every agent can afford to load
// context; writes are deduplicated and atomic.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/paths"
)

// Entry is a deduplicated memory note (gotcha or pattern).
type Entry struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Discovery describes a file discovered in the codebase.
type Discovery struct {
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// CodebaseMap is the discovered-files index.
type CodebaseMap struct {
	DiscoveredFiles map[string]Discovery `json:"discovered_files"`
	LastUpdated     time.Time            `json:"last_updated"`
}

// Store persists bounded memory across sessions. All I/O goes through the
// path resolver; writes are atomic and deduplication happens on insert.
type Store struct {
	resolver *paths.Resolver
	logger   *zap.Logger
}

// NewStore creates a memory store over the given resolver.
func NewStore(resolver *paths.Resolver, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{resolver: resolver, logger: logger}
}

// RecordGotcha appends a gotcha, suppressing case-insensitive duplicates.
func (s *Store) RecordGotcha(text string) error {
	return s.recordEntry("memory/gotchas.json", text)
}

// RecordPattern appends a pattern, suppressing case-insensitive duplicates.
func (s *Store) RecordPattern(text string) error {
	return s.recordEntry("memory/patterns.json", text)
}

func (s *Store) recordEntry(subpath, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty memory entry")
	}
	path, err := s.resolver.ResolveRuntime(subpath, paths.Write)
	if err != nil {
		return err
	}
	entries, err := s.loadEntries(subpath)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if strings.EqualFold(e.Text, text) {
			return nil // duplicate, insertion order preserved
		}
	}
	entries = append(entries, Entry{Text: text, Timestamp: time.Now()})
	return s.resolver.AtomicWriteJSON(path, entries)
}

func (s *Store) loadEntries(subpath string) ([]Entry, error) {
	path, err := s.resolver.ResolveRuntime(subpath, paths.Read)
	if err != nil {
		return nil, err
	}
	raw, err := s.resolver.SafeReadJSON(path, "")
	if err != nil {
		// Corrupt memory degrades to empty rather than blocking agents.
		s.logger.Warn("memory file unreadable, treating as empty",
			zap.String("path", path), zap.Error(err))
		return nil, nil
	}
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("memory file has unexpected shape, treating as empty",
			zap.String("path", path), zap.Error(err))
		return nil, nil
	}
	return entries, nil
}

// RecordDiscovery records a discovered file in the codebase map.
// Re-discovering a path updates its description in place.
func (s *Store) RecordDiscovery(filePath, description, category string) error {
	if strings.TrimSpace(filePath) == "" {
		return fmt.Errorf("empty discovery path")
	}
	path, err := s.resolver.ResolveRuntime("memory/codebase_map.json", paths.Write)
	if err != nil {
		return err
	}
	cm, err := s.loadCodebaseMap()
	if err != nil {
		return err
	}
	cm.DiscoveredFiles[filePath] = Discovery{
		Description:  description,
		Category:     category,
		DiscoveredAt: time.Now(),
	}
	cm.LastUpdated = time.Now()
	return s.resolver.AtomicWriteJSON(path, cm)
}

func (s *Store) loadCodebaseMap() (*CodebaseMap, error) {
	cm := &CodebaseMap{DiscoveredFiles: make(map[string]Discovery)}
	path, err := s.resolver.ResolveRuntime("memory/codebase_map.json", paths.Read)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cm, nil
		}
		return nil, fmt.Errorf("failed to read codebase map: %w", err)
	}
	if err := json.Unmarshal(data, cm); err != nil {
		s.logger.Warn("codebase map corrupt, starting fresh", zap.Error(err))
		return &CodebaseMap{DiscoveredFiles: make(map[string]Discovery)}, nil
	}
	if cm.DiscoveredFiles == nil {
		cm.DiscoveredFiles = make(map[string]Discovery)
	}
	return cm, nil
}

// CategoryStats reports counts and byte sizes for one memory category.
type CategoryStats struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

// Stats returns counts and byte sizes per category.
func (s *Store) Stats() (map[string]CategoryStats, error) {
	out := make(map[string]CategoryStats)

	for name, subpath := range map[string]string{
		"gotchas":  "memory/gotchas.json",
		"patterns": "memory/patterns.json",
	} {
		entries, err := s.loadEntries(subpath)
		if err != nil {
			return nil, err
		}
		out[name] = CategoryStats{Count: len(entries), Bytes: s.fileSize(subpath)}
	}

	cm, err := s.loadCodebaseMap()
	if err != nil {
		return nil, err
	}
	out["discoveries"] = CategoryStats{
		Count: len(cm.DiscoveredFiles),
		Bytes: s.fileSize("memory/codebase_map.json"),
	}

	sessions, err := s.listSessionFiles()
	if err != nil {
		return nil, err
	}
	var sessionBytes int64
	for _, f := range sessions {
		if fi, err := os.Stat(f); err == nil {
			sessionBytes += fi.Size()
		}
	}
	out["sessions"] = CategoryStats{Count: len(sessions), Bytes: sessionBytes}
	return out, nil
}

func (s *Store) fileSize(subpath string) int64 {
	path, err := s.resolver.ResolveRuntime(subpath, paths.Read)
	if err != nil {
		return 0
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
