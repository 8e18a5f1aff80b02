// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/paths"
)

// DefaultSessionCap is the number of most-recent session files retained.
const DefaultSessionCap = 50

var sessionFilePattern = regexp.MustCompile(`^session_(\d{3,})\.json$`)

// SessionRecord is a persisted end-of-session summary.
type SessionRecord struct {
	SequenceNumber     int                    `json:"sequence_number"`
	Timestamp          time.Time              `json:"timestamp"`
	Summary            string                 `json:"summary"`
	TasksCompleted     []string               `json:"tasks_completed,omitempty"`
	FilesModified      []string               `json:"files_modified,omitempty"`
	Discoveries        []SessionDiscovery     `json:"discoveries,omitempty"`
	PatternsFound      []string               `json:"patterns_found,omitempty"`
	GotchasEncountered []string               `json:"gotchas_encountered,omitempty"`
	DecisionsMade      []string               `json:"decisions_made,omitempty"`
	NextSteps          []string               `json:"next_steps,omitempty"`
	Custom             map[string]interface{} `json:"custom,omitempty"`
}

// SessionDiscovery is a discovery reported inside a session record.
type SessionDiscovery struct {
	Path        string `json:"path"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// SaveSession persists a session record under the next sequence number,
// extracts its patterns, gotchas, and discoveries into their category
// files, and prunes sessions beyond the retention cap.
func (s *Store) SaveSession(rec SessionRecord) (int, error) {
	files, err := s.listSessionFiles()
	if err != nil {
		return 0, err
	}

	next := 1
	for _, f := range files {
		if m := sessionFilePattern.FindStringSubmatch(filepath.Base(f)); m != nil {
			var n int
			fmt.Sscanf(m[1], "%d", &n)
			if n >= next {
				next = n + 1
			}
		}
	}

	rec.SequenceNumber = next
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	path, err := s.resolver.ResolveRuntime(
		fmt.Sprintf("memory/sessions/session_%03d.json", next), paths.Write)
	if err != nil {
		return 0, err
	}
	if err := s.resolver.AtomicWriteJSON(path, rec); err != nil {
		return 0, err
	}

	// Extraction failures are logged, not fatal: the session record itself
	// is already durable.
	for _, p := range rec.PatternsFound {
		if err := s.RecordPattern(p); err != nil {
			s.logger.Warn("failed to extract pattern", zap.Error(err))
		}
	}
	for _, g := range rec.GotchasEncountered {
		if err := s.RecordGotcha(g); err != nil {
			s.logger.Warn("failed to extract gotcha", zap.Error(err))
		}
	}
	for _, d := range rec.Discoveries {
		if err := s.RecordDiscovery(d.Path, d.Description, d.Category); err != nil {
			s.logger.Warn("failed to extract discovery", zap.Error(err))
		}
	}

	if err := s.pruneSessions(DefaultSessionCap); err != nil {
		s.logger.Warn("session pruning failed", zap.Error(err))
	}
	return next, nil
}

// listSessionFiles returns session file paths sorted by sequence number.
func (s *Store) listSessionFiles() ([]string, error) {
	dir, err := s.resolver.ResolveRuntime("memory/sessions", paths.Read)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var files []string
	for _, e := range entries {
		if sessionFilePattern.MatchString(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	// Zero-padding covers three digits; past session_999 only a numeric
	// sort keeps recency ordering correct.
	sort.Slice(files, func(i, j int) bool {
		return sessionSequence(files[i]) < sessionSequence(files[j])
	})
	return files, nil
}

// sessionSequence extracts the numeric suffix of a session file name.
func sessionSequence(path string) int {
	m := sessionFilePattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0
	}
	var n int
	fmt.Sscanf(m[1], "%d", &n)
	return n
}

// pruneSessions removes all but the newest cap session files.
func (s *Store) pruneSessions(cap int) error {
	files, err := s.listSessionFiles()
	if err != nil {
		return err
	}
	if len(files) <= cap {
		return nil
	}
	for _, f := range files[:len(files)-cap] {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to prune session %s: %w", f, err)
		}
	}
	s.logger.Info("pruned session files",
		zap.Int("removed", len(files)-cap), zap.Int("cap", cap))
	return nil
}

// loadRecentSessions returns the most recent n session records, newest first.
func (s *Store) loadRecentSessions(n int) ([]SessionRecord, error) {
	files, err := s.listSessionFiles()
	if err != nil {
		return nil, err
	}
	var out []SessionRecord
	for i := len(files) - 1; i >= 0 && len(out) < n; i-- {
		data, err := os.ReadFile(files[i])
		if err != nil {
			continue
		}
		var rec SessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("skipping corrupt session file",
				zap.String("path", files[i]), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
