// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"os"
	"sort"

	"github.com/teradata-labs/weft/pkg/paths"
)

// Truncation budgets per category: item counts and total character caps.
// The serialized context is guaranteed to stay within the sum of the caps.
const (
	GotchaItems     = 20
	GotchaChars     = 2000
	PatternItems    = 20
	PatternChars    = 2000
	DiscoveryItems  = 30
	DiscoveryChars  = 3000
	SessionItems    = 5
	SessionChars    = 5000
	LegacyCharLimit = 3000
)

// ContextDiscovery is one discovery in the loaded context.
type ContextDiscovery struct {
	Path        string `json:"path"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Context is the truncated memory view handed to agents.
type Context struct {
	Gotchas        []string           `json:"gotchas"`
	Patterns       []string           `json:"patterns"`
	Discoveries    []ContextDiscovery `json:"discoveries"`
	RecentSessions []SessionRecord    `json:"recent_sessions"`
	LegacyNotes    string             `json:"legacy_notes,omitempty"`
}

// LoadForContext builds the read-time-truncated memory context. Each
// category returns its most recent items capped in both count and total
// characters; missing or corrupt files degrade to empty.
func (s *Store) LoadForContext() (*Context, error) {
	ctx := &Context{}

	gotchas, err := s.loadEntries("memory/gotchas.json")
	if err == nil {
		ctx.Gotchas = truncateEntries(gotchas, GotchaItems, GotchaChars)
	}
	patterns, err := s.loadEntries("memory/patterns.json")
	if err == nil {
		ctx.Patterns = truncateEntries(patterns, PatternItems, PatternChars)
	}

	if cm, err := s.loadCodebaseMap(); err == nil {
		ctx.Discoveries = truncateDiscoveries(cm, DiscoveryItems, DiscoveryChars)
	}

	sessions, err := s.loadRecentSessions(SessionItems)
	if err == nil {
		ctx.RecentSessions = truncateSessions(sessions, SessionChars)
	}

	ctx.LegacyNotes = s.loadLegacyNotes()
	return ctx, nil
}

// truncateEntries keeps the newest maxItems entries within the char budget.
func truncateEntries(entries []Entry, maxItems, maxChars int) []string {
	var out []string
	used := 0
	for i := len(entries) - 1; i >= 0 && len(out) < maxItems; i-- {
		text := entries[i].Text
		if used+len(text) > maxChars {
			break
		}
		used += len(text)
		out = append(out, text)
	}
	return out
}

func truncateDiscoveries(cm *CodebaseMap, maxItems, maxChars int) []ContextDiscovery {
	type keyed struct {
		path string
		d    Discovery
	}
	all := make([]keyed, 0, len(cm.DiscoveredFiles))
	for p, d := range cm.DiscoveredFiles {
		all = append(all, keyed{p, d})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].d.DiscoveredAt.After(all[j].d.DiscoveredAt)
	})

	var out []ContextDiscovery
	used := 0
	for _, k := range all {
		if len(out) >= maxItems {
			break
		}
		size := len(k.path) + len(k.d.Description)
		if used+size > maxChars {
			break
		}
		used += size
		out = append(out, ContextDiscovery{
			Path:        k.path,
			Description: k.d.Description,
			Category:    k.d.Category,
		})
	}
	return out
}

func truncateSessions(sessions []SessionRecord, maxChars int) []SessionRecord {
	var out []SessionRecord
	used := 0
	for _, rec := range sessions {
		if used+len(rec.Summary) > maxChars {
			break
		}
		used += len(rec.Summary)
		out = append(out, rec)
	}
	return out
}

// loadLegacyNotes reads the archived learnings file, capped to the legacy
// char limit. The legacy file is read-only archival.
func (s *Store) loadLegacyNotes() string {
	path, err := s.resolver.ResolveRuntime("memory/learnings.md", paths.Read)
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if len(data) > LegacyCharLimit {
		data = data[:LegacyCharLimit]
	}
	return string(data)
}
