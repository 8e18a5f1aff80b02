// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
)

// Stats summarizes the index contents.
type Stats struct {
	Total      int            `json:"total"`
	ByDomain   map[string]int `json:"by_domain"`
	Deprecated int            `json:"deprecated"`
}

// rowSource adapts rows to the fuzzy matcher. Matching runs over the name,
// alias, description, and use cases joined into one haystack per row.
type rowSource []Row

func (s rowSource) String(i int) string {
	r := s[i]
	parts := []string{r.Name, r.Alias, r.Description}
	parts = append(parts, r.UseCases...)
	return strings.ToLower(strings.Join(parts, " "))
}

func (s rowSource) Len() int { return len(s) }

// Search returns rows ranked by fuzzy match score. Deprecated rows are
// excluded. An empty query returns nothing.
func (idx *Index) Search(query string) ([]Row, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if err := idx.ensureLoaded(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	live := make(rowSource, 0, len(idx.rows))
	for _, r := range idx.rows {
		if !r.Deprecated {
			live = append(live, r)
		}
	}
	matches := fuzzy.FindFrom(strings.ToLower(query), live)
	out := make([]Row, 0, len(matches))
	for _, m := range matches {
		out = append(out, live[m.Index])
	}
	return out, nil
}

// FilterByDomain returns all non-deprecated rows in a domain, sorted by name.
func (idx *Index) FilterByDomain(domain string) ([]Row, error) {
	if err := idx.ensureLoaded(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []Row
	for _, r := range idx.rows {
		if r.Domain == domain && !r.Deprecated {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FilterByTags returns rows carrying every requested tag (AND semantics)
// in their use cases or tools.
func (idx *Index) FilterByTags(tags []string) ([]Row, error) {
	if err := idx.ensureLoaded(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []Row
	for _, r := range idx.rows {
		if r.Deprecated {
			continue
		}
		if rowHasAllTags(r, tags) {
			out = append(out, r)
		}
	}
	return out, nil
}

func rowHasAllTags(r Row, tags []string) bool {
	for _, tag := range tags {
		found := false
		for _, have := range append(append([]string(nil), r.UseCases...), r.Tools...) {
			if strings.EqualFold(have, tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Get looks a row up by name or alias.
func (idx *Index) Get(name string) (Row, error) {
	if err := idx.ensureLoaded(); err != nil {
		return Row{}, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	i, ok := idx.byName[name]
	if !ok {
		return Row{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return idx.rows[i], nil
}

// ListAll returns every row, including deprecated ones.
func (idx *Index) ListAll() ([]Row, error) {
	if err := idx.ensureLoaded(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]Row(nil), idx.rows...), nil
}

// GetStats returns aggregate counts.
func (idx *Index) GetStats() (Stats, error) {
	if err := idx.ensureLoaded(); err != nil {
		return Stats{}, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	stats := Stats{ByDomain: make(map[string]int)}
	for _, r := range idx.rows {
		stats.Total++
		stats.ByDomain[r.Domain]++
		if r.Deprecated {
			stats.Deprecated++
		}
	}
	return stats, nil
}

// RecordUsage bumps usage_count and last_used for an entry and rewrites
// the index.
func (idx *Index) RecordUsage(name string) error {
	if err := idx.ensureLoaded(); err != nil {
		return err
	}
	idx.mu.RLock()
	i, ok := idx.byName[name]
	if !ok {
		idx.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	rows := append([]Row(nil), idx.rows...)
	idx.mu.RUnlock()

	rows[i].UsageCount++
	rows[i].LastUsed = time.Now()
	return idx.Write(rows)
}

// SkillsForAgent returns the non-deprecated skills whose tools list names
// the agent type. Used to augment delegation prompts.
func (idx *Index) SkillsForAgent(agentType string) ([]Row, error) {
	skills, err := idx.FilterByDomain(DomainSkill)
	if err != nil {
		return nil, err
	}
	var out []Row
	for _, s := range skills {
		for _, t := range s.Tools {
			if strings.EqualFold(t, agentType) {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}
