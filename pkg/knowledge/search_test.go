// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedIndex(t *testing.T) *Index {
	t.Helper()
	idx := newTestIndex(t)
	require.NoError(t, idx.Write([]Row{
		{
			Name: "go-style", Path: "skills/go-style.md", Domain: DomainSkill,
			Complexity: ComplexityLow, Description: "Go code style guidance",
			UseCases: []string{"review", "refactor"}, Tools: []string{"implementer", "reviewer"},
		},
		{
			Name: "db-migrations", Path: "skills/db-migrations.md", Domain: DomainSkill,
			Complexity: ComplexityHigh, Description: "schema migration playbook",
			UseCases: []string{"migration"}, Tools: []string{"implementer"},
		},
		{
			Name: "old-style", Path: "skills/old-style.md", Domain: DomainSkill,
			Complexity: ComplexityLow, Description: "superseded style guidance",
			Deprecated: true,
		},
		{
			Name: "implementer", Path: "agents/implementer.md", Domain: DomainAgent,
			Complexity: ComplexityMedium, Description: "builds features", Alias: "builder",
		},
		{
			Name: "architect", Path: "agents/architect.md", Domain: DomainAgent,
			Complexity: ComplexityHigh, Description: "designs systems",
		},
	}))
	return idx
}

// TestSearchExcludesDeprecated verifies fuzzy search ranks live entries and
// never surfaces deprecated ones.
func TestSearchExcludesDeprecated(t *testing.T) {
	idx := seedIndex(t)

	rows, err := idx.Search("style guidance")
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, r := range rows {
		assert.NotEqual(t, "old-style", r.Name)
	}
	assert.Equal(t, "go-style", rows[0].Name)
}

// TestSearchEmptyQuery verifies a blank query returns nothing.
func TestSearchEmptyQuery(t *testing.T) {
	idx := seedIndex(t)
	rows, err := idx.Search("   ")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// TestFilterByDomain verifies domain filtering excludes deprecated rows and
// sorts by name.
func TestFilterByDomain(t *testing.T) {
	idx := seedIndex(t)

	skills, err := idx.FilterByDomain(DomainSkill)
	require.NoError(t, err)
	require.Len(t, skills, 2)
	assert.Equal(t, "db-migrations", skills[0].Name)
	assert.Equal(t, "go-style", skills[1].Name)

	agents, err := idx.FilterByDomain(DomainAgent)
	require.NoError(t, err)
	assert.Len(t, agents, 2)
}

// TestFilterByTags verifies AND semantics across use cases and tools,
// case-insensitively.
func TestFilterByTags(t *testing.T) {
	idx := seedIndex(t)

	rows, err := idx.FilterByTags([]string{"Implementer", "review"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "go-style", rows[0].Name)

	rows, err = idx.FilterByTags([]string{"implementer"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = idx.FilterByTags([]string{"implementer", "nonexistent"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// TestRecordUsage verifies the usage counter bump persists across a reload.
func TestRecordUsage(t *testing.T) {
	idx := seedIndex(t)
	require.NoError(t, idx.RecordUsage("go-style"))
	require.NoError(t, idx.RecordUsage("go-style"))

	idx.Invalidate()
	row, err := idx.Get("go-style")
	require.NoError(t, err)
	assert.Equal(t, 2, row.UsageCount)
	assert.False(t, row.LastUsed.IsZero())

	assert.ErrorIs(t, idx.RecordUsage("missing"), ErrNotFound)
}

// TestSkillsForAgent verifies skill lookup by the agent type named in the
// skill's tools.
func TestSkillsForAgent(t *testing.T) {
	idx := seedIndex(t)

	rows, err := idx.SkillsForAgent("reviewer")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "go-style", rows[0].Name)

	rows, err = idx.SkillsForAgent("architect")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
