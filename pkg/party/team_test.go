// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package party

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const teamHeader = "agent_type,role,priority,tools,model\n"

func writeTeamFixture(t *testing.T, csvBody string, agents ...string) (csvPath, agentsDir string) {
	t.Helper()
	root := t.TempDir()
	csvPath = filepath.Join(root, "team.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(csvBody), 0o640))
	agentsDir = filepath.Join(root, "agents")
	require.NoError(t, os.MkdirAll(agentsDir, 0o750))
	for _, name := range agents {
		require.NoError(t, os.WriteFile(
			filepath.Join(agentsDir, name+".md"),
			[]byte("# "+name+"\nInstructions for "+name+".\n"), 0o640))
	}
	return csvPath, agentsDir
}

// TestLoadTeam verifies members parse with identity hashes bound to their
// definition files.
func TestLoadTeam(t *testing.T) {
	csvPath, agentsDir := writeTeamFixture(t,
		teamHeader+
			"implementer,lead,1,file_write;shell_execute,claude-sonnet-4-5-20250929\n"+
			"reviewer,critic,2,,\n",
		"implementer", "reviewer")

	team, err := LoadTeam(csvPath, agentsDir)
	require.NoError(t, err)
	require.Len(t, team.Members, 2)

	lead := team.Members[0]
	assert.Equal(t, "implementer", lead.AgentType)
	assert.Equal(t, "lead", lead.Role)
	assert.Equal(t, 1, lead.Priority)
	assert.Equal(t, []string{"file_write", "shell_execute"}, lead.Tools)
	assert.Equal(t, "claude-sonnet-4-5-20250929", lead.Model)
	assert.Len(t, lead.IdentityHash, 8)
	assert.True(t, strings.HasPrefix(lead.AgentID, "agent_"+lead.IdentityHash+"_"))

	// Blank priority defaults to 1; blank tools stay nil.
	assert.Equal(t, 2, team.Members[1].Priority)
	assert.Nil(t, team.Members[1].Tools)
}

// TestLoadTeamIdentityTracksContent verifies the identity hash changes when
// the agent definition file changes.
func TestLoadTeamIdentityTracksContent(t *testing.T) {
	csvPath, agentsDir := writeTeamFixture(t,
		teamHeader+"implementer,lead,1,,\n", "implementer")

	team1, err := LoadTeam(csvPath, agentsDir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(
		filepath.Join(agentsDir, "implementer.md"),
		[]byte("# implementer\nSwapped instructions.\n"), 0o640))
	team2, err := LoadTeam(csvPath, agentsDir)
	require.NoError(t, err)

	assert.NotEqual(t, team1.Members[0].IdentityHash, team2.Members[0].IdentityHash)
}

// TestLoadTeamCapsAgents verifies the four-agent cap.
func TestLoadTeamCapsAgents(t *testing.T) {
	body := teamHeader
	names := []string{"a1", "a2", "a3", "a4", "a5"}
	for _, n := range names {
		body += n + ",member,1,,\n"
	}
	csvPath, agentsDir := writeTeamFixture(t, body, names...)

	_, err := LoadTeam(csvPath, agentsDir)
	assert.ErrorIs(t, err, ErrTooManyAgents)
}

// TestLoadTeamMissingAgentFile verifies a row naming an absent agent
// definition is rejected.
func TestLoadTeamMissingAgentFile(t *testing.T) {
	csvPath, agentsDir := writeTeamFixture(t,
		teamHeader+"ghost,member,1,,\n")

	_, err := LoadTeam(csvPath, agentsDir)
	assert.ErrorIs(t, err, ErrAgentFileMissing)
}

// TestLoadTeamMalformedCSV verifies structural problems are rejected.
func TestLoadTeamMalformedCSV(t *testing.T) {
	cases := map[string]string{
		"header only":      teamHeader,
		"bad priority":     teamHeader + "implementer,lead,soon,,\n",
		"empty agent_type": teamHeader + " ,lead,1,,\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			csvPath, agentsDir := writeTeamFixture(t, body, "implementer")
			_, err := LoadTeam(csvPath, agentsDir)
			assert.ErrorIs(t, err, ErrMalformedTeamCSV)
		})
	}
}
