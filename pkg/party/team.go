// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package party coordinates constrained multi-agent debates: at most four
// agents, at most ten rounds, hard context isolation between agents, and a
// tamper-evident response hash chain.
package party

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// MaxAgents is the hard cap on debate participants.
const MaxAgents = 4

var (
	ErrTooManyAgents    = errors.New("party team exceeds agent cap")
	ErrMalformedTeamCSV = errors.New("malformed team CSV")
	ErrAgentFileMissing = errors.New("agent file missing")
)

// Member is one configured debate participant.
type Member struct {
	AgentType    string
	Role         string
	Priority     int
	Tools        []string
	Model        string
	AgentID      string // agent_<hash>_<timestamp>
	IdentityHash string // SHA-256(path || content)[:8]
	DisplayName  string
	Icon         string
}

// Team is the loaded and identity-bound set of participants.
type Team struct {
	Members []Member
}

// identityHash binds an agent identity to its definition file content, so a
// swapped agent file changes the identity.
func identityHash(agentPath string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(agentPath))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// LoadTeam parses the team CSV (`agent_type,role,priority,tools,model`) and
// computes identity hashes from the agent definition files under agentsDir.
// Rejects malformed CSV, more than four agents, and missing agent files.
func LoadTeam(csvPath, agentsDir string) (*Team, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open team CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTeamCSV, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: no members", ErrMalformedTeamCSV)
	}
	if len(records)-1 > MaxAgents {
		return nil, fmt.Errorf("%w: %d members (max %d)", ErrTooManyAgents, len(records)-1, MaxAgents)
	}

	team := &Team{}
	now := time.Now().UnixMilli()
	for i, record := range records[1:] {
		if len(record) != 5 {
			return nil, fmt.Errorf("%w: line %d has %d columns (want 5)", ErrMalformedTeamCSV, i+2, len(record))
		}
		agentType := strings.TrimSpace(record[0])
		if agentType == "" {
			return nil, fmt.Errorf("%w: line %d has empty agent_type", ErrMalformedTeamCSV, i+2)
		}
		priority := 1
		if strings.TrimSpace(record[2]) != "" {
			priority, err = strconv.Atoi(strings.TrimSpace(record[2]))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d bad priority %q", ErrMalformedTeamCSV, i+2, record[2])
			}
		}

		agentPath := filepath.Join(agentsDir, agentType+".md")
		content, err := os.ReadFile(agentPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s (%v)", ErrAgentFileMissing, agentType, err)
		}
		hash := identityHash(agentPath, content)

		member := Member{
			AgentType:    agentType,
			Role:         strings.TrimSpace(record[1]),
			Priority:     priority,
			Model:        strings.TrimSpace(record[4]),
			AgentID:      fmt.Sprintf("agent_%s_%d", hash, now),
			IdentityHash: hash,
			DisplayName:  agentType,
		}
		if tools := strings.TrimSpace(record[3]); tools != "" {
			member.Tools = strings.Split(tools, ";")
		}
		team.Members = append(team.Members, member)
	}
	return team, nil
}

// Member returns a team member by agent id.
func (t *Team) Member(agentID string) (*Member, bool) {
	for i := range t.Members {
		if t.Members[i].AgentID == agentID {
			return &t.Members[i], true
		}
	}
	return nil, false
}
