// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package party

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestAggregateExplicitMarkers verifies explicit agree/disagree markers
// dominate scoring.
func TestAggregateExplicitMarkers(t *testing.T) {
	team := &Team{Members: []Member{
		{AgentID: "agent_a", Role: "member"},
		{AgentID: "agent_b", Role: "member"},
	}}

	all := Aggregate(team, []ChainEntry{
		{AgentID: "agent_a", Content: "I agree with the plan."},
		{AgentID: "agent_b", Content: "Agreed, let us proceed."},
	})
	assert.Equal(t, ConsensusStrong, all.State)
	assert.InDelta(t, 1.0, all.AgreementScore, 1e-9)

	split := Aggregate(team, []ChainEntry{
		{AgentID: "agent_a", Content: "I agree with the plan."},
		{AgentID: "agent_b", Content: "I disagree, the index will not scale."},
	})
	assert.Equal(t, ConsensusNone, split.State)
	assert.InDelta(t, 0.5, split.AgreementScore, 1e-9)
	assert.InDelta(t, 0.0, split.PerAgent["agent_b"], 1e-9)
}

// TestAggregateTextualOverlap verifies agents with no explicit stance are
// scored by textual similarity with their peers.
func TestAggregateTextualOverlap(t *testing.T) {
	team := &Team{Members: []Member{
		{AgentID: "agent_a", Role: "member"},
		{AgentID: "agent_b", Role: "member"},
	}}

	identical := Aggregate(team, []ChainEntry{
		{AgentID: "agent_a", Content: "use postgres with a write-ahead journal"},
		{AgentID: "agent_b", Content: "use postgres with a write-ahead journal"},
	})
	assert.NotEqual(t, ConsensusNone, identical.State)

	divergent := Aggregate(team, []ChainEntry{
		{AgentID: "agent_a", Content: "use postgres with a write-ahead journal"},
		{AgentID: "agent_b", Content: "zzz qqq kkk www vvv"},
	})
	assert.Greater(t, identical.AgreementScore, divergent.AgreementScore)
}

// TestAggregateRoleWeights verifies weighted roles pull the aggregate
// toward their stance.
func TestAggregateRoleWeights(t *testing.T) {
	weighted := &Team{Members: []Member{
		{AgentID: "agent_a", Role: "security-architect"},
		{AgentID: "agent_b", Role: "member"},
	}}
	flat := &Team{Members: []Member{
		{AgentID: "agent_a", Role: "member"},
		{AgentID: "agent_b", Role: "member"},
	}}
	responses := []ChainEntry{
		{AgentID: "agent_a", Content: "I disagree, this leaks credentials."},
		{AgentID: "agent_b", Content: "I agree with shipping."},
	}

	withWeight := Aggregate(weighted, responses)
	without := Aggregate(flat, responses)
	assert.Less(t, withWeight.AgreementScore, without.AgreementScore,
		"a dissenting security-architect must count more than a plain member")
}

// TestAggregateSoleRespondent verifies a single responding agent trivially
// agrees with itself.
func TestAggregateSoleRespondent(t *testing.T) {
	team := &Team{Members: []Member{{AgentID: "agent_a", Role: "member"}}}
	c := Aggregate(team, []ChainEntry{
		{AgentID: "agent_a", Content: "the plan as written"},
	})
	assert.Equal(t, ConsensusStrong, c.State)
	assert.InDelta(t, 1.0, c.AgreementScore, 1e-9)
}

// TestAggregateEmptyRound verifies no responses yields no consensus.
func TestAggregateEmptyRound(t *testing.T) {
	c := Aggregate(&Team{}, nil)
	assert.Equal(t, ConsensusNone, c.State)
	assert.Zero(t, c.AgreementScore)
}
