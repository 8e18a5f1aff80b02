// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package party

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTeam(ids ...string) *Team {
	team := &Team{}
	for _, id := range ids {
		team.Members = append(team.Members, Member{
			AgentType:    id,
			Role:         "member",
			AgentID:      "agent_" + id,
			IdentityHash: "hash-" + id,
			DisplayName:  id,
		})
	}
	return team
}

// scriptedInvoker answers for every member with canned content keyed by
// agent type.
func scriptedInvoker(answers map[string]string) Invoker {
	return func(_ context.Context, member *Member, _ map[string]interface{}) (*AgentResponse, error) {
		content, ok := answers[member.AgentType]
		if !ok {
			return nil, errors.New("agent has nothing to say")
		}
		return &AgentResponse{
			AgentID:      member.AgentID,
			IdentityHash: member.IdentityHash,
			Content:      content,
			Timestamp:    "t-" + member.AgentType,
		}, nil
	}
}

// TestRunRoundReachesConsensus verifies a full round: parallel invocation,
// deterministic chain order, and consensus aggregation.
func TestRunRoundReachesConsensus(t *testing.T) {
	team := testTeam("b", "a") // out of order on purpose
	c, err := NewCoordinator(Config{
		Team: team,
		Invoker: scriptedInvoker(map[string]string{
			"a": "I agree with the design.",
			"b": "Agreed, proceed.",
		}),
	})
	require.NoError(t, err)

	consensus, err := c.RunRound(context.Background(), "storage design")
	require.NoError(t, err)
	assert.Equal(t, ConsensusStrong, consensus.State)
	assert.Equal(t, 1, c.Rounds())

	// Chain entries land sorted by agent id regardless of arrival order.
	entries := c.Chain()
	require.Len(t, entries, 2)
	assert.Equal(t, "agent_a", entries[0].AgentID)
	assert.Equal(t, "agent_b", entries[1].AgentID)
	assert.True(t, VerifyResponseChain(entries).Valid)
}

// TestRunRoundRejectsIdentityMismatch verifies a response with a stale
// identity hash is dropped, not chained.
func TestRunRoundRejectsIdentityMismatch(t *testing.T) {
	team := testTeam("a", "b")
	c, err := NewCoordinator(Config{
		Team: team,
		Invoker: func(_ context.Context, member *Member, _ map[string]interface{}) (*AgentResponse, error) {
			resp := &AgentResponse{
				AgentID:      member.AgentID,
				IdentityHash: member.IdentityHash,
				Content:      "I agree.",
				Timestamp:    "t",
			}
			if member.AgentType == "b" {
				resp.IdentityHash = "imposter"
			}
			return resp, nil
		},
	})
	require.NoError(t, err)

	_, err = c.RunRound(context.Background(), "topic")
	require.NoError(t, err)
	entries := c.Chain()
	require.Len(t, entries, 1)
	assert.Equal(t, "agent_a", entries[0].AgentID)
}

// TestRunRoundAbsentAgent verifies an erroring agent is absent from the
// round rather than failing it.
func TestRunRoundAbsentAgent(t *testing.T) {
	team := testTeam("a", "b")
	c, err := NewCoordinator(Config{
		Team:    team,
		Invoker: scriptedInvoker(map[string]string{"a": "I agree."}),
	})
	require.NoError(t, err)

	consensus, err := c.RunRound(context.Background(), "topic")
	require.NoError(t, err)
	assert.Len(t, c.Chain(), 1)
	assert.Equal(t, ConsensusStrong, consensus.State)
}

// TestRunRoundRefusesBrokenChain verifies a tampered chain stops the
// session before any new response is accepted.
func TestRunRoundRefusesBrokenChain(t *testing.T) {
	team := testTeam("a")
	c, err := NewCoordinator(Config{
		Team:    team,
		Invoker: scriptedInvoker(map[string]string{"a": "I agree."}),
	})
	require.NoError(t, err)
	_, err = c.RunRound(context.Background(), "topic")
	require.NoError(t, err)

	c.chain.entries[0].Content = "rewritten history"
	_, err = c.RunRound(context.Background(), "topic")
	assert.ErrorIs(t, err, ErrChainBroken)
}

// TestRunRoundCap verifies the hard round cap.
func TestRunRoundCap(t *testing.T) {
	team := testTeam("a")
	c, err := NewCoordinator(Config{
		Team:    team,
		Invoker: scriptedInvoker(map[string]string{"a": "I agree."}),
	})
	require.NoError(t, err)
	c.rounds = MaxRounds

	_, err = c.RunRound(context.Background(), "topic")
	assert.ErrorIs(t, err, ErrRoundCapReached)
}

// TestRunRoundContextTooLarge verifies the hard token cap aborts the round.
func TestRunRoundContextTooLarge(t *testing.T) {
	team := testTeam("a")
	c, err := NewCoordinator(Config{
		Team:    team,
		Invoker: scriptedInvoker(map[string]string{"a": "I agree."}),
		SharedCtx: map[string]interface{}{
			"transcript": strings.Repeat("lorem ipsum dolor sit amet 12345 ", 30_000),
		},
	})
	require.NoError(t, err)

	_, err = c.RunRound(context.Background(), "topic")
	assert.ErrorIs(t, err, ErrContextTooLarge)
}

// TestRunStopsOnConsensus verifies the session loop ends on the first
// non-none consensus.
func TestRunStopsOnConsensus(t *testing.T) {
	team := testTeam("a", "b")
	c, err := NewCoordinator(Config{
		Team: team,
		Invoker: scriptedInvoker(map[string]string{
			"a": "I agree.",
			"b": "Concur.",
		}),
	})
	require.NoError(t, err)

	consensus, err := c.Run(context.Background(), "topic")
	require.NoError(t, err)
	require.NotNil(t, consensus)
	assert.Equal(t, ConsensusStrong, consensus.State)
	assert.Equal(t, 1, c.Rounds())
}

// TestNewCoordinatorValidation verifies team requirements at construction.
func TestNewCoordinatorValidation(t *testing.T) {
	_, err := NewCoordinator(Config{})
	assert.Error(t, err)

	_, err = NewCoordinator(Config{Team: testTeam("a", "b", "c", "d", "e")})
	assert.ErrorIs(t, err, ErrTooManyAgents)
}
