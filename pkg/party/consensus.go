// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package party

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Consensus states after a round.
const (
	ConsensusStrong = "strong" // >= 80% weighted agreement
	ConsensusWeak   = "weak"   // 60-79%
	ConsensusNone   = "none"   // < 60%, triggers another round up to the cap
)

// roleWeights boosts certain roles in weighted agreement. Security voices
// count more on security topics.
var roleWeights = map[string]float64{
	"security-architect": 1.5,
	"lead":               1.2,
}

// explicit agreement markers scanned in responses.
var (
	agreeMarkers    = []string{"i agree", "agreed", "+1", "concur", "sounds right"}
	disagreeMarkers = []string{"i disagree", "disagree", "-1", "object", "this is wrong"}
)

// RoundConsensus is the aggregated verdict for one round.
type RoundConsensus struct {
	State          string             `json:"state"`
	AgreementScore float64            `json:"agreement_score"` // weighted [0,1]
	PerAgent       map[string]float64 `json:"per_agent"`
}

// roleWeight returns the multiplier for a member's role.
func roleWeight(role string) float64 {
	if w, ok := roleWeights[strings.ToLower(role)]; ok {
		return w
	}
	return 1.0
}

// textualOverlap measures similarity of two responses as the fraction of
// shared text in a character-level diff.
func textualOverlap(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	common := 0
	total := 0
	for _, d := range diffs {
		n := len(d.Text)
		total += n
		if d.Type == diffmatchpatch.DiffEqual {
			common += 2 * n // counted once per side
		}
	}
	if total == 0 {
		return 0
	}
	overlap := float64(common) / float64(total+common)
	if overlap > 1 {
		overlap = 1
	}
	return overlap
}

// markerScore maps explicit agree/disagree markers to [0,1], or -1 when the
// response takes no explicit stance.
func markerScore(content string) float64 {
	lower := strings.ToLower(content)
	for _, m := range disagreeMarkers {
		if strings.Contains(lower, m) {
			return 0
		}
	}
	for _, m := range agreeMarkers {
		if strings.Contains(lower, m) {
			return 1
		}
	}
	return -1
}

// Aggregate computes the weighted consensus for a round. Each agent's
// agreement is its explicit marker when present, otherwise its mean textual
// overlap with the other responses. Agents absent from the round are not
// counted.
func Aggregate(team *Team, responses []ChainEntry) RoundConsensus {
	perAgent := make(map[string]float64, len(responses))

	for i, r := range responses {
		score := markerScore(r.Content)
		if score < 0 {
			sum := 0.0
			n := 0
			for j, other := range responses {
				if i == j {
					continue
				}
				sum += textualOverlap(r.Content, other.Content)
				n++
			}
			if n > 0 {
				score = sum / float64(n)
			} else {
				score = 1 // sole respondent trivially agrees with itself
			}
		}
		perAgent[r.AgentID] = score
	}

	weightedSum := 0.0
	weightTotal := 0.0
	for agentID, score := range perAgent {
		weight := 1.0
		if member, ok := team.Member(agentID); ok {
			weight = roleWeight(member.Role)
		}
		weightedSum += score * weight
		weightTotal += weight
	}

	consensus := RoundConsensus{PerAgent: perAgent}
	if weightTotal > 0 {
		consensus.AgreementScore = weightedSum / weightTotal
	}
	switch {
	case consensus.AgreementScore >= 0.80:
		consensus.State = ConsensusStrong
	case consensus.AgreementScore >= 0.60:
		consensus.State = ConsensusWeak
	default:
		consensus.State = ConsensusNone
	}
	return consensus
}
