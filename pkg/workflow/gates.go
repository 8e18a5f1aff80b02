// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/paths"
	"github.com/teradata-labs/weft/pkg/state"
)

// Plan rating gate bounds.
const (
	MinPlanRating     = 7
	MaxRatingAttempts = 3
)

// ErrGateFailed wraps every failed gate so callers can map gate failures
// to their own exit handling.
var ErrGateFailed = errors.New("gate failed")

// Rater scores a plan out of 10. Implemented by a rating-skill agent call;
// tests use a scripted func.
type Rater func(ctx context.Context, plan string) (score int, rationale string, err error)

// PlanRating is persisted alongside the plan it scores.
type PlanRating struct {
	PlanID    string    `json:"plan_id"`
	Score     int       `json:"score"`
	Rationale string    `json:"rationale"`
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
}

// Gates evaluates enforcement gates for workflow steps.
type Gates struct {
	store    *state.Store
	resolver *paths.Resolver
	logger   *zap.Logger

	signoffMatrix    map[string][]string // step name -> required signers
	securityTriggers []string
	securityAgents   []string
}

// NewGates loads the gate configuration (signoff matrix, security triggers)
// through the resolver. Missing config files mean the corresponding gate
// passes vacuously.
func NewGates(store *state.Store, resolver *paths.Resolver, logger *zap.Logger) (*Gates, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gates{
		store:         store,
		resolver:      resolver,
		logger:        logger,
		signoffMatrix: map[string][]string{},
	}

	if raw, err := readConfig(resolver, "signoff-matrix"); err != nil {
		return nil, err
	} else if raw != nil {
		var matrix struct {
			Steps map[string][]string `json:"steps"`
		}
		if err := remarshal(raw, &matrix); err == nil {
			g.signoffMatrix = matrix.Steps
		} else {
			logger.Warn("ignoring malformed signoff matrix", zap.Error(err))
		}
	}

	if raw, err := readConfig(resolver, "security-triggers"); err != nil {
		return nil, err
	} else if raw != nil {
		var triggers struct {
			Triggers       []string `json:"triggers"`
			SecurityAgents []string `json:"security_agents"`
		}
		if err := remarshal(raw, &triggers); err == nil {
			g.securityTriggers = triggers.Triggers
			g.securityAgents = triggers.SecurityAgents
		} else {
			logger.Warn("ignoring malformed security triggers", zap.Error(err))
		}
	}
	return g, nil
}

func readConfig(resolver *paths.Resolver, name string) (interface{}, error) {
	path, err := resolver.ResolveConfig(name, paths.Read)
	if err != nil {
		return nil, err
	}
	return resolver.SafeReadJSON(path, "")
}

func remarshal(raw interface{}, out interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// record persists a gate outcome and returns an error when the gate failed.
// Gate failures block the run; there is no silent recovery.
func (g *Gates) record(runID string, outcome state.GateOutcome) error {
	outcome.Timestamp = time.Now()
	if err := g.store.RecordGate(runID, outcome); err != nil {
		return err
	}
	if !outcome.Passed {
		return fmt.Errorf("%w: %s at step %d: %s", ErrGateFailed, outcome.Name, outcome.Step, outcome.Reason)
	}
	return nil
}

// RatePlan runs the plan rating gate: up to MaxRatingAttempts attempts to
// reach MinPlanRating. regenerate is called between attempts to produce a
// revised plan; every rating is persisted alongside the plan.
func (g *Gates) RatePlan(ctx context.Context, runID, planID, plan string,
	rate Rater, regenerate func(ctx context.Context, rationale string) (string, error)) (string, error) {

	var lastScore int
	var lastRationale string
	current := plan

	for attempt := 1; attempt <= MaxRatingAttempts; attempt++ {
		score, rationale, err := rate(ctx, current)
		if err != nil {
			return "", fmt.Errorf("plan rating failed: %w", err)
		}
		lastScore, lastRationale = score, rationale

		rating := PlanRating{
			PlanID:    planID,
			Score:     score,
			Rationale: rationale,
			Attempt:   attempt,
			Timestamp: time.Now(),
		}
		ratingPath, err := g.store.RunDir(runID, filepath.Join("plans", planID+"-rating.json"))
		if err != nil {
			return "", err
		}
		if err := g.resolver.AtomicWriteJSON(ratingPath, rating); err != nil {
			return "", err
		}

		if score >= MinPlanRating {
			return current, g.record(runID, state.GateOutcome{
				Step: 0, Name: "plan-rating", Passed: true,
				Details: map[string]interface{}{"score": score, "attempt": attempt},
			})
		}
		g.logger.Info("plan below rating bar, regenerating",
			zap.String("run_id", runID),
			zap.Int("score", score),
			zap.Int("attempt", attempt))
		if attempt < MaxRatingAttempts {
			revised, err := regenerate(ctx, rationale)
			if err != nil {
				return "", fmt.Errorf("plan regeneration failed: %w", err)
			}
			current = revised
		}
	}

	return "", g.record(runID, state.GateOutcome{
		Step: 0, Name: "plan-rating", Passed: false,
		Reason: fmt.Sprintf("score %d/10 below %d after %d attempts: %s",
			lastScore, MinPlanRating, MaxRatingAttempts, lastRationale),
	})
}

// CheckSignoffs requires every signer configured for the step to have a
// passed signoff entry in the run's gates.
func (g *Gates) CheckSignoffs(runID string, step int, stepName string) error {
	required := g.signoffMatrix[stepName]
	if len(required) == 0 {
		return nil
	}
	outcomes, err := g.store.ListGates(runID)
	if err != nil {
		return err
	}
	signed := map[string]bool{}
	for _, o := range outcomes {
		if o.Step == step && o.Passed && strings.HasPrefix(o.Name, "signoff:") {
			signed[strings.TrimPrefix(o.Name, "signoff:")] = true
		}
	}
	var missing []string
	for _, signer := range required {
		if !signed[signer] {
			missing = append(missing, signer)
		}
	}
	if len(missing) > 0 {
		return g.record(runID, state.GateOutcome{
			Step: step, Name: "signoffs", Passed: false,
			Reason: "missing signoffs: " + strings.Join(missing, ", "),
		})
	}
	return g.record(runID, state.GateOutcome{
		Step: step, Name: "signoffs", Passed: true,
	})
}

// Signoff records one signer's approval for a step.
func (g *Gates) Signoff(runID string, step int, signer string) error {
	return g.record(runID, state.GateOutcome{
		Step: step, Name: "signoff:" + signer, Passed: true,
	})
}

// CheckSecurityTriggers requires a security-capable agent on any step task
// whose description matches the trigger table.
func (g *Gates) CheckSecurityTriggers(runID string, step int, tasks []StepTask) error {
	for _, task := range tasks {
		lower := strings.ToLower(task.Description)
		for _, trigger := range g.securityTriggers {
			if !strings.Contains(lower, strings.ToLower(trigger)) {
				continue
			}
			capable := false
			for _, agent := range g.securityAgents {
				if task.Agent == agent {
					capable = true
					break
				}
			}
			if !capable {
				return g.record(runID, state.GateOutcome{
					Step: step, Name: "security-triggers", Passed: false,
					Reason: fmt.Sprintf("task matches trigger %q but agent %q is not security-capable",
						trigger, task.Agent),
				})
			}
		}
	}
	return g.record(runID, state.GateOutcome{
		Step: step, Name: "security-triggers", Passed: true,
	})
}

// CheckSkillUsage requires the execution log to show an invocation of every
// required skill.
func (g *Gates) CheckSkillUsage(runID string, step int, required []string, executionLog []string) error {
	if len(required) == 0 {
		return nil
	}
	used := map[string]bool{}
	for _, entry := range executionLog {
		used[strings.ToLower(entry)] = true
	}
	var missing []string
	for _, skill := range required {
		if !used[strings.ToLower(skill)] {
			missing = append(missing, skill)
		}
	}
	if len(missing) > 0 {
		return g.record(runID, state.GateOutcome{
			Step: step, Name: "skill-usage", Passed: false,
			Reason: "skills never invoked: " + strings.Join(missing, ", "),
		})
	}
	return g.record(runID, state.GateOutcome{
		Step: step, Name: "skill-usage", Passed: true,
	})
}
