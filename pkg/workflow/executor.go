// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/weft/pkg/dispatch"
	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/paths"
	"github.com/teradata-labs/weft/pkg/router"
	"github.com/teradata-labs/weft/pkg/state"
	"github.com/teradata-labs/weft/pkg/supervisor"
)

// MaxParallelTasks bounds concurrent dispatches within one step.
const MaxParallelTasks = 4

// Executor drives workflow runs.
type Executor struct {
	store      *state.Store
	resolver   *paths.Resolver
	gates      *Gates
	dispatcher *dispatch.Dispatcher
	costs      *observability.CostTracker
	tracer     observability.Tracer
	logger     *zap.Logger
	rater      Rater
}

// Config configures the executor.
type Config struct {
	Store      *state.Store
	Resolver   *paths.Resolver
	Gates      *Gates
	Dispatcher *dispatch.Dispatcher
	Costs      *observability.CostTracker
	Tracer     observability.Tracer
	Logger     *zap.Logger
	Rater      Rater
}

// NewExecutor creates an executor.
func NewExecutor(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	return &Executor{
		store:      cfg.Store,
		resolver:   cfg.Resolver,
		gates:      cfg.Gates,
		dispatcher: cfg.Dispatcher,
		costs:      cfg.Costs,
		tracer:     cfg.Tracer,
		logger:     cfg.Logger.With(zap.String("component", "workflow")),
		rater:      cfg.Rater,
	}
}

// NewLLMRater builds a plan rater on a provider. The rater asks for a bare
// integer score followed by a rationale.
func NewLLMRater(provider llm.Provider) Rater {
	return func(ctx context.Context, plan string) (int, string, error) {
		resp, err := provider.Invoke(ctx, &llm.Envelope{
			Messages: []llm.Message{{
				Role: "user",
				Content: "Rate this execution plan from 1 to 10 for completeness, " +
					"ordering, and risk coverage. First line: the integer score only. " +
					"Following lines: rationale.\n\n" + plan,
			}},
		})
		if err != nil {
			return 0, "", err
		}
		lines := strings.SplitN(strings.TrimSpace(resp.Content), "\n", 2)
		score, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil || score < 1 || score > 10 {
			return 0, "", fmt.Errorf("unparseable rating %q", lines[0])
		}
		rationale := ""
		if len(lines) > 1 {
			rationale = strings.TrimSpace(lines[1])
		}
		return score, rationale, nil
	}
}

// Start creates a run for the workflow and executes it from step 0. When
// the metadata carries a router handoff, the routed workflow is honored
// without re-classification and the router's costs are merged in.
func (e *Executor) Start(ctx context.Context, def *Definition, metadata map[string]interface{}) (*state.Run, error) {
	run, err := e.store.CreateRun(def.Metadata.Name, metadata)
	if err != nil {
		return nil, err
	}

	if handoff, err := router.HandoffFromMetadata(metadata); err != nil {
		e.logger.Warn("ignoring corrupt router handoff", zap.Error(err))
	} else if handoff != nil {
		// The router already classified; never re-classify here.
		if handoff.RoutingDecision.Workflow != "" {
			if _, err := e.store.UpdateRun(run.ID, func(r *state.Run) error {
				r.SelectedWorkflow = handoff.RoutingDecision.Workflow
				return nil
			}); err != nil {
				return nil, err
			}
		}
		if e.costs != nil && handoff.AccumulatedCosts != nil {
			e.costs.Merge(handoff.RouterSessionID, handoff.AccumulatedCosts)
		}
	}

	if err := e.execute(ctx, def, run.ID, 0); err != nil {
		failed, _ := e.store.GetRun(run.ID)
		return failed, err
	}
	return e.store.GetRun(run.ID)
}

// Resume continues a run from the first step whose gates have not all
// passed.
func (e *Executor) Resume(ctx context.Context, def *Definition, runID string) (*state.Run, error) {
	step, err := e.store.RecoverStep(runID)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.UpdateRun(runID, func(r *state.Run) error {
		r.Status = state.RunInProgress
		r.CurrentStep = step
		return nil
	}); err != nil {
		return nil, err
	}
	e.logger.Info("resuming run",
		zap.String("run_id", runID), zap.Int("step", step))
	if err := e.execute(ctx, def, runID, step); err != nil {
		failed, _ := e.store.GetRun(runID)
		return failed, err
	}
	return e.store.GetRun(runID)
}

// execute walks the steps sequentially from fromStep. Any failure marks the
// run and stops; the error is also recorded in run metadata.
func (e *Executor) execute(ctx context.Context, def *Definition, runID string, fromStep int) error {
	if _, err := e.store.UpdateRun(runID, func(r *state.Run) error {
		r.Status = state.RunInProgress
		return nil
	}); err != nil {
		return err
	}

	for i := fromStep; i < len(def.Spec.Steps); i++ {
		step := def.Spec.Steps[i]
		if err := e.executeStep(ctx, def, runID, i, step); err != nil {
			_, uerr := e.store.UpdateRun(runID, func(r *state.Run) error {
				r.Status = state.RunFailed
				if r.Metadata == nil {
					r.Metadata = map[string]interface{}{}
				}
				r.Metadata["failure"] = map[string]interface{}{
					"step":   i,
					"reason": err.Error(),
					"at":     time.Now().Format(time.RFC3339),
				}
				return nil
			})
			if uerr != nil {
				e.logger.Error("failed to record run failure", zap.Error(uerr))
			}
			return err
		}
		if _, err := e.store.UpdateRun(runID, func(r *state.Run) error {
			r.CurrentStep = i + 1
			return nil
		}); err != nil {
			return err
		}
	}

	_, err := e.store.UpdateRun(runID, func(r *state.Run) error {
		r.Status = state.RunCompleted
		return nil
	})
	return err
}

// executeStep runs one step: security gate, task fan, artifact checks,
// post-step gates.
func (e *Executor) executeStep(ctx context.Context, def *Definition, runID string, stepIndex int, step Step) error {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanWorkflowStep,
		observability.WithAttribute(observability.AttrRunID, runID),
	)
	defer e.tracer.EndSpan(span)
	span.SetAttribute("workflow.step", step.ID)

	if err := e.gates.CheckSecurityTriggers(runID, stepIndex, step.Tasks); err != nil {
		return err
	}

	// Step 0 is planning: single task, rated before anything else runs.
	if stepIndex == 0 && step.Validation.Rating {
		return e.executePlanningStep(ctx, runID, step)
	}

	results, executionLog, err := e.fanTasks(ctx, runID, stepIndex, step)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Outcome == dispatch.OutcomeFailed {
			return fmt.Errorf("step %s task failed: %s",
				step.ID, strings.Join(res.Reasons, "; "))
		}
	}

	var required []string
	for _, task := range step.Tasks {
		required = append(required, task.Skills...)
	}
	if err := e.gates.CheckSkillUsage(runID, stepIndex, required, executionLog); err != nil {
		return err
	}
	if err := e.gates.CheckSignoffs(runID, stepIndex, step.Name); err != nil {
		return err
	}
	return e.gates.record(runID, state.GateOutcome{
		Step: stepIndex, Name: "step-complete", Passed: true,
	})
}

// executePlanningStep dispatches the planning task and drives the rating
// gate. The accepted plan is persisted under plans/.
func (e *Executor) executePlanningStep(ctx context.Context, runID string, step Step) error {
	task := step.Tasks[0]
	planID := "plan-" + step.ID

	produce := func(ctx context.Context, feedback string) (string, error) {
		description := task.Description
		if feedback != "" {
			description += "\n\nA previous plan was rejected. Address this feedback:\n" + feedback
		}
		res, err := e.dispatchTask(ctx, runID, 0, StepTask{
			Agent:           task.Agent,
			Description:     description,
			Skills:          task.Skills,
			Model:           task.Model,
			Tools:           task.Tools,
			Limits:          task.Limits,
			SummaryRequired: task.SummaryRequired,
		})
		if err != nil {
			return "", err
		}
		if res.Outcome == dispatch.OutcomeFailed {
			return "", fmt.Errorf("planning failed: %s", strings.Join(res.Reasons, "; "))
		}
		return res.RawOutput, nil
	}

	plan, err := produce(ctx, "")
	if err != nil {
		return err
	}
	accepted, err := e.gates.RatePlan(ctx, runID, planID, plan, e.rater, produce)
	if err != nil {
		return err
	}

	planPath, err := e.store.RunDir(runID, filepath.Join("plans", planID+".json"))
	if err != nil {
		return err
	}
	return e.resolver.AtomicWriteJSON(planPath, map[string]interface{}{
		"plan_id":    planID,
		"content":    accepted,
		"created_at": time.Now().Format(time.RFC3339),
	})
}

// fanTasks dispatches a step's tasks concurrently and synchronizes at the
// step boundary. Gates evaluate only after every task has returned.
func (e *Executor) fanTasks(ctx context.Context, runID string, stepIndex int, step Step) ([]*dispatch.VerifiedResult, []string, error) {
	results := make([]*dispatch.VerifiedResult, len(step.Tasks))
	var logMu sync.Mutex
	var executionLog []string

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(MaxParallelTasks)
	for i, task := range step.Tasks {
		i, task := i, task
		group.Go(func() error {
			res, err := e.dispatchTask(groupCtx, runID, stepIndex, task)
			if err != nil {
				return fmt.Errorf("step %s task %d (%s): %w", step.ID, i, task.Agent, err)
			}
			results[i] = res
			if res.Outcome != dispatch.OutcomeFailed {
				logMu.Lock()
				executionLog = append(executionLog, task.Skills...)
				logMu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	return results, executionLog, nil
}

func (e *Executor) dispatchTask(ctx context.Context, runID string, stepIndex int, task StepTask) (*dispatch.VerifiedResult, error) {
	limits := supervisor.DefaultLimits()
	if task.Limits != nil {
		limits = task.Limits.Clamp()
	}
	agentTask := &dispatch.AgentTask{
		AgentType:       task.Agent,
		Description:     task.Description,
		AssignedSkills:  append([]string(nil), task.Skills...),
		OutputArtifacts: append([]string(nil), task.Outputs...),
		ExecutionLimits: limits,
		Model:           task.Model,
		ToolsAllowed:    task.Tools,
		Verification: dispatch.Verification{
			MustProduce:     task.Outputs,
			SummaryRequired: task.SummaryRequired,
		},
	}
	sessionID := fmt.Sprintf("%s-step%d", runID, stepIndex)
	return e.dispatcher.Dispatch(ctx, sessionID, runID, agentTask)
}
