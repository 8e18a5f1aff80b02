// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/state"
)

// DefaultTimeout is the hard per-hook execution budget.
const DefaultTimeout = 1000 * time.Millisecond

// HandlerFunc is an in-process hook implementation. It receives the same
// envelope a subprocess hook would read from stdin.
type HandlerFunc func(env *Envelope) (*Decision, error)

// Hook is one registered policy check. Either Command (subprocess) or
// Handler (in-process builtin) is set, never both.
type Hook struct {
	Name    string
	Events  []string
	Matcher []string // explicit tool list; empty means all non-meta tools
	Command string   // subprocess invoke string
	Handler HandlerFunc
	// Security hooks fail closed: errors and malformed output block.
	// Non-security (recording) hooks fail open.
	Security bool
	Timeout  time.Duration
}

// guardEnvVar returns the per-hook recursion guard variable (layer 2).
func (h *Hook) guardEnvVar() string {
	name := strings.ToUpper(strings.ReplaceAll(h.Name, "-", "_"))
	return fmt.Sprintf("WEFT_%s_EXECUTING", name)
}

// enforcementEnvVar returns the per-hook enforcement override variable.
func (h *Hook) enforcementEnvVar() string {
	return strings.ToUpper(strings.ReplaceAll(h.Name, "-", "_")) + "_ENFORCEMENT"
}

// matches reports whether the hook applies to this event and tool.
func (h *Hook) matches(event, tool string) bool {
	eventOK := false
	for _, e := range h.Events {
		if e == event {
			eventOK = true
			break
		}
	}
	if !eventOK {
		return false
	}
	if event != EventPreToolUse && event != EventPostToolUse {
		return true
	}
	if IsMetaTool(tool) {
		return false
	}
	if len(h.Matcher) == 0 {
		return true
	}
	for _, m := range h.Matcher {
		if m == tool {
			return true
		}
	}
	return false
}

// Result is the aggregate decision for one event.
type Result struct {
	Decision string
	Reason   string
	Warnings []string
	// PerHook carries each hook's individual decision for the audit trail.
	PerHook map[string]string
}

// Blocked reports whether the tool call must not proceed.
func (r *Result) Blocked() bool {
	return r.Decision == DecisionBlock
}

// Pipeline dispatches registered hooks for lifecycle events and aggregates
// their decisions. Aggregation rule: any block wins; warnings are advisory.
type Pipeline struct {
	hooks  []*Hook
	store  *state.Store
	tracer observability.Tracer
	logger *zap.Logger
}

// NewPipeline creates a hook pipeline. store may be nil in tests (audit
// records are then dropped).
func NewPipeline(store *state.Store, tracer observability.Tracer, logger *zap.Logger) *Pipeline {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{store: store, tracer: tracer, logger: logger}
}

// Register adds a hook. Wildcard matchers are forbidden on hooks that
// affect tool dispatch (recursion layer 3).
func (p *Pipeline) Register(h *Hook) error {
	for _, m := range h.Matcher {
		if m == "*" || strings.Contains(m, "*") {
			return fmt.Errorf("hook %s: wildcard matcher %q forbidden", h.Name, m)
		}
	}
	if h.Timeout <= 0 {
		h.Timeout = DefaultTimeout
	}
	p.hooks = append(p.hooks, h)
	return nil
}

// Evaluate runs all matching hooks for an event and aggregates decisions.
// PostToolUse hooks are recording-only: their blocks are demoted to
// warnings so a completed tool effect is never retroactively blocked.
func (p *Pipeline) Evaluate(ctx context.Context, env *Envelope) *Result {
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanHookInvocation)
	defer p.tracer.EndSpan(span)
	span.SetAttribute(observability.AttrOperationType, env.Event)
	span.SetAttribute("tool.name", env.ToolName)

	result := &Result{Decision: DecisionAllow, PerHook: make(map[string]string)}

	for _, h := range p.hooks {
		if !h.matches(env.Event, env.ToolName) {
			continue
		}
		decision, reason := p.runOne(ctx, h, env)
		result.PerHook[h.Name] = decision

		// Per-hook enforcement override; "off" is itself audit-logged.
		switch os.Getenv(h.enforcementEnvVar()) {
		case "warn":
			if decision == DecisionBlock {
				decision = DecisionWarn
				p.audit(state.AuditRecord{
					Kind: "security", Hook: h.Name, Event: env.Event,
					Tool: env.ToolName, Decision: DecisionWarn,
					Reason: "enforcement downgraded block to warn: " + reason,
				})
			}
		case "off":
			p.audit(state.AuditRecord{
				Kind: "security", Hook: h.Name, Event: env.Event,
				Tool: env.ToolName, Decision: DecisionAllow,
				Reason: "enforcement disabled by environment",
			})
			continue
		}

		if env.Event == EventPostToolUse && decision == DecisionBlock {
			decision = DecisionWarn
			reason = "post-tool hook cannot block: " + reason
		}

		p.audit(state.AuditRecord{
			Kind: "decision", Hook: h.Name, Event: env.Event,
			Tool: env.ToolName, Decision: decision, Reason: reason,
		})

		switch decision {
		case DecisionBlock:
			result.Decision = DecisionBlock
			if result.Reason == "" {
				result.Reason = fmt.Sprintf("%s: %s", h.Name, reason)
			}
		case DecisionWarn:
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", h.Name, reason))
		}
	}

	span.SetAttribute(observability.AttrResultStatus, result.Decision)
	return result
}

// runOne executes a single hook and maps its outcome to a decision.
func (p *Pipeline) runOne(ctx context.Context, h *Hook, env *Envelope) (string, string) {
	// Recursion guard (layer 2): if this hook is already executing in the
	// current process tree, allow immediately.
	if os.Getenv(h.guardEnvVar()) == "true" {
		return DecisionAllow, "recursion guard"
	}

	var decision *Decision
	var err error
	if h.Handler != nil {
		decision, err = p.runInProcess(ctx, h, env)
	} else {
		decision, err = p.runSubprocess(ctx, h, env)
	}

	if err != nil {
		p.logger.Warn("hook execution failed",
			zap.String("hook", h.Name), zap.Error(err))
		if h.Security {
			// Fail closed.
			return DecisionBlock, fmt.Sprintf("hook error (fail-closed): %v", err)
		}
		return DecisionAllow, fmt.Sprintf("hook error (fail-open): %v", err)
	}
	if decision == nil {
		return DecisionAllow, ""
	}
	return decision.Decision, decision.Reason
}

// runInProcess calls a builtin validator through the envelope contract with
// the same timeout budget as a subprocess hook (layer 4).
func (p *Pipeline) runInProcess(ctx context.Context, h *Hook, env *Envelope) (*Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	type outcome struct {
		d   *Decision
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		d, err := h.Handler(env)
		ch <- outcome{d, err}
	}()
	select {
	case o := <-ch:
		return o.d, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("hook %s timed out after %s", h.Name, h.Timeout)
	}
}

// runSubprocess spawns the hook executable with the envelope on stdin.
func (p *Pipeline) runSubprocess(ctx context.Context, h *Hook, env *Envelope) (*Decision, error) {
	input, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	parts := strings.Fields(h.Command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("hook %s has empty command", h.Name)
	}
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(os.Environ(), h.guardEnvVar()+"=true")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		p.audit(state.AuditRecord{
			Kind: "error", Hook: h.Name, Event: env.Event,
			Tool: env.ToolName, Reason: "hook timeout",
		})
		return nil, fmt.Errorf("hook %s timed out after %s", h.Name, h.Timeout)
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("failed to run hook %s: %w", h.Name, runErr)
		}
	}

	decision, parseErr := ParseDecision(stdout.Bytes())
	if parseErr != nil {
		return nil, parseErr
	}

	switch exitCode {
	case ExitAllow:
		if decision == nil {
			decision = &Decision{Decision: DecisionAllow}
		}
		return decision, nil
	case ExitBlock:
		if decision == nil {
			decision = &Decision{Decision: DecisionBlock, Reason: strings.TrimSpace(stderr.String())}
		}
		decision.Decision = DecisionBlock
		return decision, nil
	default:
		return nil, fmt.Errorf("hook %s exited %d: %s", h.Name, exitCode, strings.TrimSpace(stderr.String()))
	}
}

func (p *Pipeline) audit(rec state.AuditRecord) {
	if p.store == nil {
		return
	}
	if err := p.store.Audit(rec); err != nil {
		p.logger.Warn("failed to append audit record", zap.Error(err))
	}
}
