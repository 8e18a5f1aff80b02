// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/teradata-labs/weft/pkg/state"
)

// Outcome classifications for a dispatched task.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Report is the structured section an agent must emit in its response.
type Report struct {
	Completed bool     `json:"completed"`
	Artifacts []string `json:"artifacts"`
	Errors    []string `json:"errors"`
	Summary   string   `json:"summary"`
}

// VerifiedResult is the post-verification outcome of one dispatch.
type VerifiedResult struct {
	Outcome          string   `json:"outcome"`
	Report           *Report  `json:"report,omitempty"`
	MissingArtifacts []string `json:"missing_artifacts,omitempty"`
	Reasons          []string `json:"reasons,omitempty"`
	RawOutput        string   `json:"-"`
}

// parseReport extracts the JSON report from agent output, tolerating code
// fences and surrounding prose.
func parseReport(output string) (*Report, error) {
	text := strings.TrimSpace(output)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no report object in agent output")
	}
	var report Report
	if err := json.Unmarshal([]byte(text[start:end+1]), &report); err != nil {
		return nil, fmt.Errorf("malformed agent report: %w", err)
	}
	return &report, nil
}

// verify runs the post-dispatch checks: parse the report, cross-check every
// declared output artifact against the filesystem and the registry, then
// classify the outcome.
//
// Classification:
//   - failed: no parseable report, summary missing when required, nothing
//     completed, a must_not_error violation, or any must_produce artifact
//     missing
//   - partial: completed with declared output artifacts missing, or
//     non-fatal errors present
//   - success: completed, all artifacts verified, constraints satisfied
func (d *Dispatcher) verify(task *AgentTask, runID, output string) *VerifiedResult {
	result := &VerifiedResult{RawOutput: output}

	report, err := parseReport(output)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Reasons = append(result.Reasons, err.Error())
		return result
	}
	result.Report = report

	if task.Verification.SummaryRequired && strings.TrimSpace(report.Summary) == "" {
		// Summary is non-negotiable; apparent success does not rescue it.
		result.Outcome = OutcomeFailed
		result.Reasons = append(result.Reasons, "summary required but absent")
		return result
	}
	if !report.Completed {
		result.Outcome = OutcomeFailed
		result.Reasons = append(result.Reasons, "agent reported not completed")
		return result
	}
	if task.Verification.MustNotError && len(report.Errors) > 0 {
		result.Outcome = OutcomeFailed
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("errors present with must_not_error: %v", report.Errors))
		return result
	}

	mandated := make(map[string]bool, len(task.Verification.MustProduce))
	for _, artifact := range task.Verification.MustProduce {
		mandated[artifact] = true
	}

	var missingMandated []string
	expected := append(append([]string(nil), task.Verification.MustProduce...),
		task.OutputArtifacts...)
	for _, artifact := range expected {
		abs := artifact
		if !filepath.IsAbs(abs) && d.resolver != nil {
			abs = filepath.Join(d.resolver.Root(), artifact)
		}
		if _, err := os.Stat(abs); err != nil {
			result.MissingArtifacts = append(result.MissingArtifacts, artifact)
			if mandated[artifact] {
				missingMandated = append(missingMandated, artifact)
			}
			continue
		}
		if d.store != nil && runID != "" {
			entry := state.ArtifactEntry{
				Path:      abs,
				Kind:      "generated",
				CreatedBy: task.AgentType,
			}
			if err := d.store.RegisterArtifact(runID, entry); err != nil {
				result.Reasons = append(result.Reasons,
					fmt.Sprintf("artifact %s failed to register: %v", artifact, err))
			}
		}
	}

	switch {
	case len(missingMandated) > 0:
		result.Outcome = OutcomeFailed
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("mandated artifacts not produced: %v", missingMandated))
	case len(result.MissingArtifacts) > 0 || len(report.Errors) > 0:
		result.Outcome = OutcomePartial
		if len(result.MissingArtifacts) > 0 {
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("missing artifacts: %v", result.MissingArtifacts))
		}
	default:
		result.Outcome = OutcomeSuccess
	}
	return result
}

// auditOutcome appends the verified outcome to the audit log.
func (d *Dispatcher) auditOutcome(task *AgentTask, runID string, result *VerifiedResult) {
	if d.store == nil {
		return
	}
	rec := state.AuditRecord{
		Kind:     "decision",
		Tool:     "agent_dispatch",
		Decision: result.Outcome,
		Reason:   strings.Join(result.Reasons, "; "),
		RunID:    runID,
	}
	if err := d.store.Audit(rec); err != nil {
		d.logger.Warn("failed to audit dispatch outcome")
	}
}
