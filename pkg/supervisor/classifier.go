// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package supervisor

import "strings"

// Execution modes chosen by the classifier.
const (
	ModeLegacy = "legacy"
	ModeWorker = "worker"
)

// Worker spawn costs ~100 ms, amortized quickly for long tasks. Short
// tasks stay in-process.
var (
	longRunningKeywords = []string{
		"implement", "refactor", "migrate", "architecture", "comprehensive",
	}
	shortKeywords = []string{
		"fix", "update", "add", "rename",
	}
)

// Classification is the legacy-vs-worker decision for one task.
type Classification struct {
	Mode            string  `json:"mode"`
	ComplexityScore float64 `json:"complexity_score"`
	Reason          string  `json:"reason"`
}

// Classify picks the execution mode from the task description and an
// optional upstream complexity score.
func Classify(description string, complexityScore float64) Classification {
	lower := strings.ToLower(description)

	for _, kw := range longRunningKeywords {
		if strings.Contains(lower, kw) {
			return Classification{
				Mode:            ModeWorker,
				ComplexityScore: complexityScore,
				Reason:          "long-running keyword: " + kw,
			}
		}
	}
	if complexityScore >= 0.8 {
		return Classification{
			Mode:            ModeWorker,
			ComplexityScore: complexityScore,
			Reason:          "high complexity score",
		}
	}
	for _, kw := range shortKeywords {
		if strings.Contains(lower, kw) {
			return Classification{
				Mode:            ModeLegacy,
				ComplexityScore: complexityScore,
				Reason:          "short-task keyword: " + kw,
			}
		}
	}
	return Classification{
		Mode:            ModeLegacy,
		ComplexityScore: complexityScore,
		Reason:          "default",
	}
}
