// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"
)

// MemoryReportInterval is how often a worker emits memory reports.
const MemoryReportInterval = 10 * time.Second

// TaskHandler is the worker-side task implementation.
type TaskHandler func(ctx context.Context, env *TaskEnvelope, reporter *Reporter) (string, error)

// Reporter emits progress and memory frames from inside a worker. All
// writes share one encoder; frames are whole lines.
type Reporter struct {
	mu        sync.Mutex
	enc       *json.Encoder
	sessionID string
	peak      int64
}

func newReporter(w io.Writer, sessionID string) *Reporter {
	return &Reporter{enc: json.NewEncoder(w), sessionID: sessionID}
}

func (r *Reporter) send(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.SessionID = r.sessionID
	msg.Timestamp = time.Now()
	_ = r.enc.Encode(msg)
}

// Progress reports a completed turn and its incremental cost.
func (r *Reporter) Progress(turn int, tool string, costUSD float64) {
	r.send(Message{Type: MsgProgress, Turn: turn, Tool: tool, CostUSD: costUSD})
}

// reportMemory emits one memory_report frame and tracks the peak.
func (r *Reporter) reportMemory() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	heapUsed := int64(stats.HeapAlloc)
	if heapUsed > r.peak {
		r.peak = heapUsed
	}
	r.send(Message{
		Type:      MsgMemoryReport,
		HeapUsed:  heapUsed,
		HeapTotal: int64(stats.HeapSys),
		RSS:       int64(stats.Sys),
	})
}

// RunWorkerMain is the entry point for the worker executable. It reads the
// task frame from stdin, runs the handler with periodic memory reporting,
// and emits a result or failure frame before exiting.
func RunWorkerMain(handler TaskHandler) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	if !scanner.Scan() {
		fmt.Fprintln(os.Stderr, "worker: no task frame on stdin")
		os.Exit(1)
	}
	var first Message
	if err := json.Unmarshal(scanner.Bytes(), &first); err != nil || first.Type != MsgTask || first.Task == nil {
		fmt.Fprintln(os.Stderr, "worker: malformed task frame")
		os.Exit(1)
	}
	env := first.Task

	reporter := newReporter(os.Stdout, env.SessionID)
	limits := env.Limits.Clamp()
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(limits.MaxDurationMs)*time.Millisecond)
	defer cancel()

	stopReports := make(chan struct{})
	go func() {
		ticker := time.NewTicker(MemoryReportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopReports:
				return
			case <-ticker.C:
				reporter.reportMemory()
			}
		}
	}()

	start := time.Now()
	output, err := handler(ctx, env, reporter)
	close(stopReports)
	reporter.reportMemory()

	if err != nil {
		reporter.send(Message{Type: MsgFailure, Error: err.Error()})
		os.Exit(1)
	}
	reporter.send(Message{
		Type:            MsgResult,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		MemoryPeak:      reporter.peak,
		Output:          output,
	})
	os.Exit(0)
}
