// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package supervisor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/state"
)

// LegacyRunner executes a task in-process. Used for short tasks where the
// worker spawn overhead is not worth paying.
type LegacyRunner func(ctx context.Context, env *TaskEnvelope) (string, error)

// Config configures the supervisor.
type Config struct {
	// WorkerCommand is the invoke string for the worker executable.
	WorkerCommand string
	// ScratchRoot is where per-worker scratch directories are created.
	ScratchRoot string
	// HeapLimit is the per-worker heap budget in bytes (default 4 GB).
	HeapLimit int64
	// MaxConcurrent bounds simultaneously running workers (default 4).
	MaxConcurrent int
	// UseWorkers gates isolated execution; when false every task runs
	// legacy. Overridden by the USE_WORKERS environment variable.
	UseWorkers bool

	Store  *state.Store
	Tracer observability.Tracer
	Logger *zap.Logger
	Legacy LegacyRunner
}

// Supervisor owns the task queue and worker pool. It is long-lived; workers
// are ephemeral and discarded after each task.
type Supervisor struct {
	id            string
	workerCommand string
	scratchRoot   string
	heapLimit     int64
	useWorkers    bool
	legacy        LegacyRunner

	store  *state.Store
	tracer observability.Tracer
	logger *zap.Logger

	group   *errgroup.Group
	groupCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	active  map[string]*workerHandle
	stopped bool
}

// New creates a supervisor.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.HeapLimit == 0 {
		cfg.HeapLimit = DefaultHeapLimit
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.ScratchRoot == "" {
		cfg.ScratchRoot = os.TempDir()
	}
	useWorkers := cfg.UseWorkers
	switch os.Getenv("USE_WORKERS") {
	case "true", "1":
		useWorkers = true
	case "false", "0":
		useWorkers = false
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.MaxConcurrent)

	id := "supervisor-" + uuid.NewString()[:8]
	s := &Supervisor{
		id:            id,
		workerCommand: cfg.WorkerCommand,
		scratchRoot:   cfg.ScratchRoot,
		heapLimit:     cfg.HeapLimit,
		useWorkers:    useWorkers,
		legacy:        cfg.Legacy,
		store:         cfg.Store,
		tracer:        cfg.Tracer,
		logger: cfg.Logger.With(
			zap.String("component", "supervisor"),
			zap.String("supervisorId", id)),
		group:    group,
		groupCtx: groupCtx,
		cancel:   cancel,
		active:   make(map[string]*workerHandle),
	}
	s.logger.Info("supervisor started",
		zap.Bool("use_workers", useWorkers),
		zap.Int64("heap_limit", cfg.HeapLimit),
		zap.Int("max_concurrent", cfg.MaxConcurrent))
	return s, nil
}

// ID returns the supervisor identifier.
func (s *Supervisor) ID() string { return s.id }

// Execute runs one task, choosing legacy or worker execution from the
// classification heuristic and the worker gate.
func (s *Supervisor) Execute(ctx context.Context, env *TaskEnvelope, complexityScore float64) (*TaskResult, error) {
	ctx, span := s.tracer.StartSpan(ctx, observability.SpanWorkerExecute,
		observability.WithAttribute(observability.AttrAgentName, env.AgentKind),
	)
	defer s.tracer.EndSpan(span)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, fmt.Errorf("supervisor is shut down")
	}
	s.mu.Unlock()

	classification := Classify(env.Prompt, complexityScore)
	mode := classification.Mode
	if !s.useWorkers || s.workerCommand == "" {
		mode = ModeLegacy
	}
	span.SetAttribute(observability.AttrOperationType, mode)
	s.logger.Debug("task classified",
		zap.String("session", env.SessionID),
		zap.String("mode", mode),
		zap.String("reason", classification.Reason))

	var result *TaskResult
	var err error
	if mode == ModeWorker {
		result, err = s.executePooled(ctx, env)
	} else {
		result, err = s.runLegacy(ctx, env)
	}
	if err != nil {
		span.SetStatus(observability.StatusError, err.Error())
		return nil, err
	}
	span.SetAttribute(observability.AttrResultStatus, "completed")
	span.SetAttribute("worker.memory_peak", result.MemoryPeak)
	return result, nil
}

// executePooled runs the worker under the concurrency-limited pool.
func (s *Supervisor) executePooled(ctx context.Context, env *TaskEnvelope) (*TaskResult, error) {
	type outcome struct {
		result *TaskResult
		err    error
	}
	ch := make(chan outcome, 1)
	s.group.Go(func() error {
		res, err := s.runWorker(ctx, env)
		ch <- outcome{res, err}
		// Worker failures are contained; never collapse the pool.
		return nil
	})
	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.groupCtx.Done():
		return nil, s.groupCtx.Err()
	}
}

// runLegacy executes a task in-process.
func (s *Supervisor) runLegacy(ctx context.Context, env *TaskEnvelope) (*TaskResult, error) {
	if s.legacy == nil {
		return nil, fmt.Errorf("no legacy runner configured")
	}
	limits := env.Limits.Clamp()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(limits.MaxDurationMs)*time.Millisecond)
	defer cancel()

	start := time.Now()
	output, err := s.legacy(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("legacy execution failed: %w", err)
	}
	return &TaskResult{
		SessionID:     env.SessionID,
		Mode:          ModeLegacy,
		Output:        output,
		ExecutionTime: time.Since(start),
	}, nil
}

// Shutdown signals workers, waits for the pool to drain, then cancels.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for _, h := range s.active {
		go h.kill()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
	}
	s.cancel()
	s.logger.Info("supervisor shut down")
	return nil
}
