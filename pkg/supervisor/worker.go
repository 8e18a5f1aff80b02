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
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/state"
)

// DefaultHeapLimit is the per-worker heap budget.
const DefaultHeapLimit = int64(4) << 30 // 4 GB

// workerGrace is how long a signaled worker may run before SIGKILL.
const workerGrace = 5 * time.Second

// workerHandle tracks one live worker subprocess.
type workerHandle struct {
	id       string
	cmd      *exec.Cmd
	stdin    *json.Encoder
	scratch  string
	envelope *TaskEnvelope
}

// spawnWorker starts the worker executable with a dedicated scratch
// directory and heap budget, and sends the task envelope as the first frame.
func (s *Supervisor) spawnWorker(ctx context.Context, env *TaskEnvelope) (*workerHandle, *bufio.Scanner, error) {
	id := "worker-" + uuid.NewString()[:8]
	scratch := filepath.Join(s.scratchRoot, id)
	if err := os.MkdirAll(scratch, 0o750); err != nil {
		return nil, nil, fmt.Errorf("failed to create worker scratch dir: %w", err)
	}

	parts := strings.Fields(s.workerCommand)
	if len(parts) == 0 {
		return nil, nil, fmt.Errorf("no worker command configured")
	}
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = scratch
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("GOMEMLIMIT=%d", s.heapLimit),
		"WEFT_WORKER_ID="+id,
		"WEFT_WORKER_SCRATCH="+scratch,
	)
	cmd.Stderr = os.Stderr

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start worker: %w", err)
	}

	h := &workerHandle{
		id:       id,
		cmd:      cmd,
		stdin:    json.NewEncoder(stdinPipe),
		scratch:  scratch,
		envelope: env,
	}
	if err := h.stdin.Encode(Message{
		Type: MsgTask, SessionID: env.SessionID, Timestamp: time.Now(), Task: env,
	}); err != nil {
		h.kill()
		return nil, nil, fmt.Errorf("failed to send task to worker: %w", err)
	}

	scanner := bufio.NewScanner(stdoutPipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	return h, scanner, nil
}

// kill signals the worker, waits a grace window, then force-terminates.
func (h *workerHandle) kill() {
	if h.cmd.Process == nil {
		return
	}
	_ = h.cmd.Process.Signal(os.Interrupt)
	done := make(chan struct{})
	go func() {
		_, _ = h.cmd.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(workerGrace):
		_ = h.cmd.Process.Kill()
	}
}

// runWorker executes one envelope in an ephemeral worker and enforces its
// execution limits. The worker session record is persisted on every
// terminal transition.
func (s *Supervisor) runWorker(ctx context.Context, env *TaskEnvelope) (*TaskResult, error) {
	limits := env.Limits.Clamp()
	env.Limits = limits

	session := &state.WorkerSession{
		SupervisorID: s.id,
		AgentKind:    env.AgentKind,
		Status:       state.WorkerSpawning,
		StartedAt:    time.Now(),
	}

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h, scanner, err := s.spawnWorker(workerCtx, env)
	if err != nil {
		session.ID = "worker-" + uuid.NewString()[:8]
		s.finishSession(session, state.WorkerFailed, err.Error())
		return nil, err
	}
	session.ID = h.id
	session.Status = state.WorkerRunning
	s.saveSession(session)
	defer os.RemoveAll(h.scratch)

	s.mu.Lock()
	s.active[h.id] = h
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, h.id)
		s.mu.Unlock()
	}()

	deadline := time.NewTimer(time.Duration(limits.MaxDurationMs) * time.Millisecond)
	defer deadline.Stop()

	type frame struct {
		msg Message
		err error
	}
	frames := make(chan frame)
	go func() {
		defer close(frames)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var msg Message
			if err := json.Unmarshal(line, &msg); err != nil {
				frames <- frame{err: fmt.Errorf("malformed worker message: %w", err)}
				continue
			}
			frames <- frame{msg: msg}
		}
	}()

	result := &TaskResult{
		SessionID:       env.SessionID,
		Mode:            ModeWorker,
		WorkerSessionID: h.id,
	}
	start := time.Now()
	warned := false

	for {
		select {
		case <-ctx.Done():
			h.kill()
			s.finishSession(session, state.WorkerFailed, "cancelled: "+ctx.Err().Error())
			return nil, ctx.Err()

		case <-deadline.C:
			switch limits.TimeoutAction {
			case ActionWarn:
				if !warned {
					warned = true
					s.logger.Warn("worker exceeded max duration, continuing",
						zap.String("worker", h.id),
						zap.Int64("max_duration_ms", limits.MaxDurationMs))
				}
			case ActionPause:
				h.kill()
				return s.pauseWorker(session, env, result, start)
			default: // terminate
				h.kill()
				s.finishSession(session, state.WorkerTimedOut,
					fmt.Sprintf("exceeded max_duration_ms=%d", limits.MaxDurationMs))
				return nil, fmt.Errorf("worker %s timed out after %dms", h.id, limits.MaxDurationMs)
			}

		case f, ok := <-frames:
			if !ok {
				// Worker exited without a result frame: crash. The
				// supervisor never aborts on worker failure.
				err := h.cmd.Wait()
				reason := "worker exited without result"
				if err != nil {
					reason = fmt.Sprintf("worker crashed: %v", err)
				}
				s.finishSession(session, state.WorkerFailed, reason)
				return nil, fmt.Errorf("%s", reason)
			}
			if f.err != nil {
				s.logger.Warn("dropping malformed worker frame",
					zap.String("worker", h.id), zap.Error(f.err))
				continue
			}
			done, res, err := s.handleFrame(h, session, env, f.msg, result, start)
			if done {
				return res, err
			}
		}
	}
}

// handleFrame folds one worker message into the session. Returns done=true
// on a terminal frame.
func (s *Supervisor) handleFrame(h *workerHandle, session *state.WorkerSession,
	env *TaskEnvelope, msg Message, result *TaskResult, start time.Time) (bool, *TaskResult, error) {

	limits := env.Limits
	switch msg.Type {
	case MsgMemoryReport:
		if msg.RSS > session.PeakMemoryBytes {
			session.PeakMemoryBytes = msg.RSS
		}
		if msg.HeapUsed > s.heapLimit {
			h.kill()
			s.finishSession(session, state.WorkerMemoryExceeded,
				fmt.Sprintf("heap %d exceeds limit %d", msg.HeapUsed, s.heapLimit))
			return true, nil, fmt.Errorf("worker %s exceeded heap limit", h.id)
		}

	case MsgProgress:
		session.TurnsUsed = msg.Turn
		session.CostAccumulated += msg.CostUSD
		if session.TurnsUsed > limits.MaxTurns {
			h.kill()
			s.finishSession(session, state.WorkerFailed,
				fmt.Sprintf("exceeded max_turns=%d", limits.MaxTurns))
			return true, nil, fmt.Errorf("worker %s exceeded turn limit", h.id)
		}
		if session.CostAccumulated > limits.MaxCostUSD {
			h.kill()
			s.finishSession(session, state.WorkerFailed,
				fmt.Sprintf("exceeded max_cost_usd=%.2f", limits.MaxCostUSD))
			return true, nil, fmt.Errorf("worker %s exceeded cost limit", h.id)
		}

	case MsgResult:
		_ = h.cmd.Wait()
		result.Output = msg.Output
		result.ExecutionTime = time.Since(start)
		result.MemoryPeak = session.PeakMemoryBytes
		if msg.MemoryPeak > result.MemoryPeak {
			result.MemoryPeak = msg.MemoryPeak
		}
		result.TurnsUsed = session.TurnsUsed
		result.CostUSD = session.CostAccumulated
		s.finishSession(session, state.WorkerCompleted, "")
		return true, result, nil

	case MsgFailure:
		_ = h.cmd.Wait()
		s.finishSession(session, state.WorkerFailed, msg.Error)
		return true, nil, fmt.Errorf("worker %s failed: %s", h.id, msg.Error)

	default:
		s.logger.Debug("ignoring unknown worker message type",
			zap.String("worker", h.id), zap.String("type", msg.Type))
	}
	return false, nil, nil
}

// pauseWorker persists the envelope so the task can resume later.
func (s *Supervisor) pauseWorker(session *state.WorkerSession, env *TaskEnvelope,
	result *TaskResult, start time.Time) (*TaskResult, error) {

	raw, err := json.Marshal(env)
	if err == nil {
		var m map[string]interface{}
		if json.Unmarshal(raw, &m) == nil {
			session.Envelope = m
		}
	}
	s.finishSession(session, state.WorkerPaused, "paused on duration breach")
	result.Paused = true
	result.ExecutionTime = time.Since(start)
	result.MemoryPeak = session.PeakMemoryBytes
	result.TurnsUsed = session.TurnsUsed
	result.CostUSD = session.CostAccumulated
	return result, nil
}

// Resume re-dispatches a paused worker session from its persisted envelope.
func (s *Supervisor) Resume(ctx context.Context, workerSessionID string) (*TaskResult, error) {
	session, err := s.store.GetWorkerSession(workerSessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != state.WorkerPaused {
		return nil, fmt.Errorf("worker session %s is %s, not paused", workerSessionID, session.Status)
	}
	raw, err := json.Marshal(session.Envelope)
	if err != nil {
		return nil, fmt.Errorf("corrupt persisted envelope: %w", err)
	}
	var env TaskEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("corrupt persisted envelope: %w", err)
	}
	s.logger.Info("resuming paused worker session",
		zap.String("worker_session", workerSessionID),
		zap.String("session", env.SessionID))
	return s.runWorker(ctx, &env)
}

func (s *Supervisor) finishSession(session *state.WorkerSession, status state.WorkerSessionStatus, reason string) {
	now := time.Now()
	session.Status = status
	session.EndedAt = &now
	session.Reason = reason
	s.saveSession(session)
	if status != state.WorkerCompleted && status != state.WorkerPaused {
		s.logger.Error("worker session ended abnormally",
			zap.String("worker", session.ID),
			zap.String("status", string(status)),
			zap.String("reason", reason))
	}
}

func (s *Supervisor) saveSession(session *state.WorkerSession) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveWorkerSession(session); err != nil {
		s.logger.Warn("failed to persist worker session",
			zap.String("worker", session.ID), zap.Error(err))
	}
}
