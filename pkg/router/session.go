// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package router performs cheap two-stage prompt classification. Trivial
// prompts are answered directly on a cheap model; complex ones are handed
// off to the workflow executor with a routing decision and the accumulated
// router costs.
package router

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/paths"
)

// SessionState is the per-session router record, persisted as one JSON file
// per session.
type SessionState struct {
	SessionID        string                        `json:"session_id"`
	AgentRole        string                        `json:"agent_role"`
	ReadCount        int                           `json:"read_count"`
	Violations       []string                      `json:"violations,omitempty"`
	FilesRead        []string                      `json:"files_read,omitempty"`
	Model            string                        `json:"model,omitempty"`
	ModelHistory     []string                      `json:"model_history,omitempty"`
	RoutingDecisions *observability.RoutingMetrics `json:"routing_decisions,omitempty"`
	Costs            *observability.SessionCosts   `json:"costs,omitempty"`
	UpdatedAt        time.Time                     `json:"updated_at"`
}

// Sessions persists router session states through the path resolver.
type Sessions struct {
	resolver *paths.Resolver
	logger   *zap.Logger
}

// NewSessions creates a session store.
func NewSessions(resolver *paths.Resolver, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{resolver: resolver, logger: logger}
}

func (s *Sessions) path(sessionID string, mode paths.Mode) (string, error) {
	return s.resolver.ResolveRuntime(
		filepath.Join("sessions", sessionID+".json"), mode)
}

// Init creates the initial session state. Idempotent: an existing session
// is returned unchanged.
func (s *Sessions) Init(sessionID, agentRole string) (*SessionState, error) {
	if existing, err := s.Load(sessionID); err == nil && existing != nil {
		return existing, nil
	}
	st := &SessionState{
		SessionID: sessionID,
		AgentRole: agentRole,
		UpdatedAt: time.Now(),
	}
	if err := s.Save(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Load reads a session state, or (nil, nil) when none exists.
func (s *Sessions) Load(sessionID string) (*SessionState, error) {
	path, err := s.path(sessionID, paths.Read)
	if err != nil {
		return nil, err
	}
	raw, err := s.resolver.SafeReadJSON(path, "router-state")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var st SessionState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("corrupt router session %s: %w", sessionID, err)
	}
	return &st, nil
}

// Save persists a session state atomically with schema validation.
func (s *Sessions) Save(st *SessionState) error {
	st.UpdatedAt = time.Now()
	var asMap map[string]interface{}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &asMap); err != nil {
		return err
	}
	if err := paths.ValidateSchema("router-state", asMap); err != nil {
		return err
	}
	path, err := s.path(st.SessionID, paths.Write)
	if err != nil {
		return err
	}
	return s.resolver.AtomicWriteJSON(path, asMap)
}

// List returns the IDs of all persisted sessions, sorted.
func (s *Sessions) List() ([]string, error) {
	dir, err := s.resolver.ResolveRuntime("sessions", paths.Read)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if name := e.Name(); strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a session file. Missing sessions are not an error.
func (s *Sessions) Delete(sessionID string) error {
	path, err := s.path(sessionID, paths.Read)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// Cleanup removes sessions not updated within maxAge and returns how many
// were removed.
func (s *Sessions) Cleanup(maxAge time.Duration) (int, error) {
	ids, err := s.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, id := range ids {
		st, err := s.Load(id)
		if err != nil {
			s.logger.Warn("skipping unreadable session during cleanup",
				zap.String("session", id), zap.Error(err))
			continue
		}
		if st == nil || !st.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.Delete(id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RecordModel appends a model switch to the session history.
func (s *Sessions) RecordModel(sessionID, model string) error {
	st, err := s.Load(sessionID)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("router session %s not found", sessionID)
	}
	if st.Model != model {
		st.ModelHistory = append(st.ModelHistory, model)
		st.Model = model
	}
	return s.Save(st)
}
