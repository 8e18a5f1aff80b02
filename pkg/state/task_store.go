// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/paths"
)

var (
	// ErrTaskNotFound is returned for an unknown task id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrDependencyCycle is returned when an update would create a cycle.
	ErrDependencyCycle = errors.New("task dependency cycle")
	// ErrSummaryRequired enforces the completion iron law.
	ErrSummaryRequired = errors.New("task completion requires a summary")
	// ErrDependenciesIncomplete is returned when claiming a task whose
	// dependencies are not all completed.
	ErrDependenciesIncomplete = errors.New("task has incomplete dependencies")
)

const tasksIndexPath = "tasks/index.json"

// TaskFilter selects tasks for listing.
type TaskFilter struct {
	Status TaskStatus
	Owner  string
}

func (s *Store) loadTasks() (map[string]*Task, error) {
	path, err := s.resolver.ResolveRuntime(tasksIndexPath, paths.Read)
	if err != nil {
		return nil, err
	}
	raw, err := s.resolver.SafeReadJSON(path, "")
	if err != nil {
		return nil, err
	}
	tasks := make(map[string]*Task)
	if raw == nil {
		return tasks, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("corrupt task index: %w", err)
	}
	return tasks, nil
}

func (s *Store) saveTasks(tasks map[string]*Task) error {
	path, err := s.resolver.ResolveRuntime(tasksIndexPath, paths.Write)
	if err != nil {
		return err
	}
	return s.resolver.AtomicWriteJSON(path, tasks)
}

// TaskCreate inserts a pending task. Dependencies must reference existing
// tasks and must not introduce a cycle.
func (s *Store) TaskCreate(subject, description, owner string, dependencies []string) (*Task, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("task subject is required")
	}
	tasks, err := s.loadTasks()
	if err != nil {
		return nil, err
	}
	for _, dep := range dependencies {
		if _, ok := tasks[dep]; !ok {
			return nil, fmt.Errorf("%w: dependency %s", ErrTaskNotFound, dep)
		}
	}
	task := &Task{
		ID:           fmt.Sprintf("task-%s", uuid.New().String()[:8]),
		Subject:      subject,
		Description:  description,
		Status:       TaskPending,
		Owner:        owner,
		Dependencies: dependencies,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	tasks[task.ID] = task
	if err := detectCycle(tasks); err != nil {
		return nil, err
	}
	if err := s.saveTasks(tasks); err != nil {
		return nil, err
	}
	s.logger.Info("task created",
		zap.String("task_id", task.ID), zap.String("owner", owner))
	return task, nil
}

// TaskGet loads a task by id.
func (s *Store) TaskGet(id string) (*Task, error) {
	tasks, err := s.loadTasks()
	if err != nil {
		return nil, err
	}
	task, ok := tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task, nil
}

// TaskList returns tasks matching the filter, ordered by creation time.
func (s *Store) TaskList(filter TaskFilter) ([]*Task, error) {
	tasks, err := s.loadTasks()
	if err != nil {
		return nil, err
	}
	var out []*Task
	for _, t := range tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Owner != "" && t.Owner != filter.Owner {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// TaskUpdate applies a patch to a task under the iron laws: completion
// requires a summary, claiming requires completed dependencies, and
// dependency edits may not introduce cycles.
func (s *Store) TaskUpdate(id string, mutate func(*Task) error) (*Task, error) {
	tasks, err := s.loadTasks()
	if err != nil {
		return nil, err
	}
	task, ok := tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	prevStatus := task.Status

	if err := mutate(task); err != nil {
		return nil, err
	}

	if task.Status == TaskCompleted && prevStatus != TaskCompleted {
		if strings.TrimSpace(task.Summary()) == "" {
			return nil, ErrSummaryRequired
		}
	}
	if task.Status == TaskInProgress && prevStatus != TaskInProgress {
		for _, dep := range task.Dependencies {
			d, ok := tasks[dep]
			if !ok || d.Status != TaskCompleted {
				return nil, fmt.Errorf("%w: %s waits on %s", ErrDependenciesIncomplete, id, dep)
			}
		}
	}
	if err := detectCycle(tasks); err != nil {
		return nil, err
	}

	task.UpdatedAt = time.Now()
	if err := s.saveTasks(tasks); err != nil {
		return nil, err
	}
	return task, nil
}

// NextAvailableTasks returns pending tasks whose dependencies are all
// completed, in creation order.
func (s *Store) NextAvailableTasks() ([]*Task, error) {
	tasks, err := s.loadTasks()
	if err != nil {
		return nil, err
	}
	var out []*Task
	for _, t := range tasks {
		if t.Status != TaskPending {
			continue
		}
		ready := true
		for _, dep := range t.Dependencies {
			d, ok := tasks[dep]
			if !ok || d.Status != TaskCompleted {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// detectCycle validates the task DAG with a three-color depth-first walk.
func detectCycle(tasks map[string]*Task) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			return fmt.Errorf("%w: involving %s", ErrDependencyCycle, id)
		case black:
			return nil
		}
		color[id] = gray
		if t, ok := tasks[id]; ok {
			for _, dep := range t.Dependencies {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for id := range tasks {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
