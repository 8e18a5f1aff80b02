// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatcherConfig configures index hot-rebuild on definition changes.
type WatcherConfig struct {
	Enabled    bool
	DebounceMs int // default 500
	Logger     *zap.Logger
}

// Watcher rebuilds the index when a definition file under skills/, agents/,
// or workflows/ changes. Rapid-fire events (editor auto-save) are debounced
// into a single rebuild.
type Watcher struct {
	index   *Index
	watcher *fsnotify.Watcher
	config  WatcherConfig
	logger  *zap.Logger

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool
	stopMu  sync.Mutex
}

// NewWatcher creates a hot-rebuild watcher for the index.
func NewWatcher(index *Index, config WatcherConfig) (*Watcher, error) {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.DebounceMs == 0 {
		config.DebounceMs = 500
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		index:   index,
		watcher: fsw,
		config:  config,
		logger:  config.Logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching the definition directories.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.config.Enabled {
		w.logger.Info("knowledge index hot-rebuild disabled")
		close(w.doneCh)
		return nil
	}

	watched := 0
	for dir := range scanDirs {
		abs := filepath.Join(w.index.resolver.Root(), dir)
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := w.watcher.Add(abs); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		watched++
	}
	w.logger.Info("knowledge index watcher started",
		zap.Int("directories", watched),
		zap.Int("debounce_ms", w.config.DebounceMs))

	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to drain.
func (w *Watcher) Stop() error {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			w.scheduleRebuild()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("knowledge index watcher error", zap.Error(err))
		}
	}
}

// scheduleRebuild coalesces change bursts into one rebuild per debounce
// window.
func (w *Watcher) scheduleRebuild() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(
		time.Duration(w.config.DebounceMs)*time.Millisecond,
		func() {
			if err := w.index.Rebuild(); err != nil {
				w.logger.Error("knowledge index rebuild failed", zap.Error(err))
				return
			}
			w.logger.Info("knowledge index rebuilt")
		},
	)
}
