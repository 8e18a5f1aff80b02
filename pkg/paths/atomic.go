// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package paths

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// lockStaleTTL is the age after which a cooperative lock is considered
	// abandoned and may be broken.
	lockStaleTTL = 5 * time.Second
	// lockRetryBudget bounds how long a writer waits for a contended lock.
	lockRetryBudget = 5 * time.Second
)

// ErrLockContention is returned when a lock cannot be acquired within the TTL.
var ErrLockContention = errors.New("lock held beyond stale TTL")

// AtomicWriteJSON writes value as JSON to path with all-or-nothing
// visibility: the bytes land in <path>.tmp, are fsynced, then renamed over
// the destination. A cooperative <path>.lock file serializes writers; locks
// older than the stale TTL are broken.
func (r *Resolver) AtomicWriteJSON(path string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	unlock, err := r.acquireLock(path)
	if err != nil {
		return err
	}
	defer unlock()

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}

	r.cache.invalidate(path)
	return nil
}

// AppendJSONL appends a single JSON record to a JSONL file using O_APPEND
// semantics: one record, one write, no read-modify-write. Safe for multiple
// writers.
func (r *Resolver) AppendJSONL(path string, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return nil
}

// acquireLock takes the cooperative lock for path, retrying with exponential
// backoff while the holder is live and breaking locks older than the stale
// TTL. Returns the release function.
func (r *Resolver) acquireLock(path string) (func(), error) {
	lockPath := path + ".lock"

	try := func() error {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if err == nil {
			fmt.Fprintf(f, "%d %s", os.Getpid(), time.Now().Format(time.RFC3339Nano))
			f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return backoff.Permanent(fmt.Errorf("failed to create lock file: %w", err))
		}
		// Lock exists. Break it if stale, otherwise keep retrying.
		if fi, statErr := os.Stat(lockPath); statErr == nil && time.Since(fi.ModTime()) > lockStaleTTL {
			os.Remove(lockPath)
		}
		return fmt.Errorf("lock %s held", lockPath)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = lockRetryBudget
	if err := backoff.Retry(try, bo); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, fmt.Errorf("%w: %s", ErrLockContention, lockPath)
	}
	return func() { os.Remove(lockPath) }, nil
}
