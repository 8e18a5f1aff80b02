// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package state

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/paths"
)

const auditLogPath = "logs/audit.jsonl"

// Audit appends one record to the audit log. Append-only open semantics:
// one record, one write, no read-modify-write, safe across processes.
func (s *Store) Audit(rec AuditRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	path, err := s.resolver.ResolveRuntime(auditLogPath, paths.Write)
	if err != nil {
		return err
	}
	if err := s.resolver.AppendJSONL(path, rec); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	if rec.Critical {
		s.logger.Error("CRITICAL security event",
			zap.String("reason", rec.Reason),
			zap.String("hook", rec.Hook),
			zap.String("run_id", rec.RunID))
	}
	return nil
}

// ReadAudit returns up to limit most recent audit records (0 = all).
// Malformed lines are skipped; the log always yields what it can parse.
func (s *Store) ReadAudit(limit int) ([]AuditRecord, error) {
	path, err := s.resolver.ResolveRuntime(auditLogPath, paths.Read)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var records []AuditRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			s.logger.Warn("skipping malformed audit line", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}
