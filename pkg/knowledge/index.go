// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package knowledge maintains the CSV index of skills, agents, and
// workflows. The index is a single file rebuilt atomically; readers are
// lock-free and reload on mtime change.
package knowledge

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/paths"
)

// IndexFileName is the canonical index file under generated artifacts.
const IndexFileName = "knowledge-index.csv"

// Domain values for index rows.
const (
	DomainSkill    = "skill"
	DomainAgent    = "agent"
	DomainWorkflow = "workflow"
)

// Complexity values for index rows.
const (
	ComplexityLow    = "LOW"
	ComplexityMedium = "MEDIUM"
	ComplexityHigh   = "HIGH"
	ComplexityEpic   = "EPIC"
)

// csvHeader is the fixed 11-column schema.
var csvHeader = []string{
	"name", "path", "description", "domain", "complexity",
	"use_cases", "tools", "deprecated", "alias", "usage_count", "last_used",
}

// pathAllowlist is the set of relative prefixes a row path may live under.
var pathAllowlist = []string{
	"artifacts/generated/",
	"artifacts/reference/",
	"skills/",
	"agents/",
	"workflows/",
}

var (
	ErrRowPathRejected = errors.New("index row path rejected")
	ErrMalformedIndex  = errors.New("malformed knowledge index")
	ErrNotFound        = errors.New("index entry not found")
)

// Row is one knowledge index entry.
type Row struct {
	Name        string
	Path        string
	Description string
	Domain      string
	Complexity  string
	UseCases    []string
	Tools       []string
	Deprecated  bool
	Alias       string
	UsageCount  int
	LastUsed    time.Time
}

// Index is the in-memory view over the CSV, with mtime-based invalidation.
type Index struct {
	resolver *paths.Resolver
	logger   *zap.Logger

	mu        sync.RWMutex
	rows      []Row
	byName    map[string]int
	loadedAt  time.Time
	fileMtime time.Time
}

// NewIndex creates an index over the canonical CSV path.
func NewIndex(resolver *paths.Resolver, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{resolver: resolver, logger: logger, byName: make(map[string]int)}
}

// FilePath returns the canonical index location.
func (idx *Index) FilePath() (string, error) {
	return idx.resolver.ResolveArtifact(paths.KindGenerated, IndexFileName)
}

// escapeCell neutralizes spreadsheet formula injection: any cell whose
// first character is one of = + - @ gets a leading single quote.
func escapeCell(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '+', '-', '@':
		return "'" + cell
	}
	return cell
}

// unescapeCell reverses escapeCell on read.
func unescapeCell(cell string) string {
	if len(cell) >= 2 && cell[0] == '\'' {
		switch cell[1] {
		case '=', '+', '-', '@':
			return cell[1:]
		}
	}
	return cell
}

// validateRowPath enforces the path allowlist and rejects traversal,
// absolute paths, env expansion, encoded traversal, and NUL bytes.
func validateRowPath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty path", ErrRowPathRejected)
	}
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("%w: NUL byte in %q", ErrRowPathRejected, p)
	}
	lower := strings.ToLower(p)
	if strings.Contains(p, "..") ||
		strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%2f") {
		return fmt.Errorf("%w: traversal in %q", ErrRowPathRejected, p)
	}
	if strings.Contains(p, "${") {
		return fmt.Errorf("%w: variable expansion in %q", ErrRowPathRejected, p)
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) || driveLetterPath(p) {
		return fmt.Errorf("%w: absolute path %q", ErrRowPathRejected, p)
	}
	for _, prefix := range pathAllowlist {
		if strings.HasPrefix(p, prefix) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q is outside allowlisted directories", ErrRowPathRejected, p)
}

func driveLetterPath(p string) bool {
	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

// marshalRow serializes a row to its 11 CSV cells with formula escaping.
func marshalRow(r Row) []string {
	lastUsed := ""
	if !r.LastUsed.IsZero() {
		lastUsed = r.LastUsed.UTC().Format(time.RFC3339)
	}
	return []string{
		escapeCell(r.Name),
		escapeCell(r.Path),
		escapeCell(r.Description),
		escapeCell(r.Domain),
		escapeCell(r.Complexity),
		escapeCell(strings.Join(r.UseCases, ";")),
		escapeCell(strings.Join(r.Tools, ";")),
		strconv.FormatBool(r.Deprecated),
		escapeCell(r.Alias),
		strconv.Itoa(r.UsageCount),
		lastUsed,
	}
}

// unmarshalRow parses one CSV record. Malformed records return an error and
// are skipped by the loader.
func unmarshalRow(record []string) (Row, error) {
	if len(record) != len(csvHeader) {
		return Row{}, fmt.Errorf("%w: want %d columns, got %d", ErrMalformedIndex, len(csvHeader), len(record))
	}
	r := Row{
		Name:        unescapeCell(record[0]),
		Path:        unescapeCell(record[1]),
		Description: unescapeCell(record[2]),
		Domain:      unescapeCell(record[3]),
		Complexity:  unescapeCell(record[4]),
		Alias:       unescapeCell(record[8]),
	}
	if err := validateRowPath(r.Path); err != nil {
		return Row{}, err
	}
	switch r.Domain {
	case DomainSkill, DomainAgent, DomainWorkflow:
	default:
		return Row{}, fmt.Errorf("%w: unknown domain %q", ErrMalformedIndex, r.Domain)
	}
	if uc := unescapeCell(record[5]); uc != "" {
		r.UseCases = strings.Split(uc, ";")
	}
	if tools := unescapeCell(record[6]); tools != "" {
		r.Tools = strings.Split(tools, ";")
	}
	r.Deprecated = record[7] == "true"
	if record[9] != "" {
		n, err := strconv.Atoi(record[9])
		if err != nil {
			return Row{}, fmt.Errorf("%w: bad usage_count %q", ErrMalformedIndex, record[9])
		}
		r.UsageCount = n
	}
	if record[10] != "" {
		t, err := time.Parse(time.RFC3339, record[10])
		if err != nil {
			return Row{}, fmt.Errorf("%w: bad last_used %q", ErrMalformedIndex, record[10])
		}
		r.LastUsed = t
	}
	return r, nil
}

// Write replaces the index atomically: serialize to a temp file in the same
// directory, fsync, rename. Row paths are validated before anything is
// written.
func (idx *Index) Write(rows []Row) error {
	path, err := idx.FilePath()
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := validateRowPath(r.Path); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write index header: %w", err)
	}
	for _, r := range rows {
		if err := w.Write(marshalRow(r)); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write index row %q: %w", r.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace index: %w", err)
	}

	idx.mu.Lock()
	idx.install(rows, time.Now())
	idx.mu.Unlock()
	idx.logger.Info("knowledge index written",
		zap.String("path", path), zap.Int("rows", len(rows)))
	return nil
}

// ensureLoaded reloads the CSV when the file's mtime moved past the cached
// load. Missing file means an empty index.
func (idx *Index) ensureLoaded() error {
	path, err := idx.FilePath()
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			idx.mu.Lock()
			idx.install(nil, time.Now())
			idx.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to stat index: %w", err)
	}

	idx.mu.RLock()
	fresh := !idx.loadedAt.IsZero() && info.ModTime().Equal(idx.fileMtime)
	idx.mu.RUnlock()
	if fresh {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // malformed lines are skipped, not fatal
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedIndex, err)
	}

	var rows []Row
	for i, record := range records {
		if i == 0 {
			continue // header
		}
		row, err := unmarshalRow(record)
		if err != nil {
			idx.logger.Warn("skipping malformed index row",
				zap.Int("line", i+1), zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}

	idx.mu.Lock()
	idx.install(rows, time.Now())
	idx.fileMtime = info.ModTime()
	idx.mu.Unlock()
	return nil
}

// install replaces the cached rows. Callers hold idx.mu.
func (idx *Index) install(rows []Row, loadedAt time.Time) {
	idx.rows = rows
	idx.byName = make(map[string]int, len(rows))
	for i, r := range rows {
		idx.byName[r.Name] = i
		if r.Alias != "" {
			if _, taken := idx.byName[r.Alias]; !taken {
				idx.byName[r.Alias] = i
			}
		}
	}
	idx.loadedAt = loadedAt
}

// Invalidate drops the cached view so the next read reloads from disk.
func (idx *Index) Invalidate() {
	idx.mu.Lock()
	idx.loadedAt = time.Time{}
	idx.fileMtime = time.Time{}
	idx.mu.Unlock()
}
