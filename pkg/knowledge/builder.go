// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// scanDirs maps source directories under the project root to the domain of
// the rows they produce.
var scanDirs = map[string]string{
	"skills":    DomainSkill,
	"agents":    DomainAgent,
	"workflows": DomainWorkflow,
}

// definitionMeta is the YAML front matter (or .yaml body) of a definition
// file. Unknown keys are ignored.
type definitionMeta struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Complexity  string   `yaml:"complexity"`
	UseCases    []string `yaml:"use_cases"`
	Tools       []string `yaml:"tools"`
	Deprecated  bool     `yaml:"deprecated"`
	Alias       string   `yaml:"alias"`
}

// Rebuild scans the definition directories and atomically replaces the
// index. Usage counters from the previous index are preserved by name.
func (idx *Index) Rebuild() error {
	previous := map[string]Row{}
	if existing, err := idx.ListAll(); err == nil {
		for _, r := range existing {
			previous[r.Name] = r
		}
	}

	var rows []Row
	for dir, domain := range scanDirs {
		absDir := filepath.Join(idx.resolver.Root(), dir)
		entries, err := os.ReadDir(absDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to scan %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			relPath := dir + "/" + entry.Name()
			row, err := parseDefinition(filepath.Join(absDir, entry.Name()), relPath, domain)
			if err != nil {
				idx.logger.Warn("skipping unparseable definition",
					zap.String("path", relPath), zap.Error(err))
				continue
			}
			if prev, ok := previous[row.Name]; ok {
				row.UsageCount = prev.UsageCount
				row.LastUsed = prev.LastUsed
			}
			rows = append(rows, row)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Domain != rows[j].Domain {
			return rows[i].Domain < rows[j].Domain
		}
		return rows[i].Name < rows[j].Name
	})
	return idx.Write(rows)
}

// parseDefinition extracts index metadata from one definition file.
// Markdown files carry YAML front matter between --- fences; .yaml files
// are parsed whole.
func parseDefinition(absPath, relPath, domain string) (Row, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return Row{}, err
	}

	var meta definitionMeta
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &meta); err != nil {
			return Row{}, fmt.Errorf("bad yaml: %w", err)
		}
	case ".md":
		front, ok := frontMatter(string(data))
		if !ok {
			return Row{}, fmt.Errorf("missing front matter")
		}
		if err := yaml.Unmarshal([]byte(front), &meta); err != nil {
			return Row{}, fmt.Errorf("bad front matter: %w", err)
		}
	default:
		return Row{}, fmt.Errorf("unsupported extension %q", filepath.Ext(absPath))
	}

	name := meta.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))
	}
	complexity := strings.ToUpper(meta.Complexity)
	switch complexity {
	case ComplexityLow, ComplexityMedium, ComplexityHigh, ComplexityEpic:
	case "":
		complexity = ComplexityMedium
	default:
		return Row{}, fmt.Errorf("unknown complexity %q", meta.Complexity)
	}

	row := Row{
		Name:        name,
		Path:        relPath,
		Description: meta.Description,
		Domain:      domain,
		Complexity:  complexity,
		UseCases:    meta.UseCases,
		Tools:       meta.Tools,
		Deprecated:  meta.Deprecated,
		Alias:       meta.Alias,
	}
	if err := validateRowPath(row.Path); err != nil {
		return Row{}, err
	}
	return row, nil
}

// frontMatter returns the YAML block between the leading --- fences.
func frontMatter(content string) (string, bool) {
	if !strings.HasPrefix(content, "---\n") {
		return "", false
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
