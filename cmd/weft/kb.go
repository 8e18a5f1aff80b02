// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/knowledge"
)

var (
	kbDomain string
	kbTags   []string
	kbGet    string
	kbStats  bool
)

var kbCmd = &cobra.Command{
	Use:   "kb [query]",
	Short: "Search the knowledge index",
	Long:  `kb searches the CSV knowledge index over skills, agents, and workflows. Exits non-zero when nothing matches.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKB,
}

func init() {
	kbCmd.Flags().StringVar(&kbDomain, "domain", "", "restrict results to one domain (skill|agent|workflow)")
	kbCmd.Flags().StringSliceVar(&kbTags, "tags", nil, "require every tag (matched against use cases and tools)")
	kbCmd.Flags().StringVar(&kbGet, "get", "", "look one entry up by name or alias")
	kbCmd.Flags().BoolVar(&kbStats, "stats", false, "print index statistics")
}

func runKB(cmd *cobra.Command, args []string) error {
	resolver, err := newResolver()
	if err != nil {
		return err
	}
	index := knowledge.NewIndex(resolver, log.Named("kb"))

	if kbStats {
		stats, err := index.GetStats()
		if err != nil {
			return err
		}
		return emit(stats, func() string {
			var b strings.Builder
			fmt.Fprintf(&b, "%d entries (%d deprecated)\n", stats.Total, stats.Deprecated)
			for domain, n := range stats.ByDomain {
				fmt.Fprintf(&b, "  %-10s %d\n", domain, n)
			}
			return strings.TrimRight(b.String(), "\n")
		})
	}

	if kbGet != "" {
		row, err := index.Get(kbGet)
		if err != nil {
			return err
		}
		return emit(row, func() string { return formatRow(row) })
	}

	rows, err := searchRows(index, args)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no matching index entries")
	}
	return emit(rows, func() string {
		lines := make([]string, 0, len(rows))
		for _, r := range rows {
			lines = append(lines, formatRow(r))
		}
		return strings.Join(lines, "\n")
	})
}

// searchRows combines the fuzzy query with the domain and tag filters.
func searchRows(index *knowledge.Index, args []string) ([]knowledge.Row, error) {
	var rows []knowledge.Row
	var err error
	switch {
	case len(args) == 1 && strings.TrimSpace(args[0]) != "":
		rows, err = index.Search(args[0])
	case kbDomain != "":
		rows, err = index.FilterByDomain(kbDomain)
	case len(kbTags) > 0:
		rows, err = index.FilterByTags(kbTags)
	default:
		return nil, fmt.Errorf("a query, --domain, --tags, --get, or --stats is required")
	}
	if err != nil {
		return nil, err
	}

	if len(args) == 1 && kbDomain != "" {
		filtered := rows[:0]
		for _, r := range rows {
			if r.Domain == kbDomain {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	if len(args) == 1 && len(kbTags) > 0 {
		byTags, err := index.FilterByTags(kbTags)
		if err != nil {
			return nil, err
		}
		allowed := make(map[string]bool, len(byTags))
		for _, r := range byTags {
			allowed[r.Name] = true
		}
		filtered := rows[:0]
		for _, r := range rows {
			if allowed[r.Name] {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	return rows, nil
}

func formatRow(r knowledge.Row) string {
	return fmt.Sprintf("%-30s %-10s %-8s %s", r.Name, r.Domain, r.Complexity, r.Description)
}
