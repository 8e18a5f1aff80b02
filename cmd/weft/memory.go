// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/memory"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Record and load cross-session memory",
}

func init() {
	memoryCmd.AddCommand(
		&cobra.Command{
			Use:   "record-gotcha <text>",
			Short: "Append a gotcha to memory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := newMemoryStore()
				if err != nil {
					return err
				}
				return store.RecordGotcha(args[0])
			},
		},
		&cobra.Command{
			Use:   "record-pattern <text>",
			Short: "Append a pattern to memory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := newMemoryStore()
				if err != nil {
					return err
				}
				return store.RecordPattern(args[0])
			},
		},
		&cobra.Command{
			Use:   "record-discovery <path> <description> <category>",
			Short: "Record a codebase discovery",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := newMemoryStore()
				if err != nil {
					return err
				}
				return store.RecordDiscovery(args[0], args[1], args[2])
			},
		},
		&cobra.Command{
			Use:   "load",
			Short: "Load the truncated memory context",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := newMemoryStore()
				if err != nil {
					return err
				}
				ctx, err := store.LoadForContext()
				if err != nil {
					return err
				}
				return emit(ctx, func() string { return formatContext(ctx) })
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show per-category memory statistics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := newMemoryStore()
				if err != nil {
					return err
				}
				stats, err := store.Stats()
				if err != nil {
					return err
				}
				return emit(stats, func() string {
					var b strings.Builder
					for category, s := range stats {
						fmt.Fprintf(&b, "%-12s %d entries, %d bytes\n", category, s.Count, s.Bytes)
					}
					return strings.TrimRight(b.String(), "\n")
				})
			},
		},
		&cobra.Command{
			Use:   "save-session",
			Short: "Save a session record read as JSON from stdin",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := newMemoryStore()
				if err != nil {
					return err
				}
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read session record from stdin: %w", err)
				}
				var rec memory.SessionRecord
				if err := json.Unmarshal(data, &rec); err != nil {
					return fmt.Errorf("malformed session record: %w", err)
				}
				seq, err := store.SaveSession(rec)
				if err != nil {
					return err
				}
				return emit(map[string]int{"sequence_number": seq}, func() string {
					return fmt.Sprintf("saved session %03d", seq)
				})
			},
		},
	)
}

func newMemoryStore() (*memory.Store, error) {
	resolver, err := newResolver()
	if err != nil {
		return nil, err
	}
	return memory.NewStore(resolver, log.Named("memory")), nil
}

func formatContext(ctx *memory.Context) string {
	var b strings.Builder
	if len(ctx.Gotchas) > 0 {
		b.WriteString("Gotchas:\n")
		for _, g := range ctx.Gotchas {
			fmt.Fprintf(&b, "  - %s\n", g)
		}
	}
	if len(ctx.Patterns) > 0 {
		b.WriteString("Patterns:\n")
		for _, p := range ctx.Patterns {
			fmt.Fprintf(&b, "  - %s\n", p)
		}
	}
	if len(ctx.Discoveries) > 0 {
		b.WriteString("Discoveries:\n")
		for _, d := range ctx.Discoveries {
			fmt.Fprintf(&b, "  - %s: %s [%s]\n", d.Path, d.Description, d.Category)
		}
	}
	if len(ctx.RecentSessions) > 0 {
		b.WriteString("Recent sessions:\n")
		for _, s := range ctx.RecentSessions {
			fmt.Fprintf(&b, "  - #%03d %s\n", s.SequenceNumber, s.Summary)
		}
	}
	out := strings.TrimRight(b.String(), "\n")
	if out == "" {
		return "memory is empty"
	}
	return out
}
