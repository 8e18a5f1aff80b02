// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/router"
)

var stateCleanupMaxAge time.Duration

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Manage router session state",
	Long:  `state manages the per-session router records under runtime/sessions/. It is primarily driven by the runtime itself.`,
}

func init() {
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove sessions older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := newSessionStore()
			if err != nil {
				return err
			}
			removed, err := sessions.Cleanup(stateCleanupMaxAge)
			if err != nil {
				return err
			}
			return emit(map[string]int{"removed": removed}, func() string {
				return fmt.Sprintf("removed %d stale sessions", removed)
			})
		},
	}
	cleanupCmd.Flags().DurationVar(&stateCleanupMaxAge, "max-age", 7*24*time.Hour, "remove sessions not updated within this window")

	stateCmd.AddCommand(
		&cobra.Command{
			Use:   "init <session-id> [role]",
			Short: "Initialize a session (idempotent)",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				sessions, err := newSessionStore()
				if err != nil {
					return err
				}
				role := "router"
				if len(args) == 2 {
					role = args[1]
				}
				st, err := sessions.Init(args[0], role)
				if err != nil {
					return err
				}
				return emit(st, func() string { return formatSession(st) })
			},
		},
		&cobra.Command{
			Use:   "reset <session-id>",
			Short: "Reset a session to its initial state, keeping its role",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sessions, err := newSessionStore()
				if err != nil {
					return err
				}
				st, err := loadSession(sessions, args[0])
				if err != nil {
					return err
				}
				if err := sessions.Delete(args[0]); err != nil {
					return err
				}
				fresh, err := sessions.Init(args[0], st.AgentRole)
				if err != nil {
					return err
				}
				return emit(fresh, func() string { return formatSession(fresh) })
			},
		},
		&cobra.Command{
			Use:   "summary <session-id>",
			Short: "Show a session's state",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sessions, err := newSessionStore()
				if err != nil {
					return err
				}
				st, err := loadSession(sessions, args[0])
				if err != nil {
					return err
				}
				return emit(st, func() string { return formatSession(st) })
			},
		},
		&cobra.Command{
			Use:   "clear <session-id>",
			Short: "Delete a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sessions, err := newSessionStore()
				if err != nil {
					return err
				}
				return sessions.Delete(args[0])
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List all sessions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				sessions, err := newSessionStore()
				if err != nil {
					return err
				}
				ids, err := sessions.List()
				if err != nil {
					return err
				}
				return emit(ids, func() string {
					if len(ids) == 0 {
						return "no sessions"
					}
					return strings.Join(ids, "\n")
				})
			},
		},
		cleanupCmd,
		&cobra.Command{
			Use:   "costs <session-id>",
			Short: "Show a session's accumulated costs",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sessions, err := newSessionStore()
				if err != nil {
					return err
				}
				st, err := loadSession(sessions, args[0])
				if err != nil {
					return err
				}
				if st.Costs == nil {
					return fmt.Errorf("no costs recorded for session %s", args[0])
				}
				return emit(st.Costs, func() string {
					var b strings.Builder
					for model, mc := range st.Costs.PerModel {
						fmt.Fprintf(&b, "%-40s in=%d out=%d $%.5f\n",
							model, mc.InputTokens, mc.OutputTokens, mc.CostUSD)
					}
					fmt.Fprintf(&b, "total $%.5f", st.Costs.Total)
					return b.String()
				})
			},
		},
		&cobra.Command{
			Use:   "metrics <session-id>",
			Short: "Show a session's routing metrics",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sessions, err := newSessionStore()
				if err != nil {
					return err
				}
				st, err := loadSession(sessions, args[0])
				if err != nil {
					return err
				}
				if st.RoutingDecisions == nil {
					return fmt.Errorf("no routing metrics for session %s", args[0])
				}
				m := st.RoutingDecisions
				return emit(m, func() string {
					return fmt.Sprintf(
						"decisions=%d handled=%d routed=%d avg_complexity=%.2f avg_confidence=%.2f",
						m.Total, m.SimpleHandled, m.RoutedToOrchestrator,
						m.AvgComplexity, m.AvgConfidence)
				})
			},
		},
	)
}

func newSessionStore() (*router.Sessions, error) {
	resolver, err := newResolver()
	if err != nil {
		return nil, err
	}
	return router.NewSessions(resolver, log.Named("state")), nil
}

// loadSession resolves a session or fails the command; missing sessions are
// an error at the CLI surface.
func loadSession(sessions *router.Sessions, id string) (*router.SessionState, error) {
	st, err := sessions.Load(id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return st, nil
}

func formatSession(st *router.SessionState) string {
	return fmt.Sprintf("%s role=%s reads=%d violations=%d model=%s updated=%s",
		st.SessionID, st.AgentRole, st.ReadCount, len(st.Violations),
		st.Model, st.UpdatedAt.Format(time.RFC3339))
}
