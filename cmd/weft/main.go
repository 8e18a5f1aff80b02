// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/dispatch"
	"github.com/teradata-labs/weft/pkg/party"
	"github.com/teradata-labs/weft/pkg/paths"
	"github.com/teradata-labs/weft/pkg/workflow"
)

// Exit codes shared by every subcommand.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitPolicyBlock   = 2
	ExitGateFailure   = 3
	ExitLimitExceeded = 4
	ExitConfigError   = 5
)

// errConfig wraps configuration problems so they exit with ExitConfigError.
var errConfig = errors.New("configuration error")

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:           "weft",
	Short:         "weft - multi-agent orchestration runtime",
	Long:          `weft coordinates agent runs: routing, workflows with gates, isolated workers, hooks, memory, and a knowledge index.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of formatted text")
	rootCmd.AddCommand(kbCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(runCmd)
}

// newResolver locates the project root and builds the path resolver every
// command shares.
func newResolver() (*paths.Resolver, error) {
	resolver, err := paths.NewResolverFromCwd(log.Named("paths"))
	if err != nil {
		return nil, fmt.Errorf("%w: not inside a weft project: %v", errConfig, err)
	}
	return resolver, nil
}

// emit prints v as JSON under --json, otherwise via the text renderer.
func emit(v interface{}, text func() string) error {
	if jsonOutput {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render JSON: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}
	fmt.Println(text())
	return nil
}

// exitCodeFor maps an error to the documented exit code table.
func exitCodeFor(err error) int {
	var blocked *dispatch.ErrBlocked
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &blocked):
		return ExitPolicyBlock
	case errors.Is(err, workflow.ErrGateFailed):
		return ExitGateFailure
	case errors.Is(err, party.ErrContextTooLarge):
		return ExitLimitExceeded
	case errors.Is(err, errConfig):
		return ExitConfigError
	default:
		return ExitFailure
	}
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		log.Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	_ = log.Sync()
	os.Exit(exitCodeFor(err))
}
