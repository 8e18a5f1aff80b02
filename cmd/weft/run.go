// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/config"
	"github.com/teradata-labs/weft/pkg/dispatch"
	"github.com/teradata-labs/weft/pkg/hooks"
	"github.com/teradata-labs/weft/pkg/knowledge"
	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/memory"
	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/paths"
	"github.com/teradata-labs/weft/pkg/router"
	"github.com/teradata-labs/weft/pkg/safety"
	"github.com/teradata-labs/weft/pkg/state"
	"github.com/teradata-labs/weft/pkg/supervisor"
	"github.com/teradata-labs/weft/pkg/workflow"
)

var (
	runSession     string
	runWorkflow    string
	runWorkflowDir string
	runResumeID    string
)

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Route a prompt and execute the selected workflow",
	Long: `run is the runtime entry point: the prompt is classified on the cheap
model, either answered directly or handed off to the workflow executor with
the accumulated router costs.`,
	Args: cobra.RangeArgs(0, 1),
	RunE: runPrompt,
}

func init() {
	runCmd.Flags().StringVar(&runSession, "session", "", "session identifier (generated when empty)")
	runCmd.Flags().StringVar(&runWorkflow, "workflow", "", "force a workflow, bypassing the routed selection")
	runCmd.Flags().StringVar(&runWorkflowDir, "workflow-dir", "workflows", "directory holding workflow definitions, relative to the project root")
	runCmd.Flags().StringVar(&runResumeID, "resume", "", "resume an existing run instead of starting a new one")
}

// runtimeDeps is everything the run command wires together.
type runtimeDeps struct {
	resolver   *paths.Resolver
	cfg        *config.Config
	tracer     observability.Tracer
	costs      *observability.CostTracker
	store      *state.Store
	index      *knowledge.Index
	supervisor *supervisor.Supervisor
	executor   *workflow.Executor
	router     *router.Router
}

func runPrompt(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if runResumeID == "" && len(args) == 0 {
		return fmt.Errorf("a prompt is required unless --resume is given")
	}

	deps, err := buildRuntime(ctx)
	if err != nil {
		return err
	}

	watcher, err := knowledge.NewWatcher(deps.index, knowledge.WatcherConfig{
		Enabled: true,
		Logger:  log.Named("knowledge"),
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := watcher.Stop(); err != nil {
			log.Warn("knowledge watcher stop failed", zap.Error(err))
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), supervisorDrainTimeout)
		defer cancel()
		if err := deps.supervisor.Shutdown(shutdownCtx); err != nil {
			log.Warn("supervisor shutdown failed", zap.Error(err))
		}
		if err := deps.tracer.Flush(shutdownCtx); err != nil {
			log.Warn("telemetry flush failed", zap.Error(err))
		}
	}()

	if runResumeID != "" {
		return resumeRun(ctx, deps, runResumeID)
	}

	sessionID := runSession
	if sessionID == "" {
		sessionID = "session-" + uuid.NewString()[:8]
	}

	outcome, err := deps.router.Route(ctx, sessionID, args[0])
	if err != nil {
		return err
	}
	if outcome.Handled {
		return emit(outcome, func() string { return outcome.Response })
	}

	name := runWorkflow
	if name == "" {
		name = outcome.Decision.Workflow
	}
	if name == "" {
		return fmt.Errorf("%w: routed intent %q has no workflow mapping", errConfig, outcome.Decision.Intent)
	}
	def, err := loadWorkflow(deps.resolver, name)
	if err != nil {
		return err
	}

	metadata, err := outcome.Handoff.ToMetadata()
	if err != nil {
		return err
	}
	run, err := deps.executor.Start(ctx, def, metadata)
	if err != nil {
		if run != nil {
			_ = emit(run, func() string { return formatRun(run) })
		}
		return err
	}
	return emit(run, func() string { return formatRun(run) })
}

func resumeRun(ctx context.Context, deps *runtimeDeps, runID string) error {
	existing, err := deps.store.GetRun(runID)
	if err != nil {
		return err
	}
	name := existing.SelectedWorkflow
	if name == "" {
		name = existing.Workflow
	}
	def, err := loadWorkflow(deps.resolver, name)
	if err != nil {
		return err
	}
	run, err := deps.executor.Resume(ctx, def, runID)
	if err != nil {
		return err
	}
	return emit(run, func() string { return formatRun(run) })
}

const supervisorDrainTimeout = 30 * time.Second

// buildRuntime assembles the full component graph from configuration.
func buildRuntime(ctx context.Context) (*runtimeDeps, error) {
	resolver, err := newResolver()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(resolver.Root())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}

	tracer, err := buildTracer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	costs := observability.NewCostTracker()
	store := state.NewStore(resolver, log.Named("state"))
	index := knowledge.NewIndex(resolver, log.Named("knowledge"))

	pipeline := hooks.NewPipeline(store, tracer, log.Named("hooks"))
	for _, h := range []*hooks.Hook{
		hooks.NewShellSafetyHook(safety.NewRegistry()),
		hooks.NewPathSafetyHook(resolver),
		hooks.NewTemplateEnforcementHook(),
		memory.NewSessionPersistenceHook(memory.NewStore(resolver, log.Named("memory"))),
	} {
		if err := pipeline.Register(h); err != nil {
			return nil, err
		}
	}
	settingsPath := cfg.Hooks.SettingsFile
	if settingsPath == "" {
		settingsPath = filepath.Join(resolver.Root(), "config", "hooks.json")
	}
	if err := hooks.LoadSettings(settingsPath, pipeline); err != nil {
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}

	provider, err := buildProvider(ctx, cfg, cfg.LLM.Model)
	if err != nil {
		return nil, err
	}
	cheap, err := buildProvider(ctx, cfg, cfg.LLM.CheapModel)
	if err != nil {
		return nil, err
	}

	legacy := func(ctx context.Context, env *supervisor.TaskEnvelope) (string, error) {
		instrumented := llm.NewInstrumentedProvider(provider, tracer, costs, env.AgentKind, env.SessionID)
		resp, err := instrumented.Invoke(ctx, &llm.Envelope{
			Messages: []llm.Message{{Role: "user", Content: env.Prompt}},
		})
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}
	sup, err := supervisor.New(supervisor.Config{
		WorkerCommand: cfg.Workers.Command,
		HeapLimit:     cfg.Workers.HeapLimit,
		MaxConcurrent: cfg.Workers.MaxConcurrent,
		UseWorkers:    cfg.Workers.Enabled,
		Store:         store,
		Tracer:        tracer,
		Logger:        log.Named("supervisor"),
		Legacy:        legacy,
	})
	if err != nil {
		return nil, err
	}

	dispatcher := dispatch.New(dispatch.Config{
		Provider:   provider,
		Supervisor: sup,
		Pipeline:   pipeline,
		Store:      store,
		Resolver:   resolver,
		Index:      index,
		Tracer:     tracer,
		Logger:     log.Named("dispatch"),
	})

	gates, err := workflow.NewGates(store, resolver, log.Named("gates"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	executor := workflow.NewExecutor(workflow.Config{
		Store:      store,
		Resolver:   resolver,
		Gates:      gates,
		Dispatcher: dispatcher,
		Costs:      costs,
		Tracer:     tracer,
		Logger:     log.Named("workflow"),
		Rater:      workflow.NewLLMRater(provider),
	})

	registry, err := router.LoadRegistry(resolver, log.Named("router"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	rtr := router.New(router.Config{
		Provider:  cheap,
		Sessions:  router.NewSessions(resolver, log.Named("router")),
		Registry:  registry,
		Costs:     costs,
		Tracer:    tracer,
		Logger:    log.Named("router"),
		Threshold: cfg.Router.Threshold,
	})

	return &runtimeDeps{
		resolver:   resolver,
		cfg:        cfg,
		tracer:     tracer,
		costs:      costs,
		store:      store,
		index:      index,
		supervisor: sup,
		executor:   executor,
		router:     rtr,
	}, nil
}

func buildTracer(ctx context.Context, cfg *config.Config) (observability.Tracer, error) {
	if !cfg.Telemetry.Enabled {
		return observability.NewNoOpTracer(), nil
	}
	otlpCfg, _ := observability.OTLPConfigFromEnv()
	if cfg.Telemetry.Endpoint != "" {
		otlpCfg.Endpoint = cfg.Telemetry.Endpoint
	}
	otlpCfg.Logger = log.Named("otlp")
	tracer, err := observability.NewOTLPTracer(ctx, otlpCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: telemetry init failed: %v", errConfig, err)
	}
	return tracer, nil
}

// buildProvider constructs one provider for the given model id.
func buildProvider(ctx context.Context, cfg *config.Config, model string) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "anthropic", "":
		return llm.NewAnthropicClient(llm.AnthropicConfig{
			Model:     model,
			MaxTokens: cfg.LLM.MaxTokens,
		}), nil
	case "bedrock":
		return llm.NewBedrockClient(ctx, llm.BedrockConfig{
			ModelID:   model,
			MaxTokens: cfg.LLM.MaxTokens,
		})
	case "fake":
		return llm.NewFakeProvider(model), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", errConfig, cfg.LLM.Provider)
	}
}

func loadWorkflow(resolver *paths.Resolver, name string) (*workflow.Definition, error) {
	def, err := workflow.LoadByName(filepath.Join(resolver.Root(), runWorkflowDir), name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	return def, nil
}

func formatRun(run *state.Run) string {
	return fmt.Sprintf("run %s workflow=%s status=%s step=%d",
		run.ID, run.Workflow, run.Status, run.CurrentStep)
}
