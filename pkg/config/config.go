// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config loads runtime configuration from weft.yaml with
// environment overrides. Boolean feature gates can always be forced from
// the environment; env wins over file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the runtime configuration.
type Config struct {
	// DataDir is the root for runtime state (default ~/.weft).
	DataDir string `mapstructure:"data_dir"`

	LLM struct {
		Provider   string `mapstructure:"provider"` // anthropic | bedrock | fake
		Model      string `mapstructure:"model"`
		CheapModel string `mapstructure:"cheap_model"`
		MaxTokens  int    `mapstructure:"max_tokens"`
	} `mapstructure:"llm"`

	Workers struct {
		Enabled       bool   `mapstructure:"enabled"`
		Command       string `mapstructure:"command"`
		HeapLimit     int64  `mapstructure:"heap_limit"`
		MaxConcurrent int    `mapstructure:"max_concurrent"`
	} `mapstructure:"workers"`

	Router struct {
		Threshold float64 `mapstructure:"threshold"`
	} `mapstructure:"router"`

	Party struct {
		Enabled     bool          `mapstructure:"enabled"`
		RoundBudget time.Duration `mapstructure:"round_budget"`
	} `mapstructure:"party"`

	Hooks struct {
		SettingsFile string `mapstructure:"settings_file"`
		Debug        bool   `mapstructure:"debug"`
	} `mapstructure:"hooks"`

	Telemetry struct {
		Enabled  bool   `mapstructure:"enabled"`
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"telemetry"`
}

// Load reads weft.yaml from the project root (and ~/.weft as fallback),
// then applies environment overrides.
func Load(projectRoot string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("weft")
	v.SetConfigType("yaml")
	if projectRoot != "" {
		v.AddConfigPath(projectRoot)
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".weft"))
	}

	v.SetEnvPrefix("WEFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("malformed config: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("data_dir", filepath.Join(home, ".weft"))
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.cheap_model", "claude-3-5-haiku-20241022")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("workers.enabled", false)
	v.SetDefault("workers.max_concurrent", 4)
	v.SetDefault("router.threshold", 0.5)
	v.SetDefault("party.enabled", false)
	v.SetDefault("party.round_budget", "2m")
	v.SetDefault("telemetry.enabled", false)
}

// applyEnvOverrides forces the documented feature-gate variables over the
// file values. Env always wins.
func applyEnvOverrides(cfg *Config) {
	if val, ok := boolEnv("USE_WORKERS"); ok {
		cfg.Workers.Enabled = val
	}
	if val, ok := boolEnv("PARTY_MODE_ENABLED"); ok {
		cfg.Party.Enabled = val
	}
	if val, ok := boolEnv("DEBUG_HOOKS"); ok {
		cfg.Hooks.Debug = val
	}
	if val, ok := boolEnv("OTEL_ENABLED"); ok {
		cfg.Telemetry.Enabled = val
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Telemetry.Endpoint = endpoint
	}
	if dir := os.Getenv("WEFT_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
}

func boolEnv(name string) (value, present bool) {
	switch os.Getenv(name) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	}
	return false, false
}
