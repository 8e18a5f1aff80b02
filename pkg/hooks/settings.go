// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Settings is the hook registration file format: per event, an array of
// matcher groups each carrying command hooks.
//
//	{
//	  "PreToolUse": [
//	    {"matcher": "shell_execute,bash", "hooks": [{"type": "command", "command": "weft-hook-shell"}]}
//	  ]
//	}
type Settings map[string][]MatcherGroup

// MatcherGroup binds a tool list to a set of hook commands.
type MatcherGroup struct {
	Matcher string        `json:"matcher"`
	Hooks   []CommandSpec `json:"hooks"`
}

// CommandSpec describes one registered hook command.
type CommandSpec struct {
	Type      string `json:"type"` // only "command" is supported
	Command   string `json:"command"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
	Security  bool   `json:"security,omitempty"`
}

// LoadSettings parses a settings file and registers its hooks on the
// pipeline. Wildcard matchers on tool-dispatch events are rejected.
func LoadSettings(path string, pipeline *Pipeline) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read hook settings: %w", err)
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("malformed hook settings: %w", err)
	}

	for event, groups := range settings {
		switch event {
		case EventUserPromptSubmit, EventPreToolUse, EventPostToolUse, EventSessionEnd:
		default:
			return fmt.Errorf("unknown hook event %q in settings", event)
		}
		for _, group := range groups {
			var matcher []string
			if strings.TrimSpace(group.Matcher) != "" {
				for _, tool := range strings.Split(group.Matcher, ",") {
					matcher = append(matcher, strings.TrimSpace(tool))
				}
			}
			for _, spec := range group.Hooks {
				if spec.Type != "command" {
					return fmt.Errorf("unsupported hook type %q", spec.Type)
				}
				name := hookNameFromCommand(spec.Command)
				h := &Hook{
					Name:     name,
					Events:   []string{event},
					Matcher:  matcher,
					Command:  spec.Command,
					Security: spec.Security,
				}
				if spec.TimeoutMs > 0 {
					h.Timeout = time.Duration(spec.TimeoutMs) * time.Millisecond
				}
				if err := pipeline.Register(h); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func hookNameFromCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "unnamed"
	}
	name := fields[0]
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
