// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package hooks

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hooks.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return path
}

// TestLoadSettings verifies hook registration from the settings file,
// including matcher splitting and timeout mapping.
func TestLoadSettings(t *testing.T) {
	path := writeSettings(t, `{
		"PreToolUse": [
			{"matcher": "shell_execute, bash", "hooks": [
				{"type": "command", "command": "/usr/local/bin/weft-hook-shell", "timeout_ms": 250, "security": true}
			]}
		],
		"SessionEnd": [
			{"matcher": "", "hooks": [{"type": "command", "command": "weft-hook-memory"}]}
		]
	}`)

	p := NewPipeline(nil, nil, nil)
	require.NoError(t, LoadSettings(path, p))
	require.Len(t, p.hooks, 2)

	var shell *Hook
	for _, h := range p.hooks {
		if h.Name == "weft-hook-shell" {
			shell = h
		}
	}
	require.NotNil(t, shell)
	assert.Equal(t, []string{EventPreToolUse}, shell.Events)
	assert.Equal(t, []string{"shell_execute", "bash"}, shell.Matcher)
	assert.Equal(t, 250*time.Millisecond, shell.Timeout)
	assert.True(t, shell.Security)
}

// TestLoadSettingsMissingFile verifies an absent settings file is not an
// error.
func TestLoadSettingsMissingFile(t *testing.T) {
	p := NewPipeline(nil, nil, nil)
	assert.NoError(t, LoadSettings(filepath.Join(t.TempDir(), "none.json"), p))
	assert.Empty(t, p.hooks)
}

// TestLoadSettingsRejections verifies unknown events, unsupported hook
// types, and wildcard matchers are refused.
func TestLoadSettingsRejections(t *testing.T) {
	cases := map[string]string{
		"unknown event": `{"OnBoot": [{"matcher": "", "hooks": [{"type": "command", "command": "x"}]}]}`,
		"bad hook type": `{"PreToolUse": [{"matcher": "", "hooks": [{"type": "script", "command": "x"}]}]}`,
		"wildcard":      `{"PreToolUse": [{"matcher": "*", "hooks": [{"type": "command", "command": "x"}]}]}`,
		"malformed":     `{broken`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			p := NewPipeline(nil, nil, nil)
			assert.Error(t, LoadSettings(writeSettings(t, content), p))
		})
	}
}
