// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package safety authorizes shell commands before execution. A registry
// maps command names to validators; unknown commands default-allow while
// known dangerous commands are strictly validated. Shell invocations with
// -c are recursively re-validated through the same registry.
//
// Validators are pure functions: no I/O, no network, and well under the
// 10ms budget per validation.
package safety

import (
	"strings"
)

// Command is a parsed command line.
type Command struct {
	Name        string
	Args        []string
	FullCommand string
}

// Verdict is the result of validating one command.
type Verdict struct {
	Valid bool
	Error string
}

func allow() Verdict {
	return Verdict{Valid: true}
}

func block(reason string) Verdict {
	return Verdict{Valid: false, Error: reason}
}

// Validator authorizes a single parsed command.
type Validator func(cmd Command, reg *Registry) Verdict

// Registry maps command names to validators.
type Registry struct {
	validators map[string]Validator
	// criticalPaths are filesystem roots destructive commands may not touch.
	criticalPaths []string
	// allowedDomains is the curl/wget domain allowlist (package registries).
	allowedDomains []string
}

// NewRegistry creates a registry with the default validator set.
func NewRegistry() *Registry {
	r := &Registry{
		validators: make(map[string]Validator),
		criticalPaths: []string{
			"/", "/home", "/etc", "/usr", "/var", "/boot", "/bin", "/sbin", "/lib",
		},
		allowedDomains: []string{
			"registry.npmjs.org", "pypi.org", "files.pythonhosted.org",
			"proxy.golang.org", "crates.io", "static.crates.io", "rubygems.org",
		},
	}
	r.registerDefaults()
	return r
}

// Register installs a validator for a command name.
func (r *Registry) Register(name string, v Validator) {
	r.validators[name] = v
}

// SetCriticalPaths replaces the protected filesystem roots.
func (r *Registry) SetCriticalPaths(paths []string) {
	r.criticalPaths = paths
}

// Validate authorizes a full command line. Unknown commands are allowed.
func (r *Registry) Validate(fullCommand string) Verdict {
	cmd, ok := parseCommand(fullCommand)
	if !ok {
		return allow() // empty command, nothing to do
	}
	if v, found := r.validators[cmd.Name]; found {
		return v(cmd, r)
	}
	return allow()
}

// parseCommand splits a command line into name and args. Quoting is
// respected so that `bash -c "rm -rf /"` yields the inner string as one arg.
func parseCommand(line string) (Command, bool) {
	fields := splitQuoted(line)
	if len(fields) == 0 {
		return Command{}, false
	}
	name := fields[0]
	// Strip a leading path: /usr/bin/rm validates as rm.
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return Command{Name: name, Args: fields[1:], FullCommand: line}, true
}

// splitQuoted splits on whitespace honoring single and double quotes.
func splitQuoted(s string) []string {
	var fields []string
	var cur strings.Builder
	var quote rune
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return fields
}
