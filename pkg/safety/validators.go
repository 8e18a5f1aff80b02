// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package safety

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

func (r *Registry) registerDefaults() {
	for _, sh := range []string{"bash", "sh", "zsh"} {
		r.Register(sh, validateShell)
	}
	r.Register("rm", validateRm)
	r.Register("chmod", validateChmod)
	for _, k := range []string{"kill", "pkill", "killall"} {
		r.Register(k, validateKill)
	}
	r.Register("git", validateGit)
	for _, db := range []string{"psql", "mysql", "redis-cli", "mongosh"} {
		r.Register(db, validateDB)
	}
	r.Register("curl", validateHTTPFetch)
	r.Register("wget", validateHTTPFetch)
	for _, banned := range []string{"nc", "netcat", "ssh", "scp", "sudo"} {
		name := banned
		r.Register(name, func(cmd Command, _ *Registry) Verdict {
			return block(fmt.Sprintf("command %q is not permitted", name))
		})
	}
	r.Register("rsync", validateRsync)
}

// validateShell extracts the inner command from `-c "INNER"` and recursively
// re-validates it through the registry. Dynamic execution over untrusted
// input (eval) is blocked outright.
func validateShell(cmd Command, reg *Registry) Verdict {
	for i, arg := range cmd.Args {
		if arg != "-c" {
			continue
		}
		if i+1 >= len(cmd.Args) {
			return block("shell -c without a command")
		}
		inner := cmd.Args[i+1]
		if containsDynamicExec(inner) {
			return block("dynamic execution (eval) in shell command")
		}
		// Re-validate every segment of compound inner commands.
		for _, segment := range splitCompound(inner) {
			if verdict := reg.Validate(segment); !verdict.Valid {
				return block(fmt.Sprintf("Inner command blocked: %s", verdict.Error))
			}
		}
		return allow()
	}
	if containsDynamicExec(cmd.FullCommand) {
		return block("dynamic execution (eval) in shell command")
	}
	return allow()
}

func containsDynamicExec(s string) bool {
	for _, tok := range splitQuoted(s) {
		if tok == "eval" || strings.HasPrefix(tok, "eval;") {
			return true
		}
	}
	return false
}

// splitCompound splits an inner shell string on &&, ||, ; and | so each
// piece is validated independently.
func splitCompound(s string) []string {
	repl := strings.NewReplacer("&&", "\n", "||", "\n", ";", "\n", "|", "\n")
	var out []string
	for _, part := range strings.Split(repl.Replace(s), "\n") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validateRm blocks destructive removals against critical paths.
func validateRm(cmd Command, reg *Registry) Verdict {
	recursive := false
	force := false
	var targets []string
	for _, arg := range cmd.Args {
		if strings.HasPrefix(arg, "-") {
			if strings.Contains(arg, "r") || strings.Contains(arg, "R") {
				recursive = true
			}
			if strings.Contains(arg, "f") {
				force = true
			}
			continue
		}
		targets = append(targets, arg)
	}
	for _, target := range targets {
		clean := filepath.Clean(target)
		for _, critical := range reg.criticalPaths {
			if clean == critical || clean == critical+"/" {
				return block(fmt.Sprintf("rm against critical path %q", target))
			}
		}
		if (recursive || force) && (clean == "/" || clean == "~" || clean == "*") {
			return block(fmt.Sprintf("destructive rm against %q", target))
		}
	}
	return allow()
}

// validateChmod blocks world-writable permission changes.
func validateChmod(cmd Command, reg *Registry) Verdict {
	for _, arg := range cmd.Args {
		if arg == "777" || arg == "a+w" || arg == "o+w" {
			return block(fmt.Sprintf("world-writable chmod %q", arg))
		}
	}
	for _, arg := range cmd.Args {
		if !strings.HasPrefix(arg, "-") {
			clean := filepath.Clean(arg)
			for _, critical := range reg.criticalPaths {
				if clean == critical {
					return block(fmt.Sprintf("chmod against critical path %q", arg))
				}
			}
		}
	}
	return allow()
}

// validateKill blocks mass-kill signals.
func validateKill(cmd Command, _ *Registry) Verdict {
	for _, arg := range cmd.Args {
		if arg == "-1" {
			return block("signal to PID -1 (mass kill)")
		}
	}
	if cmd.Name == "killall" {
		for _, arg := range cmd.Args {
			if arg == "-u" || arg == "*" {
				return block("killall across all users")
			}
		}
	}
	return allow()
}

// validateGit blocks credential-storage configs and history-rewriting pushes.
func validateGit(cmd Command, _ *Registry) Verdict {
	joined := strings.Join(cmd.Args, " ")
	if strings.Contains(joined, "credential.helper") && strings.Contains(joined, "store") {
		return block("git credential store configuration")
	}
	if len(cmd.Args) > 0 && cmd.Args[0] == "push" {
		for _, arg := range cmd.Args[1:] {
			if arg == "--force" || arg == "-f" || arg == "--mirror" {
				return block("history-rewriting git push")
			}
		}
	}
	return allow()
}

// validateDB blocks database/user drops and global flushes.
func validateDB(cmd Command, _ *Registry) Verdict {
	joined := strings.ToLower(cmd.FullCommand)
	for _, pat := range []string{
		"drop database", "drop user", "drop schema",
		"flushall", "flushdb", "dropdatabase()",
	} {
		if strings.Contains(joined, pat) {
			return block(fmt.Sprintf("destructive database operation %q", pat))
		}
	}
	return allow()
}

// validateHTTPFetch allows only an explicit domain allowlist and blocks
// pipes into a shell.
func validateHTTPFetch(cmd Command, reg *Registry) Verdict {
	if strings.Contains(cmd.FullCommand, "| sh") || strings.Contains(cmd.FullCommand, "| bash") ||
		strings.Contains(cmd.FullCommand, "|sh") || strings.Contains(cmd.FullCommand, "|bash") {
		return block("piping download into a shell")
	}
	for _, arg := range cmd.Args {
		if !strings.HasPrefix(arg, "http://") && !strings.HasPrefix(arg, "https://") {
			continue
		}
		u, err := url.Parse(arg)
		if err != nil {
			return block(fmt.Sprintf("unparseable URL %q", arg))
		}
		host := u.Hostname()
		allowed := false
		for _, domain := range reg.allowedDomains {
			if host == domain || strings.HasSuffix(host, "."+domain) {
				allowed = true
				break
			}
		}
		if !allowed {
			return block(fmt.Sprintf("domain %q not in allowlist", host))
		}
	}
	return allow()
}

// validateRsync allows local-only syncs; remote destinations are blocked.
func validateRsync(cmd Command, _ *Registry) Verdict {
	for _, arg := range cmd.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		// host:path or rsync:// forms indicate a remote endpoint.
		if strings.Contains(arg, "rsync://") || (strings.Contains(arg, ":") && !strings.HasPrefix(arg, "/") && !strings.HasPrefix(arg, "./")) {
			return block(fmt.Sprintf("remote rsync destination %q", arg))
		}
	}
	return allow()
}
