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

// RunHookMain is the entry point for standalone hook executables. It
// implements the full contract so hook authors only supply a handler:
//
//   - recursion guard: exits 0 immediately when the guard variable is set
//   - input parsing: argv JSON blob or stdin with timeout
//   - hard timeout: a timer armed at startup force-exits on expiry
//   - exit codes: 0 allow, 2 block, 1 error (security hooks map errors to 2)
func RunHookMain(name string, security bool, handler HandlerFunc) {
	guard := fmt.Sprintf("WEFT_%s_EXECUTING",
		strings.ToUpper(strings.ReplaceAll(name, "-", "_")))
	if os.Getenv(guard) == "true" {
		os.Exit(ExitAllow)
	}
	os.Setenv(guard, "true")

	// Last-resort timeout (layer 4): force exit regardless of handler state.
	timer := time.AfterFunc(DefaultTimeout, func() {
		fmt.Fprintf(os.Stderr, "hook %s: hard timeout\n", name)
		if security {
			os.Exit(ExitBlock)
		}
		os.Exit(ExitError)
	})
	defer timer.Stop()

	env, err := ParseEnvelope(os.Args[1:], os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hook %s: %v\n", name, err)
		if security {
			os.Exit(ExitBlock) // fail closed on malformed/missing input
		}
		os.Exit(ExitAllow)
	}

	decision, err := handler(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hook %s: %v\n", name, err)
		if security {
			os.Exit(ExitBlock)
		}
		os.Exit(ExitAllow)
	}
	if decision == nil {
		os.Exit(ExitAllow)
	}

	out, _ := json.Marshal(decision)
	fmt.Println(string(out))
	if decision.Decision == DecisionBlock {
		os.Exit(ExitBlock)
	}
	os.Exit(ExitAllow)
}
