// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"context"
	"fmt"
	"sync"
)

// FakeProvider is a scripted Provider for tests and dry runs. Responses are
// consumed in order; when the script runs out, the last response repeats.
type FakeProvider struct {
	mu        sync.Mutex
	model     string
	responses []*Response
	index     int
	// Invocations records every envelope received, in order.
	Invocations []*Envelope
}

// NewFakeProvider creates a scripted provider.
func NewFakeProvider(model string, responses ...*Response) *FakeProvider {
	if model == "" {
		model = "fake-model"
	}
	return &FakeProvider{model: model, responses: responses}
}

// Name returns the provider name.
func (f *FakeProvider) Name() string { return "fake" }

// Model returns the default model identifier.
func (f *FakeProvider) Model() string { return f.model }

// Invoke returns the next scripted response.
func (f *FakeProvider) Invoke(ctx context.Context, env *Envelope) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Invocations = append(f.Invocations, env)
	if len(f.responses) == 0 {
		return nil, fmt.Errorf("fake provider has no scripted responses")
	}
	resp := f.responses[f.index]
	if f.index < len(f.responses)-1 {
		f.index++
	}
	return resp, nil
}
