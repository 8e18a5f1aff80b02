// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package party

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/state"
)

// Session limits.
const (
	MaxRounds          = 10
	ContextWarnTokens  = 100_000
	ContextHardTokens  = 150_000
	DefaultRoundBudget = 2 * time.Minute
)

var (
	ErrRoundCapReached  = errors.New("party session reached round cap")
	ErrContextTooLarge  = errors.New("party context exceeds hard token cap")
	ErrChainBroken      = errors.New("party response chain broken")
	ErrIdentityMismatch = errors.New("agent identity hash mismatch")
)

// AgentResponse is one agent's contribution to a round.
type AgentResponse struct {
	AgentID      string
	IdentityHash string
	Content      string
	Timestamp    string
}

// Invoker produces an agent's response given its isolated context. The
// default invoker goes through an llm.Provider; tests script it.
type Invoker func(ctx context.Context, member *Member, isolated map[string]interface{}) (*AgentResponse, error)

// Coordinator runs one party session.
type Coordinator struct {
	SessionID string

	team    *Team
	chain   *Chain
	invoker Invoker
	store   *state.Store
	tracer  observability.Tracer
	logger  *zap.Logger

	roundBudget time.Duration
	rounds      int
	sharedCtx   map[string]interface{}
	mu          sync.Mutex
}

// Config configures a coordinator.
type Config struct {
	Team        *Team
	Invoker     Invoker
	Store       *state.Store
	Tracer      observability.Tracer
	Logger      *zap.Logger
	RoundBudget time.Duration
	SharedCtx   map[string]interface{}
}

// NewCoordinator creates a session coordinator and audits the session
// start.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Team == nil || len(cfg.Team.Members) == 0 {
		return nil, fmt.Errorf("party session needs a team")
	}
	if len(cfg.Team.Members) > MaxAgents {
		return nil, fmt.Errorf("%w: %d members", ErrTooManyAgents, len(cfg.Team.Members))
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.RoundBudget == 0 {
		cfg.RoundBudget = DefaultRoundBudget
	}
	if cfg.SharedCtx == nil {
		cfg.SharedCtx = map[string]interface{}{}
	}

	c := &Coordinator{
		SessionID:   "party-" + uuid.NewString()[:8],
		team:        cfg.Team,
		chain:       NewChain(),
		invoker:     cfg.Invoker,
		store:       cfg.Store,
		tracer:      cfg.Tracer,
		logger:      cfg.Logger.With(zap.String("component", "party")),
		roundBudget: cfg.RoundBudget,
		sharedCtx:   cfg.SharedCtx,
	}
	c.audit("decision", "session start", false)
	return c, nil
}

// NewProviderInvoker builds the default invoker over an LLM provider. The
// response timestamp is fixed at receipt so chain hashes are stable.
func NewProviderInvoker(provider llm.Provider) Invoker {
	return func(ctx context.Context, member *Member, isolated map[string]interface{}) (*AgentResponse, error) {
		contextJSON, err := json.Marshal(isolated)
		if err != nil {
			return nil, err
		}
		resp, err := provider.Invoke(ctx, &llm.Envelope{
			Model:  member.Model,
			System: fmt.Sprintf("You are %s (%s) in a structured debate.", member.DisplayName, member.Role),
			Messages: []llm.Message{{
				Role:    "user",
				Content: "Debate context:\n" + string(contextJSON),
			}},
		})
		if err != nil {
			return nil, err
		}
		return &AgentResponse{
			AgentID:      member.AgentID,
			IdentityHash: member.IdentityHash,
			Content:      resp.Content,
			Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		}, nil
	}
}

// countTokens estimates the token size of the shared context. The encoder
// load can fail offline; fall back to a bytes/4 estimate rather than
// refusing to run.
func countTokens(ctx map[string]interface{}) int {
	data, err := json.Marshal(ctx)
	if err != nil {
		return 0
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return len(data) / 4
	}
	return len(enc.Encode(string(data), nil, nil))
}

// Rounds returns the number of completed rounds.
func (c *Coordinator) Rounds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rounds
}

// Chain returns the session's response chain entries.
func (c *Coordinator) Chain() []ChainEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chain.Entries()
}

// RunRound executes one debate round: rate limits, chain verification,
// isolation, parallel invocation, identity checks, deterministic chain
// append, consensus aggregation.
func (c *Coordinator) RunRound(ctx context.Context, topic string) (*RoundConsensus, error) {
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanPartyRound)
	defer c.tracer.EndSpan(span)
	span.SetAttribute("party.session_id", c.SessionID)

	c.mu.Lock()
	if c.rounds >= MaxRounds {
		c.mu.Unlock()
		return nil, ErrRoundCapReached
	}
	round := c.rounds + 1
	members := c.team.Members
	if len(members) > MaxAgents {
		members = members[:MaxAgents]
	}
	c.sharedCtx["topic"] = topic
	prior := c.chain.Entries()
	c.mu.Unlock()
	span.SetAttribute("party.round", round)

	// The chain must be intact before any new responses are accepted.
	if v := VerifyResponseChain(prior); !v.Valid {
		c.audit("security", fmt.Sprintf("chain broken at index %d", v.TamperedAt), true)
		return nil, fmt.Errorf("%w at index %d", ErrChainBroken, v.TamperedAt)
	}

	tokens := countTokens(c.sharedCtx)
	if tokens > ContextHardTokens {
		return nil, fmt.Errorf("%w: %d tokens", ErrContextTooLarge, tokens)
	}
	if tokens > ContextWarnTokens {
		c.logger.Warn("party context near token cap, consider summarizing",
			zap.Int("tokens", tokens), zap.Int("cap", ContextHardTokens))
	}

	// Invoke all agents in parallel on isolated contexts. Agents that miss
	// the round deadline are absent, not fatal.
	responses := make([]*AgentResponse, len(members))
	roundCtx, cancel := context.WithTimeout(ctx, c.roundBudget)
	defer cancel()
	group, groupCtx := errgroup.WithContext(roundCtx)
	for i := range members {
		i := i
		member := &members[i]
		group.Go(func() error {
			isolated := IsolateContext(c.sharedCtx, prior, c.team, member.AgentID)
			if err := CheckIsolation(isolated); err != nil {
				c.audit("security", "isolation violation: "+err.Error(), true)
				return err
			}
			resp, err := c.invoker(groupCtx, member, isolated)
			if err != nil {
				c.logger.Warn("agent absent from round",
					zap.String("agent", member.AgentID), zap.Error(err))
				return nil
			}
			responses[i] = resp
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Deterministic append order: by agentId, then arrival order.
	var accepted []*AgentResponse
	for _, resp := range responses {
		if resp == nil {
			continue
		}
		member, ok := c.team.Member(resp.AgentID)
		if !ok || resp.IdentityHash != member.IdentityHash {
			c.audit("security",
				fmt.Sprintf("identity mismatch for %s", resp.AgentID), true)
			c.logger.Error("rejecting response with identity mismatch",
				zap.String("agent", resp.AgentID))
			continue
		}
		accepted = append(accepted, resp)
	}
	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].AgentID < accepted[j].AgentID
	})

	c.mu.Lock()
	var roundEntries []ChainEntry
	for _, resp := range accepted {
		hash := c.chain.Append(resp.AgentID, resp.Content, resp.Timestamp)
		roundEntries = append(roundEntries, ChainEntry{
			AgentID: resp.AgentID, Content: resp.Content,
			Timestamp: resp.Timestamp, Hash: hash,
		})
		c.audit("decision", "response "+hash, false) // hash only, never the body
	}
	c.rounds = round
	c.mu.Unlock()

	consensus := Aggregate(c.team, roundEntries)
	span.SetAttribute("party.consensus", consensus.State)
	span.SetAttribute(observability.AttrResultStatus, consensus.State)
	c.logger.Info("party round complete",
		zap.Int("round", round),
		zap.Int("responses", len(roundEntries)),
		zap.String("consensus", consensus.State),
		zap.Float64("agreement", consensus.AgreementScore))
	return &consensus, nil
}

// Run debates the topic until strong consensus or the round cap. A broken
// chain terminates the session immediately with evidence preserved.
func (c *Coordinator) Run(ctx context.Context, topic string) (*RoundConsensus, error) {
	var last *RoundConsensus
	for {
		consensus, err := c.RunRound(ctx, topic)
		if err != nil {
			if errors.Is(err, ErrRoundCapReached) {
				c.Close()
				return last, nil
			}
			c.Close()
			return last, err
		}
		last = consensus
		if consensus.State != ConsensusNone {
			c.Close()
			return last, nil
		}
	}
}

// Close audits the session end.
func (c *Coordinator) Close() {
	c.audit("decision", "session end", false)
}

func (c *Coordinator) audit(kind, reason string, critical bool) {
	if c.store == nil {
		return
	}
	rec := state.AuditRecord{
		Kind:     kind,
		Tool:     "party_mode",
		Reason:   reason,
		RunID:    c.SessionID,
		Critical: critical,
	}
	if err := c.store.Audit(rec); err != nil {
		c.logger.Warn("failed to audit party event", zap.Error(err))
	}
}
