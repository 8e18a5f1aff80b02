// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package party

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenesisHash seeds the response chain.
const GenesisHash = "0"

// ChainEntry is one link in the tamper-evident response chain.
type ChainEntry struct {
	AgentID   string `json:"agent_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Hash      string `json:"hash"`
}

// ChainVerification is the result of verifying a chain.
type ChainVerification struct {
	Valid      bool `json:"valid"`
	TamperedAt int  `json:"tampered_at"` // index of the first broken link, -1 when valid
}

// chainHash links one response to its predecessor:
// SHA-256(prev ":" agentID ":" content ":" timestamp), truncated to 16 hex
// characters.
func chainHash(prev, agentID, content, timestamp string) string {
	h := sha256.Sum256([]byte(prev + ":" + agentID + ":" + content + ":" + timestamp))
	return hex.EncodeToString(h[:])[:16]
}

// Chain is an append-only response chain.
type Chain struct {
	entries  []ChainEntry
	lastHash string
}

// NewChain creates an empty chain seeded with the genesis hash.
func NewChain() *Chain {
	return &Chain{lastHash: GenesisHash}
}

// Append links a response onto the chain and returns its hash.
func (c *Chain) Append(agentID, content, timestamp string) string {
	hash := chainHash(c.lastHash, agentID, content, timestamp)
	c.entries = append(c.entries, ChainEntry{
		AgentID:   agentID,
		Content:   content,
		Timestamp: timestamp,
		Hash:      hash,
	})
	c.lastHash = hash
	return hash
}

// Entries returns a copy of the chain.
func (c *Chain) Entries() []ChainEntry {
	return append([]ChainEntry(nil), c.entries...)
}

// Len returns the chain length.
func (c *Chain) Len() int { return len(c.entries) }

// LastHash returns the hash of the newest link, or the genesis hash.
func (c *Chain) LastHash() string { return c.lastHash }

// VerifyResponseChain recomputes every hash in order. The first mismatch
// breaks the chain at that index; everything after it is untrusted.
func VerifyResponseChain(entries []ChainEntry) ChainVerification {
	prev := GenesisHash
	for i, entry := range entries {
		expected := chainHash(prev, entry.AgentID, entry.Content, entry.Timestamp)
		if entry.Hash != expected {
			return ChainVerification{Valid: false, TamperedAt: i}
		}
		prev = entry.Hash
	}
	return ChainVerification{Valid: true, TamperedAt: -1}
}

// Verify checks the chain's own entries.
func (c *Chain) Verify() ChainVerification {
	return VerifyResponseChain(c.entries)
}

// String renders a short chain summary for logs.
func (c *Chain) String() string {
	return fmt.Sprintf("chain(len=%d, last=%s)", len(c.entries), c.lastHash)
}
