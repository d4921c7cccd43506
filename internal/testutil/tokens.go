package testutil

import (
	"fmt"
	"sync"
)

// SequentialTokens generates call tokens "<prefix>-1", "<prefix>-2", ...
//
// The same scenario run with a fresh SequentialTokens produces
// byte-identical journals, which golden trace comparison relies on.
// Implements host.TokenGenerator.
type SequentialTokens struct {
	prefix string
	clock  *DeterministicClock
}

// NewSequentialTokens creates a generator. An empty prefix becomes "call".
func NewSequentialTokens(prefix string) *SequentialTokens {
	if prefix == "" {
		prefix = "call"
	}
	return &SequentialTokens{prefix: prefix, clock: NewDeterministicClock()}
}

// Generate returns the next token.
func (g *SequentialTokens) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.clock.Next())
}

// Reset restarts numbering at 1.
func (g *SequentialTokens) Reset() {
	g.clock.Reset()
}

// FixedTokens returns predetermined tokens in order.
//
// Generate panics once every token has been consumed, which catches a test
// that makes more calls than it declared.
type FixedTokens struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedTokens creates a generator that returns tokens in order.
func NewFixedTokens(tokens ...string) *FixedTokens {
	return &FixedTokens{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedTokens: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
