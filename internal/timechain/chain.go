// Package timechain implements the header timechain of spec.md §4.2:
// an append-only main-chain array plus a bounded forest of competing
// tree branches, with reorg promotion when a branch's total work
// overtakes the chain tip. Grounded on the teacher's
// services/legacy/blockchain/chain.go BlockLocator ancestor-walk idiom
// and teranode's handle/ID-over-pointer convention (model/Block.go
// uses uint32 block IDs rather than pointers throughout its store
// layer) — the tree below follows the same pattern with a growable
// arena of nodes and stable handles rather than raw pointers, per
// spec.md §9's "Cyclic/tree graphs in reorg" design note.
package timechain

import (
	"github.com/chainforge/core/internal/chainparams"
	"github.com/libsv/go-bt/v2/chainhash"
)

// Chain is the ordered sequence of headers keyed by height, plus the
// cumulative work at the tip (spec.md §3 "HeaderChain").
type Chain struct {
	headers []chainparams.HeaderContext
	hashIdx map[chainhash.Hash]int32
}

// NewChain builds a chain containing only genesis.
func NewChain(genesis chainparams.HeaderContext) *Chain {
	c := &Chain{
		headers: []chainparams.HeaderContext{genesis},
		hashIdx: map[chainhash.Hash]int32{genesis.Hash: 0},
	}
	return c
}

// HeightOf returns the chain height of hash, the "find_or_chain_lookup"
// helper spec.md §4.3 names.
func (c *Chain) HeightOf(hash chainhash.Hash) (int32, bool) {
	h, ok := c.hashIdx[hash]
	return h, ok
}

// Len returns the number of headers in the chain (height + 1 of the tip).
func (c *Chain) Len() int { return len(c.headers) }

// Tip returns the chain's tip context.
func (c *Chain) Tip() chainparams.HeaderContext {
	return c.headers[len(c.headers)-1]
}

// At returns the header context recorded at height.
func (c *Chain) At(height int32) (chainparams.HeaderContext, bool) {
	if height < 0 || int(height) >= len(c.headers) {
		return chainparams.HeaderContext{}, false
	}
	return c.headers[height], true
}

// Push appends ctx as the new tip. Callers must ensure ctx.Header.PrevHash
// equals the current tip's hash (spec.md §3 HeaderChain invariant).
func (c *Chain) Push(ctx chainparams.HeaderContext) {
	c.headers = append(c.headers, ctx)
	c.hashIdx[ctx.Hash] = int32(len(c.headers) - 1)
}

// Truncate shortens the chain to length n (spec.md §4.2 reorg step 3).
func (c *Chain) Truncate(n int) {
	for i := n; i < len(c.headers); i++ {
		delete(c.hashIdx, c.headers[i].Hash)
	}
	c.headers = c.headers[:n]
}

// TimestampAt returns the timestamp recorded at height.
func (c *Chain) TimestampAt(height int32) (uint32, bool) {
	ctx, ok := c.At(height)
	if !ok {
		return 0, false
	}
	return ctx.Header.Timestamp, true
}

// LastNTimestamps returns up to the last n timestamps ending at
// (and including) the current tip, oldest-to-newest.
func (c *Chain) LastNTimestamps(n int) []uint32 {
	start := len(c.headers) - n
	if start < 0 {
		start = 0
	}
	out := make([]uint32, 0, len(c.headers)-start)
	for i := start; i < len(c.headers); i++ {
		out = append(out, c.headers[i].Header.Timestamp)
	}
	return out
}

// HashAt returns the hash recorded at height.
func (c *Chain) HashAt(height int32) (chainhash.Hash, bool) {
	ctx, ok := c.At(height)
	if !ok {
		return chainhash.Hash{}, false
	}
	return ctx.Hash, true
}
