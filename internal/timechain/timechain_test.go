package timechain

import (
	"testing"

	"github.com/chainforge/core/internal/bigint"
	"github.com/chainforge/core/internal/chainparams"
	"github.com/chainforge/core/internal/target"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

func header(prev chainhash.Hash, ts uint32) chainparams.BlockHeader {
	return chainparams.BlockHeader{
		Version:    2,
		PrevHash:   prev,
		MerkleRoot: chainhash.Hash{1},
		Timestamp:  ts,
		Bits:       target.CompactTarget(0x207fffff),
		Nonce:      0,
	}
}

func extend(t *testing.T, parent chainparams.HeaderContext, seed byte, ts uint32) chainparams.HeaderContext {
	t.Helper()
	h := header(parent.Hash, ts)
	hash := chainhash.Hash{seed}
	return chainparams.Extend(parent, h, hash)
}

// Scenario 1: genesis round-trip.
func TestGenesisRoundTrip(t *testing.T) {
	genesis := chainparams.NewGenesisContext(chainparams.GenesisHeader, chainparams.GenesisHash)
	tc := New(genesis, 2000, 288)

	pos, tip := tc.HeaviestTip()
	require.Equal(t, int32(0), pos.Height)
	require.Equal(t, chainparams.GenesisHash, tip.Hash)
	require.Equal(t, target.Work(chainparams.GenesisHeader.Bits.Expand()), tip.TotalWork)
}

// Scenario 2: linear extension.
func TestLinearExtension(t *testing.T) {
	genesis := chainparams.NewGenesisContext(chainparams.GenesisHeader, chainparams.GenesisHash)
	tc := New(genesis, 2000, 288)

	parent := genesis
	for i := byte(1); i <= 5; i++ {
		ctx := extend(t, parent, i, uint32(1231006505)+uint32(i)*600)
		pos, _ := tc.HeaviestTip()
		_, err := tc.Add(ctx, pos)
		require.NoError(t, err)
		parent = ctx
	}

	require.Equal(t, 6, tc.chain.Len())
	tip, _ := tc.HeaviestTip()
	ancestor, ok := tc.GetAncestorAtHeight(tip, 2)
	require.True(t, ok)
	require.Equal(t, chainhash.Hash{2}, ancestor.Hash)
}

// Scenario 3: minor reorg. Chain [g, A, B, C]; add a sibling
// B' -> C' -> D' whose cumulative work exceeds [A,B,C].
func TestMinorReorg(t *testing.T) {
	genesis := chainparams.NewGenesisContext(chainparams.GenesisHeader, chainparams.GenesisHash)
	tc := New(genesis, 2000, 288)

	a := extend(t, genesis, 0xA, 1231007000)
	posG, _ := tc.HeaviestTip()
	_, err := tc.Add(a, posG)
	require.NoError(t, err)

	b := extend(t, a, 0xB, 1231007600)
	posA, _ := tc.HeaviestTip()
	_, err = tc.Add(b, posA)
	require.NoError(t, err)

	c := extend(t, b, 0xC, 1231008200)
	posB, _ := tc.HeaviestTip()
	_, err = tc.Add(c, posB)
	require.NoError(t, err)

	require.Equal(t, 4, tc.chain.Len())

	// Competing branch off A: B' -> C' -> D', each header identical in
	// difficulty so three headers' work strictly exceeds two (B, C).
	posAAgain, ok := tc.Locate(a.Hash)
	require.True(t, ok)

	bPrime := extend(t, a, 0xB1, 1231007700)
	_, err = tc.Add(bPrime, posAAgain)
	require.NoError(t, err)

	posBPrime, ok := tc.Locate(bPrime.Hash)
	require.True(t, ok)
	cPrime := extend(t, bPrime, 0xC1, 1231008300)
	_, err = tc.Add(cPrime, posBPrime)
	require.NoError(t, err)

	posCPrime, ok := tc.Locate(cPrime.Hash)
	require.True(t, ok)
	dPrime := extend(t, cPrime, 0xD1, 1231008900)
	_, err = tc.Add(dPrime, posCPrime)
	require.NoError(t, err)

	tip, tipCtx := tc.HeaviestTip()
	require.Equal(t, dPrime.Hash, tipCtx.Hash)
	require.Equal(t, int32(4), tip.Height)

	// B (displaced) now lives in the tree.
	_, found := tc.Find(b.Hash)
	require.True(t, found)

	// total_work == sum(local) of new chain.
	expected := genesis.LocalWork
	for _, ctx := range []chainparams.HeaderContext{a, bPrime, cPrime, dPrime} {
		expected, _ = expected.Add(ctx.LocalWork)
	}
	require.Equal(t, expected, tipCtx.TotalWork)
}

func TestChainLinkageInvariant(t *testing.T) {
	genesis := chainparams.NewGenesisContext(chainparams.GenesisHeader, chainparams.GenesisHash)
	tc := New(genesis, 2000, 288)
	parent := genesis
	for i := byte(1); i <= 3; i++ {
		ctx := extend(t, parent, i, uint32(1231006505)+uint32(i)*600)
		pos, _ := tc.HeaviestTip()
		_, err := tc.Add(ctx, pos)
		require.NoError(t, err)
		parent = ctx
	}
	for h := 0; h < tc.chain.Len()-1; h++ {
		cur, _ := tc.chain.At(int32(h))
		next, _ := tc.chain.At(int32(h + 1))
		require.Equal(t, cur.Hash, next.Header.PrevHash)
	}
}

func TestAddTotalWorkInvariant(t *testing.T) {
	genesis := chainparams.NewGenesisContext(chainparams.GenesisHeader, chainparams.GenesisHash)
	tc := New(genesis, 2000, 288)
	a := extend(t, genesis, 1, 1231007000)
	posG, _ := tc.HeaviestTip()
	_, err := tc.Add(a, posG)
	require.NoError(t, err)
	_, tip := tc.HeaviestTip()
	var zero bigint.Uint256
	require.NotEqual(t, zero, tip.TotalWork)
}
