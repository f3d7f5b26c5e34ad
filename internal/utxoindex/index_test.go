package utxoindex

import (
	"testing"

	"github.com/chainforge/core/internal/ulogger"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

func testAges() []AgeSpec {
	return []AgeSpec{
		{Mutable: true, DirBits: 8, FanIn: 8},
		{Mutable: true, DirBits: 8, FanIn: 8},
		{Mutable: true, DirBits: 8, FanIn: 8},
		{Mutable: false, DirBits: 10, FanIn: 8},
		{Mutable: false, DirBits: 12, FanIn: 8},
		{Mutable: false, DirBits: 13, FanIn: 8},
		{Mutable: false, DirBits: 15, FanIn: 8},
		{Mutable: false, DirBits: 16, FanIn: 8},
	}
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	return New(4, testAges(), ulogger.New("utxoindex-test"))
}

func key(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	h[31] = b
	return h
}

func TestAppendAndQueryRoundTrip(t *testing.T) {
	idx := newTestIndex(t)
	k := key(1)

	err := idx.Append(1, []Entry{{Key: k, Height: 1, Op: OpAdd, Rid: 42}})
	require.NoError(t, err)

	result, err := idx.Query(0, 2, []chainhash.Hash{k})
	require.NoError(t, err)
	require.Equal(t, uint64(42), result[k])
}

func TestQueryWindowExcludesOutOfRangeEntry(t *testing.T) {
	idx := newTestIndex(t)
	k := key(2)

	require.NoError(t, idx.Append(5, []Entry{{Key: k, Height: 5, Op: OpAdd, Rid: 7}}))

	result, err := idx.Query(0, 3, []chainhash.Hash{k})
	require.NoError(t, err)
	_, found := result[k]
	require.False(t, found)
}

func TestQueryReturnsNothingForDeleteOnly(t *testing.T) {
	idx := newTestIndex(t)
	k := key(3)

	require.NoError(t, idx.Append(1, []Entry{{Key: k, Height: 1, Op: OpDelete, Rid: 0}}))

	result, err := idx.Query(0, 2, []chainhash.Hash{k})
	require.NoError(t, err)
	_, found := result[k]
	require.False(t, found)
}

func TestEraseSinceDropsWholeRunsAtOrAboveHeight(t *testing.T) {
	idx := newTestIndex(t)
	kLow := key(4)
	kHigh := key(5)

	require.NoError(t, idx.Append(1, []Entry{{Key: kLow, Height: 1, Op: OpAdd, Rid: 1}}))
	require.NoError(t, idx.Append(2, []Entry{{Key: kHigh, Height: 2, Op: OpAdd, Rid: 2}}))

	idx.EraseSince(2)

	result, err := idx.Query(0, 3, []chainhash.Hash{kLow, kHigh})
	require.NoError(t, err)
	require.Equal(t, uint64(1), result[kLow])
	_, found := result[kHigh]
	require.False(t, found)
}

func TestEraseSinceLeavesImmutableAgesAlone(t *testing.T) {
	idx := newTestIndex(t)
	k := key(6)

	shard := idx.shards[idx.shardIndexOf(k)]
	immutable := shard.ages[3]
	immutable.addRun(newRun([]Entry{{Key: k, Height: 9, Op: OpAdd, Rid: 99}}, heightRange{9, 10}, immutable.dirBits))

	idx.EraseSince(0)

	require.Len(t, immutable.snapshot(), 1)
}

func TestMergeRunsCancelsAdjacentAddDelete(t *testing.T) {
	k := key(7)
	other := key(8)

	r1 := newRun([]Entry{{Key: k, Height: 1, Op: OpAdd, Rid: 5}, {Key: other, Height: 1, Op: OpAdd, Rid: 6}}, heightRange{1, 2}, 8)
	r2 := newRun([]Entry{{Key: k, Height: 2, Op: OpDelete}}, heightRange{2, 3}, 8)

	merged := mergeRuns([]*Run{r1, r2}, 8)

	_, found := merged.lookup(k)
	require.False(t, found, "Add/Delete pair for the same key must cancel")

	otherEntry, found := merged.lookup(other)
	require.True(t, found)
	require.Equal(t, uint64(6), otherEntry.Rid)
	require.Equal(t, int32(1), merged.heights.begin)
	require.Equal(t, int32(3), merged.heights.end)
}

func TestCompactorMergeMovesRunsToNextAge(t *testing.T) {
	idx := newTestIndex(t)
	shard := idx.shards[0]
	src := shard.ages[0]
	dst := shard.ages[1]

	runs := make([]*Run, 0, src.fanIn)
	for i := 0; i < src.fanIn; i++ {
		k := key(byte(i + 10))
		runs = append(runs, newRun([]Entry{{Key: k, Height: int32(i), Op: OpAdd, Rid: uint64(i)}}, heightRange{int32(i), int32(i + 1)}, src.dirBits))
	}
	src.replace(runs)

	idx.compactor.merge(MergeJob{ShardIdx: 0, AgeIdx: 0, Runs: runs})

	require.Empty(t, src.snapshot())
	require.Len(t, dst.snapshot(), 1)
	require.Equal(t, int32(0), dst.snapshot()[0].heights.begin)
	require.Equal(t, int32(src.fanIn), dst.snapshot()[0].heights.end)
}

func TestMaybeCompactEnqueuesWhenRunsAreContiguousAndBelowRetain(t *testing.T) {
	idx := newTestIndex(t)
	idx.SetRetainHeight(1000)
	shard := idx.shards[0]
	age0 := shard.ages[0]

	runs := make([]*Run, 0, age0.fanIn)
	for i := 0; i < age0.fanIn; i++ {
		k := key(byte(i + 50))
		runs = append(runs, newRun([]Entry{{Key: k, Height: int32(i), Op: OpAdd, Rid: uint64(i)}}, heightRange{int32(i), int32(i + 1)}, age0.dirBits))
	}
	age0.replace(runs)

	idx.maybeCompact(0)

	job, ok := idx.compactor.q.TryPop()
	require.True(t, ok)
	require.Equal(t, 0, job.AgeIdx)
	require.Len(t, job.Runs, age0.fanIn)
}

func TestQueryRejectsPartialOverlapOfImmutableRun(t *testing.T) {
	idx := newTestIndex(t)
	k := key(9)
	shard := idx.shards[idx.shardIndexOf(k)]
	immutable := shard.ages[3]
	immutable.addRun(newRun([]Entry{{Key: k, Height: 10, Op: OpAdd, Rid: 1}}, heightRange{10, 20}, immutable.dirBits))

	_, err := idx.Query(15, 25, []chainhash.Hash{k})
	require.Error(t, err)
}
