package utxotable

import (
	"testing"

	"github.com/chainforge/core/internal/ulogger"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T, mutableWindow int32) (*Table, *SegmentStore) {
	t.Helper()
	dir := t.TempDir()
	segs, err := NewSegmentStore(dir, 1<<20)
	require.NoError(t, err)
	log := ulogger.New("utxotable-test")
	table := NewTable(segs, mutableWindow, log, nil)
	return table, segs
}

func TestAppendAndFetchRoundTrip(t *testing.T) {
	table, segs := newTestTable(t, 100)
	defer segs.Close()

	entries := []OutputEntry{
		{Key: Outpoint{TxID: chainhash.Hash{1}, Index: 0}, Height: 1, Script: []byte("script-a")},
		{Key: Outpoint{TxID: chainhash.Hash{1}, Index: 1}, Height: 1, Script: []byte("script-b-longer")},
	}

	kvs, err := table.Append(1, entries)
	require.NoError(t, err)
	require.Len(t, kvs, 2)

	rids := []uint64{kvs[0].Rid, kvs[1].Rid}
	result, err := table.Fetch(rids)
	require.NoError(t, err)
	require.Len(t, result.Details, 2)

	d0 := result.Details[0]
	require.Equal(t, int32(1), d0.Height)
	require.Equal(t, "script-a", string(result.Scripts[d0.ScriptOffset:d0.ScriptOffset+d0.ScriptLength]))

	d1 := result.Details[1]
	require.Equal(t, "script-b-longer", string(result.Scripts[d1.ScriptOffset:d1.ScriptOffset+d1.ScriptLength]))
}

func TestFetchSkipsNullRid(t *testing.T) {
	table, segs := newTestTable(t, 100)
	defer segs.Close()

	entries := []OutputEntry{
		{Key: Outpoint{TxID: chainhash.Hash{1}}, Height: 1, Script: []byte("x")},
	}
	kvs, err := table.Append(1, entries)
	require.NoError(t, err)

	result, err := table.Fetch([]uint64{NullRid, kvs[0].Rid, NullRid})
	require.NoError(t, err)
	require.Len(t, result.Details, 1)
}

func TestEraseSinceDropsOnlyTailAtOrAboveHeight(t *testing.T) {
	table, segs := newTestTable(t, 100)
	defer segs.Close()

	_, err := table.Append(1, []OutputEntry{{Key: Outpoint{TxID: chainhash.Hash{1}}, Height: 1, Script: []byte("a")}})
	require.NoError(t, err)
	_, err = table.Append(2, []OutputEntry{{Key: Outpoint{TxID: chainhash.Hash{2}}, Height: 2, Script: []byte("b")}})
	require.NoError(t, err)
	_, err = table.Append(3, []OutputEntry{{Key: Outpoint{TxID: chainhash.Hash{3}}, Height: 3, Script: []byte("c")}})
	require.NoError(t, err)

	table.EraseSince(2)

	table.mu.RLock()
	defer table.mu.RUnlock()
	require.Len(t, table.tail, 1)
	require.Equal(t, int32(1), table.tail[0].height)
}

func TestCommitMovesDataToSegmentsAndDrainsTail(t *testing.T) {
	table, segs := newTestTable(t, 100)
	defer segs.Close()

	entries := []OutputEntry{
		{Key: Outpoint{TxID: chainhash.Hash{1}}, Height: 1, Script: []byte("committed-script")},
	}
	kvs, err := table.Append(1, entries)
	require.NoError(t, err)

	table.Commit(2)

	table.mu.RLock()
	require.Empty(t, table.tail)
	table.mu.RUnlock()

	result, err := table.Fetch([]uint64{kvs[0].Rid})
	require.NoError(t, err)
	require.Len(t, result.Details, 1)
	d := result.Details[0]
	require.Equal(t, "committed-script", string(result.Scripts[d.ScriptOffset:d.ScriptOffset+d.ScriptLength]))
}

func TestAppendTriggersAutoCommitAtMutableWindow(t *testing.T) {
	table, segs := newTestTable(t, 2)
	defer segs.Close()

	_, err := table.Append(1, []OutputEntry{{Key: Outpoint{TxID: chainhash.Hash{1}}, Height: 1, Script: []byte("a")}})
	require.NoError(t, err)
	_, err = table.Append(2, []OutputEntry{{Key: Outpoint{TxID: chainhash.Hash{2}}, Height: 2, Script: []byte("b")}})
	require.NoError(t, err)

	job, ok := table.flusher.q.TryPop()
	require.True(t, ok)
	require.Equal(t, int32(1), job) // maxHeight(2)+1-window(2) = 1
}

func TestFlusherRunProcessesEnqueuedCommits(t *testing.T) {
	table, segs := newTestTable(t, 100)
	defer segs.Close()

	_, err := table.Append(1, []OutputEntry{{Key: Outpoint{TxID: chainhash.Hash{1}}, Height: 1, Script: []byte("a")}})
	require.NoError(t, err)

	go table.flusher.Run()
	table.flusher.Enqueue(2)
	table.flusher.Stop()

	table.mu.RLock()
	defer table.mu.RUnlock()
	require.Empty(t, table.tail)
}
