package rules

import (
	"testing"
	"time"

	"github.com/chainforge/core/internal/chainparams"
	"github.com/chainforge/core/internal/target"
	"github.com/libsv/go-bt/v2"
	"github.com/libsv/go-bt/v2/bscript"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

// fakeView is a fixed-size ancestor timestamp window for tests.
type fakeView struct {
	timestamps map[int32]uint32 // by height
	last11     []uint32
}

func (v fakeView) Length() int { return len(v.timestamps) }

func (v fakeView) TimestampAt(h int32) (uint32, bool) {
	ts, ok := v.timestamps[h]
	return ts, ok
}

func (v fakeView) LastNTimestamps(n int) []uint32 {
	if n >= len(v.last11) {
		return v.last11
	}
	return v.last11[len(v.last11)-n:]
}

func newTestHeader(version int32, timestamp uint32) chainparams.BlockHeader {
	return chainparams.BlockHeader{
		Version:    version,
		PrevHash:   chainhash.Hash{1},
		MerkleRoot: chainhash.Hash{2},
		Timestamp:  timestamp,
		Bits:       target.CompactTarget(0x207fffff), // regtest-style easy target
		Nonce:      0,
	}
}

func TestHeaderVersionGateBIP34(t *testing.T) {
	parent := chainparams.HeaderContext{Hash: chainhash.Hash{1}, Height: chainparams.ActivationHeight(chainparams.BIP34)}
	view := fakeView{timestamps: map[int32]uint32{}, last11: []uint32{1, 2, 3}}

	// version=1 at height > 227,931 is retired by BIP34.
	h := newTestHeader(1, 1000)
	args := HeaderArgs{Header: h, Hash: chainhash.Hash{9}, Height: chainparams.ActivationHeight(chainparams.BIP34) + 1, Parent: parent, View: view, Now: time.Unix(1000, 0)}
	err := ruleHeaderVersion(args)
	require.Error(t, err)

	// The same version below the activation height passes.
	args.Height = chainparams.ActivationHeight(chainparams.BIP34) - 1
	require.NoError(t, ruleHeaderVersion(args))
}

func TestHeaderPrevHashMismatch(t *testing.T) {
	parent := chainparams.HeaderContext{Hash: chainhash.Hash{1}}
	h := newTestHeader(2, 1000)
	h.PrevHash = chainhash.Hash{0xff}
	err := ruleHeaderPrevHash(HeaderArgs{Header: h, Parent: parent})
	require.Error(t, err)
}

func TestDifficultyAdjustmentOutsideTransition(t *testing.T) {
	view := fakeView{timestamps: map[int32]uint32{}}
	bits, err := DifficultyAdjustment(100, target.CompactTarget(0x1d00ffff), view)
	require.NoError(t, err)
	require.Equal(t, target.CompactTarget(0x1d00ffff), bits)
}

func TestDifficultyAdjustmentAtTransition(t *testing.T) {
	view := fakeView{timestamps: map[int32]uint32{
		0:    1231006505,
		2015: 1231006505 + targetTimespanSeconds,
	}}
	bits, err := DifficultyAdjustment(2016, target.CompactTarget(0x1d00ffff), view)
	require.NoError(t, err)
	require.Equal(t, target.CompactTarget(0x1d00ffff), bits)
}

func TestTransactionEmptyInputsOutputs(t *testing.T) {
	tx := bt.NewTx()
	require.Error(t, ruleTxHasInputs(TxArgs{Tx: tx}))

	tx.Inputs = append(tx.Inputs, &bt.Input{})
	require.Error(t, ruleTxHasOutputs(TxArgs{Tx: tx}))
}

func TestTransactionDuplicateOutpoint(t *testing.T) {
	tx := bt.NewTx()
	in1 := &bt.Input{PreviousTxOutIndex: 0}
	in2 := &bt.Input{PreviousTxOutIndex: 0}
	h := chainhash.Hash{3}
	require.NoError(t, in1.PreviousTxIDAdd(&h))
	require.NoError(t, in2.PreviousTxIDAdd(&h))
	tx.Inputs = append(tx.Inputs, in1, in2)

	require.Error(t, ruleTxDistinctOutpoints(TxArgs{Tx: tx}))
}

func TestTransactionOutputsOverMaxSatoshis(t *testing.T) {
	tx := bt.NewTx()
	tx.Outputs = append(tx.Outputs, &bt.Output{Satoshis: maxSatoshis + 1, LockingScript: &bscript.Script{}})
	require.Error(t, ruleTxOutputsInRange(TxArgs{Tx: tx}))
}

func TestBlockDuplicateSiblingRejected(t *testing.T) {
	// Scenario 5: a 2-tx block whose second tx hash equals the first.
	tx := bt.NewTx()
	tx.LockTime = 7
	block := Block{
		Header:       newTestHeader(2, 1000),
		Transactions: []*bt.Tx{tx, tx},
	}
	err := ruleBlockMerkleRoot(BlockArgs{Block: block, Height: 1})
	require.Error(t, err)
}

func TestBlockSingleCoinbaseEnforced(t *testing.T) {
	coinbase := bt.NewTx()
	in := &bt.Input{}
	zero := chainhash.Hash{}
	require.NoError(t, in.PreviousTxIDAdd(&zero))
	in.PreviousTxOutIndex = 0xffffffff
	coinbase.Inputs = append(coinbase.Inputs, in)

	notCoinbase := bt.NewTx()
	in2 := &bt.Input{}
	nonZero := chainhash.Hash{9}
	require.NoError(t, in2.PreviousTxIDAdd(&nonZero))
	notCoinbase.Inputs = append(notCoinbase.Inputs, in2)

	block := Block{Transactions: []*bt.Tx{coinbase, notCoinbase}}
	require.NoError(t, ruleBlockSingleCoinbase(BlockArgs{Block: block}))

	block2 := Block{Transactions: []*bt.Tx{coinbase, coinbase}}
	require.Error(t, ruleBlockSingleCoinbase(BlockArgs{Block: block2}))
}
