package blocksync

import (
	"testing"

	"github.com/chainforge/core/internal/chainparams"
	"github.com/chainforge/core/internal/merkle"
	"github.com/chainforge/core/internal/rules"
	"github.com/chainforge/core/internal/sidecar"
	"github.com/chainforge/core/internal/target"
	"github.com/chainforge/core/internal/timechain"
	"github.com/chainforge/core/internal/ulogger"
	"github.com/libsv/go-bt/v2"
	"github.com/libsv/go-bt/v2/bscript"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

func newChain(t *testing.T) *timechain.Timechain {
	t.Helper()
	genesis := chainparams.NewGenesisContext(chainparams.GenesisHeader, chainparams.GenesisHash)
	return timechain.New(genesis, 2000, 288)
}

func coinbaseTx() *bt.Tx {
	tx := bt.NewTx()
	in := &bt.Input{}
	zero := chainhash.Hash{}
	_ = in.PreviousTxIDAdd(&zero)
	in.PreviousTxOutIndex = 0xffffffff
	sigScript := bscript.Script(make([]byte, 4))
	in.UnlockingScript = &sigScript
	tx.Inputs = append(tx.Inputs, in)
	tx.Outputs = append(tx.Outputs, &bt.Output{Satoshis: 5_000_000_000})
	return tx
}

func validBlockAt(t *testing.T, parent chainhash.Hash) rules.Block {
	t.Helper()
	coinbase := coinbaseTx()
	root := merkle.Root([]chainhash.Hash{*coinbase.TxIDChainHash()})
	header := chainparams.BlockHeader{
		Version:    1, // pre-BIP34 height, version 1 still legal
		PrevHash:   parent,
		MerkleRoot: root.Hash,
		Timestamp:  1231007000,
		Bits:       target.CompactTarget(0x207fffff),
		Nonce:      0,
	}
	return rules.Block{Header: header, Transactions: []*bt.Tx{coinbase}}
}

func TestWorkerValidatesBlock(t *testing.T) {
	tc := newChain(t)
	status := sidecar.NewStatusSidecar()
	tc.RegisterSidecar(status)
	log := ulogger.New("blocksync-test")

	var peerErrs []error
	w := NewWorker(tc, status, log, nil, func(peerID string, err error) { peerErrs = append(peerErrs, err) })

	_, genCtx := tc.HeaviestTip()
	block := validBlockAt(t, genCtx.Hash)
	hash := chainhash.Hash{1}

	w.processItem(Item{PeerID: "peer-1", Block: block, Hash: hash, SizeHint: 300})

	require.Empty(t, peerErrs)
	pos, tip := tc.HeaviestTip()
	require.Equal(t, int32(1), pos.Height)
	require.Equal(t, hash, tip.Hash)
	require.Equal(t, sidecar.StatusValidated, status.Get(1))
}

func TestWorkerRejectsBadMerkleRoot(t *testing.T) {
	tc := newChain(t)
	status := sidecar.NewStatusSidecar()
	tc.RegisterSidecar(status)
	log := ulogger.New("blocksync-test")

	var peerErrs []error
	w := NewWorker(tc, status, log, nil, func(peerID string, err error) { peerErrs = append(peerErrs, err) })

	_, genCtx := tc.HeaviestTip()
	block := validBlockAt(t, genCtx.Hash)
	block.Header.MerkleRoot = chainhash.Hash{0xff}

	w.processItem(Item{PeerID: "peer-2", Block: block, Hash: chainhash.Hash{2}, SizeHint: 300})

	require.Len(t, peerErrs, 1)
	pos, _ := tc.HeaviestTip()
	require.Equal(t, int32(0), pos.Height)
}

func TestHasRoomAndPendingBytes(t *testing.T) {
	tc := newChain(t)
	status := sidecar.NewStatusSidecar()
	log := ulogger.New("blocksync-test")
	w := NewWorker(tc, status, log, nil, func(string, error) {})

	require.True(t, w.HasRoom())
	w.Push(Item{PeerID: "p", SizeHint: MaxPendingBytes})
	require.False(t, w.HasRoom())
}

func TestBeginEndRequestSingleInFlight(t *testing.T) {
	tc := newChain(t)
	status := sidecar.NewStatusSidecar()
	log := ulogger.New("blocksync-test")
	w := NewWorker(tc, status, log, nil, func(string, error) {})

	require.True(t, w.BeginRequest())
	require.False(t, w.BeginRequest())
	w.EndRequest()
	require.True(t, w.BeginRequest())
}
