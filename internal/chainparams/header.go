// Package chainparams defines the wire-level BlockHeader type, the
// mainnet genesis header, and the BIP activation-height table, per
// spec.md §3 and §6. Field naming follows the teacher's network
// parameter tables (pkg/go-chaincfg/params.go).
package chainparams

import (
	"github.com/chainforge/core/internal/target"
	"github.com/libsv/go-bt/v2/chainhash"
)

// BlockHeader is the 80-byte wire-serialized block header, per
// spec.md §3 and §6.
type BlockHeader struct {
	Version    int32
	PrevHash   chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  uint32
	Bits       target.CompactTarget
	Nonce      uint32
}

// Bip names a soft-fork activation gate evaluated against block
// height (spec.md §4.1).
type Bip int

const (
	BIP34 Bip = iota
	BIP65
	BIP66
	BIP113
	BIP141
)

// activationHeights is the compile-time BIP-activation table from
// spec.md §4.1.
var activationHeights = map[Bip]int32{
	BIP34:  227_931,
	BIP65:  388_381,
	BIP66:  363_725,
	BIP113: 419_328,
	BIP141: 481_824,
}

// IsBipEnabled reports whether bip is active at height.
func IsBipEnabled(bip Bip, height int32) bool {
	h, ok := activationHeights[bip]
	if !ok {
		return false
	}
	return height >= h
}

// ActivationHeight returns the configured activation height for bip.
func ActivationHeight(bip Bip) int32 {
	return activationHeights[bip]
}

// GenesisHash is the mainnet genesis block hash, spec.md §6, stored
// little-endian as the wire protocol represents it.
var GenesisHash = mustHash("000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f")

// GenesisHeader is the mainnet genesis block header.
var GenesisHeader = BlockHeader{
	Version:    1,
	PrevHash:   chainhash.Hash{},
	MerkleRoot: mustHash("4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"),
	Timestamp:  1231006505,
	Bits:       target.CompactTarget(0x1d00ffff),
	Nonce:      2083236893,
}

func mustHash(hexStr string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(hexStr)
	if err != nil {
		panic(err)
	}
	return *h
}

// VersionTable gates BlockHeader.Version per spec.md §4.1's version
// gate: versions <= 0 or >= VersionTableLength are invalid outright;
// versions 1/2/3 are retired by the BIP each maps to, once that BIP
// activates.
var VersionTable = map[int32]Bip{
	1: BIP34,
	2: BIP66,
	3: BIP65,
}

// VersionTableLength bounds the valid version range: versions in
// [1, VersionTableLength) are recognized (spec.md §4.1 "versions ...
// >= table length are invalid").
const VersionTableLength = 4
