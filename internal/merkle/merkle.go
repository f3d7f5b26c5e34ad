// Package merkle builds double-SHA256 merkle trees with the duplicate-
// sibling detection spec.md §4.9 requires, grounded on the teacher's
// chainhash.Hash-typed transaction-hash handling (model/Block.go).
package merkle

import (
	"crypto/sha256"

	"github.com/libsv/go-bt/v2/chainhash"
)

// Result is the output of a merkle build: the root hash and whether
// every sibling pair at every layer was distinct.
type Result struct {
	Hash   chainhash.Hash
	Unique bool
}

// Root builds the merkle root over txHashes in order, padding to even
// length by duplicating the last node, and flags non-uniqueness if any
// adjacent pair at any layer is identical before that padding (spec.md §4.9, the
// "identical-twin sibling" check used by the block-structural rule).
func Root(txHashes []chainhash.Hash) Result {
	if len(txHashes) == 0 {
		return Result{}
	}

	layer := make([]chainhash.Hash, len(txHashes))
	copy(layer, txHashes)
	unique := true

	for len(layer) > 1 {
		for i := 0; i+1 < len(layer); i += 2 {
			if layer[i] == layer[i+1] {
				unique = false
			}
		}

		if len(layer)%2 != 0 {
			layer = append(layer, layer[len(layer)-1])
		}

		next := make([]chainhash.Hash, len(layer)/2)
		for i := 0; i+1 < len(layer); i += 2 {
			next[i/2] = hashPair(layer[i], layer[i+1])
		}
		layer = next
	}

	return Result{Hash: layer[0], Unique: unique}
}

// WitnessRoot computes the same tree as Root but with the coinbase
// leaf (index 0) replaced by an all-zero hash, per spec.md §4.9 and
// the BIP141 witness-commitment rule.
func WitnessRoot(txWitnessHashes []chainhash.Hash) Result {
	if len(txWitnessHashes) == 0 {
		return Result{}
	}
	leaves := make([]chainhash.Hash, len(txWitnessHashes))
	copy(leaves, txWitnessHashes)
	leaves[0] = chainhash.Hash{}
	return Root(leaves)
}

func hashPair(a, b chainhash.Hash) chainhash.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	first := sha256.Sum256(buf[:])
	second := sha256.Sum256(first[:])
	return chainhash.Hash(second)
}
