// Package chainhash provides a fast, non-cryptographic map-key hash
// over chainhash.Hash values, per spec.md §3 ("Provides a fast
// non-cryptographic hash for use as a map key"). Grounded on the
// teacher's hash-keyed map usage (util/txmap.go).
package chainhash

import (
	"github.com/cespare/xxhash/v2"
	"github.com/libsv/go-bt/v2/chainhash"
)

// HashKey returns a fast 64-bit digest of h suitable as a Go map key
// or hash-table bucket index. It is not cryptographically secure and
// must never be used for consensus-sensitive comparisons — only for
// routing and in-memory lookup structures.
func HashKey(h chainhash.Hash) uint64 {
	return xxhash.Sum64(h[:])
}

// Prefix returns the leading n bits of HashKey(h), used to route keys
// to UTXO index shards (spec.md §4.6).
func Prefix(h chainhash.Hash, bits int) uint64 {
	if bits <= 0 {
		return 0
	}
	if bits >= 64 {
		return HashKey(h)
	}
	return HashKey(h) >> (64 - uint(bits))
}
