// Package sidecar implements spec.md §4.7's sidecar abstraction: a
// metadata mirror kept in lockstep with the header timechain,
// notified on every add (including reorg) via timechain.Sidecar.
// Grounded on the teacher's services/blockchain/Interface.go
// locator-indexed lookups (GetHashOfAncestorBlock, GetBlockHeaderIDs
// both resolve metadata by either height or hash, the same
// height-or-fork-hash locator split spec.md names).
package sidecar

import (
	"sort"
	"sync"

	"github.com/chainforge/core/internal/timechain"
	"github.com/dolthub/swiss"
	"github.com/libsv/go-bt/v2/chainhash"
)

// keyframe is one run-length-encoded entry: value holds from
// startHeight up to (exclusive of) the next keyframe's startHeight.
type keyframe[T comparable] struct {
	startHeight int32
	value       T
}

// Keyframe is a piecewise-constant sidecar over chain height, plus an
// auxiliary fork tree keyed by hash for values on tree branches
// (spec.md §4.7 "Keyframe sidecar").
type Keyframe[T comparable] struct {
	mu       sync.RWMutex
	frames   []keyframe[T] // sorted by startHeight
	chainLen int32
	forkTree *swiss.Map[chainhash.Hash, T]
}

// NewKeyframe builds an empty keyframe sidecar. The fork tree, whose
// population is bounded by reorg depth rather than chain length, uses
// a swiss.Map the way the teacher's util/txmap.go wraps the same
// table for its hash-keyed in-memory maps.
func NewKeyframe[T comparable]() *Keyframe[T] {
	return &Keyframe[T]{forkTree: swiss.NewMap[chainhash.Hash, T](8)}
}

// Get returns the value at locator (height in chain), or the zero
// value and false if unset.
func (k *Keyframe[T]) Get(height int32) (T, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.getLocked(height)
}

func (k *Keyframe[T]) getLocked(height int32) (T, bool) {
	if len(k.frames) == 0 || height < k.frames[0].startHeight {
		var zero T
		return zero, false
	}
	i := sort.Search(len(k.frames), func(i int) bool { return k.frames[i].startHeight > height }) - 1
	if i < 0 {
		var zero T
		return zero, false
	}
	return k.frames[i].value, true
}

// GetFork returns the value stored for a fork-tree hash.
func (k *Keyframe[T]) GetFork(hash chainhash.Hash) (T, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.forkTree.Get(hash)
}

// Set stores value at height, splitting/merging keyframes to keep the
// minimal run-length-encoded form (spec.md §4.7, §8 "no two adjacent
// keyframes have equal value").
func (k *Keyframe[T]) Set(height int32, value T) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.setLocked(height, value)
	if height+1 > k.chainLen {
		k.chainLen = height + 1
	}
}

func (k *Keyframe[T]) setLocked(height int32, value T) {
	idx := sort.Search(len(k.frames), func(i int) bool { return k.frames[i].startHeight > height }) - 1

	if idx >= 0 && k.frames[idx].value == value {
		// Already the value in effect for height; nothing to split.
		return
	}

	if idx >= 0 && k.frames[idx].startHeight == height {
		// A keyframe already starts at height: replace its value.
		k.frames[idx].value = value
		k.compact()
		return
	}

	// Insert a new keyframe at height.
	newFrame := keyframe[T]{startHeight: height, value: value}
	insertAt := idx + 1
	k.frames = append(k.frames, keyframe[T]{})
	copy(k.frames[insertAt+1:], k.frames[insertAt:])
	k.frames[insertAt] = newFrame
	k.compact()
}

// compact removes each keyframe whose value equals the value of the
// keyframe before it.
func (k *Keyframe[T]) compact() {
	out := k.frames[:0]
	for _, f := range k.frames {
		if len(out) > 0 && out[len(out)-1].value == f.value {
			continue
		}
		out = append(out, f)
	}
	k.frames = out
}

// SetFork stores value for a fork-tree hash (a branch position not
// yet promoted to the chain).
func (k *Keyframe[T]) SetFork(hash chainhash.Hash, value T) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.forkTree.Put(hash, value)
}

// AddSync implements timechain.Sidecar: on a plain extend it is a
// no-op (the caller is expected to Set the new height explicitly);
// on a reorg (non-empty MovedFromChain) it promotes the displaced
// chain values into the fork tree, then walks the new branch copying
// fork-tree values back onto the chain, per spec.md §4.7 "Promotion
// on reorg".
func (k *Keyframe[T]) AddSync(e timechain.AddSyncEvent) {
	if len(e.MovedFromChain) == 0 {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	forkHeight := e.ForkHeight
	for i, hash := range e.MovedFromChain {
		height := forkHeight + 1 + int32(i)
		if v, ok := k.getLocked(height); ok {
			k.forkTree.Put(hash, v)
		}
	}

	// Truncate the chain portion to fork_height+1.
	idx := sort.Search(len(k.frames), func(i int) bool { return k.frames[i].startHeight > forkHeight })
	k.frames = k.frames[:idx]
	k.chainLen = forkHeight + 1

	// Walk the new branch root-to-tip, restoring each height's value
	// from whatever the fork tree recorded for that hash.
	for i, hash := range e.PromotedHashes {
		if v, ok := k.forkTree.Get(hash); ok {
			k.setLocked(forkHeight+1+int32(i), v)
		}
	}

	// Delete the old tree chain whose tip is now equal to the promoted
	// node: fork-tree entries for the promoted hashes are no longer
	// branch-only state once they are part of the chain.
	for _, hash := range e.PromotedHashes {
		k.forkTree.Delete(hash)
	}
}
