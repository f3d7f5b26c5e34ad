package timechain

import (
	"github.com/chainforge/core/internal/chainparams"
	"github.com/libsv/go-bt/v2/chainhash"
)

// Handle is a stable reference into the tree's arena — an index, not
// a pointer, per spec.md §9's "store tree nodes in an arena
// (growable append-only slab), reference parents by stable handles".
type Handle int32

// NoHandle is the null handle.
const NoHandle Handle = -1

type node struct {
	parent Handle
	hash   chainhash.Hash
	ctx    chainparams.HeaderContext
	// rootHeight is the height of this branch's root (the node whose
	// parent is a chain header, not a tree node), used by pruning.
	rootHeight int32
	erased     bool
}

// Tree is the forest of validated-but-not-yet-chain headers, per
// spec.md §3 "HeaderTree (forest)". Lookup by hash is O(1) via an
// index map into the arena.
type Tree struct {
	arena  []node
	byHash map[chainhash.Hash]Handle
}

// NewTree builds an empty forest.
func NewTree() *Tree {
	return &Tree{byHash: make(map[chainhash.Hash]Handle)}
}

// Find returns the handle for hash, or (NoHandle, false) if absent.
func (t *Tree) Find(hash chainhash.Hash) (Handle, bool) {
	h, ok := t.byHash[hash]
	if !ok || t.arena[h].erased {
		return NoHandle, false
	}
	return h, true
}

// Context returns the HeaderContext stored at handle.
func (t *Tree) Context(h Handle) chainparams.HeaderContext {
	return t.arena[h].ctx
}

// Parent returns the parent handle of h, or NoHandle if h is a branch
// root or its parent has been pruned.
func (t *Tree) Parent(h Handle) Handle {
	return t.arena[h].parent
}

// InsertRoot adds ctx as a new branch root (its parent is a chain
// header, not a tree node). rootHeight is ctx.Height.
func (t *Tree) InsertRoot(ctx chainparams.HeaderContext) Handle {
	h := Handle(len(t.arena))
	t.arena = append(t.arena, node{parent: NoHandle, hash: ctx.Hash, ctx: ctx, rootHeight: ctx.Height})
	t.byHash[ctx.Hash] = h
	return h
}

// InsertChild adds ctx as a child of the node at parent.
func (t *Tree) InsertChild(parent Handle, ctx chainparams.HeaderContext) Handle {
	h := Handle(len(t.arena))
	t.arena = append(t.arena, node{parent: parent, hash: ctx.Hash, ctx: ctx, rootHeight: t.arena[parent].rootHeight})
	t.byHash[ctx.Hash] = h
	return h
}

// PathToRoot returns the handles from h up to (and including) its
// branch root, root-first ordering reversed: index 0 is h, last is
// the root.
func (t *Tree) PathToRoot(h Handle) []Handle {
	var path []Handle
	for cur := h; cur != NoHandle; cur = t.arena[cur].parent {
		path = append(path, cur)
	}
	return path
}

// Erase marks h's slot free, nulling any child's parent pointer that
// pointed at it (spec.md §9: "parent pointers to erased slots are
// nulled lazily").
func (t *Tree) Erase(h Handle) {
	n := &t.arena[h]
	if n.erased {
		return
	}
	n.erased = true
	delete(t.byHash, n.hash)
	for i := range t.arena {
		if t.arena[i].parent == h {
			t.arena[i].parent = NoHandle
		}
	}
}

// EraseBranch erases h and every transitive descendant of h, so a
// prune can never disconnect a surviving child from its (erased)
// root without also erasing that child (spec.md §4.2 "Pruning must
// never disconnect a branch from the chain without also erasing the
// branch").
func (t *Tree) EraseBranch(h Handle) {
	var descendants []Handle
	for i, n := range t.arena {
		if !n.erased && Handle(i) != h && t.isDescendant(Handle(i), h) {
			descendants = append(descendants, Handle(i))
		}
	}
	for _, d := range descendants {
		t.arena[d].erased = true
		delete(t.byHash, t.arena[d].hash)
	}
	t.Erase(h)
}

func (t *Tree) isDescendant(h, ancestor Handle) bool {
	for cur := t.arena[h].parent; cur != NoHandle; cur = t.arena[cur].parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// Leaves returns the handles of every live node with no live child.
func (t *Tree) Leaves() []Handle {
	hasChild := make(map[Handle]bool)
	for i, n := range t.arena {
		if n.erased {
			continue
		}
		if n.parent != NoHandle {
			hasChild[n.parent] = true
		}
		_ = i
	}
	var leaves []Handle
	for i, n := range t.arena {
		if !n.erased && !hasChild[Handle(i)] {
			leaves = append(leaves, Handle(i))
		}
	}
	return leaves
}

// RootHeight returns the recorded branch-root height for h, used by
// pruning to decide eligibility (spec.md §4.2 "Pruning").
func (t *Tree) RootHeight(h Handle) int32 {
	return t.arena[h].rootHeight
}

// AllLive returns every non-erased handle, latest-inserted first
// (spec.md §4.2 "iterate tree nodes from latest to oldest").
func (t *Tree) AllLive() []Handle {
	var out []Handle
	for i := len(t.arena) - 1; i >= 0; i-- {
		if !t.arena[i].erased {
			out = append(out, Handle(i))
		}
	}
	return out
}
