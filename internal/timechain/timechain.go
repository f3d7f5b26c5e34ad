package timechain

import (
	"sync"

	"github.com/chainforge/core/internal/chainparams"
	"github.com/chainforge/core/internal/errors"
	"github.com/libsv/go-bt/v2/chainhash"
)

// AddSyncEvent is the notification every registered Sidecar receives
// on an Add, per spec.md §4.2: "All sidecars attached to the
// timechain receive an AddSync notification carrying the new node's
// (parent, hash) and, when applicable, the ordered list of hashes
// whose chain positions were displaced."
type AddSyncEvent struct {
	Parent chainhash.Hash
	Hash   chainhash.Hash
	// ForkHeight and MovedFromChain are set only when this Add
	// triggered a reorg: ForkHeight is the height the chain was
	// truncated to minus one, and MovedFromChain holds the displaced
	// chain hashes in increasing-height order.
	ForkHeight     int32
	MovedFromChain []chainhash.Hash
	// PromotedHashes holds the new chain's hashes from fork_height+1 to
	// the new tip, root-to-tip order, letting a sidecar walk the
	// promoted branch and restore each height's value from whatever it
	// had recorded for that hash while the branch still lived in the
	// tree (spec.md §4.7 "Promotion on reorg").
	PromotedHashes []chainhash.Hash
}

// Sidecar receives AddSync notifications (spec.md §4.7). Defined here
// rather than in internal/sidecar so timechain has no dependency on
// sidecar's concrete types.
type Sidecar interface {
	AddSync(AddSyncEvent)
}

// Position locates a header either in the chain (by height) or in the
// tree (by handle), per spec.md §9's "Iterators that cross
// structures" design note.
type Position struct {
	InTree bool
	Handle Handle
	Height int32
}

// Timechain is spec.md §3/§4.2's HeaderTimechain: a chain plus a
// bounded forest of competing branches, maintaining the single
// heaviest chain under a writer-preferring RWMutex (spec.md §5
// "Shared-resource policy").
type Timechain struct {
	mu sync.RWMutex

	chain *Chain
	tree  *Tree

	minRootHeight  int32
	maxSearchDepth int32
	maxKeepDepth   int32

	sidecars []Sidecar
}

// New builds a Timechain rooted at genesis.
func New(genesis chainparams.HeaderContext, maxSearchDepth, maxKeepDepth int32) *Timechain {
	return &Timechain{
		chain:          NewChain(genesis),
		tree:           NewTree(),
		maxSearchDepth: maxSearchDepth,
		maxKeepDepth:   maxKeepDepth,
	}
}

// RegisterSidecar attaches s to receive future AddSync notifications.
func (tc *Timechain) RegisterSidecar(s Sidecar) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.sidecars = append(tc.sidecars, s)
}

// Find performs an O(1) tree-only lookup by hash (spec.md §4.2
// "find(hash)"); it does not inspect the chain.
func (tc *Timechain) Find(hash chainhash.Hash) (Handle, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.tree.Find(hash)
}

// HeaviestTip returns the chain tip's position and context (spec.md
// §4.2 "heaviest_tip()").
func (tc *Timechain) HeaviestTip() (Position, chainparams.HeaderContext) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	tip := tc.chain.Tip()
	return Position{Height: tip.Height}, tip
}

// locateLocked resolves hash to either a chain height or a tree
// handle, the "find_or_chain_lookup" spec.md §4.3 names. Caller must
// hold at least a read lock.
func (tc *Timechain) locateLocked(hash chainhash.Hash) (Position, bool) {
	if height, ok := tc.chain.HeightOf(hash); ok {
		return Position{Height: height}, true
	}
	if h, ok := tc.tree.Find(hash); ok {
		return Position{InTree: true, Handle: h, Height: tc.tree.Context(h).Height}, true
	}
	return Position{}, false
}

// Locate is the public, read-locked form of locateLocked, used by
// header-sync to resolve a batch's parent (spec.md §4.3 "Per-batch
// logic").
func (tc *Timechain) Locate(hash chainhash.Hash) (Position, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.locateLocked(hash)
}

// ContextAt returns the HeaderContext at pos.
func (tc *Timechain) ContextAt(pos Position) chainparams.HeaderContext {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	if pos.InTree {
		return tc.tree.Context(pos.Handle)
	}
	ctx, _ := tc.chain.At(pos.Height)
	return ctx
}

// Add inserts a freshly validated header context whose parent is the
// node at parentPos (spec.md §4.2 "add(context, parent_hint)").
// Fails with ParentNotFound when ctx's parent hash is in neither the
// chain nor the tree.
func (tc *Timechain) Add(ctx chainparams.HeaderContext, parentPos Position) (Position, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if _, ok := tc.locateLocked(ctx.Header.PrevHash); !ok {
		return Position{}, errors.New(errors.ERR_HEADER_PARENT_NOT_FOUND, "timechain: parent %s of %s not found", ctx.Header.PrevHash, ctx.Hash)
	}

	if !parentPos.InTree && parentPos.Height == tc.chain.Tip().Height &&
		ctx.Header.PrevHash == tc.chain.Tip().Hash {
		// Fast path: extends the heaviest chain directly.
		tc.chain.Push(ctx)
		tc.notify(AddSyncEvent{Parent: parentPos2Hash(tc, parentPos), Hash: ctx.Hash})
		return Position{Height: ctx.Height}, nil
	}

	var newHandle Handle
	if parentPos.InTree {
		newHandle = tc.tree.InsertChild(parentPos.Handle, ctx)
	} else {
		newHandle = tc.tree.InsertRoot(ctx)
	}

	tc.notify(AddSyncEvent{Parent: ctx.Header.PrevHash, Hash: ctx.Hash})

	if ctx.TotalWork.Cmp(tc.chain.Tip().TotalWork) > 0 {
		if err := tc.reorg(newHandle); err != nil {
			return Position{}, err
		}
		return Position{Height: ctx.Height}, nil
	}

	tc.prune()
	return Position{InTree: true, Handle: newHandle, Height: ctx.Height}, nil
}

func parentPos2Hash(tc *Timechain, pos Position) chainhash.Hash {
	if pos.InTree {
		return tc.tree.Context(pos.Handle).Hash
	}
	ctx, _ := tc.chain.At(pos.Height)
	return ctx.Hash
}

// reorg implements spec.md §4.2's five-step reorg algorithm, called
// with the write lock already held.
func (tc *Timechain) reorg(newTip Handle) error {
	path := tc.tree.PathToRoot(newTip) // path[0] = newTip, path[last] = branch root
	root := path[len(path)-1]
	if tc.tree.Parent(root) != NoHandle {
		errors.LogicError("timechain: reorg root has a tree parent, invariant violated")
	}

	forkHeight := tc.tree.RootHeight(root) - 1
	if forkHeight < 0 || int(forkHeight) >= tc.chain.Len() {
		errors.LogicError("timechain: reorg fork height %d out of chain range", forkHeight)
	}

	// Step 2: copy the displaced chain headers into the tree as a new
	// branch attached at the fork point, preserving their hashes.
	var moved []chainhash.Hash
	displacedParent := Handle(NoHandle)
	var forkAnchorCtx chainparams.HeaderContext
	if forkHeight >= 0 {
		forkAnchorCtx, _ = tc.chain.At(forkHeight)
	}
	_ = forkAnchorCtx
	if int(forkHeight)+1 < tc.chain.Len() {
		for h := forkHeight + 1; h < int32(tc.chain.Len()); h++ {
			ctx, _ := tc.chain.At(h)
			moved = append(moved, ctx.Hash)
			if displacedParent == NoHandle {
				displacedParent = tc.tree.InsertRoot(ctx)
			} else {
				displacedParent = tc.tree.InsertChild(displacedParent, ctx)
			}
		}
	}

	// Step 3: truncate the chain to the fork point.
	tc.chain.Truncate(int(forkHeight) + 1)

	// Step 4: walk forward from root to the new tip, pushing each
	// header into the chain.
	promoted := make([]chainhash.Hash, 0, len(path))
	for i := len(path) - 1; i >= 0; i-- {
		ctx := tc.tree.Context(path[i])
		tc.chain.Push(ctx)
		promoted = append(promoted, ctx.Hash)
	}

	// Step 5: delete the branch that is now the chain from the tree.
	for _, h := range path {
		tc.tree.Erase(h)
	}

	tc.notify(AddSyncEvent{
		Parent:         tc.chain.Tip().Header.PrevHash,
		Hash:           tc.chain.Tip().Hash,
		ForkHeight:     forkHeight,
		MovedFromChain: moved,
		PromotedHashes: promoted,
	})

	tc.prune()
	return nil
}

func (tc *Timechain) notify(e AddSyncEvent) {
	for _, s := range tc.sidecars {
		s.AddSync(e)
	}
}

// prune implements spec.md §4.2's pruning pass, called with the write
// lock held.
func (tc *Timechain) prune() {
	keepThreshold := tc.chain.Tip().Height - tc.maxKeepDepth
	if tc.minRootHeight > keepThreshold {
		return
	}
	for _, h := range tc.tree.AllLive() {
		if tc.tree.Parent(h) == NoHandle && tc.tree.RootHeight(h) < keepThreshold {
			tc.tree.EraseBranch(h)
		}
	}
	tc.minRootHeight = keepThreshold
}

// GetAncestorAtHeight walks up from tip (tree edges, then chain
// indexing) to return the header at height h (spec.md §4.2
// "get_ancestor_at_height").
func (tc *Timechain) GetAncestorAtHeight(tip Position, h int32) (chainparams.HeaderContext, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	cur := tip
	for cur.InTree {
		ctx := tc.tree.Context(cur.Handle)
		if ctx.Height == h {
			return ctx, true
		}
		if ctx.Height < h {
			return chainparams.HeaderContext{}, false
		}
		parent := tc.tree.Parent(cur.Handle)
		if parent == NoHandle {
			// Branch root: its parent and everything below it are in the chain.
			break
		}
		cur = Position{InTree: true, Handle: parent, Height: tc.tree.Context(parent).Height}
	}
	return tc.chain.At(h)
}

// GetValidationView returns a bounded read-only ancestor view pinned
// at tip (spec.md §4.2 "get_validation_view(tip)", §4.3
// "ValidationView").
func (tc *Timechain) GetValidationView(tip Position) *ValidationView {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return &ValidationView{tc: tc, tip: tip}
}
