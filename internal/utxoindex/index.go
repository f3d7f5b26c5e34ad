package utxoindex

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	corehash "github.com/chainforge/core/internal/chainhash"
	"github.com/chainforge/core/internal/errors"
	"github.com/chainforge/core/internal/ulogger"
	"github.com/libsv/go-bt/v2/chainhash"
	"golang.org/x/sync/errgroup"
)

// Age is one age tier of a shard: a snapshot-readable, copy-on-write
// list of runs, per spec.md §4.6's "Ages" table. Ages 0-2 are mutable
// (Append writes to age 0; ages 1-2 receive merges); ages 3-7 are
// immutable (built only by merges).
type Age struct {
	mu      sync.Mutex // guards publish; readers snapshot lock-free
	runs    atomic.Pointer[[]*Run]
	mutable bool
	dirBits int
	fanIn   int
}

func newAge(mutable bool, dirBits, fanIn int) *Age {
	a := &Age{mutable: mutable, dirBits: dirBits, fanIn: fanIn}
	empty := []*Run{}
	a.runs.Store(&empty)
	return a
}

func (a *Age) snapshot() []*Run {
	p := a.runs.Load()
	if p == nil {
		return nil
	}
	return *p
}

// addRun copy-on-write appends r to the age's run list.
func (a *Age) addRun(r *Run) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cur := a.snapshot()
	next := make([]*Run, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, r)
	a.runs.Store(&next)
}

// replace atomically swaps the age's run list for kept.
func (a *Age) replace(kept []*Run) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := append([]*Run{}, kept...)
	a.runs.Store(&cp)
}

// Shard is one key-range partition of the index: a fixed chain of
// ages, per spec.md §4.6's "Shards".
type Shard struct {
	ages []*Age
}

// AgeSpec configures one age tier.
type AgeSpec struct {
	Mutable bool
	DirBits int
	FanIn   int
}

// Index is spec.md §4.6's UTXO Index.
type Index struct {
	shardBits int
	shards    []*Shard
	compactor *Compactor

	retainHeight atomic.Int32
	log          ulogger.Logger
}

// AgesFromSettings builds one AgeSpec per entry in dirBits/mutable
// (which must be the same length), all sharing fanIn, matching
// internal/settings.Settings' AgeDirBits/AgeMutable/AgeFanIn knobs.
func AgesFromSettings(dirBits []int, mutable []bool, fanIn int) []AgeSpec {
	ages := make([]AgeSpec, len(dirBits))
	for i := range dirBits {
		ages[i] = AgeSpec{Mutable: mutable[i], DirBits: dirBits[i], FanIn: fanIn}
	}
	return ages
}

// New builds an Index with 1<<shardBits shards, each with one Age per
// entry in ages (ages[0] is the youngest/mutable tier; later entries
// are progressively older/more-compacted, per spec.md §4.6's age
// table ordering).
func New(shardBits int, ages []AgeSpec, log ulogger.Logger) *Index {
	shardCount := 1 << uint(shardBits)
	idx := &Index{shardBits: shardBits, log: log}
	idx.shards = make([]*Shard, shardCount)
	for i := range idx.shards {
		shardAges := make([]*Age, len(ages))
		for a, spec := range ages {
			shardAges[a] = newAge(spec.Mutable, spec.DirBits, spec.FanIn)
		}
		idx.shards[i] = &Shard{ages: shardAges}
	}
	idx.compactor = NewCompactor(idx, log)
	return idx
}

// Compactor returns the background merge worker so callers can Run/Stop it.
func (idx *Index) Compactor() *Compactor { return idx.compactor }

// SetRetainHeight records the height below which immutable runs may
// be merged (spec.md §4.6's merge-ready rule: "combined end height
// <= retain_height").
func (idx *Index) SetRetainHeight(h int32) { idx.retainHeight.Store(h) }

// shardIndexOf routes key to a shard using a fast non-cryptographic
// hash of the full key (internal/chainhash.Prefix), rather than the
// key's own leading bytes: hashing spreads shard load evenly even when
// keys share leading-byte prefixes, which raw outpoint hashes often
// do for keys from the same transaction.
func (idx *Index) shardIndexOf(key chainhash.Hash) int {
	return int(corehash.Prefix(key, idx.shardBits))
}

// Append records entries (all from one block, at height) into the
// index, routing each into its shard's youngest age, per spec.md
// §4.6's "Append".
func (idx *Index) Append(height int32, entries []Entry) error {
	byShard := make(map[int][]Entry)
	for _, e := range entries {
		s := idx.shardIndexOf(e.Key)
		byShard[s] = append(byShard[s], e)
	}
	for s, es := range byShard {
		shard := idx.shards[s]
		age0 := shard.ages[0]
		r := newRun(append([]Entry{}, es...), heightRange{height, height + 1}, age0.dirBits)
		age0.addRun(r)
		idx.maybeCompact(s)
	}
	return nil
}

// EraseSince drops or truncates every mutable run covering height >=
// h, per spec.md §4.6's "Erase-since(h)". Immutable ages are never
// touched.
func (idx *Index) EraseSince(h int32) {
	for _, shard := range idx.shards {
		for _, age := range shard.ages {
			if !age.mutable {
				continue
			}
			cur := age.snapshot()
			kept := make([]*Run, 0, len(cur))
			for _, r := range cur {
				switch {
				case r.heights.begin >= h:
					// wholly at-or-after h: drop.
				case r.heights.end <= h:
					kept = append(kept, r)
				default:
					filtered := make([]Entry, 0, len(r.entries))
					for _, e := range r.entries {
						if e.Height < h {
							filtered = append(filtered, e)
						}
					}
					kept = append(kept, newRun(filtered, heightRange{r.heights.begin, h}, age.dirBits))
				}
			}
			age.replace(kept)
		}
	}
}

// Query resolves keys to their rid (if any), restricted to the
// [since, before) height window, per spec.md §4.6's "Query". Shards
// are dispatched in parallel.
func (idx *Index) Query(since, before int32, keys []chainhash.Hash) (map[chainhash.Hash]uint64, error) {
	byShard := make(map[int][]chainhash.Hash)
	for _, k := range keys {
		s := idx.shardIndexOf(k)
		byShard[s] = append(byShard[s], k)
	}

	var mu sync.Mutex
	result := make(map[chainhash.Hash]uint64, len(keys))

	g, _ := errgroup.WithContext(context.Background())
	for s, ks := range byShard {
		shard := idx.shards[s]
		ks := ks
		g.Go(func() error {
			local, err := queryShard(shard, since, before, ks)
			if err != nil {
				return err
			}
			mu.Lock()
			for k, v := range local {
				result[k] = v
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// queryShard visits ages oldest-to-youngest and, within an age, runs
// newest-first, per spec.md §4.6's "Query" ordering. Ages are stored
// youngest-first (index 0 = age0), so the oldest age is the last
// element of shard.ages.
func queryShard(shard *Shard, since, before int32, keys []chainhash.Hash) (map[chainhash.Hash]uint64, error) {
	remaining := make(map[chainhash.Hash]bool, len(keys))
	for _, k := range keys {
		remaining[k] = true
	}
	result := make(map[chainhash.Hash]uint64, len(keys))

	for ai := len(shard.ages) - 1; ai >= 0 && len(remaining) > 0; ai-- {
		age := shard.ages[ai]
		runs := age.snapshot()
		sorted := append([]*Run{}, runs...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].heights.begin > sorted[j].heights.begin })

		for _, r := range sorted {
			if !r.heights.overlaps(since, before) {
				continue
			}
			if !age.mutable && !r.heights.within(since, before) {
				return nil, errors.New(errors.ERR_INVALID_ARGUMENT,
					"utxoindex: query window [%d,%d) partially overlaps immutable run [%d,%d)",
					since, before, r.heights.begin, r.heights.end)
			}
			for k := range remaining {
				e, found := r.lookup(k)
				if !found {
					continue
				}
				if e.Op == OpAdd {
					result[k] = e.Rid
				}
				delete(remaining, k)
			}
			if len(remaining) == 0 {
				break
			}
		}
	}
	return result, nil
}

func mergeReady(age *Age, retainHeight int32) []*Run {
	runs := age.snapshot()
	if len(runs) < age.fanIn {
		return nil
	}
	sorted := append([]*Run{}, runs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].heights.begin < sorted[j].heights.begin })
	candidate := sorted[:age.fanIn]
	for i := 0; i < len(candidate)-1; i++ {
		if candidate[i].heights.end != candidate[i+1].heights.begin {
			return nil
		}
	}
	if candidate[len(candidate)-1].heights.end > retainHeight {
		return nil
	}
	return candidate
}

func (idx *Index) maybeCompact(shardIdx int) {
	shard := idx.shards[shardIdx]
	retain := idx.retainHeight.Load()
	for ai := 0; ai < len(shard.ages)-1; ai++ {
		if ready := mergeReady(shard.ages[ai], retain); ready != nil {
			idx.compactor.Enqueue(MergeJob{ShardIdx: shardIdx, AgeIdx: ai, Runs: ready})
		}
	}
}
