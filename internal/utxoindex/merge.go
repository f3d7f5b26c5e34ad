package utxoindex

import (
	"container/heap"

	"github.com/chainforge/core/internal/queue"
	"github.com/chainforge/core/internal/ulogger"
)

// MergeJob asks the Compactor to merge Runs (all from Age AgeIdx of
// shard ShardIdx) into one new run in the next-older age.
type MergeJob struct {
	ShardIdx int
	AgeIdx   int
	Runs     []*Run
}

// Compactor is the background merge worker: a single goroutine
// draining a queue of MergeJobs, grounded on
// services/blockassembly/subtreeprocessor/queue.go's dedicated
// compactor-job worker (same internal/queue library, reused here for
// the index's age merges rather than the subtree cache). Running as a
// single goroutine gives the "no two merges ever run concurrently on
// the same (shard, age) pair" guarantee spec.md §4.6 asks for, for
// free.
type Compactor struct {
	idx  *Index
	q    *queue.Queue[MergeJob]
	log  ulogger.Logger
	done chan struct{}
}

// NewCompactor builds a Compactor driving idx's merges.
func NewCompactor(idx *Index, log ulogger.Logger) *Compactor {
	return &Compactor{idx: idx, q: queue.New[MergeJob](), log: log, done: make(chan struct{})}
}

// Enqueue schedules job for merging.
func (c *Compactor) Enqueue(job MergeJob) {
	c.q.Push(job)
}

// Run drives the compactor loop until Stop is called.
func (c *Compactor) Run() {
	defer close(c.done)
	for {
		job, ok := c.q.WaitPop(queue.Infinite())
		if !ok {
			return
		}
		c.merge(job)
	}
}

// Stop signals Run to exit and waits for it to finish.
func (c *Compactor) Stop() {
	c.q.Stop()
	<-c.done
}

func (c *Compactor) merge(job MergeJob) {
	shard := c.idx.shards[job.ShardIdx]
	srcAge := shard.ages[job.AgeIdx]
	dstAge := shard.ages[job.AgeIdx+1]

	merged := mergeRuns(job.Runs, dstAge.dirBits)

	toRemove := make(map[*Run]bool, len(job.Runs))
	for _, r := range job.Runs {
		toRemove[r] = true
	}
	cur := srcAge.snapshot()
	kept := make([]*Run, 0, len(cur))
	for _, r := range cur {
		if !toRemove[r] {
			kept = append(kept, r)
		}
	}
	srcAge.replace(kept)
	dstAge.addRun(merged)

	c.log.Debugf("utxoindex: merged %d runs in shard %d age %d into one run [%d,%d)",
		len(job.Runs), job.ShardIdx, job.AgeIdx, merged.heights.begin, merged.heights.end)

	c.idx.maybeCompact(job.ShardIdx)
}

// heapItem is one run's current head entry, tracked for the k-way
// merge's priority queue.
type heapItem struct {
	entry  Entry
	runIdx int
	idx    int
}

type mergeHeap []heapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if h[i].entry.Key != h[j].entry.Key {
		return lessKey(h[i].entry.Key, h[j].entry.Key)
	}
	return h[i].entry.Height < h[j].entry.Height
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(heapItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeRuns k-way merges runs (sorted by key) into one new run whose
// height range spans all of them, canceling adjacent Add/Delete pairs
// for the same key as they emerge in (key, height) order, per spec.md
// §4.6's "Merge": "a K-way priority-queue merge ... an Add immediately
// followed by a Delete for the same key cancels both."
func mergeRuns(runs []*Run, dirBits int) *Run {
	h := &mergeHeap{}
	heap.Init(h)
	for ri, r := range runs {
		if len(r.entries) > 0 {
			heap.Push(h, heapItem{entry: r.entries[0], runIdx: ri, idx: 0})
		}
	}

	merged := make([]Entry, 0)
	for h.Len() > 0 {
		top := heap.Pop(h).(heapItem)
		r := runs[top.runIdx]
		if top.idx+1 < len(r.entries) {
			heap.Push(h, heapItem{entry: r.entries[top.idx+1], runIdx: top.runIdx, idx: top.idx + 1})
		}

		if n := len(merged); n > 0 && merged[n-1].Key == top.entry.Key {
			merged = merged[:n-1]
			continue
		}
		merged = append(merged, top.entry)
	}

	begin, end := runs[0].heights.begin, runs[0].heights.end
	for _, r := range runs[1:] {
		if r.heights.begin < begin {
			begin = r.heights.begin
		}
		if r.heights.end > end {
			end = r.heights.end
		}
	}
	return newRun(merged, heightRange{begin, end}, dirBits)
}
