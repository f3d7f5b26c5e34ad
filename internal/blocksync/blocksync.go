// Package blocksync implements spec.md §4.4's block-synchronization
// worker: a single in-flight block request, a byte-size-bounded
// pending queue, and a two-phase (structural then contextual)
// validation pipeline that marks each block's status via a
// sidecar.StatusSidecar. Grounded on the teacher's
// services/legacy/netsync/manager.go blockMsg handling and
// services/legacy/p2p/BlockMessage.go.
package blocksync

import (
	"sync"
	"sync/atomic"

	"github.com/chainforge/core/internal/chainparams"
	"github.com/chainforge/core/internal/errors"
	"github.com/chainforge/core/internal/notify"
	"github.com/chainforge/core/internal/queue"
	"github.com/chainforge/core/internal/rules"
	"github.com/chainforge/core/internal/sidecar"
	"github.com/chainforge/core/internal/timechain"
	"github.com/chainforge/core/internal/ulogger"
	"github.com/libsv/go-bt/v2/chainhash"
)

// MaxPendingBytes bounds the queue's total serialized block size
// before the puller must wait, per spec.md §4.4 "bounded byte-sized
// queue" (mirrors the teacher's default block-download window).
const MaxPendingBytes = 32 * 1024 * 1024

// Item is one queued block: the delivering peer, the parsed block, its
// header hash, and the size hint counted against the worker's
// pending-byte bound.
type Item struct {
	PeerID   string
	Block    rules.Block
	Hash     chainhash.Hash
	SizeHint int
}

// PeerErrorFunc is invoked with the offending peer on a rejected block.
type PeerErrorFunc func(peerID string, err error)

// Worker validates queued blocks sequentially against the timechain
// and marks their validation status via a StatusSidecar (spec.md
// §4.4 "Pipeline").
type Worker struct {
	tc      *timechain.Timechain
	status  *sidecar.StatusSidecar
	q       *queue.Queue[Item]
	log     ulogger.Logger
	sink    notify.Sink
	onError PeerErrorFunc

	mu           sync.Mutex
	pendingBytes int64

	inFlight atomic.Bool

	stop chan struct{}
	done chan struct{}
}

// NewWorker builds a Worker validating blocks against tc, recording
// outcomes in status.
func NewWorker(tc *timechain.Timechain, status *sidecar.StatusSidecar, log ulogger.Logger, sink notify.Sink, onError PeerErrorFunc) *Worker {
	return &Worker{
		tc:      tc,
		status:  status,
		q:       queue.New[Item](),
		log:     log,
		sink:    sink,
		onError: onError,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Push enqueues a received block, blocking (via a spin-free condition
// inside the queue) only in the sense that callers should consult
// HasRoom first; Push itself never blocks.
func (w *Worker) Push(item Item) {
	w.mu.Lock()
	w.pendingBytes += int64(item.SizeHint)
	w.mu.Unlock()
	w.q.Push(item)
}

// HasRoom reports whether the pending queue has space for another
// block request, per spec.md §4.4's byte-sized bound.
func (w *Worker) HasRoom() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pendingBytes < MaxPendingBytes
}

// BeginRequest claims the single in-flight block request slot
// (spec.md §4.4 "single in-flight block request"), returning false if
// one is already outstanding.
func (w *Worker) BeginRequest() bool {
	return w.inFlight.CompareAndSwap(false, true)
}

// EndRequest releases the in-flight slot once a block arrives or the
// request times out.
func (w *Worker) EndRequest() {
	w.inFlight.Store(false)
}

// Run drives the validator loop until Stop is called.
func (w *Worker) Run() {
	defer close(w.done)
	for {
		item, ok := w.q.WaitPop(queue.Infinite())
		if !ok {
			return
		}
		w.processItem(item)
	}
}

// Stop signals Run to exit and waits for it to finish.
func (w *Worker) Stop() {
	w.q.Stop()
	<-w.done
}

func (w *Worker) processItem(item Item) {
	w.mu.Lock()
	w.pendingBytes -= int64(item.SizeHint)
	w.mu.Unlock()

	parentPos, found := w.tc.Locate(item.Block.Header.PrevHash)
	if !found {
		w.reject(item, errors.New(errors.ERR_HEADER_PARENT_NOT_FOUND,
			"block %s parent %s not found", item.Hash, item.Block.Header.PrevHash))
		return
	}
	parentCtx := w.tc.ContextAt(parentPos)
	height := parentCtx.Height + 1

	structArgs := rules.BlockArgs{Block: item.Block, Height: height, Parent: parentCtx}
	if err := rules.BlockStructuralRuleset.Validate(height, structArgs); err != nil {
		w.reject(item, err)
		return
	}
	if err := w.status.MarkStructureValid(height); err != nil {
		w.log.Warnf("blocksync: status transition (structure) at height %d: %v", height, err)
	}

	view := w.tc.GetValidationView(parentPos)
	ctxArgs := rules.BlockArgs{Block: item.Block, Height: height, Parent: parentCtx, View: view}
	if err := rules.BlockContextualRuleset.Validate(height, ctxArgs); err != nil {
		w.reject(item, err)
		return
	}

	ctx := chainparams.Extend(parentCtx, item.Block.Header, item.Hash)
	if _, err := w.tc.Add(ctx, parentPos); err != nil {
		w.reject(item, err)
		return
	}
	if err := w.status.MarkValidated(height); err != nil {
		w.log.Warnf("blocksync: status transition (validated) at height %d: %v", height, err)
	}

	w.notify(item.PeerID, item.Hash, true)
}

func (w *Worker) reject(item Item, err error) {
	w.log.Warnf("blocksync: rejecting block %s from peer %s: %v", item.Hash, item.PeerID, err)
	if w.onError != nil {
		w.onError(item.PeerID, err)
	}
	w.notify(item.PeerID, item.Hash, false)
}

func (w *Worker) notify(peerID string, hash chainhash.Hash, ok bool) {
	if w.sink == nil {
		return
	}
	w.sink.Notify(notify.Event{
		Type: notify.TypeEvent,
		Path: "sync/blocks",
		Data: map[string]notify.Value{
			"peer": notify.StringValue(peerID),
			"hash": notify.StringValue(hash.String()),
			"ok":   notify.StringValue(boolStr(ok)),
		},
	})
}

func boolStr(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}
