// Package headersync implements spec.md §4.3's header-synchronization
// worker: a per-peer FIFO queue feeding a single validator goroutine,
// request pacing via a single send-blocked flag, and a
// ValidationView-pinned validation pass per batch. Grounded on the
// teacher's services/legacy/netsync/manager.go SyncManager shape
// (newPeerMsg/headersMsg/donePeerMsg feeding a single blockHandler
// loop, one goroutine processing all peer messages in arrival order).
package headersync

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chainforge/core/internal/chainparams"
	"github.com/chainforge/core/internal/errors"
	"github.com/chainforge/core/internal/notify"
	"github.com/chainforge/core/internal/queue"
	"github.com/chainforge/core/internal/rules"
	"github.com/chainforge/core/internal/timechain"
	"github.com/chainforge/core/internal/ulogger"
	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MaxHeadersPerBatch bounds a single peer batch (spec.md §4.3).
const MaxHeadersPerBatch = 2000

// Header is one candidate header plus its precomputed wire hash, the
// unit headersync validates (spec.md §4.3).
type Header struct {
	Header chainparams.BlockHeader
	Hash   chainhash.Hash
}

// Batch is a peer's header delivery: up to MaxHeadersPerBatch headers.
type Batch struct {
	PeerID  string
	Headers []Header
}

// PeerErrorFunc is invoked with the offending peer when a batch fails
// validation; the caller is expected to disconnect that peer.
type PeerErrorFunc func(peerID string, err error)

// CompleteFunc is invoked when a peer delivers a short (< 2,000
// header) batch, signalling end-of-chain from that peer (spec.md
// §4.3 "OnComplete").
type CompleteFunc func(peerID string)

var (
	metricsOnce      sync.Once
	batchesProcessed prometheus.Counter
	headersValidated prometheus.Counter
	headersRejected  prometheus.Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		batchesProcessed = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "core", Subsystem: "headersync", Name: "batches_processed_total",
		})
		headersValidated = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "core", Subsystem: "headersync", Name: "headers_validated_total",
		})
		headersRejected = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "core", Subsystem: "headersync", Name: "headers_rejected_total",
		})
	})
}

// Worker is the single background validator goroutine draining the
// shared batch queue (spec.md §4.3 "a single background worker thread
// validates batches sequentially").
type Worker struct {
	tc   *timechain.Timechain
	q    *queue.Queue[Batch]
	log  ulogger.Logger
	sink notify.Sink

	onPeerError PeerErrorFunc
	onComplete  CompleteFunc

	sendBlocked atomic.Bool

	stop chan struct{}
	done chan struct{}
}

// NewWorker builds a Worker over tc, with onPeerError/onComplete
// callbacks invoked from the validator goroutine.
func NewWorker(tc *timechain.Timechain, log ulogger.Logger, sink notify.Sink, onPeerError PeerErrorFunc, onComplete CompleteFunc) *Worker {
	initMetrics()
	return &Worker{
		tc:          tc,
		q:           queue.New[Batch](),
		log:         log,
		sink:        sink,
		onPeerError: onPeerError,
		onComplete:  onComplete,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Push enqueues a peer's header batch for validation.
func (w *Worker) Push(b Batch) {
	w.q.Push(b)
}

// ErasePeer discards every queued batch still belonging to peerID,
// per spec.md §4.3 "discard all remaining queued items for the same
// peer (via erase_if)".
func (w *Worker) ErasePeer(peerID string) {
	w.q.EraseIf(func(b Batch) bool { return b.PeerID == peerID })
}

// CanSendGetHeaders reports whether a get-headers request may be
// emitted right now: it returns true only when the pacing flag is
// clear, and sets the flag so later calls return false until
// ResetPacing (spec.md §4.3 "Request pacing").
func (w *Worker) CanSendGetHeaders() bool {
	return w.sendBlocked.CompareAndSwap(false, true)
}

// ResetPacing clears send_blocked_, permitting one more request
// (spec.md §4.3: cleared "on start-sync and after any full batch").
func (w *Worker) ResetPacing() {
	w.sendBlocked.Store(false)
}

// Run drives the validator loop until Stop is called. Intended to be
// launched as the one long-lived header-sync goroutine (spec.md §5
// "Threads").
func (w *Worker) Run() {
	defer close(w.done)
	for {
		batch, ok := w.q.WaitPop(queue.Infinite())
		if !ok {
			return
		}
		w.processBatch(batch)
	}
}

// Stop signals Run to exit and waits for it to finish.
func (w *Worker) Stop() {
	w.q.Stop()
	<-w.done
}

func (w *Worker) processBatch(b Batch) {
	initMetrics()
	batchesProcessed.Inc()

	if len(b.Headers) == 0 {
		return
	}

	parentPos, found := w.tc.Locate(b.Headers[0].Header.PrevHash)
	if !found {
		w.log.Warnf("headersync: peer %s batch parent %s not found", b.PeerID, b.Headers[0].Header.PrevHash)
		w.onPeerError(b.PeerID, errors.New(errors.ERR_HEADER_PARENT_NOT_FOUND,
			"batch parent %s not found in chain or tree", b.Headers[0].Header.PrevHash))
		w.ErasePeer(b.PeerID)
		return
	}

	view := w.tc.GetValidationView(parentPos)
	parentCtx := w.tc.ContextAt(parentPos)

	for _, h := range b.Headers {
		args := rules.HeaderArgs{
			Header: h.Header,
			Hash:   h.Hash,
			Height: parentCtx.Height + 1,
			Parent: parentCtx,
			View:   view,
			Now:    time.Now(),
		}
		if err := rules.HeaderRuleset.Validate(args.Height, args); err != nil {
			headersRejected.Inc()
			w.onPeerError(b.PeerID, err)
			w.ErasePeer(b.PeerID)
			w.notify("sync/headers", b.PeerID, false)
			return
		}

		ctx := chainparams.Extend(parentCtx, h.Header, h.Hash)
		newPos, err := w.tc.Add(ctx, parentPos)
		if err != nil {
			headersRejected.Inc()
			w.onPeerError(b.PeerID, err)
			w.ErasePeer(b.PeerID)
			return
		}
		headersValidated.Inc()

		parentPos = newPos
		parentCtx = ctx
		view = view.Advance(newPos)
	}

	w.notify("sync/headers", b.PeerID, true)

	if len(b.Headers) >= MaxHeadersPerBatch {
		w.ResetPacing()
	} else if w.onComplete != nil {
		w.onComplete(b.PeerID)
	}
}

func (w *Worker) notify(path, peerID string, ok bool) {
	if w.sink == nil {
		return
	}
	w.sink.Notify(notify.Event{
		Type: notify.TypeEvent,
		Path: path,
		Data: map[string]notify.Value{
			"peer": notify.StringValue(peerID),
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
